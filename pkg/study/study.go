// Package study implements the study helpers: flash-card generation, a
// context-aware tutor chat and the "advent" learning game.
package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/notemate/internal/tracing"
	"github.com/harun/notemate/pkg/agent"
	"github.com/rs/zerolog"
)

// ErrTopicRequired is returned when a generator is called without a topic.
var ErrTopicRequired = errors.New("Topic is required")

// Card is a single flash card.
type Card struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// StoryStep is the next part of an advent game.
type StoryStep struct {
	Story   string   `json:"story"`
	Choices []string `json:"choices"`
}

// ChoiceAnalysis explains one choice made during a game.
type ChoiceAnalysis struct {
	Choice      string `json:"choice"`
	Explanation string `json:"explanation"`
}

// Review is the final assessment of an advent game.
type Review struct {
	ChoiceAnalysis  []ChoiceAnalysis `json:"choiceAnalysis"`
	OverallReview   string           `json:"overallReview"`
	Rating          float64          `json:"rating"`
	SuggestedTopics []string         `json:"suggestedTopics"`
}

// Fallbacks returned when the model output cannot be used.
var (
	FallbackCards = []Card{{Question: "Error generating cards", Answer: "Please try again with a different topic"}}

	FallbackStory = StoryStep{
		Story:   "There was an error generating the story. Please try again.",
		Choices: []string{"Start Over"},
	}

	FallbackReview = Review{
		ChoiceAnalysis:  []ChoiceAnalysis{},
		OverallReview:   "Unable to generate review.",
		Rating:          3,
		SuggestedTopics: []string{},
	}
)

// Models names the model used by each helper.
type Models struct {
	Cards string
	Chat  string
	Game  string
}

// Service generates study material with a Model.
type Service struct {
	model  agent.Model
	models Models
	logger zerolog.Logger
}

// NewService creates a Service. Empty model names fall back to the persona defaults.
func NewService(model agent.Model, models Models, logger zerolog.Logger) *Service {
	if models.Cards == "" {
		models.Cards = agent.DefaultCasualModel
	}
	if models.Chat == "" {
		models.Chat = agent.DefaultTutorModel
	}
	if models.Game == "" {
		models.Game = agent.DefaultCasualModel
	}
	return &Service{
		model:  model,
		models: models,
		logger: logger.With().Str("component", "study").Logger(),
	}
}

var (
	codeFence  = regexp.MustCompile("```json|```")
	jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)
)

// FlashCards asks for five cards about topic. Unusable output yields FallbackCards.
func (s *Service) FlashCards(ctx context.Context, topic string) ([]Card, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrTopicRequired
	}

	prompt := fmt.Sprintf(`Generate 5 flash cards about %s.
Return ONLY a JSON array with this exact format, no extra text or markdown:
[
  {"question": "Q1 here", "answer": "A1 here"},
  {"question": "Q2 here", "answer": "A2 here"}
]`, topic)

	text, err := s.complete(ctx, s.models.Cards, prompt)
	if err != nil {
		s.log(ctx).Warn().Err(err).Msg("Flash card generation failed")
		return FallbackCards, nil
	}

	var cards []Card
	clean := strings.TrimSpace(codeFence.ReplaceAllString(text, ""))
	if err := json.Unmarshal([]byte(clean), &cards); err != nil {
		s.log(ctx).Warn().Err(err).Msg("Flash card output is not a JSON array")
		return FallbackCards, nil
	}
	return cards, nil
}

// Chat answers message with the given study context.
func (s *Service) Chat(ctx context.Context, message, studyContext string) (string, error) {
	prompt := fmt.Sprintf("Context: %s\n\nUser: %s", studyContext, message)
	return s.complete(ctx, s.models.Chat, prompt)
}

// Story generates the next step of the game from the player's input.
func (s *Service) Story(ctx context.Context, topic, input string) (StoryStep, error) {
	if strings.TrimSpace(topic) == "" {
		return StoryStep{}, ErrTopicRequired
	}

	prompt := fmt.Sprintf(`You are an educational game about %[1]s. Create an engaging scenario that teaches important concepts about this subject.
Respond only with a valid JSON object.
Format: {"story": "your educational story text here", "choices": ["choice1", "choice2"]}.
Each choice should lead to learning different aspects about %[1]s.
Based on the user's input: "%[2]s", generate the next part of the story.`, topic, input)

	text, err := s.complete(ctx, s.models.Game, prompt)
	if err != nil {
		s.log(ctx).Warn().Err(err).Msg("Story generation failed")
		return FallbackStory, nil
	}

	match := jsonObject.FindString(text)
	if match == "" {
		return FallbackStory, nil
	}
	match = strings.NewReplacer("\n", " ", "\r", " ").Replace(match)

	var step StoryStep
	if err := json.Unmarshal([]byte(match), &step); err != nil || step.Story == "" || step.Choices == nil {
		s.log(ctx).Warn().Err(err).Msg("Story output has an invalid structure")
		return FallbackStory, nil
	}
	return step, nil
}

// Review assesses a finished game. history is passed to the model verbatim.
func (s *Service) Review(ctx context.Context, topic string, history json.RawMessage) (Review, error) {
	if strings.TrimSpace(topic) == "" {
		return Review{}, ErrTopicRequired
	}

	prompt := fmt.Sprintf(`Based on this learning journey about %s, analyze the choices made and provide feedback.
The history is: %s.
Respond only with a valid JSON object.
Format: {
  "choiceAnalysis": [{
    "choice": "user's choice",
    "explanation": "explanation of the educational impact of this choice"
  }],
  "overallReview": "overall learning journey review",
  "rating": number between 1-5,
  "suggestedTopics": ["related topic 1", "related topic 2"]
}`, topic, string(history))

	text, err := s.complete(ctx, s.models.Game, prompt)
	if err != nil {
		s.log(ctx).Warn().Err(err).Msg("Review generation failed")
		return FallbackReview, nil
	}

	match := jsonObject.FindString(text)
	var review Review
	if match == "" || json.Unmarshal([]byte(match), &review) != nil {
		return FallbackReview, nil
	}
	if review.ChoiceAnalysis == nil {
		review.ChoiceAnalysis = []ChoiceAnalysis{}
	}
	if review.SuggestedTopics == nil {
		review.SuggestedTopics = []string{}
	}
	return review, nil
}

// complete sends a single text-only prompt.
func (s *Service) complete(ctx context.Context, model, prompt string) (string, error) {
	reply, err := s.model.Generate(ctx, agent.ModelRequest{
		Model:      model,
		Turns:      []agent.Turn{{Role: agent.RoleUser, Text: prompt}},
		Generation: agent.DefaultGeneration(),
	})
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	l := tracing.LoggerFromContext(ctx, s.logger)
	return &l
}
