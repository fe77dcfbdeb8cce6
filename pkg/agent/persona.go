package agent

import "strings"

// Persona names.
const (
	PersonaTutor  = "tutor"
	PersonaCasual = "casual"
)

// Default models per persona.
const (
	DefaultTutorModel  = "learnlm-1.5-pro-experimental"
	DefaultCasualModel = "gemini-2.0-flash-exp"
)

const tutorInstruction = `Be a friendly, supportive tutor. You have access to the authenticated user's notes and, when their Google account is linked, their calendar. Always ensure the user explicitly provides the content when creating a note. If content is missing, please ask them to clarify before calling createNote.`

const casualInstruction = `you're a chill assistant with access to the user's personal notes and, if they linked google, their calendar. whenever creating a note, insist on explicit content from the user. if it's not provided, ask them first before calling createNote. keep your casual tone, but confirm they specify what to store in the note.`

// Persona is a fixed bundle of model, system instruction and generation parameters.
type Persona struct {
	Name              string
	Model             string
	SystemInstruction string
	Generation        GenerationConfig
}

// DefaultGeneration is shared by both personas.
func DefaultGeneration() GenerationConfig {
	return GenerationConfig{
		Temperature:     1,
		TopP:            0.95,
		TopK:            40,
		MaxOutputTokens: 8192,
	}
}

// Personas is the closed set of personas a request may select.
type Personas struct {
	Tutor  Persona
	Casual Persona
}

// NewPersonas builds the persona set. Empty model names fall back to the defaults.
func NewPersonas(tutorModel, casualModel string) Personas {
	if tutorModel == "" {
		tutorModel = DefaultTutorModel
	}
	if casualModel == "" {
		casualModel = DefaultCasualModel
	}
	return Personas{
		Tutor: Persona{
			Name:              PersonaTutor,
			Model:             tutorModel,
			SystemInstruction: tutorInstruction,
			Generation:        DefaultGeneration(),
		},
		Casual: Persona{
			Name:              PersonaCasual,
			Model:             casualModel,
			SystemInstruction: casualInstruction,
			Generation:        DefaultGeneration(),
		},
	}
}

// Resolve maps an assistantType selector to a persona. "chill" and "casual"
// select Casual; anything else, including "", selects Tutor.
func (p Personas) Resolve(selector string) Persona {
	switch strings.ToLower(strings.TrimSpace(selector)) {
	case "chill", PersonaCasual:
		return p.Casual
	default:
		return p.Tutor
	}
}
