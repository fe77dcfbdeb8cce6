package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/harun/notemate/pkg/toolexecutor"
	"google.golang.org/genai"
)

// GeminiProvider implements Model for Google Gemini
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a Gemini provider. A configured project selects
// the Vertex AI backend, otherwise the API key is used.
func NewGeminiProvider(ctx context.Context, cfg ProviderConfig) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Project != "" {
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Provider returns the provider name
func (p *GeminiProvider) Provider() string {
	return ProviderGemini
}

// Generate makes an API call to Google Gemini
func (p *GeminiProvider) Generate(ctx context.Context, req ModelRequest) (*ModelReply, error) {
	res, err := p.client.Models.GenerateContent(ctx, req.Model, geminiContents(req.Turns), geminiConfig(req))
	if err != nil {
		return nil, err
	}
	if len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned")
	}

	reply := &ModelReply{}
	var text strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall != nil {
			reply.ToolCalls = append(reply.ToolCalls, ToolCall{
				ID:        part.FunctionCall.ID,
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			})
			continue
		}
		text.WriteString(part.Text)
	}
	reply.Text = text.String()

	if res.UsageMetadata != nil {
		reply.Usage = &TokenUsage{
			InputTokens:  int(res.UsageMetadata.PromptTokenCount),
			OutputTokens: int(res.UsageMetadata.CandidatesTokenCount),
		}
	}
	return reply, nil
}

func geminiContents(turns []Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		var parts []*genai.Part
		if t.Text != "" {
			parts = append(parts, genai.NewPartFromText(t.Text))
		}
		for _, call := range t.ToolCalls {
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   geminiCallID(call.ID),
				Name: call.Name,
				Args: call.Arguments,
			}})
		}
		for _, resp := range t.ToolResponses {
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       geminiCallID(resp.ID),
				Name:     resp.Name,
				Response: ResponsePayload(resp.Result),
			}})
		}
		if len(parts) == 0 {
			continue
		}

		role := genai.RoleUser
		if t.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.Role(role)))
	}
	return contents
}

// geminiCallID echoes IDs the model issued and drops the ones assigned
// locally, which Gemini never saw.
func geminiCallID(id string) string {
	if isLocalCallID(id) {
		return ""
	}
	return id
}

var geminiSafetySettings = []*genai.SafetySetting{
	{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
}

func geminiConfig(req ModelRequest) *genai.GenerateContentConfig {
	g := req.Generation
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.Temperature)),
		TopP:            genai.Ptr(float32(g.TopP)),
		MaxOutputTokens: int32(g.MaxOutputTokens),
		SafetySettings:  geminiSafetySettings,
	}
	if g.TopK > 0 {
		cfg.TopK = genai.Ptr(float32(g.TopK))
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(req.SystemInstruction)}}
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			decls = append(decls, geminiDeclaration(def))
		}
		mode := genai.FunctionCallingConfigModeAuto
		if req.DisableTools {
			mode = genai.FunctionCallingConfigModeNone
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		cfg.ToolConfig = &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{Mode: mode}}
	}
	return cfg
}

func geminiDeclaration(def toolexecutor.ToolDefinition) *genai.FunctionDeclaration {
	properties := make(map[string]*genai.Schema, len(def.Parameters))
	for _, p := range def.Parameters {
		properties[p.Name] = &genai.Schema{
			Type:        geminiType(p.Type),
			Description: p.Description,
			Enum:        p.Enum,
		}
	}

	decl := &genai.FunctionDeclaration{Name: def.Name, Description: def.Description}
	// Gemini rejects an OBJECT schema without properties.
	if len(properties) > 0 {
		decl.Parameters = &genai.Schema{
			Type:       genai.TypeObject,
			Properties: properties,
			Required:   def.RequiredParameters(),
		}
	}
	return decl
}

func geminiType(t string) genai.Type {
	switch t {
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}
