package agent

import (
	"encoding/json"
	"strings"

	"github.com/harun/notemate/pkg/toolexecutor"
)

// Conversation roles as the model sees them.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one entry of client-supplied conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResponse carries an action result back to the model.
type ToolResponse struct {
	ID     string                    `json:"id"`
	Name   string                    `json:"name"`
	Result toolexecutor.ActionResult `json:"result"`
}

// Turn is one message of the model conversation. A model turn may carry
// tool calls; the user turn that follows carries their responses.
type Turn struct {
	Role          string
	Text          string
	ToolCalls     []ToolCall
	ToolResponses []ToolResponse
}

// GenerationConfig holds the sampling parameters of a persona.
type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// ModelRequest is one round-trip to the model.
type ModelRequest struct {
	Model             string
	SystemInstruction string
	Turns             []Turn
	Tools             []toolexecutor.ToolDefinition
	Generation        GenerationConfig
	// DisableTools keeps the tool declarations but forbids the model from calling them.
	DisableTools bool
}

// ModelReply is the model's answer to a ModelRequest.
type ModelReply struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add accumulates u into t.
func (t *TokenUsage) Add(u *TokenUsage) {
	if u == nil {
		return
	}
	t.InputTokens += u.InputTokens
	t.OutputTokens += u.OutputTokens
}

// ResponsePayload is the function response body sent to the model:
// {"content": payload} on success, {"error": reason} on failure. The payload
// goes through JSON so struct tags decide the field names the model sees.
func ResponsePayload(result toolexecutor.ActionResult) map[string]interface{} {
	if !result.Success {
		return map[string]interface{}{"error": result.Reason}
	}

	var content interface{}
	raw, err := json.Marshal(result.Payload)
	if err != nil || json.Unmarshal(raw, &content) != nil {
		return map[string]interface{}{"error": "action result is not serializable"}
	}
	return map[string]interface{}{"content": content}
}

// responseJSON renders ResponsePayload as a string for providers that take
// tool results as text.
func responseJSON(result toolexecutor.ActionResult) string {
	raw, err := json.Marshal(ResponsePayload(result))
	if err != nil {
		return `{"error":"action result is not serializable"}`
	}
	return string(raw)
}

// HistoryTurns converts client history to model turns. "user" stays user,
// every other role becomes model, and blank entries are dropped.
func HistoryTurns(history []Message) []Turn {
	turns := make([]Turn, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := RoleModel
		if strings.EqualFold(strings.TrimSpace(m.Role), RoleUser) {
			role = RoleUser
		}
		turns = append(turns, Turn{Role: role, Text: m.Content})
	}
	return turns
}

// IsRetryableError checks if a model error should be retried
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"econnreset", "etimedout", "connection reset", "429", "rate limit", "resource_exhausted", "500", "502", "503", "504", "unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
