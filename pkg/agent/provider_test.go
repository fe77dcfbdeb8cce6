package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/harun/notemate/pkg/toolexecutor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture records the last JSON body posted to a fake provider endpoint.
type capture struct {
	mu   sync.Mutex
	path string
	body map[string]interface{}
}

func (c *capture) serve(t *testing.T, response string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.path = r.URL.Path
		c.body = nil
		json.Unmarshal(raw, &c.body)
		c.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (c *capture) get() (string, map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path, c.body
}

var createNoteDef = toolexecutor.ToolDefinition{
	Name:        "createNote",
	Description: "Creates a new note",
	Parameters: []toolexecutor.ToolParameter{
		{Name: "content", Type: "string", Description: "note text", Required: true},
		{Name: "status", Type: "string", Description: "status", Enum: []string{"active", "completed"}},
	},
}

func conversationWithToolRound() []Turn {
	return []Turn{
		{Role: RoleUser, Text: "remind me to buy milk"},
		{Role: RoleModel, ToolCalls: []ToolCall{{ID: "call_0_0", Name: "createNote", Arguments: map[string]interface{}{"content": "buy milk"}}}},
		{Role: RoleUser, ToolResponses: []ToolResponse{{
			ID:     "call_0_0",
			Name:   "createNote",
			Result: toolexecutor.Succeeded(map[string]string{"content": "buy milk"}),
		}}},
	}
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(context.Background(), ProviderConfig{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, m.Provider())

	m, err = NewModel(context.Background(), ProviderConfig{Provider: "anthropic", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, m.Provider())

	_, err = NewModel(context.Background(), ProviderConfig{Provider: "llama"})
	assert.Error(t, err)
}

func TestInputSchema(t *testing.T) {
	schema := inputSchema(createNoteDef)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []string{"content"}, schema["required"])

	props := schema["properties"].(map[string]interface{})
	status := props["status"].(map[string]interface{})
	assert.Equal(t, []string{"active", "completed"}, status["enum"])
}

func TestGeminiProvider_Generate(t *testing.T) {
	c := &capture{}
	srv := c.serve(t, `{
		"candidates": [{"content": {"role": "model", "parts": [
			{"text": "Adding it now. "},
			{"functionCall": {"name": "createNote", "args": {"content": "buy milk"}}}
		]}}],
		"usageMetadata": {"promptTokenCount": 12, "candidatesTokenCount": 7}
	}`)

	p, err := NewGeminiProvider(context.Background(), ProviderConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, p.Provider())

	reply, err := p.Generate(context.Background(), ModelRequest{
		Model:             DefaultTutorModel,
		SystemInstruction: "Be a tutor.",
		Turns:             conversationWithToolRound(),
		Tools:             []toolexecutor.ToolDefinition{createNoteDef},
		Generation:        DefaultGeneration(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Adding it now. ", reply.Text)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "createNote", reply.ToolCalls[0].Name)
	assert.Equal(t, "buy milk", reply.ToolCalls[0].Arguments["content"])
	assert.Equal(t, &TokenUsage{InputTokens: 12, OutputTokens: 7}, reply.Usage)

	path, body := c.get()
	assert.True(t, strings.HasSuffix(path, DefaultTutorModel+":generateContent"), path)
	assert.Len(t, body["safetySettings"], 4)

	toolConfig := body["toolConfig"].(map[string]interface{})
	assert.Equal(t, "AUTO", toolConfig["functionCallingConfig"].(map[string]interface{})["mode"])

	contents := body["contents"].([]interface{})
	require.Len(t, contents, 3)
	last := contents[2].(map[string]interface{})
	parts := last["parts"].([]interface{})
	fr := parts[0].(map[string]interface{})["functionResponse"].(map[string]interface{})
	assert.Equal(t, "createNote", fr["name"])
	assert.Equal(t, map[string]interface{}{"content": map[string]interface{}{"content": "buy milk"}}, fr["response"])
}

func TestGeminiProvider_Generate_ReplaysCallIDs(t *testing.T) {
	c := &capture{}
	srv := c.serve(t, `{"candidates": [{"content": {"role": "model", "parts": [
		{"functionCall": {"id": "fc-7", "name": "createNote", "args": {"content": "buy milk"}}}
	]}}]}`)

	p, err := NewGeminiProvider(context.Background(), ProviderConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	turns := conversationWithToolRound()
	turns[1].ToolCalls[0].ID = "fc-1"
	turns[2].ToolResponses[0].ID = "fc-1"
	turns = append(turns,
		Turn{Role: RoleModel, ToolCalls: []ToolCall{{ID: "call_1_0", Name: "viewNotes"}}},
		Turn{Role: RoleUser, ToolResponses: []ToolResponse{{ID: "call_1_0", Name: "viewNotes", Result: toolexecutor.Succeeded([]string{})}}},
	)

	reply, err := p.Generate(context.Background(), ModelRequest{
		Model:      DefaultTutorModel,
		Turns:      turns,
		Tools:      []toolexecutor.ToolDefinition{createNoteDef},
		Generation: DefaultGeneration(),
	})
	require.NoError(t, err)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "fc-7", reply.ToolCalls[0].ID)

	_, body := c.get()
	contents := body["contents"].([]interface{})
	require.Len(t, contents, 5)
	part := func(i int) map[string]interface{} {
		return contents[i].(map[string]interface{})["parts"].([]interface{})[0].(map[string]interface{})
	}

	t.Run("should echo model issued IDs", func(t *testing.T) {
		assert.Equal(t, "fc-1", part(1)["functionCall"].(map[string]interface{})["id"])
		assert.Equal(t, "fc-1", part(2)["functionResponse"].(map[string]interface{})["id"])
	})

	t.Run("should omit locally assigned IDs", func(t *testing.T) {
		assert.NotContains(t, part(3)["functionCall"].(map[string]interface{}), "id")
		assert.NotContains(t, part(4)["functionResponse"].(map[string]interface{}), "id")
	})
}

func TestGeminiProvider_Generate_ToolsDisabled(t *testing.T) {
	c := &capture{}
	srv := c.serve(t, `{"candidates": [{"content": {"role": "model", "parts": [{"text": "Done."}]}}]}`)

	p, err := NewGeminiProvider(context.Background(), ProviderConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	reply, err := p.Generate(context.Background(), ModelRequest{
		Model:        DefaultCasualModel,
		Turns:        conversationWithToolRound(),
		Tools:        []toolexecutor.ToolDefinition{createNoteDef},
		Generation:   DefaultGeneration(),
		DisableTools: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Done.", reply.Text)
	assert.Empty(t, reply.ToolCalls)
	assert.Nil(t, reply.Usage)

	_, body := c.get()
	toolConfig := body["toolConfig"].(map[string]interface{})
	assert.Equal(t, "NONE", toolConfig["functionCallingConfig"].(map[string]interface{})["mode"])
}

func TestGeminiProvider_Generate_NoCandidates(t *testing.T) {
	c := &capture{}
	srv := c.serve(t, `{"candidates": []}`)

	p, err := NewGeminiProvider(context.Background(), ProviderConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), ModelRequest{Model: DefaultTutorModel, Turns: []Turn{{Role: RoleUser, Text: "hi"}}})
	assert.Error(t, err)
}

func TestOpenAIProvider_Generate(t *testing.T) {
	c := &capture{}
	srv := c.serve(t, `{
		"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4o",
		"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
			"role": "assistant", "content": "",
			"tool_calls": [{"id": "call_9", "type": "function", "function": {"name": "createNote", "arguments": "{\"content\":\"buy milk\"}"}}]
		}}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}
	}`)

	p := NewOpenAIProvider(ProviderConfig{APIKey: "test-key", BaseURL: srv.URL + "/"})
	reply, err := p.Generate(context.Background(), ModelRequest{
		Model:             "gpt-4o",
		SystemInstruction: "Be a tutor.",
		Turns:             conversationWithToolRound(),
		Tools:             []toolexecutor.ToolDefinition{createNoteDef},
		Generation:        DefaultGeneration(),
		DisableTools:      true,
	})
	require.NoError(t, err)

	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "call_9", reply.ToolCalls[0].ID)
	assert.Equal(t, "buy milk", reply.ToolCalls[0].Arguments["content"])
	assert.Equal(t, &TokenUsage{InputTokens: 3, OutputTokens: 4}, reply.Usage)

	path, body := c.get()
	assert.True(t, strings.HasSuffix(path, "/chat/completions"), path)
	assert.Equal(t, "none", body["tool_choice"])

	messages := body["messages"].([]interface{})
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	tool := messages[3].(map[string]interface{})
	assert.Equal(t, "tool", tool["role"])
	assert.Equal(t, "call_0_0", tool["tool_call_id"])
	assert.JSONEq(t, `{"content":{"content":"buy milk"}}`, tool["content"].(string))
}

func TestAnthropicProvider_Generate(t *testing.T) {
	c := &capture{}
	srv := c.serve(t, `{
		"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
		"content": [
			{"type": "text", "text": "Let me check."},
			{"type": "tool_use", "id": "toolu_1", "name": "viewNotes", "input": {}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 8, "output_tokens": 2}
	}`)

	p := NewAnthropicProvider(ProviderConfig{APIKey: "test-key", BaseURL: srv.URL + "/"})
	reply, err := p.Generate(context.Background(), ModelRequest{
		Model:             "claude-sonnet-4-5",
		SystemInstruction: "Be a tutor.",
		Turns:             conversationWithToolRound(),
		Tools:             []toolexecutor.ToolDefinition{createNoteDef},
		Generation:        DefaultGeneration(),
	})
	require.NoError(t, err)

	assert.Equal(t, "Let me check.", reply.Text)
	require.Len(t, reply.ToolCalls, 1)
	assert.Equal(t, "toolu_1", reply.ToolCalls[0].ID)
	assert.Equal(t, "viewNotes", reply.ToolCalls[0].Name)
	assert.Equal(t, &TokenUsage{InputTokens: 8, OutputTokens: 2}, reply.Usage)

	path, body := c.get()
	assert.True(t, strings.HasSuffix(path, "/v1/messages"), path)
	assert.EqualValues(t, 8192, body["max_tokens"])

	messages := body["messages"].([]interface{})
	require.Len(t, messages, 3)
	results := messages[2].(map[string]interface{})["content"].([]interface{})
	block := results[0].(map[string]interface{})
	assert.Equal(t, "tool_result", block["type"])
	assert.Equal(t, "call_0_0", block["tool_use_id"])
}
