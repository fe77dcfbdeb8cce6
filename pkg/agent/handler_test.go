package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/harun/notemate/pkg/actions"
	"github.com/harun/notemate/pkg/notes"
	"github.com/harun/notemate/pkg/toolexecutor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	alice = toolexecutor.Principal{ID: "alice", Email: "alice@example.com"}
	bob   = toolexecutor.Principal{ID: "bob", Email: "bob@example.com"}
)

type mockModel struct {
	mock.Mock
}

func (m *mockModel) Generate(ctx context.Context, req ModelRequest) (*ModelReply, error) {
	args := m.Called(ctx, req)
	reply, _ := args.Get(0).(*ModelReply)
	return reply, args.Error(1)
}

func (m *mockModel) Provider() string {
	return "mock"
}

// replies scripts the model's answers in order.
func (m *mockModel) replies(replies ...*ModelReply) {
	for _, r := range replies {
		m.On("Generate", mock.Anything, mock.Anything).Return(r, nil).Once()
	}
}

func (m *mockModel) request(t *testing.T, i int) ModelRequest {
	t.Helper()
	require.Greater(t, len(m.Calls), i)
	return m.Calls[i].Arguments.Get(1).(ModelRequest)
}

func text(s string) *ModelReply {
	return &ModelReply{Text: s, Usage: &TokenUsage{InputTokens: 10, OutputTokens: 5}}
}

func calls(tc ...ToolCall) *ModelReply {
	return &ModelReply{ToolCalls: tc}
}

type fixture struct {
	model   *mockModel
	notes   *notes.MemoryStore
	handler *Handler
}

func newFixture(t *testing.T, cfg HandlerConfig) *fixture {
	t.Helper()

	f := &fixture{model: &mockModel{}, notes: notes.NewMemoryStore()}
	reg := toolexecutor.NewRegistry()
	require.NoError(t, actions.RegisterNoteActions(reg, f.notes))
	reg.Seal()

	h, err := NewHandler(f.model, toolexecutor.New(reg, toolexecutor.WithTimeout(time.Second)), cfg, zerolog.Nop())
	require.NoError(t, err)
	f.handler = h
	return f
}

func TestNewHandler_RequiresCollaborators(t *testing.T) {
	exec := toolexecutor.New(toolexecutor.NewRegistry())

	_, err := NewHandler(nil, exec, HandlerConfig{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewHandler(&mockModel{}, nil, HandlerConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestHandler_Handle_RemindMeToBuyMilk(t *testing.T) {
	f := newFixture(t, HandlerConfig{})
	f.model.replies(
		calls(ToolCall{Name: actions.CreateNote, Arguments: map[string]interface{}{"content": "buy milk"}}),
		text("Done! I added \"buy milk\" to your notes."),
	)

	resp, err := f.handler.Handle(context.Background(), alice, Request{
		Message:       "remind me to buy milk",
		History:       []Message{},
		AssistantType: "default",
	})
	require.NoError(t, err)
	f.model.AssertNumberOfCalls(t, "Generate", 2)

	assert.Equal(t, "Done! I added \"buy milk\" to your notes.", resp.Response)
	require.NotNil(t, resp.FunctionCall)
	assert.Equal(t, actions.CreateNote, resp.FunctionCall.Name)
	require.True(t, resp.FunctionCall.Result.Success)

	list, err := f.notes.ListByOwner(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "buy milk", list[0].Content)

	t.Run("should resubmit the created note as the tool result", func(t *testing.T) {
		second := f.model.request(t, 1)
		last := second.Turns[len(second.Turns)-1]
		require.Len(t, last.ToolResponses, 1)
		assert.Equal(t, actions.CreateNote, last.ToolResponses[0].Name)

		payload := ResponsePayload(last.ToolResponses[0].Result)
		content := payload["content"].(map[string]interface{})
		assert.Equal(t, "buy milk", content["content"])
		assert.Equal(t, "active", content["status"])
		assert.Equal(t, alice.ID, content["user"])
	})

	t.Run("should render the response envelope", func(t *testing.T) {
		raw, err := json.Marshal(resp)
		require.NoError(t, err)

		var body struct {
			Response     string `json:"response"`
			FunctionCall struct {
				Name   string                 `json:"name"`
				Result map[string]interface{} `json:"result"`
			} `json:"functionCall"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "createNote", body.FunctionCall.Name)
		assert.Equal(t, "buy milk", body.FunctionCall.Result["content"])
		assert.Equal(t, "active", body.FunctionCall.Result["status"])
		assert.NotEmpty(t, body.FunctionCall.Result["id"])
	})
}

func TestHandler_Handle_TextOnlyReply(t *testing.T) {
	f := newFixture(t, HandlerConfig{})
	f.model.replies(text("Hello there!"))

	resp, err := f.handler.Handle(context.Background(), alice, Request{Message: "hi"})
	require.NoError(t, err)

	assert.Equal(t, &Response{Response: "Hello there!"}, resp)
	f.model.AssertNumberOfCalls(t, "Generate", 1)

	list, err := f.notes.ListByOwner(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"response":"Hello there!"}`, string(raw))
}

func TestHandler_Handle_TwoActionsInEmissionOrder(t *testing.T) {
	f := newFixture(t, HandlerConfig{})
	f.model.replies(
		calls(
			ToolCall{Name: actions.CreateNote, Arguments: map[string]interface{}{"content": "call mom"}},
			ToolCall{Name: actions.ViewNotes, Arguments: map[string]interface{}{}},
		),
		text("You now have one note."),
	)

	resp, err := f.handler.Handle(context.Background(), alice, Request{Message: "add call mom and show my notes"})
	require.NoError(t, err)
	f.model.AssertNumberOfCalls(t, "Generate", 2)

	second := f.model.request(t, 1)
	last := second.Turns[len(second.Turns)-1]
	require.Len(t, last.ToolResponses, 2)
	assert.Equal(t, actions.CreateNote, last.ToolResponses[0].Name)
	assert.Equal(t, actions.ViewNotes, last.ToolResponses[1].Name)
	assert.NotEqual(t, last.ToolResponses[0].ID, last.ToolResponses[1].ID)

	listed := ResponsePayload(last.ToolResponses[1].Result)["content"].([]interface{})
	require.Len(t, listed, 1, "viewNotes runs after createNote committed")

	modelTurn := second.Turns[len(second.Turns)-2]
	assert.Equal(t, RoleModel, modelTurn.Role)
	require.Len(t, modelTurn.ToolCalls, 2)
	assert.Equal(t, last.ToolResponses[0].ID, modelTurn.ToolCalls[0].ID)

	require.NotNil(t, resp.FunctionCall)
	assert.Equal(t, actions.ViewNotes, resp.FunctionCall.Name)
}

func TestHandler_Handle_ActionFailuresReachTheModel(t *testing.T) {
	tests := []struct {
		name   string
		call   ToolCall
		reason string
	}{
		{
			name:   "unknown action",
			call:   ToolCall{Name: "launchRocket", Arguments: map[string]interface{}{}},
			reason: "unknown action",
		},
		{
			name:   "missing required argument",
			call:   ToolCall{Name: actions.CreateNote, Arguments: map[string]interface{}{}},
			reason: "missing required argument: content",
		},
		{
			name:   "invalid enum",
			call:   ToolCall{Name: actions.UpdateNoteStatus, Arguments: map[string]interface{}{"noteId": "n1", "status": "archived"}},
			reason: "invalid arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, HandlerConfig{})
			f.model.replies(calls(tt.call), text("Sorry, that did not work."))

			resp, err := f.handler.Handle(context.Background(), alice, Request{Message: "do it"})
			require.NoError(t, err)

			assert.Equal(t, "Sorry, that did not work.", resp.Response)
			require.NotNil(t, resp.FunctionCall)
			assert.False(t, resp.FunctionCall.Result.Success)
			assert.Contains(t, resp.FunctionCall.Result.Reason, tt.reason)

			last := f.model.request(t, 1).Turns
			payload := ResponsePayload(last[len(last)-1].ToolResponses[0].Result)
			assert.Contains(t, payload["error"], tt.reason)

			list, err := f.notes.ListByOwner(context.Background(), alice.ID)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestHandler_Handle_CannotDeleteAnotherPrincipalsNote(t *testing.T) {
	f := newFixture(t, HandlerConfig{})
	note, err := f.notes.Create(context.Background(), alice.ID, "alice's secret", notes.StatusActive)
	require.NoError(t, err)

	f.model.replies(
		calls(ToolCall{Name: actions.DeleteNote, Arguments: map[string]interface{}{"noteId": note.ID}}),
		text("I couldn't find that note."),
	)

	resp, err := f.handler.Handle(context.Background(), bob, Request{Message: "delete note " + note.ID})
	require.NoError(t, err)

	require.NotNil(t, resp.FunctionCall)
	assert.False(t, resp.FunctionCall.Result.Success)
	assert.Equal(t, "Note not found or unauthorized", resp.FunctionCall.Result.Reason)

	list, err := f.notes.ListByOwner(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestHandler_Handle_RoundCap(t *testing.T) {
	f := newFixture(t, HandlerConfig{Session: SessionConfig{MaxRounds: 2}})
	view := ToolCall{Name: actions.ViewNotes, Arguments: map[string]interface{}{}}
	f.model.replies(
		calls(view),
		calls(view),
		&ModelReply{Text: "Here are your notes.", ToolCalls: []ToolCall{view}},
	)

	resp, err := f.handler.Handle(context.Background(), alice, Request{Message: "loop forever"})
	require.NoError(t, err)

	f.model.AssertNumberOfCalls(t, "Generate", 3)
	assert.Equal(t, "Here are your notes.", resp.Response)

	assert.False(t, f.model.request(t, 0).DisableTools)
	assert.False(t, f.model.request(t, 1).DisableTools)
	assert.True(t, f.model.request(t, 2).DisableTools, "the call after the cap is text-only")
	assert.NotEmpty(t, f.model.request(t, 2).Tools, "declarations stay so history with calls stays valid")
}

func TestHandler_Handle_DefaultPersona(t *testing.T) {
	f := newFixture(t, HandlerConfig{})
	selectors := []string{"", "default", "tutor", "unknown", "default", ""}
	for range selectors {
		f.model.replies(text("ok"))
	}

	for i, sel := range selectors {
		_, err := f.handler.Handle(context.Background(), alice, Request{Message: "hi", AssistantType: sel})
		require.NoError(t, err)

		req := f.model.request(t, i)
		assert.Equal(t, DefaultTutorModel, req.Model, "selector %q", sel)
		assert.Equal(t, tutorInstruction, req.SystemInstruction)
		assert.Equal(t, DefaultGeneration(), req.Generation)
	}
}

func TestHandler_Handle_CasualPersona(t *testing.T) {
	f := newFixture(t, HandlerConfig{Personas: NewPersonas("tutor-model", "casual-model")})
	f.model.replies(text("yo"), text("yo"))

	for i, sel := range []string{"chill", " Casual "} {
		_, err := f.handler.Handle(context.Background(), alice, Request{Message: "hey", AssistantType: sel})
		require.NoError(t, err)
		assert.Equal(t, "casual-model", f.model.request(t, i).Model)
		assert.Equal(t, casualInstruction, f.model.request(t, i).SystemInstruction)
	}
}

func TestHandler_Handle_History(t *testing.T) {
	f := newFixture(t, HandlerConfig{})
	f.model.replies(text("Sure."))

	_, err := f.handler.Handle(context.Background(), alice, Request{
		Message: "and now?",
		History: []Message{
			{Role: "user", Content: "first"},
			{Role: "assistant", Content: "second"},
			{Role: "model", Content: "   "},
		},
	})
	require.NoError(t, err)

	turns := f.model.request(t, 0).Turns
	require.Len(t, turns, 3)
	assert.Equal(t, Turn{Role: RoleUser, Text: "first"}, turns[0])
	assert.Equal(t, Turn{Role: RoleModel, Text: "second"}, turns[1])
	assert.Equal(t, Turn{Role: RoleUser, Text: "and now?"}, turns[2])
}

func TestHandler_Handle_Errors(t *testing.T) {
	t.Run("should reject a missing principal", func(t *testing.T) {
		f := newFixture(t, HandlerConfig{})
		_, err := f.handler.Handle(context.Background(), toolexecutor.Principal{}, Request{Message: "hi"})

		var agentErr *Error
		require.ErrorAs(t, err, &agentErr)
		assert.Equal(t, KindUnauthenticated, agentErr.Kind)
		assert.Equal(t, http.StatusUnauthorized, agentErr.StatusCode())
		f.model.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("should reject a blank message", func(t *testing.T) {
		f := newFixture(t, HandlerConfig{})
		_, err := f.handler.Handle(context.Background(), alice, Request{Message: "  "})

		assert.Equal(t, KindValidation, KindOf(err))
		f.model.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	})

	t.Run("should reject oversized history", func(t *testing.T) {
		f := newFixture(t, HandlerConfig{MaxHistory: 2})
		_, err := f.handler.Handle(context.Background(), alice, Request{
			Message: "hi",
			History: []Message{{Role: "user", Content: "a"}, {Role: "user", Content: "b"}, {Role: "user", Content: "c"}},
		})

		var agentErr *Error
		require.ErrorAs(t, err, &agentErr)
		assert.Equal(t, http.StatusBadRequest, agentErr.StatusCode())
	})

	t.Run("should report model failures as upstream", func(t *testing.T) {
		f := newFixture(t, HandlerConfig{})
		f.model.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("invalid api key")).Once()

		_, err := f.handler.Handle(context.Background(), alice, Request{Message: "hi"})

		var agentErr *Error
		require.ErrorAs(t, err, &agentErr)
		assert.Equal(t, KindUpstream, agentErr.Kind)
		assert.Equal(t, http.StatusInternalServerError, agentErr.StatusCode())
		assert.Equal(t, "Internal Server Error", agentErr.Message)
		assert.Contains(t, agentErr.Detail, "invalid api key")
		f.model.AssertNumberOfCalls(t, "Generate", 1)
	})

	t.Run("should recover a panicking model", func(t *testing.T) {
		f := newFixture(t, HandlerConfig{})
		f.model.On("Generate", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
			panic("boom")
		}).Return(nil, nil).Once()

		_, err := f.handler.Handle(context.Background(), alice, Request{Message: "hi"})
		assert.Equal(t, KindUpstream, KindOf(err))
	})
}

func TestHandler_Handle_RetriesRetryableModelErrors(t *testing.T) {
	f := newFixture(t, HandlerConfig{Session: SessionConfig{ModelRetries: 3, RetryBackoff: time.Millisecond}})
	f.model.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("503 service unavailable")).Once()
	f.model.replies(text("recovered"))

	resp, err := f.handler.Handle(context.Background(), alice, Request{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Response)
	f.model.AssertNumberOfCalls(t, "Generate", 2)
}

func TestHandler_Handle_CancelledRequestStopsActions(t *testing.T) {
	f := newFixture(t, HandlerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.model.On("Generate", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		cancel()
	}).Return(calls(
		ToolCall{Name: actions.CreateNote, Arguments: map[string]interface{}{"content": "one"}},
		ToolCall{Name: actions.CreateNote, Arguments: map[string]interface{}{"content": "two"}},
	), nil).Once()

	_, err := f.handler.Handle(ctx, alice, Request{Message: "add two notes"})
	assert.Equal(t, KindUpstream, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)

	f.model.AssertNumberOfCalls(t, "Generate", 1)
	list, err := f.notes.ListByOwner(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSession_States(t *testing.T) {
	model := &mockModel{}
	model.replies(text("hi"))
	reg := toolexecutor.NewRegistry()
	reg.Seal()

	s := NewSession(model, toolexecutor.New(reg), NewPersonas("", "").Tutor, alice, nil, SessionConfig{}, zerolog.Nop())
	assert.Equal(t, StateIdle, s.State())

	out, err := s.Submit(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, StateFinal, s.State())
	assert.Equal(t, "hi", out.Text)
	assert.Equal(t, 0, out.Rounds)
	assert.Nil(t, out.LastAction())
	assert.Equal(t, TokenUsage{InputTokens: 10, OutputTokens: 5}, out.Usage)

	_, err = s.Submit(context.Background(), "again")
	assert.Error(t, err)
}

func TestPersonas_Resolve(t *testing.T) {
	p := NewPersonas("", "")

	tests := map[string]string{
		"":        PersonaTutor,
		"default": PersonaTutor,
		"tutor":   PersonaTutor,
		"CHILL":   PersonaCasual,
		"casual":  PersonaCasual,
		"other":   PersonaTutor,
	}
	for selector, want := range tests {
		assert.Equal(t, want, p.Resolve(selector).Name, "selector %q", selector)
	}
	assert.Equal(t, DefaultCasualModel, p.Casual.Model)
}

func TestResponsePayload(t *testing.T) {
	ok := ResponsePayload(toolexecutor.Succeeded(map[string]string{"message": "Note deleted"}))
	assert.Equal(t, map[string]interface{}{"content": map[string]interface{}{"message": "Note deleted"}}, ok)

	failed := ResponsePayload(toolexecutor.Failed("unknown action"))
	assert.Equal(t, map[string]interface{}{"error": "unknown action"}, failed)
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.False(t, IsRetryableError(errors.New("invalid argument")))
	assert.True(t, IsRetryableError(errors.New("Error 429: rate limit exceeded")))
	assert.True(t, IsRetryableError(errors.New("503 Service Unavailable")))
}
