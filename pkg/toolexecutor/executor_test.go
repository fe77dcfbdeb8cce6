package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = Principal{ID: "alice"}

func noopHandler(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
	return nil, nil
}

func newTestExecutor(t *testing.T, defs ...ToolDefinition) *Executor {
	t.Helper()
	reg := NewRegistry()
	for _, def := range defs {
		require.NoError(t, reg.Register(def))
	}
	reg.Seal()
	return New(reg, WithTimeout(200*time.Millisecond))
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()

	def := ToolDefinition{
		Name:        "createNote",
		Description: "Create a note",
		Parameters: []ToolParameter{
			{Name: "content", Type: "string", Description: "Note body", Required: true},
		},
		Handler: noopHandler,
	}

	require.NoError(t, reg.Register(def))

	resolved, err := reg.Resolve("createNote")
	require.NoError(t, err)
	assert.Equal(t, "createNote", resolved.Name)
	assert.Equal(t, []string{"content"}, resolved.RequiredParameters())

	t.Run("should reject duplicate names", func(t *testing.T) {
		err := reg.Register(def)
		assert.Error(t, err)
		assert.Equal(t, 1, reg.Len())
	})

	t.Run("should reject registration after seal", func(t *testing.T) {
		reg.Seal()
		err := reg.Register(ToolDefinition{Name: "other", Description: "x", Handler: noopHandler})
		assert.ErrorIs(t, err, ErrSealed)
		assert.True(t, reg.Sealed())
	})
}

func TestRegistry_Register_InvalidDefinition(t *testing.T) {
	tests := []struct {
		name string
		def  ToolDefinition
	}{
		{
			name: "empty name",
			def:  ToolDefinition{Description: "Test", Handler: noopHandler},
		},
		{
			name: "empty description",
			def:  ToolDefinition{Name: "test", Handler: noopHandler},
		},
		{
			name: "nil handler",
			def:  ToolDefinition{Name: "test", Description: "Test"},
		},
		{
			name: "unknown parameter type",
			def: ToolDefinition{
				Name: "test", Description: "Test", Handler: noopHandler,
				Parameters: []ToolParameter{{Name: "p", Type: "date", Description: "d"}},
			},
		},
		{
			name: "enum on non-string",
			def: ToolDefinition{
				Name: "test", Description: "Test", Handler: noopHandler,
				Parameters: []ToolParameter{{Name: "p", Type: "number", Description: "d", Enum: []string{"1"}}},
			},
		},
		{
			name: "duplicate parameter",
			def: ToolDefinition{
				Name: "test", Description: "Test", Handler: noopHandler,
				Parameters: []ToolParameter{
					{Name: "p", Type: "string", Description: "d"},
					{Name: "p", Type: "string", Description: "d"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewRegistry().Register(tt.def))
		})
	}
}

func TestRegistry_Definitions_KeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"viewNotes", "createNote", "deleteNote"} {
		require.NoError(t, reg.Register(ToolDefinition{Name: name, Description: name, Handler: noopHandler}))
	}

	assert.Equal(t, []string{"viewNotes", "createNote", "deleteNote"}, reg.Names())

	defs := reg.Definitions()
	require.Len(t, defs, 3)
	assert.Equal(t, "deleteNote", defs[2].Name)
}

func TestExecutor_Execute_Success(t *testing.T) {
	var gotPrincipal Principal
	exec := newTestExecutor(t, ToolDefinition{
		Name:        "echo",
		Description: "Echo input",
		Parameters: []ToolParameter{
			{Name: "text", Type: "string", Description: "text", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
			gotPrincipal = p
			return map[string]interface{}{"echo": params["text"]}, nil
		},
	})

	result := exec.Execute(context.Background(), ActionRequest{
		Name:      "echo",
		Arguments: map[string]interface{}{"text": "hello"},
	}, alice)

	require.True(t, result.Success, result.Reason)
	assert.Equal(t, map[string]interface{}{"echo": "hello"}, result.Payload)
	assert.Equal(t, alice, gotPrincipal)
}

func TestExecutor_Execute_UnknownAction(t *testing.T) {
	exec := newTestExecutor(t)

	result := exec.Execute(context.Background(), ActionRequest{Name: "launchMissiles"}, alice)

	assert.False(t, result.Success)
	assert.Equal(t, "unknown action", result.Reason)
}

func TestExecutor_Execute_MissingRequiredArguments(t *testing.T) {
	var calls int32
	exec := newTestExecutor(t, ToolDefinition{
		Name:        "updateNoteStatus",
		Description: "Update status",
		Parameters: []ToolParameter{
			{Name: "noteId", Type: "string", Description: "id", Required: true},
			{Name: "status", Type: "string", Description: "status", Required: true, Enum: []string{"active", "completed"}},
		},
		Handler: func(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		},
	})

	tests := []struct {
		name   string
		args   map[string]interface{}
		reason string
	}{
		{
			name:   "should fail when arguments are nil",
			args:   nil,
			reason: "missing required argument: noteId, status",
		},
		{
			name:   "should fail when one argument is absent",
			args:   map[string]interface{}{"noteId": "n1"},
			reason: "missing required argument: status",
		},
		{
			name:   "should treat blank strings as missing",
			args:   map[string]interface{}{"noteId": "  ", "status": "active"},
			reason: "missing required argument: noteId",
		},
		{
			name:   "should treat null as missing",
			args:   map[string]interface{}{"noteId": nil, "status": "active"},
			reason: "missing required argument: noteId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := exec.Execute(context.Background(), ActionRequest{Name: "updateNoteStatus", Arguments: tt.args}, alice)
			assert.False(t, result.Success)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}

	t.Run("should reject values outside the enum", func(t *testing.T) {
		result := exec.Execute(context.Background(), ActionRequest{
			Name:      "updateNoteStatus",
			Arguments: map[string]interface{}{"noteId": "n1", "status": "archived"},
		}, alice)
		assert.False(t, result.Success)
		assert.Contains(t, result.Reason, "invalid arguments")
	})

	t.Run("should reject wrong primitive types", func(t *testing.T) {
		result := exec.Execute(context.Background(), ActionRequest{
			Name:      "updateNoteStatus",
			Arguments: map[string]interface{}{"noteId": 42.0, "status": "active"},
		}, alice)
		assert.False(t, result.Success)
		assert.Contains(t, result.Reason, "invalid arguments")
	})

	assert.Equal(t, int32(0), atomic.LoadInt32(&calls), "handler must never see invalid arguments")
}

func TestExecutor_Execute_ToleratesExtraArguments(t *testing.T) {
	exec := newTestExecutor(t, ToolDefinition{
		Name:        "viewNotes",
		Description: "List notes",
		Handler: func(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
			return []string{}, nil
		},
	})

	result := exec.Execute(context.Background(), ActionRequest{
		Name:      "viewNotes",
		Arguments: map[string]interface{}{"_dummy": "x"},
	}, alice)

	assert.True(t, result.Success, result.Reason)
}

func TestExecutor_Execute_HandlerFailures(t *testing.T) {
	exec := newTestExecutor(t,
		ToolDefinition{
			Name:        "broken",
			Description: "Returns an error",
			Handler: func(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
				return nil, errors.New("database unavailable")
			},
		},
		ToolDefinition{
			Name:        "panics",
			Description: "Panics",
			Handler: func(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
				panic("boom")
			},
		},
		ToolDefinition{
			Name:        "slow",
			Description: "Blocks until cancelled",
			Handler: func(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	)

	t.Run("should convert handler errors to failures", func(t *testing.T) {
		result := exec.Execute(context.Background(), ActionRequest{Name: "broken"}, alice)
		assert.False(t, result.Success)
		assert.Equal(t, "database unavailable", result.Reason)
	})

	t.Run("should recover panics", func(t *testing.T) {
		result := exec.Execute(context.Background(), ActionRequest{Name: "panics"}, alice)
		assert.False(t, result.Success)
		assert.Equal(t, ReasonPanic, result.Reason)
	})

	t.Run("should time out slow handlers", func(t *testing.T) {
		start := time.Now()
		result := exec.Execute(context.Background(), ActionRequest{Name: "slow"}, alice)
		assert.False(t, result.Success)
		assert.Equal(t, ReasonTimeout, result.Reason)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestExecutor_Execute_LateCommit(t *testing.T) {
	newExecutor := func(t *testing.T, committed *int32, grace time.Duration) *Executor {
		reg := NewRegistry()
		require.NoError(t, reg.Register(ToolDefinition{
			Name:        "createNote",
			Description: "Commits after the deadline",
			Handler: func(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
				time.Sleep(50 * time.Millisecond)
				atomic.StoreInt32(committed, 1)
				return map[string]string{"content": "buy milk"}, nil
			},
		}))
		reg.Seal()
		return New(reg, WithTimeout(10*time.Millisecond), WithGracePeriod(grace))
	}

	t.Run("should report a write that committed within the grace period", func(t *testing.T) {
		var committed int32
		exec := newExecutor(t, &committed, time.Second)

		result := exec.Execute(context.Background(), ActionRequest{Name: "createNote"}, alice)

		assert.True(t, result.Success)
		assert.Equal(t, map[string]string{"content": "buy milk"}, result.Payload)
		assert.Equal(t, int32(1), atomic.LoadInt32(&committed))
	})

	t.Run("should time out once the grace period is spent", func(t *testing.T) {
		var committed int32
		exec := newExecutor(t, &committed, 0)

		result := exec.Execute(context.Background(), ActionRequest{Name: "createNote"}, alice)

		assert.False(t, result.Success)
		assert.Equal(t, ReasonTimeout, result.Reason)
	})
}

func TestExecutor_Execute_Cancelled(t *testing.T) {
	var calls int32
	exec := newTestExecutor(t, ToolDefinition{
		Name:        "createNote",
		Description: "Create",
		Handler: func(ctx context.Context, params map[string]interface{}, p Principal) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := exec.Execute(ctx, ActionRequest{Name: "createNote"}, alice)

	assert.False(t, result.Success)
	assert.Equal(t, ReasonCancelled, result.Reason)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestExecutor_Execute_RequiresPrincipal(t *testing.T) {
	exec := newTestExecutor(t, ToolDefinition{Name: "viewNotes", Description: "List", Handler: noopHandler})

	result := exec.Execute(context.Background(), ActionRequest{Name: "viewNotes"}, Principal{})

	assert.False(t, result.Success)
	assert.Equal(t, ReasonUnauthorized, result.Reason)
}

func TestActionResult_MarshalJSON(t *testing.T) {
	t.Run("should marshal success as the bare payload", func(t *testing.T) {
		data, err := json.Marshal(Succeeded(map[string]string{"content": "buy milk"}))
		require.NoError(t, err)
		assert.JSONEq(t, `{"content":"buy milk"}`, string(data))
	})

	t.Run("should marshal failure as an error object", func(t *testing.T) {
		data, err := json.Marshal(Failed("unknown action"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"error":"unknown action"}`, string(data))
	})
}

func TestPrincipalContext(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), alice)

	p, ok := PrincipalFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, alice, p)

	_, ok = PrincipalFromContext(ContextWithPrincipal(context.Background(), Principal{}))
	assert.False(t, ok)
}
