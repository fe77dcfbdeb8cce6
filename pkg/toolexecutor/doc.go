// Package toolexecutor registers and executes the actions a model may request.
//
// Invariants:
// - Action names are unique and the registry is read-only once sealed.
// - Unknown actions never reach a handler; they yield Failure{"unknown action"}.
// - Required arguments are checked, and arguments schema-validated, before the handler runs.
// - Every handler receives the principal it acts for; handlers scope all reads and writes to it.
// - Handler errors, panics and timeouts are converted to Failure results and never propagate.
//
// Usage:
//
//	reg := toolexecutor.NewRegistry()
//	_ = reg.Register(toolexecutor.ToolDefinition{
//		Name:        "echo",
//		Description: "Echo input",
//		Parameters:  []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}, p toolexecutor.Principal) (interface{}, error) {
//			return params["text"], nil
//		},
//	})
//	reg.Seal()
//	exec := toolexecutor.New(reg)
//	res := exec.Execute(ctx, toolexecutor.ActionRequest{Name: "echo", Arguments: map[string]interface{}{"text": "hi"}}, principal)
package toolexecutor
