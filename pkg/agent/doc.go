// Package agent runs tool-augmented chat turns against a generative model.
//
// Invariants:
// - A Session serves exactly one request and executes actions sequentially,
//   in the order the model emitted them.
// - Action rounds are capped; after the cap the model is called once more
//   with function calling disabled and its text is final.
// - Every action runs through toolexecutor with the request's principal.
// - Action failures are fed back to the model, never returned as errors.
//
// Usage:
//
//	model, _ := agent.NewModel(ctx, agent.ProviderConfig{Provider: "gemini", APIKey: key})
//	h, _ := agent.NewHandler(model, executor, agent.HandlerConfig{
//		Personas: agent.NewPersonas("", ""),
//	}, logger)
//	resp, err := h.Handle(ctx, principal, agent.Request{Message: "remind me to buy milk"})
package agent
