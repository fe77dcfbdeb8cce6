package toolexecutor

import (
	"encoding/json"
	"fmt"
)

// Failure reasons produced by the executor itself.
const (
	ReasonUnknownAction = "unknown action"
	ReasonTimeout       = "action timed out"
	ReasonPanic         = "action panicked"
	ReasonCancelled     = "request cancelled"
	ReasonUnauthorized  = "no principal for action"
	reasonMissingArgs   = "missing required argument"
	reasonInvalidArgs   = "invalid arguments"
)

// ActionRequest is a single function call emitted by the model.
type ActionRequest struct {
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ActionResult is either Success{Payload} or Failure{Reason}.
type ActionResult struct {
	Success bool
	Payload interface{}
	Reason  string
}

// Succeeded builds a Success result.
func Succeeded(payload interface{}) ActionResult {
	return ActionResult{Success: true, Payload: payload}
}

// Failed builds a Failure result.
func Failed(reason string) ActionResult {
	return ActionResult{Reason: reason}
}

// Failedf builds a Failure result with a formatted reason.
func Failedf(format string, args ...interface{}) ActionResult {
	return Failed(fmt.Sprintf(format, args...))
}

// Value returns the JSON-facing form of the result: the payload on success,
// {"error": reason} on failure.
func (r ActionResult) Value() interface{} {
	if r.Success {
		return r.Payload
	}
	return map[string]interface{}{"error": r.Reason}
}

// MarshalJSON implements json.Marshaler.
func (r ActionResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

// ActionOutcome pairs an executed action with its result.
type ActionOutcome struct {
	Name   string       `json:"name"`
	Result ActionResult `json:"result"`
}
