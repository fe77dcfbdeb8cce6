// Package actions defines the note and calendar actions the assistant may call.
//
// Every handler acts only on the principal it is given; identifiers supplied
// by the model are always resolved within that principal's data.
package actions

import (
	"encoding/json"
	"fmt"

	"github.com/harun/notemate/pkg/toolexecutor"
)

// Registrar is the part of toolexecutor.Registry used for registration.
type Registrar interface {
	Register(def toolexecutor.ToolDefinition) error
}

func registerAll(reg Registrar, defs []toolexecutor.ToolDefinition) error {
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("failed to register action %s: %w", def.Name, err)
		}
	}
	return nil
}

// decodeParams copies model-supplied arguments into a typed struct.
func decodeParams(params map[string]interface{}, out interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}
