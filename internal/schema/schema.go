// Package schema generates JSON schemas for tool-input structs, used by the
// Cognitive Pipeline (C9) to self-document its mid-stream tools. Adapted
// from the teacher's internal/utils.GenerateSchema, generalized off the
// teacher's database-tool use case to any tool input type.
package schema

import (
	"encoding/json"
	"fmt"

	jsonschema "github.com/google/jsonschema-go/jsonschema"
)

// For generates the JSON schema for T.
func For[T any]() json.RawMessage {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("schema: failed to generate schema: %v", err))
	}
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("schema: failed to marshal schema: %v", err))
	}
	return b
}
