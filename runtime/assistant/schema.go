package assistant

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/converse/runtime/assistant/statepath"
)

// validateAgentState checks a persisted agent state document against the
// agent's declared JSON schema before it is replayed into the agent. Agents
// without a schema restore unchecked. A validation failure means the
// persisted document no longer matches the compiled-in state shape (the
// agent changed since the conversation was stored); the caller falls back to
// the agent's defaults.
func validateAgentState(agent Agent, doc statepath.Document) error {
	raw := agent.StateSchema()
	if len(raw) == 0 {
		return nil
	}
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse state schema for %q: %w", agent.Code(), err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("state.json", parsed); err != nil {
		return fmt.Errorf("register state schema for %q: %w", agent.Code(), err)
	}
	schema, err := compiler.Compile("state.json")
	if err != nil {
		return fmt.Errorf("compile state schema for %q: %w", agent.Code(), err)
	}
	if err := schema.Validate(map[string]any(doc)); err != nil {
		return fmt.Errorf("state document for %q: %w", agent.Code(), err)
	}
	return nil
}
