package assistant

import (
	"context"
	"fmt"

	"goa.design/converse/runtime/assistant/statepath"
)

type (
	// Agent is a conversational capability: it declares what it can do for
	// routing, optionally carries per-conversation state, and handles the
	// user messages routed to it.
	//
	// Agent implementations are instantiated per conversation; they are
	// never shared across Assistant instances.
	Agent interface {
		// Code returns the agent's stable identifier.
		Code() AgentCode
		// Description describes the agent's capabilities for the router.
		Description() string
		// Activities lists the activity types this agent runs, keyed by
		// code with a routing description. Empty for agents without
		// activities.
		Activities() map[ActivityCode]string
		// State returns the agent's per-conversation state document, or
		// nil for stateless agents. The returned value is mutated in place
		// by agent state updates; it must be a statepath.Document or a
		// statepath.Container.
		State() any
		// StateSchema returns the JSON schema the persisted state document
		// must satisfy to be restored, or nil to restore unchecked.
		StateSchema() []byte
		// Restore replays a persisted state document into the agent's
		// state. Called once during conversation restore, after schema
		// validation.
		Restore(doc statepath.Document) error
		// HandleMessage processes a user message routed to this agent. The
		// agent replies through the assistant's send methods and reports
		// whether it handled the message or whom to hand it to.
		HandleMessage(ctx context.Context, assistant *Assistant, msg ChatMessage) (HandleResult, error)
	}

	// Greeter is implemented by agents that open new conversations with a
	// greeting.
	Greeter interface {
		Greet(ctx context.Context, assistant *Assistant) error
	}

	// Persona tailors an agent's voice. Agents embed the persona
	// instructions into their prompts.
	Persona struct {
		// Name labels the persona.
		Name string `json:"name" yaml:"name"`
		// Instructions is prose prepended to the agent's system prompt.
		Instructions string `json:"instructions" yaml:"instructions"`
	}

	// HandleResult reports the outcome of HandleMessage.
	HandleResult struct {
		// Handled is true when the agent fully processed the message.
		Handled bool
		// HandOver names the agent to try next when not handled. Empty
		// means re-run classification.
		HandOver AgentCode
	}

	// Registry wires the per-conversation collaborators: the agent roster
	// and the LLM-backed helpers the routing and memory machinery calls.
	Registry struct {
		// Agents is the roster, in router presentation order.
		Agents []Agent
		// DefaultAgent receives messages no other agent claims.
		DefaultAgent AgentCode
		// Router classifies user messages onto the roster.
		Router Router
		// GuardRails screen user messages before routing, in order.
		GuardRails []GuardRail
		// Summarizer folds evicted messages into the fading summary.
		Summarizer Summarizer
		// Titles suggests conversation titles. Optional.
		Titles TitleGenerator
	}
)

// Handled reports the message as fully processed.
func Handled() HandleResult { return HandleResult{Handled: true} }

// NotHandled asks the routing loop to re-classify the message.
func NotHandled() HandleResult { return HandleResult{} }

// HandOverTo asks the routing loop to try the named agent next.
func HandOverTo(code AgentCode) HandleResult { return HandleResult{HandOver: code} }

// Validate checks the registry is complete enough to drive a conversation.
func (r Registry) Validate() error {
	if len(r.Agents) == 0 {
		return fmt.Errorf("registry: no agents")
	}
	codes := make(map[AgentCode]bool, len(r.Agents))
	for _, agent := range r.Agents {
		if agent.Code() == "" {
			return fmt.Errorf("registry: agent with empty code")
		}
		if codes[agent.Code()] {
			return fmt.Errorf("registry: duplicate agent code %q", agent.Code())
		}
		codes[agent.Code()] = true
	}
	if !codes[r.DefaultAgent] {
		return fmt.Errorf("registry: default agent %q not in roster", r.DefaultAgent)
	}
	if r.Router == nil {
		return fmt.Errorf("registry: missing router")
	}
	if r.Summarizer == nil {
		return fmt.Errorf("registry: missing summarizer")
	}
	return nil
}
