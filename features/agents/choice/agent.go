// Package choice implements an agent that offers the user a menu of
// interactive activities to pick from. The menu is presented as an activity
// whose data lists the available choices; the last offered menu is carried in
// the agent's typed per-conversation state.
package choice

import (
	"context"
	"errors"
	"fmt"

	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/assistant/statepath"
)

type (
	// Agent offers activity menus.
	Agent struct {
		opts  Options
		state *MenuState
	}

	// Options configures the agent.
	Options struct {
		// Code overrides the agent code. Defaults to "choice-agent".
		Code assistant.AgentCode
		// Choices is the menu catalog. Required.
		Choices []Choice
		// Intro replaces the default text accompanying the menu.
		Intro string
	}

	// Choice is a single menu entry.
	Choice struct {
		// Activity names the activity the entry launches.
		Activity string `json:"activity"`
		// Description is the user-facing entry text.
		Description string `json:"description"`
	}

	// MenuState is the agent's per-conversation state: the last menu
	// offered. It participates in path traversal as a statepath.Container.
	MenuState struct {
		Choices []any `json:"choices"`
	}
)

const (
	// DefaultCode is the roster identifier used when none is configured.
	DefaultCode assistant.AgentCode = "choice-agent"

	// ActivityChoice is the activity code of a presented menu.
	ActivityChoice assistant.ActivityCode = "choice"

	defaultIntro = "Here are some activities you can choose from:"
)

// stateSchema is the JSON schema persisted menu state must satisfy.
var stateSchema = []byte(`{
	"type": "object",
	"properties": {
		"choices": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"activity": {"type": "string"},
					"description": {"type": "string"}
				},
				"required": ["activity", "description"]
			}
		}
	},
	"required": ["choices"]
}`)

// New builds the choice agent.
func New(opts Options) (*Agent, error) {
	if len(opts.Choices) == 0 {
		return nil, errors.New("at least one menu choice is required")
	}
	if opts.Code == "" {
		opts.Code = DefaultCode
	}
	if opts.Intro == "" {
		opts.Intro = defaultIntro
	}
	return &Agent{opts: opts, state: &MenuState{Choices: []any{}}}, nil
}

// Code returns the agent's roster identifier.
func (a *Agent) Code() assistant.AgentCode { return a.opts.Code }

// Description describes the agent for the router.
func (a *Agent) Description() string {
	return "Suggests and offers a menu of interactive activities to choose from."
}

// Activities lists the menu activity for routing.
func (a *Agent) Activities() map[assistant.ActivityCode]string {
	return map[assistant.ActivityCode]string{
		ActivityChoice: "A menu with interactive activities to choose from",
	}
}

// State returns the typed menu state.
func (a *Agent) State() any { return a.state }

// StateSchema returns the schema persisted state must satisfy.
func (a *Agent) StateSchema() []byte { return stateSchema }

// Restore adopts the persisted menu state.
func (a *Agent) Restore(doc statepath.Document) error {
	choices, ok := doc["choices"].([]any)
	if !ok {
		return fmt.Errorf("menu state: choices missing")
	}
	a.state.Choices = choices
	return nil
}

// HandleMessage presents the activity menu.
func (a *Agent) HandleMessage(ctx context.Context, as *assistant.Assistant, msg assistant.ChatMessage) (assistant.HandleResult, error) {
	choices := make([]any, len(a.opts.Choices))
	for i, c := range a.opts.Choices {
		choices[i] = statepath.Document{
			"activity":    c.Activity,
			"description": c.Description,
		}
	}
	activity := assistant.NewActivity(a.opts.Code, ActivityChoice, "Pick an activity", statepath.Document{
		"choices": choices,
	})
	if err := as.CreateActivity(ctx, activity); err != nil {
		return assistant.HandleResult{}, err
	}
	if err := as.StartActivity(ctx, activity.ID); err != nil {
		return assistant.HandleResult{}, err
	}

	// Remember the offered menu in the agent state so a restored
	// conversation can reconcile the user's pick.
	if err := as.UpdateAgentState(ctx, a.opts.Code, "choices", choices); err != nil {
		return assistant.HandleResult{}, err
	}

	intro := assistant.NewAssistantMessage(a.opts.Code, assistant.SpeakContent(a.opts.Intro))
	if err := as.SendAssistantMessage(ctx, intro, &msg, true); err != nil {
		return assistant.HandleResult{}, err
	}
	menu := assistant.NewAssistantMessage(a.opts.Code, assistant.ActivityContent(activity))
	if err := as.SendAssistantMessage(ctx, menu, nil, true); err != nil {
		return assistant.HandleResult{}, err
	}
	return assistant.Handled(), nil
}

// GetKey implements statepath.Container.
func (s *MenuState) GetKey(key string) (any, bool) {
	if key == "choices" {
		return s.Choices, true
	}
	return nil, false
}

// SetKey implements statepath.Container.
func (s *MenuState) SetKey(key string, value any) error {
	if key != "choices" {
		return fmt.Errorf("menu state: unknown field %q", key)
	}
	choices, ok := value.([]any)
	if !ok {
		return fmt.Errorf("menu state: choices must be a sequence")
	}
	s.Choices = choices
	return nil
}
