// Package llm implements the assistant.Router contract with an LLM
// classifier. The model receives the agent roster, the live conversation
// context and the user message, and answers with either an agent code or a
// clarifying question when the message is too ambiguous to route.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"goa.design/converse/features/internal/prompt"
	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/model"
)

type (
	// Router is the LLM-backed message classifier.
	Router struct {
		client model.Client
		opts   Options
	}

	// Options configures the router.
	Options struct {
		// Model overrides the client's default model identifier.
		Model string
		// Temperature controls classification sampling. Zero keeps the
		// provider default; classification usually wants a low value.
		Temperature float32
	}

	decision struct {
		Agent    string `json:"agent"`
		Question string `json:"question"`
	}
)

// New builds an LLM-backed router.
func New(client model.Client, opts Options) (*Router, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	return &Router{client: client, opts: opts}, nil
}

// ChooseAgent classifies the message onto the roster.
func (r *Router) ChooseAgent(ctx context.Context, req assistant.RouteRequest) (assistant.RouteDecision, error) {
	if len(req.Roster) == 0 {
		return assistant.RouteDecision{}, errors.New("roster is empty")
	}
	resp, err := r.client.Complete(ctx, model.Request{
		Model:       r.opts.Model,
		Temperature: r.opts.Temperature,
		JSON:        true,
		Messages: []model.Message{
			model.System(r.systemPrompt(req)),
			model.User(req.Message.Content.PlainText()),
		},
	})
	if err != nil {
		return assistant.RouteDecision{}, fmt.Errorf("route message: %w", err)
	}
	var d decision
	if err := model.DecodeJSON(resp, &d); err != nil {
		return assistant.RouteDecision{}, fmt.Errorf("route message: %w", err)
	}
	return r.translate(req, d)
}

func (r *Router) translate(req assistant.RouteRequest, d decision) (assistant.RouteDecision, error) {
	if d.Question != "" {
		return assistant.RouteDecision{Question: d.Question}, nil
	}
	code := assistant.AgentCode(strings.TrimSpace(d.Agent))
	if code == "" {
		code = req.DefaultAgent
	}
	for _, a := range req.Roster {
		if a.Code == code {
			return assistant.RouteDecision{Agent: code}, nil
		}
	}
	// The model named an agent outside the roster; the caller resolves
	// unknown codes to the default agent.
	return assistant.RouteDecision{Agent: code}, nil
}

func (r *Router) systemPrompt(req assistant.RouteRequest) string {
	var b strings.Builder
	b.WriteString("You dispatch user messages to the agent best suited to handle them.\n")
	b.WriteString("Available agents:\n")
	for _, a := range req.Roster {
		fmt.Fprintf(&b, "- %s: %s\n", a.Code, a.Description)
	}
	fmt.Fprintf(&b, "The fallback agent is %q.\n", req.DefaultAgent)
	if req.CurrentAgent != nil {
		fmt.Fprintf(&b, "The user is currently talking to agent %q (%s); prefer it unless the message clearly changes topic.\n",
			req.CurrentAgent.Code, req.CurrentAgent.Description)
	}
	if req.CurrentActivity != nil {
		fmt.Fprintf(&b, "An activity %q (%s) run by agent %q is in progress.\n",
			req.CurrentActivity.Title, req.CurrentActivity.Activity, req.CurrentActivity.Agent)
	}
	if transcript := prompt.Transcript(req.Memory); transcript != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}
	b.WriteString("Answer with a JSON object of the form ")
	b.WriteString(`{"agent": "<code>", "question": ""}. `)
	b.WriteString("When the message is too ambiguous to route, leave agent empty and set question to a short clarifying question")
	if req.Language != "" {
		fmt.Fprintf(&b, " phrased in the %q language", req.Language)
	}
	b.WriteString(".")
	return b.String()
}
