// Package defaultagent implements the fallback conversational agent. It
// answers any message no specialized agent claims, streaming its reply, and
// greets new conversations.
package defaultagent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"goa.design/converse/features/internal/prompt"
	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/assistant/statepath"
	"goa.design/converse/runtime/model"
)

type (
	// Agent is the stateless fallback agent.
	Agent struct {
		client model.Client
		opts   Options
	}

	// Options configures the agent.
	Options struct {
		// Code overrides the agent code. Defaults to "default-agent".
		Code assistant.AgentCode
		// Persona tailors the agent's voice.
		Persona assistant.Persona
		// Model overrides the client's default model identifier.
		Model string
		// Greeting replaces the default greeting text.
		Greeting string
	}

	// contentStream adapts a model stream into successive speak content
	// renditions, accumulating deltas into the full text so far.
	contentStream struct {
		stream model.Streamer
		text   strings.Builder
	}
)

const (
	// DefaultCode is the roster identifier used when none is configured.
	DefaultCode assistant.AgentCode = "default-agent"

	defaultGreeting = "Hi! I'm your assistant. What would you like to talk about?"
)

// New builds the fallback agent.
func New(client model.Client, opts Options) (*Agent, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	if opts.Code == "" {
		opts.Code = DefaultCode
	}
	if opts.Greeting == "" {
		opts.Greeting = defaultGreeting
	}
	return &Agent{client: client, opts: opts}, nil
}

// Code returns the agent's roster identifier.
func (a *Agent) Code() assistant.AgentCode { return a.opts.Code }

// Description describes the agent for the router.
func (a *Agent) Description() string {
	return "General conversation: answers questions and chats about any topic no other agent covers."
}

// Activities returns nil; the agent runs no interactive activities.
func (a *Agent) Activities() map[assistant.ActivityCode]string { return nil }

// State returns nil; the agent is stateless.
func (a *Agent) State() any { return nil }

// StateSchema returns nil; there is no state to validate.
func (a *Agent) StateSchema() []byte { return nil }

// Restore is a no-op for the stateless agent.
func (a *Agent) Restore(statepath.Document) error { return nil }

// Greet opens a new conversation with the configured greeting.
func (a *Agent) Greet(ctx context.Context, as *assistant.Assistant) error {
	msg := assistant.NewAssistantMessage(a.opts.Code, assistant.SpeakContent(a.opts.Greeting))
	return as.SendAssistantMessage(ctx, msg, nil, true)
}

// HandleMessage streams a conversational reply to the message.
func (a *Agent) HandleMessage(ctx context.Context, as *assistant.Assistant, msg assistant.ChatMessage) (assistant.HandleResult, error) {
	req := model.Request{
		Model: a.opts.Model,
		Messages: []model.Message{
			model.System(a.systemPrompt(as)),
			model.User(msg.Content.PlainText()),
		},
	}
	reply := assistant.NewAssistantMessage(a.opts.Code, assistant.MessageContent{Kind: assistant.KindSpeak})

	stream, err := a.client.Stream(ctx, req)
	if errors.Is(err, model.ErrStreamingUnsupported) {
		resp, err := a.client.Complete(ctx, req)
		if err != nil {
			return assistant.HandleResult{}, fmt.Errorf("generate reply: %w", err)
		}
		reply.Content = assistant.SpeakContent(resp.Text)
		if err := as.SendAssistantMessage(ctx, reply, &msg, true); err != nil {
			return assistant.HandleResult{}, err
		}
		return assistant.Handled(), nil
	}
	if err != nil {
		return assistant.HandleResult{}, fmt.Errorf("generate reply: %w", err)
	}
	defer stream.Close()

	if err := as.StreamAssistantMessage(ctx, reply, &contentStream{stream: stream}, &msg, true); err != nil {
		return assistant.HandleResult{}, err
	}
	return assistant.Handled(), nil
}

func (a *Agent) systemPrompt(as *assistant.Assistant) string {
	var b strings.Builder
	if a.opts.Persona.Instructions != "" {
		b.WriteString(a.opts.Persona.Instructions)
		b.WriteString("\n")
	}
	b.WriteString("Answer the user's message. Be supportive and suggest possible follow-ups.\n")
	if transcript := prompt.Transcript(as.State().Memory); transcript != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}
	if lang := as.Language(); lang != "" {
		fmt.Fprintf(&b, "Respond in the %q language.", lang)
	}
	return b.String()
}

func (c *contentStream) Recv() (assistant.MessageContent, error) {
	chunk, err := c.stream.Recv()
	if err != nil {
		return assistant.MessageContent{}, err
	}
	c.text.WriteString(chunk.Text)
	return assistant.SpeakContent(c.text.String()), nil
}
