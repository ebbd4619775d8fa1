// Package llm implements the assistant.Summarizer contract with an LLM. It
// folds messages evicted from the bounded memory window into the fading
// summary carried alongside it.
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
	// Summarizer is the LLM-backed memory compactor.
	Summarizer struct {
		client model.Client
		opts   Options
	}

	// Options configures the summarizer.
	Options struct {
		// Model overrides the client's default model identifier.
		Model string
		// MaxWords bounds the summary length. Defaults to 200.
		MaxWords int
	}
)

const defaultMaxWords = 200

// New builds an LLM-backed summarizer.
func New(client model.Client, opts Options) (*Summarizer, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = defaultMaxWords
	}
	return &Summarizer{client: client, opts: opts}, nil
}

// Summarize returns a new summary covering previous plus the evicted
// messages. When there is nothing to fold in, the previous summary is
// returned unchanged without a model call.
func (s *Summarizer) Summarize(ctx context.Context, previous string, evicted []assistant.ChatMessage, language string) (string, error) {
	transcript := prompt.Messages(evicted)
	if transcript == "" {
		return previous, nil
	}
	resp, err := s.client.Complete(ctx, model.Request{
		Model: s.opts.Model,
		Messages: []model.Message{
			model.System(s.systemPrompt(language)),
			model.User(s.userPrompt(previous, transcript)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize memory: %w", err)
	}
	summary := strings.TrimSpace(resp.Text)
	if summary == "" {
		return "", errors.New("summarize memory: empty summary")
	}
	return summary, nil
}

func (s *Summarizer) systemPrompt(language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You maintain a running summary of a chat conversation in at most %d words. ", s.opts.MaxWords)
	b.WriteString("Fold the new messages into the existing summary, keeping facts the assistant will need later: names, decisions, preferences and open tasks. ")
	b.WriteString("Answer with the summary text only")
	if language != "" {
		fmt.Fprintf(&b, ", phrased in the %q language", language)
	}
	b.WriteString(".")
	return b.String()
}

func (s *Summarizer) userPrompt(previous, transcript string) string {
	var b strings.Builder
	if previous != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(previous)
		b.WriteString("\n\n")
	}
	b.WriteString("New messages:\n")
	b.WriteString(transcript)
	return b.String()
}
