// Package llm implements the assistant.TitleGenerator contract with an LLM.
// Titles are suggested once per conversation, as soon as the exchange reveals
// a topic.
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
	// Titler is the LLM-backed title generator.
	Titler struct {
		client model.Client
		opts   Options
	}

	// Options configures the titler.
	Options struct {
		// Model overrides the client's default model identifier.
		Model string
		// MaxWords bounds the title length. Defaults to 6.
		MaxWords int
	}
)

const defaultMaxWords = 6

// New builds an LLM-backed title generator.
func New(client model.Client, opts Options) (*Titler, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	if opts.MaxWords <= 0 {
		opts.MaxWords = defaultMaxWords
	}
	return &Titler{client: client, opts: opts}, nil
}

// SuggestTitle proposes a conversation title from the memory so far. The
// suggestion is not meaningful while the conversation has no topic yet.
func (t *Titler) SuggestTitle(ctx context.Context, memory assistant.ConversationMemory, language string) (assistant.TitleSuggestion, error) {
	transcript := prompt.Transcript(memory)
	if transcript == "" {
		return assistant.TitleSuggestion{}, nil
	}
	resp, err := t.client.Complete(ctx, model.Request{
		Model: t.opts.Model,
		JSON:  true,
		Messages: []model.Message{
			model.System(t.systemPrompt(language)),
			model.User(transcript),
		},
	})
	if err != nil {
		return assistant.TitleSuggestion{}, fmt.Errorf("suggest title: %w", err)
	}
	var suggestion assistant.TitleSuggestion
	if err := model.DecodeJSON(resp, &suggestion); err != nil {
		return assistant.TitleSuggestion{}, fmt.Errorf("suggest title: %w", err)
	}
	suggestion.Title = strings.TrimSpace(suggestion.Title)
	if suggestion.Title == "" {
		suggestion.Meaningful = false
	}
	return suggestion, nil
}

func (t *Titler) systemPrompt(language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You name chat conversations with a title of at most %d words", t.opts.MaxWords)
	if language != "" {
		fmt.Fprintf(&b, " in the %q language", language)
	}
	b.WriteString(". Answer with a JSON object of the form ")
	b.WriteString(`{"meaningful": true, "title": "<title>"}. `)
	b.WriteString("When the conversation has not revealed a topic yet (greetings, small talk), set meaningful to false and leave the title empty.")
	return b.String()
}
