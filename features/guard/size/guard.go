// Package size implements a guard rail that rejects oversized user messages
// before they reach the LLM pipeline.
package size

import (
	"context"
	"fmt"
	"unicode/utf8"

	"goa.design/converse/runtime/assistant"
)

// DefaultMaxRunes is the message length cap applied when none is configured.
const DefaultMaxRunes = 4000

// Guard rejects messages longer than a rune budget with a warning.
type Guard struct {
	maxRunes int
}

// New builds a size guard. maxRunes <= 0 selects DefaultMaxRunes.
func New(maxRunes int) *Guard {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Guard{maxRunes: maxRunes}
}

// CheckMessage rejects messages over the budget with a warning verdict.
func (g *Guard) CheckMessage(_ context.Context, msg assistant.ChatMessage, _ string) (assistant.GuardDecision, error) {
	if utf8.RuneCountInString(msg.Content.PlainText()) <= g.maxRunes {
		return assistant.GuardDecision{Result: assistant.CheckAccept}, nil
	}
	return assistant.GuardDecision{
		Result: assistant.CheckRejectWarning,
		Text:   fmt.Sprintf("Your message is too long. Please keep it under %d characters.", g.maxRunes),
	}, nil
}
