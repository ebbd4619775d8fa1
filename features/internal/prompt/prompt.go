// Package prompt provides small helpers shared by the LLM-backed
// collaborators to render conversation context into prompt text.
package prompt

import (
	"strings"

	"goa.design/converse/runtime/assistant"
)

// Transcript renders the memory as a plain-text transcript, oldest first.
// Transient messages and non-textual content are skipped.
func Transcript(memory assistant.ConversationMemory) string {
	var b strings.Builder
	if memory.Previous != "" {
		b.WriteString("Earlier in the conversation (summary): ")
		b.WriteString(memory.Previous)
		b.WriteString("\n\n")
	}
	b.WriteString(Messages(memory.Messages))
	return strings.TrimRight(b.String(), "\n")
}

// Messages renders a message slice as transcript lines.
func Messages(msgs []assistant.ChatMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Transient {
			continue
		}
		text := m.Content.PlainText()
		if text == "" {
			continue
		}
		switch m.Source {
		case assistant.SourceUser:
			b.WriteString("User: ")
		default:
			b.WriteString("Assistant")
			if m.Agent != "" {
				b.WriteString(" (")
				b.WriteString(string(m.Agent))
				b.WriteString(")")
			}
			b.WriteString(": ")
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String()
}
