package assistant

import "context"

type (
	// Summarizer folds messages evicted from the bounded window into the
	// fading summary carried alongside it.
	Summarizer interface {
		// Summarize returns a new summary covering previous plus the
		// evicted messages.
		Summarize(ctx context.Context, previous string, evicted []ChatMessage, language string) (string, error)
	}

	// TitleGenerator proposes a conversation title from the memory so far.
	TitleGenerator interface {
		// SuggestTitle returns a title suggestion. Meaningful is false
		// while the conversation has not revealed a topic yet; the caller
		// retries on later messages.
		SuggestTitle(ctx context.Context, memory ConversationMemory, language string) (TitleSuggestion, error)
	}

	// TitleSuggestion is the outcome of title generation.
	TitleSuggestion struct {
		Meaningful bool   `json:"meaningful"`
		Title      string `json:"title"`
	}
)
