package assistant

import "context"

// Store is the durable persistence target for conversations. Implementations
// apply each update incrementally so concurrent writers never clobber whole
// documents; the mongo-backed implementation translates updates into partial
// update operators.
type Store interface {
	// GetChat loads the chat for the key. Returns ErrChatNotFound when the
	// conversation does not exist.
	GetChat(ctx context.Context, key ChatKey) (*Chat, error)

	// SaveChat creates or fully replaces the chat document. Used when a
	// conversation is first persisted; later writes go through the Apply
	// methods.
	SaveChat(ctx context.Context, chat *Chat) error

	// ApplyMemoryUpdate appends messages to the history and maintains the
	// bounded memory window with the update's compaction parameters.
	ApplyMemoryUpdate(ctx context.Context, key ChatKey, update MemoryUpdate) error

	// ApplyAgentUpdate applies a path mutation to one agent's state
	// document.
	ApplyAgentUpdate(ctx context.Context, key ChatKey, update AgentUpdate) error

	// ApplyActivityUpdate applies a path mutation to one activity, or
	// inserts the activity when the update path is empty.
	ApplyActivityUpdate(ctx context.Context, key ChatKey, update ActivityUpdate) error

	// InsertFlaggedMessage records a message a guard rejected with
	// critical severity, for operator review.
	InsertFlaggedMessage(ctx context.Context, key ChatKey, msg ChatMessage, decision GuardDecision) error
}
