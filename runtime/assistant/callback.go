package assistant

import "context"

// Callback is the conversation's channel back to the connected client.
// Implementations deliver over whatever transport the session uses (the
// pulse stream sink in production, a websocket fan-in, a test recorder).
//
// Message delivery is unconditional; the update forwarding methods are only
// invoked when the persistence strategy includes the client.
type Callback interface {
	// SendAssistantMessage delivers a chat message, possibly a streaming
	// partial (Finished false) later superseded by the final message with
	// the same ID.
	SendAssistantMessage(ctx context.Context, msg ChatMessage) error

	// SendMemoryUpdate forwards appended messages and compaction
	// parameters so the client can maintain its persisted copy.
	SendMemoryUpdate(ctx context.Context, update MemoryUpdate) error

	// SendAgentUpdate forwards an agent state mutation.
	SendAgentUpdate(ctx context.Context, update AgentUpdate) error

	// SendActivityUpdate forwards an activity mutation so the client can
	// render and persist it.
	SendActivityUpdate(ctx context.Context, update ActivityUpdate) error
}
