// Package pulse implements the conversation callback on top of
// goa.design/pulse streams. Each conversation publishes to its own stream;
// the gateway holding the client connection subscribes to that stream and
// relays envelopes over whatever transport the client speaks.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/converse/features/stream/pulse/clients/pulse"
	"goa.design/converse/runtime/assistant"
)

type (
	// Options configures the callback.
	Options struct {
		// Client is the Pulse client used to publish envelopes. Required.
		Client pulse.Client
		// StreamID derives the stream name from the conversation key.
		// Defaults to "chat/<username>/<thread>".
		StreamID func(key assistant.ChatKey) string
		// Marshal overrides envelope serialization, primarily for tests.
		Marshal func(Envelope) ([]byte, error)
	}

	// Callback publishes conversation events to the conversation's Pulse
	// stream. Safe for concurrent use.
	Callback struct {
		client   pulse.Client
		key      assistant.ChatKey
		streamID string
		marshal  func(Envelope) ([]byte, error)
	}

	// Envelope wraps conversation events for transmission.
	Envelope struct {
		// Type identifies the event kind.
		Type EventType `json:"type"`
		// Username and ThreadID identify the conversation.
		Username string `json:"username"`
		ThreadID string `json:"thread_id"`
		// Timestamp records when the event was published (UTC).
		Timestamp time.Time `json:"timestamp"`
		// Payload contains the event-specific data.
		Payload any `json:"payload"`
	}

	// EventType discriminates envelope payloads.
	EventType string
)

const (
	// EventAssistantMessage carries an assistant.ChatMessage.
	EventAssistantMessage EventType = "assistant_message"
	// EventMemoryUpdate carries an assistant.MemoryUpdate.
	EventMemoryUpdate EventType = "memory_update"
	// EventAgentUpdate carries an assistant.AgentUpdate.
	EventAgentUpdate EventType = "agent_update"
	// EventActivityUpdate carries an assistant.ActivityUpdate.
	EventActivityUpdate EventType = "activity_update"
)

// NewCallback constructs the Pulse-backed callback for one conversation.
func NewCallback(key assistant.ChatKey, opts Options) (*Callback, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	if key.Username == "" || key.ThreadID == "" {
		return nil, errors.New("conversation key is required")
	}
	streamID := DefaultStreamID(key)
	if opts.StreamID != nil {
		streamID = opts.StreamID(key)
	}
	marshal := defaultMarshal
	if opts.Marshal != nil {
		marshal = opts.Marshal
	}
	return &Callback{
		client:   opts.Client,
		key:      key,
		streamID: streamID,
		marshal:  marshal,
	}, nil
}

// DefaultStreamID is the default conversation stream naming scheme.
func DefaultStreamID(key assistant.ChatKey) string {
	return fmt.Sprintf("chat/%s/%s", key.Username, key.ThreadID)
}

// SendAssistantMessage publishes a chat message, partial or final.
func (c *Callback) SendAssistantMessage(ctx context.Context, msg assistant.ChatMessage) error {
	return c.publish(ctx, EventAssistantMessage, msg)
}

// SendMemoryUpdate publishes appended messages and compaction parameters.
func (c *Callback) SendMemoryUpdate(ctx context.Context, update assistant.MemoryUpdate) error {
	return c.publish(ctx, EventMemoryUpdate, update)
}

// SendAgentUpdate publishes an agent state mutation.
func (c *Callback) SendAgentUpdate(ctx context.Context, update assistant.AgentUpdate) error {
	return c.publish(ctx, EventAgentUpdate, update)
}

// SendActivityUpdate publishes an activity mutation.
func (c *Callback) SendActivityUpdate(ctx context.Context, update assistant.ActivityUpdate) error {
	return c.publish(ctx, EventActivityUpdate, update)
}

// Close releases resources owned by the callback.
func (c *Callback) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

func (c *Callback) publish(ctx context.Context, kind EventType, payload any) error {
	handle, err := c.client.Stream(c.streamID)
	if err != nil {
		return err
	}
	env := Envelope{
		Type:      kind,
		Username:  c.key.Username,
		ThreadID:  c.key.ThreadID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	raw, err := c.marshal(env)
	if err != nil {
		return err
	}
	if _, err := handle.Add(ctx, string(kind), raw); err != nil {
		return err
	}
	return nil
}

func defaultMarshal(env Envelope) ([]byte, error) {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal stream envelope: %w", err)
	}
	return raw, nil
}
