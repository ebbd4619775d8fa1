// Package model defines the provider-agnostic contract for LLM chat
// completion clients used by the assistant's collaborators (routing,
// summarization, guard rails, title generation and the conversational
// agents). Implementations wrap provider SDKs (OpenAI, Anthropic, Bedrock)
// and translate Request/Response into provider-specific formats.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type (
	// Client is the contract collaborators use to invoke LLM calls. Clients
	// must be safe for concurrent use; a single instance is typically shared
	// by every conversation in the process.
	Client interface {
		// Complete sends a chat completion request and returns the full
		// response. Implementations should honor Request.JSON by forcing the
		// provider into JSON output mode when supported.
		Complete(ctx context.Context, req Request) (Response, error)

		// Stream sends a chat completion request and returns a Streamer that
		// yields incremental text chunks. Providers without streaming support
		// return ErrStreamingUnsupported; callers fall back to Complete.
		Stream(ctx context.Context, req Request) (Streamer, error)
	}

	// Streamer delivers incremental model output. Successive Recv calls
	// return chunks until io.EOF. Callers must Close the streamer.
	Streamer interface {
		// Recv returns the next chunk from the stream.
		Recv() (Chunk, error)
		// Close releases the underlying stream resources.
		Close() error
	}

	// Chunk is one incremental piece of streamed output.
	Chunk struct {
		// Text is the incremental text delta.
		Text string
	}

	// Request captures the normalized parameters of a completion call.
	Request struct {
		// Model overrides the client's default model identifier when set.
		Model string
		// Messages is the ordered prompt, system messages first.
		Messages []Message
		// Temperature controls sampling; zero means provider default.
		Temperature float32
		// MaxTokens caps completion length; zero means provider default.
		MaxTokens int
		// JSON asks the provider for a single JSON object as output. Used by
		// collaborators that decode structured decisions.
		JSON bool
	}

	// Message is a single prompt message.
	Message struct {
		// Role is "system", "user" or "assistant".
		Role Role
		// Content is the message text.
		Content string
	}

	// Role identifies the author of a prompt message.
	Role string

	// Response carries the completed output.
	Response struct {
		// Text is the concatenated assistant output.
		Text string
		// Usage reports token usage when the provider provides it.
		Usage TokenUsage
		// StopReason is the provider-specific stop reason, may be empty.
		StopReason string
	}

	// TokenUsage reports token accounting for a single call.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}
)

const (
	// RoleSystem marks instructions to the model.
	RoleSystem Role = "system"
	// RoleUser marks end-user input.
	RoleUser Role = "user"
	// RoleAssistant marks prior model output.
	RoleAssistant Role = "assistant"
)

var (
	// ErrStreamingUnsupported is returned by Stream when the provider
	// adapter only implements Complete.
	ErrStreamingUnsupported = errors.New("streaming not supported by this client")

	// ErrThrottled indicates the provider rejected the call due to rate
	// limiting. Middleware uses it to back off.
	ErrThrottled = errors.New("model provider throttled the request")
)

// System builds a system prompt message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User builds a user prompt message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant builds an assistant prompt message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// DecodeJSON unmarshals the response text into out. Providers occasionally
// wrap JSON output in Markdown code fences even in JSON mode; fences are
// stripped before decoding.
func DecodeJSON(resp Response, out any) error {
	text := strings.TrimSpace(resp.Text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	decoder := json.NewDecoder(bytes.NewReader([]byte(text)))
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}
