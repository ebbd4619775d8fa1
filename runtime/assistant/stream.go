package assistant

import (
	"context"
	"errors"
	"io"
)

// ContentStream yields successive renditions of a message's content while a
// model streams its output. Recv returns io.EOF when the stream ends.
type ContentStream interface {
	Recv() (MessageContent, error)
}

// SendAssistantMessage delivers an assistant message to the client and, when
// propagate is set, records the exchange (the optional triggering user
// message plus the reply) in the conversation memory. Delivery is best
// effort: a dropped client connection does not abort the exchange.
func (a *Assistant) SendAssistantMessage(ctx context.Context, msg ChatMessage, userMsg *ChatMessage, propagate bool) error {
	msg.Finished = true
	if err := a.callback.SendAssistantMessage(ctx, msg); err != nil {
		a.reportPersistFailure(ctx, "client", "message", err)
	}
	if !propagate {
		return nil
	}
	return a.propagateChatMessages(ctx, exchange(userMsg, msg))
}

// StreamAssistantMessage delivers a message incrementally: every content
// rendition from the stream is sent as an unfinished partial under the same
// message ID, then the final content is sent with the finished marker. The
// finished marker is always sent, also when the stream fails or yields
// nothing, so the client can settle the message. Only the final content
// enters the conversation memory.
func (a *Assistant) StreamAssistantMessage(ctx context.Context, msg ChatMessage, partials ContentStream, userMsg *ChatMessage, propagate bool) error {
	for {
		content, err := partials.Recv()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				a.logger.Warn(ctx, "message stream interrupted", "message_id", msg.ID, "err", err)
			}
			break
		}
		msg.Content = content
		msg.Finished = false
		if err := a.callback.SendAssistantMessage(ctx, msg); err != nil {
			a.reportPersistFailure(ctx, "client", "message", err)
		}
	}
	return a.SendAssistantMessage(ctx, msg, userMsg, propagate)
}

func exchange(userMsg *ChatMessage, reply ChatMessage) []ChatMessage {
	if userMsg == nil {
		return []ChatMessage{reply}
	}
	return []ChatMessage{*userMsg, reply}
}
