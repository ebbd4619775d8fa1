package anthropic

import (
	"io"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"goa.design/converse/runtime/model"
)

// streamer adapts an Anthropic Messages stream to model.Streamer. Only text
// deltas are surfaced; other event kinds are skipped.
type streamer struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
}

func (s *streamer) Recv() (model.Chunk, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		if event.Type != "content_block_delta" {
			continue
		}
		delta := event.Delta
		if delta.Type != "text_delta" || delta.Text == "" {
			continue
		}
		return model.Chunk{Text: delta.Text}, nil
	}
	if err := s.stream.Err(); err != nil {
		return model.Chunk{}, err
	}
	return model.Chunk{}, io.EOF
}

func (s *streamer) Close() error {
	return s.stream.Close()
}
