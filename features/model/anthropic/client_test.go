package anthropic

import (
	"context"
	"errors"
	"io"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/converse/runtime/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func (s *stubMessagesClient) NewStreaming(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	s.lastParams = body
	return ssestream.NewStream[sdk.MessageStreamEventUnion](&noopDecoder{}, nil)
}

type noopDecoder struct{}

func (n *noopDecoder) Event() ssestream.Event { return ssestream.Event{} }
func (n *noopDecoder) Next() bool             { return false }
func (n *noopDecoder) Close() error           { return nil }
func (n *noopDecoder) Err() error             { return nil }

func newTestClient(t *testing.T, stub *stubMessagesClient) *Client {
	t.Helper()
	cl, err := New(stub, Options{DefaultModel: "claude-sonnet-4-5", MaxTokens: 128})
	require.NoError(t, err)
	return cl
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "claude-sonnet-4-5"})
	require.Error(t, err)
	_, err = New(&stubMessagesClient{}, Options{})
	require.Error(t, err)
}

func TestCompleteTranslatesResponse(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			Content: []sdk.ContentBlockUnion{
				{Type: "text", Text: "hello "},
				{Type: "text", Text: "world"},
			},
			StopReason: sdk.StopReasonEndTurn,
			Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
	cl := newTestClient(t, stub)

	resp, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{model.System("be brief"), model.User("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello world", resp.Text)
	assert.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 5, resp.Usage.OutputTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, sdk.Model("claude-sonnet-4-5"), stub.lastParams.Model)
	assert.Equal(t, int64(128), stub.lastParams.MaxTokens)
	require.Len(t, stub.lastParams.System, 1)
	assert.Equal(t, "be brief", stub.lastParams.System[0].Text)
	assert.Len(t, stub.lastParams.Messages, 1)
}

func TestCompleteRequiresMessages(t *testing.T) {
	cl := newTestClient(t, &stubMessagesClient{})
	_, err := cl.Complete(context.Background(), model.Request{})
	require.Error(t, err)
}

func TestJSONModeAddsSystemInstruction(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{}}
	cl := newTestClient(t, stub)

	_, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{model.User("classify")},
		JSON:     true,
	})
	require.NoError(t, err)
	require.Len(t, stub.lastParams.System, 1)
	assert.Contains(t, stub.lastParams.System[0].Text, "JSON")
}

func TestRequestOverridesDefaults(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{}}
	cl := newTestClient(t, stub)

	_, err := cl.Complete(context.Background(), model.Request{
		Model:       "claude-haiku-4-5",
		MaxTokens:   64,
		Temperature: 0.4,
		Messages:    []model.Message{model.User("hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, sdk.Model("claude-haiku-4-5"), stub.lastParams.Model)
	assert.Equal(t, int64(64), stub.lastParams.MaxTokens)
	require.True(t, stub.lastParams.Temperature.Valid())
	assert.InDelta(t, 0.4, stub.lastParams.Temperature.Value, 0.001)
}

func TestCompleteMapsThrottlingError(t *testing.T) {
	stub := &stubMessagesClient{err: &sdk.Error{StatusCode: 429}}
	cl := newTestClient(t, stub)

	_, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{model.User("hi")},
	})
	require.ErrorIs(t, err, model.ErrThrottled)
}

func TestCompletePropagatesOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	stub := &stubMessagesClient{err: boom}
	cl := newTestClient(t, stub)

	_, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{model.User("hi")},
	})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, model.ErrThrottled)
}

func TestStreamYieldsEOFOnEmptyStream(t *testing.T) {
	cl := newTestClient(t, &stubMessagesClient{})

	stream, err := cl.Stream(context.Background(), model.Request{
		Messages: []model.Message{model.User("hi")},
	})
	require.NoError(t, err)
	defer stream.Close()

	_, err = stream.Recv()
	require.ErrorIs(t, err, io.EOF)
}
