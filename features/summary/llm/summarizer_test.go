package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/model"
)

type fakeModel struct {
	lastReq model.Request
	calls   int
	text    string
	err     error
}

func (f *fakeModel) Complete(_ context.Context, req model.Request) (model.Response, error) {
	f.lastReq = req
	f.calls++
	return model.Response{Text: f.text}, f.err
}

func (f *fakeModel) Stream(context.Context, model.Request) (model.Streamer, error) {
	return nil, model.ErrStreamingUnsupported
}

func evicted() []assistant.ChatMessage {
	return []assistant.ChatMessage{
		assistant.NewUserMessage("my name is Alice"),
		assistant.NewAssistantMessage("main", assistant.SpeakContent("Nice to meet you, Alice.")),
	}
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestSummarizeFoldsMessages(t *testing.T) {
	fake := &fakeModel{text: "The user is Alice."}
	sum, err := New(fake, Options{})
	require.NoError(t, err)

	summary, err := sum.Summarize(context.Background(), "Earlier chit-chat.", evicted(), "en")
	require.NoError(t, err)
	assert.Equal(t, "The user is Alice.", summary)

	user := fake.lastReq.Messages[1].Content
	assert.Contains(t, user, "Earlier chit-chat.")
	assert.Contains(t, user, "my name is Alice")
}

func TestSummarizeSkipsEmptyEviction(t *testing.T) {
	fake := &fakeModel{text: "ignored"}
	sum, err := New(fake, Options{})
	require.NoError(t, err)

	summary, err := sum.Summarize(context.Background(), "unchanged", nil, "en")
	require.NoError(t, err)
	assert.Equal(t, "unchanged", summary)
	assert.Zero(t, fake.calls)
}

func TestSummarizeRejectsEmptyModelOutput(t *testing.T) {
	sum, err := New(&fakeModel{text: "  "}, Options{})
	require.NoError(t, err)

	_, err = sum.Summarize(context.Background(), "", evicted(), "en")
	require.Error(t, err)
}

func TestSummarizePropagatesModelError(t *testing.T) {
	boom := errors.New("model down")
	sum, err := New(&fakeModel{err: boom}, Options{})
	require.NoError(t, err)

	_, err = sum.Summarize(context.Background(), "", evicted(), "en")
	require.ErrorIs(t, err, boom)
}
