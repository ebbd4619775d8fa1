package pulse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	streamopts "goa.design/pulse/streaming/options"

	clientspulse "goa.design/converse/features/stream/pulse/clients/pulse"
	"goa.design/converse/runtime/assistant"
)

type fakeStream struct {
	events   []string
	payloads [][]byte
}

func (f *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return "1-0", nil
}

func (f *fakeStream) NewSink(context.Context, string, ...streamopts.Sink) (clientspulse.Sink, error) {
	return nil, nil
}

func (f *fakeStream) Destroy(context.Context) error { return nil }

type fakeClient struct {
	streams map[string]*fakeStream
}

func (f *fakeClient) Stream(name string, _ ...streamopts.Stream) (clientspulse.Stream, error) {
	if f.streams == nil {
		f.streams = make(map[string]*fakeStream)
	}
	str, ok := f.streams[name]
	if !ok {
		str = &fakeStream{}
		f.streams[name] = str
	}
	return str, nil
}

func (f *fakeClient) Close(context.Context) error { return nil }

func newTestCallback(t *testing.T) (*Callback, *fakeClient) {
	t.Helper()
	client := &fakeClient{}
	callback, err := NewCallback(
		assistant.ChatKey{Username: "alice", ThreadID: "t-1"},
		Options{Client: client},
	)
	require.NoError(t, err)
	return callback, client
}

func TestCallbackRequiresClientAndKey(t *testing.T) {
	_, err := NewCallback(assistant.ChatKey{Username: "alice", ThreadID: "t-1"}, Options{})
	require.Error(t, err)
	_, err = NewCallback(assistant.ChatKey{}, Options{Client: &fakeClient{}})
	require.Error(t, err)
}

func TestCallbackPublishesToConversationStream(t *testing.T) {
	callback, client := newTestCallback(t)
	msg := assistant.NewAssistantMessage("main", assistant.SpeakContent("hello"))
	require.NoError(t, callback.SendAssistantMessage(context.Background(), msg))

	stream := client.streams["chat/alice/t-1"]
	require.NotNil(t, stream)
	require.Len(t, stream.events, 1)
	assert.Equal(t, string(EventAssistantMessage), stream.events[0])

	event, err := decodeEnvelope(stream.payloads[0])
	require.NoError(t, err)
	assert.Equal(t, EventAssistantMessage, event.Type)
	assert.Equal(t, "alice", event.Username)
	assert.Equal(t, "t-1", event.ThreadID)

	var decoded assistant.ChatMessage
	require.NoError(t, json.Unmarshal(event.Payload, &decoded))
	assert.Equal(t, msg.ID, decoded.ID)
	assert.Equal(t, "hello", decoded.Content.Speak)
}

func TestCallbackPublishesUpdates(t *testing.T) {
	callback, client := newTestCallback(t)
	ctx := context.Background()

	require.NoError(t, callback.SendMemoryUpdate(ctx, assistant.MemoryUpdate{KeepCount: 10}))
	require.NoError(t, callback.SendAgentUpdate(ctx, assistant.AgentUpdate{
		StateUpdate: assistant.StateUpdate{Path: "topic", Value: "math"},
		Agent:       "quiz",
	}))
	require.NoError(t, callback.SendActivityUpdate(ctx, assistant.ActivityUpdate{
		StateUpdate: assistant.StateUpdate{Path: "status", Value: "running"},
		ID:          "a-1",
		Origin:      assistant.OriginAgent,
	}))

	stream := client.streams["chat/alice/t-1"]
	require.NotNil(t, stream)
	assert.Equal(t, []string{
		string(EventMemoryUpdate),
		string(EventAgentUpdate),
		string(EventActivityUpdate),
	}, stream.events)

	event, err := decodeEnvelope(stream.payloads[2])
	require.NoError(t, err)
	var update assistant.ActivityUpdate
	require.NoError(t, json.Unmarshal(event.Payload, &update))
	assert.Equal(t, assistant.ActivityID("a-1"), update.ID)
	assert.Equal(t, "status", update.Path)
}

func TestCustomStreamID(t *testing.T) {
	client := &fakeClient{}
	callback, err := NewCallback(
		assistant.ChatKey{Username: "alice", ThreadID: "t-1"},
		Options{
			Client:   client,
			StreamID: func(key assistant.ChatKey) string { return "custom/" + key.ThreadID },
		},
	)
	require.NoError(t, err)
	require.NoError(t, callback.SendMemoryUpdate(context.Background(), assistant.MemoryUpdate{}))
	require.NotNil(t, client.streams["custom/t-1"])
}
