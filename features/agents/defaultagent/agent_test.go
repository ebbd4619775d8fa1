package defaultagent

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/assistant/telemetry"
	"goa.design/converse/runtime/model"
)

type recorderCallback struct {
	messages []assistant.ChatMessage
	memory   []assistant.MemoryUpdate
}

func (r *recorderCallback) SendAssistantMessage(_ context.Context, msg assistant.ChatMessage) error {
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorderCallback) SendMemoryUpdate(_ context.Context, update assistant.MemoryUpdate) error {
	r.memory = append(r.memory, update)
	return nil
}

func (r *recorderCallback) SendAgentUpdate(context.Context, assistant.AgentUpdate) error { return nil }

func (r *recorderCallback) SendActivityUpdate(context.Context, assistant.ActivityUpdate) error {
	return nil
}

type nopRouter struct{}

func (nopRouter) ChooseAgent(context.Context, assistant.RouteRequest) (assistant.RouteDecision, error) {
	return assistant.RouteDecision{Agent: DefaultCode}, nil
}

type nopSummarizer struct{}

func (nopSummarizer) Summarize(_ context.Context, previous string, _ []assistant.ChatMessage, _ string) (string, error) {
	return previous, nil
}

type fakeStreamer struct {
	chunks []string
	pos    int
}

func (f *fakeStreamer) Recv() (model.Chunk, error) {
	if f.pos >= len(f.chunks) {
		return model.Chunk{}, io.EOF
	}
	chunk := f.chunks[f.pos]
	f.pos++
	return model.Chunk{Text: chunk}, nil
}

func (f *fakeStreamer) Close() error { return nil }

type fakeModel struct {
	lastReq   model.Request
	chunks    []string
	text      string
	streamErr error
}

func (f *fakeModel) Complete(_ context.Context, req model.Request) (model.Response, error) {
	f.lastReq = req
	return model.Response{Text: f.text}, nil
}

func (f *fakeModel) Stream(_ context.Context, req model.Request) (model.Streamer, error) {
	f.lastReq = req
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return &fakeStreamer{chunks: f.chunks}, nil
}

func newFixture(t *testing.T, agent *Agent) (*assistant.Assistant, *recorderCallback) {
	t.Helper()
	callback := &recorderCallback{}
	as, err := assistant.New(context.Background(), assistant.Options{
		Key:         assistant.ChatKey{Username: "alice", ThreadID: "t-1"},
		Persistence: assistant.PersistClient,
		Registry: assistant.Registry{
			Agents:       []assistant.Agent{agent},
			DefaultAgent: agent.Code(),
			Router:       nopRouter{},
			Summarizer:   nopSummarizer{},
		},
		Callback: callback,
		Logger:   telemetry.NewNoopLogger(),
	})
	require.NoError(t, err)
	return as, callback
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestGreetsFreshConversation(t *testing.T) {
	agent, err := New(&fakeModel{}, Options{Greeting: "Welcome!"})
	require.NoError(t, err)
	as, callback := newFixture(t, agent)

	require.Len(t, callback.messages, 1)
	assert.Equal(t, "Welcome!", callback.messages[0].Content.Speak)
	require.Len(t, as.State().Memory.Messages, 1)
	assert.Equal(t, assistant.SourceAssistant, as.State().Memory.Messages[0].Source)
}

func TestHandleMessageStreamsReply(t *testing.T) {
	fake := &fakeModel{chunks: []string{"Hel", "lo!"}}
	agent, err := New(fake, Options{})
	require.NoError(t, err)
	as, callback := newFixture(t, agent)
	callback.messages = nil

	msg := assistant.NewUserMessage("hi there")
	result, err := agent.HandleMessage(context.Background(), as, msg)
	require.NoError(t, err)
	assert.True(t, result.Handled)

	// Two cumulative partials plus the finished frame.
	require.Len(t, callback.messages, 3)
	assert.False(t, callback.messages[0].Finished)
	assert.Equal(t, "Hel", callback.messages[0].Content.Speak)
	assert.Equal(t, "Hello!", callback.messages[1].Content.Speak)
	assert.True(t, callback.messages[2].Finished)
	assert.Equal(t, "Hello!", callback.messages[2].Content.Speak)

	// Only the user message and the final reply enter the memory.
	memory := as.State().Memory.Messages
	require.Len(t, memory, 3) // greeting + exchange
	assert.Equal(t, "hi there", memory[1].Content.Speak)
	assert.Equal(t, "Hello!", memory[2].Content.Speak)
}

func TestHandleMessageFallsBackToComplete(t *testing.T) {
	fake := &fakeModel{streamErr: model.ErrStreamingUnsupported, text: "Hello!"}
	agent, err := New(fake, Options{})
	require.NoError(t, err)
	as, callback := newFixture(t, agent)
	callback.messages = nil

	result, err := agent.HandleMessage(context.Background(), as, assistant.NewUserMessage("hi"))
	require.NoError(t, err)
	assert.True(t, result.Handled)
	require.Len(t, callback.messages, 1)
	assert.True(t, callback.messages[0].Finished)
	assert.Equal(t, "Hello!", callback.messages[0].Content.Speak)
}

func TestPromptCarriesPersonaAndLanguage(t *testing.T) {
	fake := &fakeModel{chunks: []string{"ok"}}
	agent, err := New(fake, Options{
		Persona: assistant.Persona{Name: "Tutor", Instructions: "You are a patient tutor."},
	})
	require.NoError(t, err)
	as, _ := newFixture(t, agent)

	_, err = agent.HandleMessage(context.Background(), as, assistant.NewUserMessage("hi"))
	require.NoError(t, err)
	system := fake.lastReq.Messages[0].Content
	assert.Contains(t, system, "patient tutor")
	assert.Contains(t, system, `"en"`)
}
