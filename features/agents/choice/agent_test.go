package choice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/assistant/statepath"
	"goa.design/converse/runtime/assistant/telemetry"
)

type recorderCallback struct {
	messages     []assistant.ChatMessage
	agentUpdates []assistant.AgentUpdate
}

func (r *recorderCallback) SendAssistantMessage(_ context.Context, msg assistant.ChatMessage) error {
	r.messages = append(r.messages, msg)
	return nil
}

func (r *recorderCallback) SendMemoryUpdate(context.Context, assistant.MemoryUpdate) error {
	return nil
}

func (r *recorderCallback) SendAgentUpdate(_ context.Context, update assistant.AgentUpdate) error {
	r.agentUpdates = append(r.agentUpdates, update)
	return nil
}

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

func catalog() []Choice {
	return []Choice{
		{Activity: "quiz", Description: "Play a multiple choice quiz"},
		{Activity: "flashcards", Description: "Review flashcards"},
	}
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

func TestNewRequiresChoices(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestHandleMessagePresentsMenu(t *testing.T) {
	agent, err := New(Options{Choices: catalog()})
	require.NoError(t, err)
	as, callback := newFixture(t, agent)

	result, err := agent.HandleMessage(context.Background(), as, assistant.NewUserMessage("what can we do?"))
	require.NoError(t, err)
	assert.True(t, result.Handled)

	current := as.CurrentActivity()
	require.NotNil(t, current)
	assert.Equal(t, ActivityChoice, current.Activity)
	assert.Equal(t, assistant.StatusRunning, current.Status)
	choices, ok := current.Data["choices"].([]any)
	require.True(t, ok)
	assert.Len(t, choices, 2)

	// Intro text then the activity reference.
	require.Len(t, callback.messages, 2)
	assert.Equal(t, assistant.KindSpeak, callback.messages[0].Content.Kind)
	assert.Equal(t, assistant.KindActivity, callback.messages[1].Content.Kind)
	assert.Equal(t, current.ID, callback.messages[1].Content.ActivityID)

	// The offered menu lands in the agent state and is forwarded.
	state, ok := agent.State().(*MenuState)
	require.True(t, ok)
	assert.Len(t, state.Choices, 2)
	require.Len(t, callback.agentUpdates, 1)
	assert.Equal(t, "choices", callback.agentUpdates[0].Path)
}

func TestRestoreAdoptsPersistedMenu(t *testing.T) {
	agent, err := New(Options{Choices: catalog()})
	require.NoError(t, err)

	doc := statepath.Document{
		"choices": []any{
			statepath.Document{"activity": "quiz", "description": "Play a quiz"},
		},
	}
	require.NoError(t, agent.Restore(doc))
	state := agent.State().(*MenuState)
	assert.Len(t, state.Choices, 1)

	require.Error(t, agent.Restore(statepath.Document{}))
}

func TestMenuStateContainer(t *testing.T) {
	state := &MenuState{Choices: []any{}}

	got, ok := state.GetKey("choices")
	require.True(t, ok)
	assert.Empty(t, got)
	_, ok = state.GetKey("other")
	assert.False(t, ok)

	require.NoError(t, state.SetKey("choices", []any{"x"}))
	assert.Len(t, state.Choices, 1)
	require.Error(t, state.SetKey("choices", "not a sequence"))
	require.Error(t, state.SetKey("other", nil))
}

func TestStateSchemaDeclared(t *testing.T) {
	agent, err := New(Options{Choices: catalog()})
	require.NoError(t, err)
	require.NotNil(t, agent.StateSchema())
}
