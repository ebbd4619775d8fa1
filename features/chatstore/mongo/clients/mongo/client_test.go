package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"goa.design/converse/runtime/assistant"
)

func TestMongoPath(t *testing.T) {
	assert.Equal(t, "questions.0.correct", MongoPath("questions[0].correct"))
	assert.Equal(t, "grid.0.1", MongoPath("grid[0][1]"))
	assert.Equal(t, "status", MongoPath("status"))
}

func TestBuildMemoryUpdate(t *testing.T) {
	msgs := []assistant.ChatMessage{assistant.NewUserMessage("hi")}
	doc := BuildMemoryUpdate(assistant.MemoryUpdate{
		ChatTitle: "Physics",
		Messages:  msgs,
		KeepCount: 10,
		Previous:  "earlier",
	})

	push := doc["$push"].(bson.M)
	history := push["history"].(bson.M)
	assert.Equal(t, msgs, history["$each"])
	window := push["memory.messages"].(bson.M)
	assert.Equal(t, msgs, window["$each"])
	assert.Equal(t, -10, window["$slice"])

	set := doc["$set"].(bson.M)
	assert.Equal(t, "earlier", set["memory.previous"])
	assert.Equal(t, "Physics", set["title"])
}

func TestBuildMemoryUpdateOmitsEmptyTitle(t *testing.T) {
	doc := BuildMemoryUpdate(assistant.MemoryUpdate{
		Messages:  []assistant.ChatMessage{assistant.NewUserMessage("hi")},
		KeepCount: 10,
	})
	set := doc["$set"].(bson.M)
	_, ok := set["title"]
	assert.False(t, ok)
}

func TestBuildAgentUpdateSet(t *testing.T) {
	docs, err := BuildAgentUpdate(assistant.AgentUpdate{
		StateUpdate: assistant.StateUpdate{Path: "questions[0].correct", Value: 2},
		Agent:       "quiz",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	set := docs[0].(bson.M)["$set"].(bson.M)
	assert.Equal(t, 2, set["agents.quiz.questions.0.correct"])
}

func TestBuildAgentUpdateRequiresPath(t *testing.T) {
	_, err := BuildAgentUpdate(assistant.AgentUpdate{Agent: "quiz"})
	require.Error(t, err)
}

// A falsy value on an index path deletes exactly that element: the update is
// an aggregation pipeline rebuilding the array without the one position, not
// a $pull that would match every equal element.
func TestBuildAgentUpdateDeletion(t *testing.T) {
	docs, err := BuildAgentUpdate(assistant.AgentUpdate{
		StateUpdate: assistant.StateUpdate{Path: "questions[0].answers[1]", Value: nil},
		Agent:       "quiz",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	pipeline, ok := docs[0].(bson.A)
	require.True(t, ok)
	require.Len(t, pipeline, 1)
	set := pipeline[0].(bson.M)["$set"].(bson.M)
	cond, ok := set["agents.quiz.questions.0.answers"].(bson.M)
	require.True(t, ok)
	branches := cond["$cond"].(bson.A)
	without := branches[1].(bson.M)["$map"].(bson.M)
	filter := without["input"].(bson.M)["$filter"].(bson.M)
	assert.Equal(t, bson.A{"$$this", 1}, filter["cond"].(bson.M)["$ne"])
}

// A falsy value on a field path overwrites the field; no deletion.
func TestBuildAgentUpdateFalsyFieldSets(t *testing.T) {
	docs, err := BuildAgentUpdate(assistant.AgentUpdate{
		StateUpdate: assistant.StateUpdate{Path: "topic", Value: ""},
		Agent:       "quiz",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	set := docs[0].(bson.M)["$set"].(bson.M)
	assert.Equal(t, "", set["agents.quiz.topic"])
}

func TestBuildActivityUpdateWholeReplacement(t *testing.T) {
	activity := assistant.NewActivity("quiz", "multiple-choice", "Quiz", nil)
	docs, err := BuildActivityUpdate(assistant.ActivityUpdate{
		StateUpdate: assistant.StateUpdate{Value: activity},
		ID:          activity.ID,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	set := docs[0].(bson.M)["$set"].(bson.M)
	assert.Equal(t, activity, set["activities."+string(activity.ID)])
}

func TestBuildActivityUpdatePath(t *testing.T) {
	docs, err := BuildActivityUpdate(assistant.ActivityUpdate{
		StateUpdate: assistant.StateUpdate{Path: "data.given_answers[2]", Value: 1},
		ID:          "a-1",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	set := docs[0].(bson.M)["$set"].(bson.M)
	assert.Equal(t, 1, set["activities.a-1.data.given_answers.2"])
}

// fakeCollection records update operations without touching a server.
type fakeCollection struct {
	updates   []any
	filters   []any
	inserts   []any
	deletes   []any
	matched   int64
	findErr   error
	document  any
	documents []any
}

func (f *fakeCollection) FindOne(_ context.Context, filter any, _ ...*options.FindOneOptions) singleResult {
	f.filters = append(f.filters, filter)
	return fakeSingleResult{err: f.findErr, document: f.document}
}

func (f *fakeCollection) Find(_ context.Context, filter any, _ ...*options.FindOptions) (cursor, error) {
	f.filters = append(f.filters, filter)
	return &fakeCursor{documents: f.documents}, nil
}

func (f *fakeCollection) UpdateOne(_ context.Context, filter any, update any,
	_ ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	f.filters = append(f.filters, filter)
	f.updates = append(f.updates, update)
	return &mongodriver.UpdateResult{MatchedCount: f.matched}, nil
}

func (f *fakeCollection) InsertOne(_ context.Context, document any,
	_ ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	f.inserts = append(f.inserts, document)
	return &mongodriver.InsertOneResult{}, nil
}

func (f *fakeCollection) DeleteOne(_ context.Context, filter any,
	_ ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	f.deletes = append(f.deletes, filter)
	return &mongodriver.DeleteResult{DeletedCount: 1}, nil
}

func (f *fakeCollection) Indexes() indexView { return fakeIndexView{} }

type fakeSingleResult struct {
	err      error
	document any
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	raw, err := bson.Marshal(r.document)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, val)
}

type fakeCursor struct {
	documents []any
	pos       int
}

func (c *fakeCursor) Close(context.Context) error { return nil }

func (c *fakeCursor) Decode(val any) error {
	raw, err := bson.Marshal(c.documents[c.pos-1])
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, val)
}

func (c *fakeCursor) Err() error { return nil }

func (c *fakeCursor) Next(context.Context) bool {
	if c.pos >= len(c.documents) {
		return false
	}
	c.pos++
	return true
}

type fakeIndexView struct{}

func (fakeIndexView) CreateOne(context.Context, mongodriver.IndexModel,
	...*options.CreateIndexesOptions) (string, error) {
	return "", nil
}

func testClient(chats, flagged *fakeCollection) *client {
	return newClientWithCollections(nil, chats, flagged, time.Second)
}

func TestLoadChatNotFound(t *testing.T) {
	chats := &fakeCollection{findErr: mongodriver.ErrNoDocuments}
	c := testClient(chats, &fakeCollection{})
	_, err := c.LoadChat(context.Background(), assistant.ChatKey{Username: "alice", ThreadID: "t-1"})
	require.ErrorIs(t, err, assistant.ErrChatNotFound)
}

func TestLoadChatValidatesKey(t *testing.T) {
	c := testClient(&fakeCollection{}, &fakeCollection{})
	_, err := c.LoadChat(context.Background(), assistant.ChatKey{Username: "alice"})
	require.Error(t, err)
}

func TestPatchActivityDeletionIssuesPipelineUpdate(t *testing.T) {
	chats := &fakeCollection{matched: 1}
	c := testClient(chats, &fakeCollection{})
	err := c.PatchActivity(context.Background(),
		assistant.ChatKey{Username: "alice", ThreadID: "t-1"},
		assistant.ActivityUpdate{
			StateUpdate: assistant.StateUpdate{Path: "data.choices[0]", Value: nil},
			ID:          "a-1",
		})
	require.NoError(t, err)
	require.Len(t, chats.updates, 1)
	_, ok := chats.updates[0].(bson.A)
	assert.True(t, ok)
}

func TestRenameChatNotFound(t *testing.T) {
	chats := &fakeCollection{matched: 0}
	c := testClient(chats, &fakeCollection{})
	err := c.RenameChat(context.Background(), assistant.ChatKey{Username: "alice", ThreadID: "t-1"}, "New")
	require.ErrorIs(t, err, assistant.ErrChatNotFound)
}

func TestInsertFlaggedMessage(t *testing.T) {
	flagged := &fakeCollection{}
	c := testClient(&fakeCollection{}, flagged)
	msg := assistant.NewUserMessage("bad")
	err := c.InsertFlaggedMessage(context.Background(),
		assistant.ChatKey{Username: "alice", ThreadID: "t-1"},
		msg, assistant.GuardDecision{Result: assistant.CheckRejectCritical, Text: "no"})
	require.NoError(t, err)
	require.Len(t, flagged.inserts, 1)
	doc := flagged.inserts[0].(FlaggedMessage)
	assert.Equal(t, msg.ID, doc.Message.ID)
	assert.NotEmpty(t, doc.FlagID)
	assert.False(t, doc.Timestamp.IsZero())
	assert.False(t, doc.Resolved)
}

func TestListFlaggedMessages(t *testing.T) {
	flag := FlaggedMessage{
		ChatKey:   assistant.ChatKey{Username: "alice", ThreadID: "t-1"},
		FlagID:    "f-1",
		Timestamp: time.Now().UTC(),
		Message:   assistant.NewUserMessage("bad"),
		Decision:  assistant.GuardDecision{Result: assistant.CheckRejectCritical},
	}
	flagged := &fakeCollection{documents: []any{flag}}
	c := testClient(&fakeCollection{}, flagged)

	out, err := c.ListFlaggedMessages(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "f-1", out[0].FlagID)

	// Only unresolved flags are listed.
	require.Len(t, flagged.filters, 1)
	filter := flagged.filters[0].(bson.M)
	assert.Equal(t, false, filter["resolved"])

	_, err = c.ListFlaggedMessages(context.Background(), "")
	require.Error(t, err)
}

func TestResolveFlaggedMessage(t *testing.T) {
	flagged := &fakeCollection{matched: 1}
	c := testClient(&fakeCollection{}, flagged)
	require.NoError(t, c.ResolveFlaggedMessage(context.Background(), "alice", "f-1"))
	require.Len(t, flagged.updates, 1)
	set := flagged.updates[0].(bson.M)["$set"].(bson.M)
	assert.Equal(t, true, set["resolved"])
}

func TestResolveFlaggedMessageNotFound(t *testing.T) {
	flagged := &fakeCollection{matched: 0}
	c := testClient(&fakeCollection{}, flagged)
	err := c.ResolveFlaggedMessage(context.Background(), "alice", "missing")
	require.ErrorIs(t, err, ErrFlaggedMessageNotFound)
}

func TestAppendMessagesSkipsEmptyUpdate(t *testing.T) {
	chats := &fakeCollection{}
	c := testClient(chats, &fakeCollection{})
	err := c.AppendMessages(context.Background(),
		assistant.ChatKey{Username: "alice", ThreadID: "t-1"}, assistant.MemoryUpdate{KeepCount: 10})
	require.NoError(t, err)
	assert.Empty(t, chats.updates)
}
