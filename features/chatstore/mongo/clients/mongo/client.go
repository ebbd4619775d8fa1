// Package mongo hosts the MongoDB client used by the chat store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"goa.design/converse/runtime/assistant"
	"goa.design/converse/runtime/assistant/statepath"
)

const (
	defaultChatsCollection   = "chats"
	defaultFlaggedCollection = "flagged_messages"
	defaultOpTimeout         = 5 * time.Second
	chatClientName           = "chatstore-mongo"
)

type (
	// Client exposes Mongo-backed operations for conversation documents.
	// Every state update translates into a partial update so concurrent
	// writers never clobber whole documents.
	Client interface {
		health.Pinger

		LoadChat(ctx context.Context, key assistant.ChatKey) (*assistant.Chat, error)
		UpsertChat(ctx context.Context, chat *assistant.Chat) error
		DeleteChat(ctx context.Context, key assistant.ChatKey) error
		RenameChat(ctx context.Context, key assistant.ChatKey, title string) error
		ListChats(ctx context.Context, username string) ([]ChatSummary, error)

		AppendMessages(ctx context.Context, key assistant.ChatKey, update assistant.MemoryUpdate) error
		PatchAgentState(ctx context.Context, key assistant.ChatKey, update assistant.AgentUpdate) error
		PatchActivity(ctx context.Context, key assistant.ChatKey, update assistant.ActivityUpdate) error

		InsertFlaggedMessage(ctx context.Context, key assistant.ChatKey, msg assistant.ChatMessage, decision assistant.GuardDecision) error
		ListFlaggedMessages(ctx context.Context, username string) ([]FlaggedMessage, error)
		ResolveFlaggedMessage(ctx context.Context, username, flagID string) error
	}

	// ChatSummary is the listing projection of a conversation.
	ChatSummary struct {
		assistant.ChatKey `bson:",inline"`
		Title             string    `bson:"title"`
		Timestamp         time.Time `bson:"timestamp"`
	}

	// Options configures the Mongo chat client.
	Options struct {
		Client            *mongodriver.Client
		Database          string
		ChatsCollection   string
		FlaggedCollection string
		Timeout           time.Duration
	}

	client struct {
		mongo   *mongodriver.Client
		chats   collection
		flagged collection
		timeout time.Duration
	}

	// FlaggedMessage is a critically rejected user message awaiting manual
	// review. Resolving it marks the review done without deleting the record.
	FlaggedMessage struct {
		assistant.ChatKey `bson:",inline"`
		FlagID            string                  `bson:"flag_id"`
		Timestamp         time.Time               `bson:"timestamp"`
		Message           assistant.ChatMessage   `bson:"message"`
		Decision          assistant.GuardDecision `bson:"decision"`
		Resolved          bool                    `bson:"resolved"`
	}
)

// ErrFlaggedMessageNotFound is returned when resolving a flag that does not
// exist for the given user.
var ErrFlaggedMessageNotFound = errors.New("flagged message not found")

// New returns a Client backed by MongoDB.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	chatsCollection := opts.ChatsCollection
	if chatsCollection == "" {
		chatsCollection = defaultChatsCollection
	}
	flaggedCollection := opts.FlaggedCollection
	if flaggedCollection == "" {
		flaggedCollection = defaultFlaggedCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	chats := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(chatsCollection)}
	flagged := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(flaggedCollection)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, chats, flagged); err != nil {
		return nil, err
	}
	return newClientWithCollections(opts.Client, chats, flagged, timeout), nil
}

func (c *client) Name() string {
	return chatClientName
}

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) LoadChat(ctx context.Context, key assistant.ChatKey) (*assistant.Chat, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	var chat assistant.Chat
	if err := c.chats.FindOne(ctx, keyFilter(key)).Decode(&chat); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return nil, assistant.ErrChatNotFound
		}
		return nil, err
	}
	return &chat, nil
}

func (c *client) UpsertChat(ctx context.Context, chat *assistant.Chat) error {
	if chat == nil {
		return errors.New("chat is required")
	}
	if err := validateKey(chat.ChatKey); err != nil {
		return err
	}
	if chat.Timestamp.IsZero() {
		chat.Timestamp = time.Now().UTC()
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	update := bson.M{"$set": chat}
	_, err := c.chats.UpdateOne(ctx, keyFilter(chat.ChatKey), update, options.Update().SetUpsert(true))
	return err
}

func (c *client) DeleteChat(ctx context.Context, key assistant.ChatKey) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.chats.DeleteOne(ctx, keyFilter(key))
	return err
}

func (c *client) RenameChat(ctx context.Context, key assistant.ChatKey, title string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	update := bson.M{"$set": bson.M{"title": title, "timestamp": time.Now().UTC()}}
	result, err := c.chats.UpdateOne(ctx, keyFilter(key), update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return assistant.ErrChatNotFound
	}
	return nil
}

func (c *client) ListChats(ctx context.Context, username string) ([]ChatSummary, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.chats.Find(ctx, bson.M{"username": username},
		options.Find().
			SetProjection(bson.M{"username": 1, "thread_id": 1, "title": 1, "timestamp": 1}).
			SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []ChatSummary
	for cur.Next(ctx) {
		var summary ChatSummary
		if err := cur.Decode(&summary); err != nil {
			return nil, err
		}
		out = append(out, summary)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) AppendMessages(ctx context.Context, key assistant.ChatKey, update assistant.MemoryUpdate) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if len(update.Messages) == 0 {
		return nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	_, err := c.chats.UpdateOne(ctx, keyFilter(key), BuildMemoryUpdate(update))
	return err
}

func (c *client) PatchAgentState(ctx context.Context, key assistant.ChatKey, update assistant.AgentUpdate) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if update.Agent == "" {
		return errors.New("agent code is required")
	}
	docs, err := BuildAgentUpdate(update)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	for _, doc := range docs {
		if _, err := c.chats.UpdateOne(ctx, keyFilter(key), doc); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) PatchActivity(ctx context.Context, key assistant.ChatKey, update assistant.ActivityUpdate) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if update.ID == "" {
		return errors.New("activity id is required")
	}
	docs, err := BuildActivityUpdate(update)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	for _, doc := range docs {
		if _, err := c.chats.UpdateOne(ctx, keyFilter(key), doc); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) InsertFlaggedMessage(ctx context.Context, key assistant.ChatKey, msg assistant.ChatMessage, decision assistant.GuardDecision) error {
	if err := validateKey(key); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	doc := FlaggedMessage{
		ChatKey:   key,
		FlagID:    uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Message:   msg,
		Decision:  decision,
	}
	_, err := c.flagged.InsertOne(ctx, doc)
	return err
}

// ListFlaggedMessages returns the user's unresolved flags, newest first.
func (c *client) ListFlaggedMessages(ctx context.Context, username string) ([]FlaggedMessage, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	cur, err := c.flagged.Find(ctx, bson.M{"username": username, "resolved": false},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []FlaggedMessage
	for cur.Next(ctx) {
		var flag FlaggedMessage
		if err := cur.Decode(&flag); err != nil {
			return nil, err
		}
		out = append(out, flag)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveFlaggedMessage marks one flag as reviewed.
func (c *client) ResolveFlaggedMessage(ctx context.Context, username, flagID string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if flagID == "" {
		return errors.New("flag id is required")
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"username": username, "flag_id": flagID}
	update := bson.M{"$set": bson.M{"resolved": true}}
	result, err := c.flagged.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrFlaggedMessageNotFound
	}
	return nil
}

// BuildMemoryUpdate translates a memory update into a single Mongo update
// document: the full history grows unbounded while the bounded memory window
// is maintained server-side with $slice, mirroring the in-memory compaction.
func BuildMemoryUpdate(update assistant.MemoryUpdate) bson.M {
	set := bson.M{
		"memory.previous": update.Previous,
		"timestamp":       time.Now().UTC(),
	}
	if update.ChatTitle != "" {
		set["title"] = update.ChatTitle
	}
	return bson.M{
		"$push": bson.M{
			"history": bson.M{"$each": update.Messages},
			"memory.messages": bson.M{
				"$each":  update.Messages,
				"$slice": -update.KeepCount,
			},
		},
		"$set": set,
	}
}

// BuildAgentUpdate translates an agent state update into Mongo update
// documents rooted at the agent's state document.
func BuildAgentUpdate(update assistant.AgentUpdate) ([]any, error) {
	if update.Path == "" {
		return nil, errors.New("agent updates require a path")
	}
	return patchDocuments(fmt.Sprintf("agents.%s", update.Agent), update.Path, update.Value)
}

// BuildActivityUpdate translates an activity update into Mongo update
// documents rooted at the activity entry. An empty path replaces the whole
// activity, which is how new activities are inserted.
func BuildActivityUpdate(update assistant.ActivityUpdate) ([]any, error) {
	root := fmt.Sprintf("activities.%s", update.ID)
	if update.Path == "" {
		return []any{bson.M{"$set": bson.M{root: update.Value}}}, nil
	}
	return patchDocuments(root, update.Path, update.Value)
}

// patchDocuments builds the update documents for one path mutation. The
// falsy-on-index deletion rule removes exactly one element; $pull matches by
// value and would take every equal element with it (arrays here legitimately
// hold repeated nulls), so deletion goes through an aggregation pipeline that
// rebuilds the array without the one position.
func patchDocuments(root, path string, value any) ([]any, error) {
	field := root + "." + MongoPath(path)
	if statepath.IsFalsy(value) && endsInIndex(path) {
		dot := strings.LastIndexByte(field, '.')
		idx, err := strconv.Atoi(field[dot+1:])
		if err != nil {
			return nil, fmt.Errorf("path %q: %w", path, err)
		}
		return []any{removeIndexPipeline(field[:dot], idx)}, nil
	}
	return []any{bson.M{"$set": bson.M{field: value}}}, nil
}

// removeIndexPipeline rebuilds the array at parent keeping every position but
// idx. Non-array and missing values are left untouched, matching the no-op
// the in-memory mutator performs on unknown paths.
func removeIndexPipeline(parent string, idx int) bson.A {
	ref := "$" + parent
	without := bson.M{"$map": bson.M{
		"input": bson.M{"$filter": bson.M{
			"input": bson.M{"$range": bson.A{0, bson.M{"$size": ref}}},
			"cond":  bson.M{"$ne": bson.A{"$$this", idx}},
		}},
		"in": bson.M{"$arrayElemAt": bson.A{ref, "$$this"}},
	}}
	return bson.A{bson.M{"$set": bson.M{parent: bson.M{"$cond": bson.A{
		bson.M{"$isArray": ref}, without, ref,
	}}}}}
}

// MongoPath converts the bracketed path notation into Mongo's dotted field
// notation: "questions[0].answers[2]" becomes "questions.0.answers.2".
func MongoPath(path string) string {
	replacer := strings.NewReplacer("[", ".", "]", "")
	return replacer.Replace(path)
}

func endsInIndex(path string) bool {
	return strings.HasSuffix(path, "]")
}

func validateKey(key assistant.ChatKey) error {
	if key.Username == "" {
		return errors.New("username is required")
	}
	if key.ThreadID == "" {
		return errors.New("thread id is required")
	}
	return nil
}

func keyFilter(key assistant.ChatKey) bson.M {
	return bson.M{"username": key.Username, "thread_id": key.ThreadID}
}

func ensureIndexes(ctx context.Context, chats, flagged collection) error {
	chatIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "username", Value: 1},
			{Key: "thread_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := chats.Indexes().CreateOne(ctx, chatIndex); err != nil {
		return err
	}
	listIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "username", Value: 1},
			{Key: "timestamp", Value: -1},
		},
	}
	if _, err := chats.Indexes().CreateOne(ctx, listIndex); err != nil {
		return err
	}
	flaggedIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "username", Value: 1},
			{Key: "resolved", Value: 1},
		},
	}
	if _, err := flagged.Indexes().CreateOne(ctx, flaggedIndex); err != nil {
		return err
	}
	return nil
}

func newClientWithCollections(mongoClient *mongodriver.Client, chats, flagged collection, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{
		mongo:   mongoClient,
		chats:   chats,
		flagged: flagged,
		timeout: timeout,
	}
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

type collection interface {
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error)
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error)
	InsertOne(ctx context.Context, document any,
		opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
	DeleteOne(ctx context.Context, filter any,
		opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...*options.CreateIndexesOptions) (string, error)
}

type singleResult interface {
	Decode(val any) error
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) singleResult {
	return mongoSingleResult{res: c.coll.FindOne(ctx, filter, opts...)}
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) InsertOne(ctx context.Context, document any,
	opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoSingleResult struct {
	res *mongodriver.SingleResult
}

func (r mongoSingleResult) Decode(val any) error {
	return r.res.Decode(val)
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

func (c mongoCursor) Decode(val any) error {
	return c.cur.Decode(val)
}

func (c mongoCursor) Err() error {
	return c.cur.Err()
}

func (c mongoCursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
