package mongo

import (
	"context"
	"errors"

	clientsmongo "goa.design/converse/features/chatstore/mongo/clients/mongo"
	"goa.design/converse/runtime/assistant"
)

// Store implements assistant.Store by delegating to the Mongo client. It
// also exposes the conversation management operations (list, rename, delete)
// the outer service surfaces.
type Store struct {
	client clientsmongo.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client clientsmongo.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// GetChat loads a conversation document.
func (s *Store) GetChat(ctx context.Context, key assistant.ChatKey) (*assistant.Chat, error) {
	return s.client.LoadChat(ctx, key)
}

// SaveChat creates or replaces a conversation document.
func (s *Store) SaveChat(ctx context.Context, chat *assistant.Chat) error {
	return s.client.UpsertChat(ctx, chat)
}

// ApplyMemoryUpdate appends messages and maintains the bounded memory.
func (s *Store) ApplyMemoryUpdate(ctx context.Context, key assistant.ChatKey, update assistant.MemoryUpdate) error {
	return s.client.AppendMessages(ctx, key, update)
}

// ApplyAgentUpdate patches one agent's state document.
func (s *Store) ApplyAgentUpdate(ctx context.Context, key assistant.ChatKey, update assistant.AgentUpdate) error {
	return s.client.PatchAgentState(ctx, key, update)
}

// ApplyActivityUpdate patches or inserts one activity.
func (s *Store) ApplyActivityUpdate(ctx context.Context, key assistant.ChatKey, update assistant.ActivityUpdate) error {
	return s.client.PatchActivity(ctx, key, update)
}

// InsertFlaggedMessage records a critically rejected message for review.
func (s *Store) InsertFlaggedMessage(ctx context.Context, key assistant.ChatKey, msg assistant.ChatMessage, decision assistant.GuardDecision) error {
	return s.client.InsertFlaggedMessage(ctx, key, msg, decision)
}

// ListFlaggedMessages returns the user's flags still awaiting review.
func (s *Store) ListFlaggedMessages(ctx context.Context, username string) ([]clientsmongo.FlaggedMessage, error) {
	return s.client.ListFlaggedMessages(ctx, username)
}

// ResolveFlaggedMessage marks a flag as reviewed.
func (s *Store) ResolveFlaggedMessage(ctx context.Context, username, flagID string) error {
	return s.client.ResolveFlaggedMessage(ctx, username, flagID)
}

// ListChats returns the user's conversations, newest first.
func (s *Store) ListChats(ctx context.Context, username string) ([]clientsmongo.ChatSummary, error) {
	return s.client.ListChats(ctx, username)
}

// RenameChat sets a conversation's title.
func (s *Store) RenameChat(ctx context.Context, key assistant.ChatKey, title string) error {
	return s.client.RenameChat(ctx, key, title)
}

// DeleteChat removes a conversation.
func (s *Store) DeleteChat(ctx context.Context, key assistant.ChatKey) error {
	return s.client.DeleteChat(ctx, key)
}
