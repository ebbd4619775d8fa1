// Package mongo provides the MongoDB-backed chat store. Conversations are
// stored one document per (username, thread) pair; state updates are applied
// as partial update operators so the store mirrors the in-memory mutation
// stream instead of rewriting whole documents.
package mongo
