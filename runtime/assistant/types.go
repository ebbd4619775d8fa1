// Package assistant implements the conversational core: routing user
// messages to agents, tracking interactive activities through their shared
// lifecycle, and propagating fine-grained state mutations to the durable
// store and the live client according to the conversation's persistence
// strategy.
//
// One Assistant instance owns exactly one conversation and is driven by a
// single goroutine (typically the connection handler). All state mutation is
// sequential; the only suspension points are the LLM collaborators and the
// persistence targets.
package assistant

import (
	"time"

	"github.com/google/uuid"
)

type (
	// AgentCode is the stable, compiled-in identifier of an agent type.
	AgentCode string

	// ActivityCode identifies an activity type within its owning agent.
	ActivityCode string

	// ActivityID is the generated identifier of one activity instance.
	ActivityID string

	// PersistenceStrategy selects where conversation state is persisted.
	// It is chosen once when the conversation starts and never changes.
	PersistenceStrategy string

	// MessageSource identifies who authored a chat message.
	MessageSource string

	// ContentKind discriminates the message content variants.
	ContentKind string

	// Severity qualifies system messages.
	Severity string

	// ChatKey identifies a persisted conversation.
	ChatKey struct {
		// Username is the conversation owner.
		Username string `json:"username" bson:"username"`
		// ThreadID distinguishes the owner's conversations.
		ThreadID string `json:"thread_id" bson:"thread_id"`
	}

	// MessageContent is the tagged content of a chat message. Kind selects
	// the variant; only the fields of that variant are populated.
	MessageContent struct {
		// Kind is the content variant tag.
		Kind ContentKind `json:"type" bson:"type"`
		// Severity qualifies system messages.
		Severity Severity `json:"severity,omitempty" bson:"severity,omitempty"`
		// Text is the system message text.
		Text string `json:"text,omitempty" bson:"text,omitempty"`
		// Speak is the plain conversational text.
		Speak string `json:"speak,omitempty" bson:"speak,omitempty"`
		// Think is a reasoning step surfaced to the user.
		Think string `json:"think,omitempty" bson:"think,omitempty"`
		// Steps reports progress of a sequential background process.
		Steps []ProcessStep `json:"steps,omitempty" bson:"steps,omitempty"`
		// Agent, Activity, ActivityID and Title reference an interactive
		// activity managed in the conversation's activity table.
		Agent      AgentCode    `json:"agent,omitempty" bson:"agent,omitempty"`
		Activity   ActivityCode `json:"activity,omitempty" bson:"activity,omitempty"`
		ActivityID ActivityID   `json:"id,omitempty" bson:"id,omitempty"`
		Title      string       `json:"title,omitempty" bson:"title,omitempty"`
	}

	// ProcessStep is one step of a sequential background process.
	ProcessStep struct {
		Name   string `json:"name" bson:"name"`
		Status string `json:"status" bson:"status"`
	}

	// ChatMessage is a single message in the conversation timeline, user or
	// assistant authored.
	ChatMessage struct {
		// ID identifies the message, also across streamed partials.
		ID string `json:"id" bson:"id"`
		// Source is the message author.
		Source MessageSource `json:"source" bson:"source"`
		// Agent is the authoring agent for assistant messages.
		Agent AgentCode `json:"agent,omitempty" bson:"agent,omitempty"`
		// Transient messages are shown but not replayed on restore.
		Transient bool `json:"transient,omitempty" bson:"transient,omitempty"`
		// Content is the message payload.
		Content MessageContent `json:"content" bson:"content"`
		// Finished is false while partials of this message are streaming.
		Finished bool `json:"finished" bson:"finished"`
	}

	// ConversationMemory is the bounded short-term context handed to LLM
	// calls: the newest messages verbatim plus a fading summary of
	// everything older.
	ConversationMemory struct {
		// Messages holds at most the configured keep count of messages.
		Messages []ChatMessage `json:"messages" bson:"messages"`
		// Previous is the fading summary of evicted messages.
		Previous string `json:"previous" bson:"previous"`
	}

	// State is the in-memory conversation state: the restored or fresh
	// counterpart of the persisted chat document.
	State struct {
		Title      string                      `json:"title" bson:"title"`
		Memory     ConversationMemory          `json:"memory" bson:"memory"`
		Agents     map[AgentCode]map[string]any `json:"agents" bson:"agents"`
		Activities map[ActivityID]*ActivityState `json:"activities" bson:"activities"`
	}

	// Chat is the durable conversation document as stored by the chat
	// store, keyed by (owner, thread).
	Chat struct {
		ChatKey     `bson:",inline"`
		Timestamp   time.Time                     `json:"timestamp" bson:"timestamp"`
		Title       string                        `json:"title" bson:"title"`
		Persistence PersistenceStrategy           `json:"persistence" bson:"persistence"`
		History     []ChatMessage                 `json:"history" bson:"history"`
		Memory      ConversationMemory            `json:"memory" bson:"memory"`
		Agents      map[AgentCode]map[string]any  `json:"agents" bson:"agents"`
		Activities  map[ActivityID]*ActivityState `json:"activities" bson:"activities"`
	}
)

const (
	// PersistNone keeps no state beyond the live session.
	PersistNone PersistenceStrategy = "none"
	// PersistClient forwards every update to the client, which owns the
	// persisted copy.
	PersistClient PersistenceStrategy = "client"
	// PersistServer writes every update to the durable store.
	PersistServer PersistenceStrategy = "server"
	// PersistBoth writes to the store and forwards to the client.
	PersistBoth PersistenceStrategy = "both"

	// SourceUser marks user-authored messages.
	SourceUser MessageSource = "user"
	// SourceAssistant marks assistant-authored messages.
	SourceAssistant MessageSource = "assistant"

	// KindSpeak is plain conversational text.
	KindSpeak ContentKind = "speak"
	// KindThink is a surfaced reasoning step.
	KindThink ContentKind = "think"
	// KindSystem is an error or warning to the user.
	KindSystem ContentKind = "system"
	// KindProcess reports background process progress.
	KindProcess ContentKind = "process"
	// KindActivity references an interactive activity.
	KindActivity ContentKind = "activity"

	// SeverityInfo through SeverityCritical qualify system messages.
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Server reports whether the strategy includes the durable store.
func (p PersistenceStrategy) Server() bool { return p == PersistServer || p == PersistBoth }

// Client reports whether the strategy includes the live client.
func (p PersistenceStrategy) Client() bool { return p == PersistClient || p == PersistBoth }

// Valid reports whether p is one of the four defined strategies.
func (p PersistenceStrategy) Valid() bool {
	switch p {
	case PersistNone, PersistClient, PersistServer, PersistBoth:
		return true
	}
	return false
}

// NewState returns an empty conversation state.
func NewState() *State {
	return &State{
		Agents:     make(map[AgentCode]map[string]any),
		Activities: make(map[ActivityID]*ActivityState),
	}
}

// NewUserMessage builds a user chat message with the given text.
func NewUserMessage(text string) ChatMessage {
	return ChatMessage{
		ID:       uuid.NewString(),
		Source:   SourceUser,
		Content:  SpeakContent(text),
		Finished: true,
	}
}

// NewAssistantMessage builds an assistant chat message with the given
// content.
func NewAssistantMessage(agent AgentCode, content MessageContent) ChatMessage {
	return ChatMessage{
		ID:       uuid.NewString(),
		Source:   SourceAssistant,
		Agent:    agent,
		Content:  content,
		Finished: true,
	}
}

// SpeakContent builds plain conversational content.
func SpeakContent(text string) MessageContent {
	return MessageContent{Kind: KindSpeak, Speak: text}
}

// ThinkContent builds a surfaced reasoning step.
func ThinkContent(text string) MessageContent {
	return MessageContent{Kind: KindThink, Think: text}
}

// SystemContent builds a system message with the given severity.
func SystemContent(severity Severity, text string) MessageContent {
	return MessageContent{Kind: KindSystem, Severity: severity, Text: text}
}

// PlainText returns the conversational text of the content. Non-textual
// variants (process steps, activity references) yield the empty string.
func (c MessageContent) PlainText() string {
	switch c.Kind {
	case KindSpeak:
		return c.Speak
	case KindThink:
		return c.Think
	case KindSystem:
		return c.Text
	default:
		return ""
	}
}

// ActivityContent builds a message content referencing an activity.
func ActivityContent(activity *ActivityState) MessageContent {
	return MessageContent{
		Kind:       KindActivity,
		Agent:      activity.Agent,
		Activity:   activity.Activity,
		ActivityID: activity.ID,
		Title:      activity.Title,
	}
}
