package assistant

import (
	"fmt"

	"github.com/google/uuid"

	"goa.design/converse/runtime/assistant/statepath"
)

type (
	// ActivityStatus is the lifecycle state of an activity instance. All
	// activities share the same lifecycle regardless of their domain.
	ActivityStatus string

	// ActivityState is one interactive activity instance: a long-lived
	// interaction (a quiz, a form, a selection) that survives agent
	// hand-overs and conversation restores. It implements
	// statepath.Container so activity updates can address its fields and
	// the domain payload through the same path grammar.
	ActivityState struct {
		// ID identifies the instance across client, server and store.
		ID ActivityID `json:"id" bson:"id"`
		// Agent is the owning agent. Only the owner may mutate the
		// activity.
		Agent AgentCode `json:"agent" bson:"agent"`
		// Activity is the activity type within the owning agent.
		Activity ActivityCode `json:"activity" bson:"activity"`
		// Title is the display title.
		Title string `json:"title" bson:"title"`
		// Status is the current lifecycle state.
		Status ActivityStatus `json:"status" bson:"status"`
		// Data is the domain payload, mutated through paths rooted at
		// "data".
		Data statepath.Document `json:"data" bson:"data"`
	}
)

const (
	// StatusCreated: instantiated, never started.
	StatusCreated ActivityStatus = "created"
	// StatusRunning: the activity the conversation is currently engaged
	// in. At most one activity is running at a time.
	StatusRunning ActivityStatus = "running"
	// StatusPaused: interrupted, may be resumed later.
	StatusPaused ActivityStatus = "paused"
	// StatusFinished: completed normally. Terminal.
	StatusFinished ActivityStatus = "finished"
	// StatusAborted: terminated without completing. Terminal.
	StatusAborted ActivityStatus = "aborted"
)

// Terminal reports whether the status admits no further transitions.
func (s ActivityStatus) Terminal() bool { return s == StatusFinished || s == StatusAborted }

// NewActivity builds a fresh activity instance in the created state with a
// generated identifier.
func NewActivity(agent AgentCode, activity ActivityCode, title string, data statepath.Document) *ActivityState {
	if data == nil {
		data = statepath.Document{}
	}
	return &ActivityState{
		ID:       ActivityID(uuid.NewString()),
		Agent:    agent,
		Activity: activity,
		Title:    title,
		Status:   StatusCreated,
		Data:     data,
	}
}

// GetKey implements statepath.Container.
func (a *ActivityState) GetKey(key string) (any, bool) {
	switch key {
	case "id":
		return string(a.ID), true
	case "agent":
		return string(a.Agent), true
	case "activity":
		return string(a.Activity), true
	case "title":
		return a.Title, true
	case "status":
		return string(a.Status), true
	case "data":
		return a.Data, true
	}
	return nil, false
}

// SetKey implements statepath.Container. Identity fields are writable so
// restored documents can be replayed field by field, but everyday updates
// only touch title, status and data.
func (a *ActivityState) SetKey(key string, value any) error {
	switch key {
	case "id":
		a.ID = ActivityID(stringValue(value))
	case "agent":
		a.Agent = AgentCode(stringValue(value))
	case "activity":
		a.Activity = ActivityCode(stringValue(value))
	case "title":
		a.Title = stringValue(value)
	case "status":
		a.Status = ActivityStatus(stringValue(value))
	case "data":
		doc, ok := value.(statepath.Document)
		if !ok {
			return fmt.Errorf("%w: activity data must be a document", statepath.ErrNotFound)
		}
		a.Data = doc
	default:
		return statepath.ErrNotFound
	}
	return nil
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
