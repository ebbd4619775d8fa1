package assistant

type (
	// Origin identifies which side of the conversation initiated an
	// activity update. Agent-origin updates are forwarded to the client so
	// it can render the change; user-origin updates arrived from the client
	// and must not be echoed back.
	Origin string

	// StateUpdate is a single path mutation against a state document. The
	// empty path is reserved for whole-document replacement and only valid
	// where the receiving dispatcher says so.
	StateUpdate struct {
		Path  string `json:"path" bson:"path"`
		Value any    `json:"value" bson:"value"`
	}

	// AgentUpdate is a path mutation against one agent's state document.
	AgentUpdate struct {
		StateUpdate `bson:",inline"`
		Agent       AgentCode `json:"agent" bson:"agent"`
	}

	// ActivityUpdate is a path mutation against one activity instance. An
	// empty path replaces the whole activity and is how new activities are
	// inserted into the table.
	ActivityUpdate struct {
		StateUpdate `bson:",inline"`
		ID          ActivityID `json:"id" bson:"id"`
		Origin      Origin     `json:"origin" bson:"origin"`
	}

	// MemoryUpdate carries newly appended chat messages together with the
	// compaction parameters the persistence target needs to apply the same
	// bounded-append the in-memory model performed.
	MemoryUpdate struct {
		// ChatTitle is the current conversation title, set opportunistically
		// once a title has been generated.
		ChatTitle string `json:"chat_title" bson:"chat_title"`
		// Messages are the messages appended since the last update.
		Messages []ChatMessage `json:"messages" bson:"messages"`
		// KeepCount bounds the verbatim message window.
		KeepCount int `json:"keep_count" bson:"keep_count"`
		// Previous is the current fading summary, replacing the stored one.
		Previous string `json:"previous" bson:"previous"`
	}
)

const (
	// OriginAgent marks updates produced by server-side agent logic.
	OriginAgent Origin = "agent"
	// OriginUser marks updates received from the client on the user's
	// behalf.
	OriginUser Origin = "user"
)
