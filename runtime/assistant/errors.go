package assistant

import "errors"

var (
	// ErrChatNotFound is returned by stores when no chat exists for the
	// requested key.
	ErrChatNotFound = errors.New("chat not found")

	// ErrUnknownAgent indicates an update or hand-over referenced an agent
	// code absent from the registry.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrUnknownActivity indicates an update referenced an activity
	// instance absent from the activity table.
	ErrUnknownActivity = errors.New("unknown activity")

	// ErrNoCurrentActivity is returned when an agent mutates activity
	// state while no activity is current.
	ErrNoCurrentActivity = errors.New("no current activity")

	// ErrActivityOwnership is returned when an agent mutates an activity
	// owned by another agent.
	ErrActivityOwnership = errors.New("activity owned by another agent")
)
