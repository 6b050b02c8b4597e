// Package events carries the domain events produced by the sync engine and a
// small in-process bus for delivering them to observers. The bus is the only
// channel through which the UI layer learns about sync outcomes.
package events

// Direction describes which way records moved during a cycle.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

// Event is implemented by every domain event published on the bus.
type Event interface {
	eventName() string
}

// SyncCompleted is published after a fully successful sync cycle.
type SyncCompleted struct {
	// Entities lists the entity types covered by the cycle.
	Entities []string

	Direction Direction

	// ChangesCount is the total number of records moved in either direction.
	ChangesCount int

	// Timestamp is the server-acknowledged completion time in ms since epoch.
	Timestamp int64
}

func (SyncCompleted) eventName() string { return "sync.completed" }

// SyncFailed is published when a sync cycle fails, entirely or partially.
type SyncFailed struct {
	Error     string
	Retryable bool
	Timestamp int64
}

func (SyncFailed) eventName() string { return "sync.failed" }
