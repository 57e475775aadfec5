package session

import "time"

// EventKind labels a lifecycle transition for subscribers.
type EventKind string

const (
	// EventKindConfirmed marks ledger confirmation of the creation stake.
	EventKindConfirmed EventKind = "session.confirmed"
	// EventKindJoined marks the second participant attaching.
	EventKindJoined EventKind = "session.joined"
	// EventKindResolving marks entry into the resolve phase.
	EventKindResolving EventKind = "session.resolving"
	// EventKindCompleted marks settlement with a winner.
	EventKindCompleted EventKind = "session.completed"
	// EventKindCancelled marks a local withdrawal before confirmation.
	EventKindCancelled EventKind = "session.cancelled"
	// EventKindFailed marks an unambiguous confirmation failure.
	EventKindFailed EventKind = "session.failed"
	// EventKindObserved marks an idempotent re-observation with no status change.
	EventKindObserved EventKind = "session.observed"
)

// Event records one transition of a session.
//
// Transitions never perform I/O themselves; events are how the registry's
// notification interface learns that a snapshot changed.
type Event struct {
	Kind      EventKind
	LocalKey  string
	LedgerKey string
	Status    Status
	At        time.Time
}
