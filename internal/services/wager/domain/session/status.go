package session

// Status describes the lifecycle of a wagering session.
type Status int

const (
	// StatusUnspecified represents an invalid status value.
	StatusUnspecified Status = iota
	// StatusPending indicates the session is local-only with the ledger
	// creation transaction still in flight.
	StatusPending
	// StatusWaitingForOpponent indicates the creator's stake is confirmed and
	// no second participant has joined yet.
	StatusWaitingForOpponent
	// StatusReadyToResolve indicates both stakes are confirmed.
	StatusReadyToResolve
	// StatusResolving indicates the outcome draw is being applied.
	StatusResolving
	// StatusCompleted indicates the session settled with exactly one winner.
	StatusCompleted
	// StatusCancelled indicates an explicit withdrawal before any ledger
	// confirmation.
	StatusCancelled
	// StatusFailed indicates an unambiguous ledger confirmation error.
	StatusFailed
)

// String returns the canonical label for the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusWaitingForOpponent:
		return "waiting_for_opponent"
	case StatusReadyToResolve:
		return "ready_to_resolve"
	case StatusResolving:
		return "resolving"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unspecified"
	}
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// validTransitions is the forward edge set of the session lifecycle.
// Cancelled is only reachable from Pending; Failed is reachable from any
// non-terminal status and is handled in CanTransition directly.
var validTransitions = map[Status][]Status{
	StatusPending:            {StatusWaitingForOpponent, StatusReadyToResolve, StatusCancelled},
	StatusWaitingForOpponent: {StatusReadyToResolve},
	StatusReadyToResolve:     {StatusResolving},
	StatusResolving:          {StatusCompleted},
}

// CanTransition reports whether moving from s to next is a legal lifecycle step.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
