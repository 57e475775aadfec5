// Package ledger defines the contract with the authoritative ledger service.
//
// The ledger is the external system of record for stakes, joins, and
// settlement. Every mutating call returns a tri-state result: Confirmed,
// Rejected, or Ambiguous. Ambiguous is not a failure: the call timed out or
// the connection dropped with no definitive answer, and only subsequent
// reconciliation polls can tell what actually happened. Forcing callers to
// branch on all three states is the point of the type.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
)

// ErrUserDeclined indicates the signer refused to authorize a stake transfer.
var ErrUserDeclined = errors.New("signing declined by user")

// ResultState is the tri-state outcome of a mutating ledger call.
type ResultState int

const (
	// ResultUnspecified represents an invalid result state.
	ResultUnspecified ResultState = iota
	// ResultConfirmed indicates the ledger definitively accepted the call.
	ResultConfirmed
	// ResultRejected indicates the ledger explicitly refused the call.
	// Surfaced to the caller immediately; never retried.
	ResultRejected
	// ResultAmbiguous indicates the call produced no definitive answer.
	// Never treated as failure; resolved only by reconciliation polls.
	ResultAmbiguous
)

// String returns the canonical label for the result state.
func (s ResultState) String() string {
	switch s {
	case ResultConfirmed:
		return "confirmed"
	case ResultRejected:
		return "rejected"
	case ResultAmbiguous:
		return "ambiguous"
	default:
		return "unspecified"
	}
}

// TransactionIntent describes a stake transfer awaiting authorization.
type TransactionIntent struct {
	Actor       string
	WagerAmount int64
	Side        session.Side
	// SessionHandle is empty for creation intents and set for joins.
	SessionHandle string
}

// Signer authorizes stake transfers. Signing is opaque to this core and
// assumed synchronous; a declined signature surfaces as ErrUserDeclined.
type Signer interface {
	Sign(ctx context.Context, intent TransactionIntent) (string, error)
}

// CreateIntent asks the ledger to open a session and escrow the creator's stake.
type CreateIntent struct {
	Creator     string
	WagerAmount int64
	Side        session.Side
	Signature   string
}

// CreateResult reports the tri-state outcome of CreateAndStake. Handle is the
// ledger-assigned session identity, set only when State is ResultConfirmed.
type CreateResult struct {
	State  ResultState
	Handle string
	Reason string
}

// JoinIntent asks the ledger to escrow a second stake into an open session.
type JoinIntent struct {
	SessionHandle string
	Joiner        string
	Side          session.Side
	Signature     string
}

// JoinResult reports the tri-state outcome of Join.
type JoinResult struct {
	State  ResultState
	Reason string
}

// Record is one ledger-known session as reported by a poll query.
//
// Settled may be absent even for settled sessions; the reconcile engine
// applies an age heuristic when the explicit signal is missing.
type Record struct {
	LedgerID     string
	Creator      string
	Opponent     string
	WagerAmount  int64
	CreatorSide  session.Side
	OpponentSide session.Side
	// Draw is the opaque settlement draw value, empty until available.
	Draw      string
	Settled   bool
	CreatedAt time.Time
}

// Filter narrows a session query. The platform only runs two-party sessions,
// so Capacity is fixed by callers.
type Filter struct {
	Capacity    int
	Participant string
}

// Client is the asynchronous boundary to the ledger service.
//
// Mutating calls must map transport timeouts to ResultAmbiguous rather than
// returning an error; errors are reserved for context cancellation and
// programmer mistakes. Query errors leave registry state untouched.
type Client interface {
	CreateAndStake(ctx context.Context, intent CreateIntent) (CreateResult, error)
	Join(ctx context.Context, intent JoinIntent) (JoinResult, error)
	QuerySessions(ctx context.Context, filter Filter) ([]Record, error)
}
