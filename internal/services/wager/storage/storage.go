// Package storage defines persistence contracts for settled wager sessions.
//
// The live registry only retains sessions for a bounded window; history is
// handed to this collaborator once a session completes. Persistence failures
// never roll back an already-settled session.
package storage

import (
	"context"
	"time"

	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
)

// CompletedSessionRecord captures one settled session for history queries.
type CompletedSessionRecord struct {
	LedgerKey   string
	LocalKey    string
	Creator     string
	Opponent    string
	WagerAmount int64
	Pool        int64
	CreatorSide session.Side
	OutcomeSide session.Side
	Winner      string
	Payout      int64
	CreatedAt   time.Time
	CompletedAt time.Time
}

// CompletedSessionStore persists settled sessions.
type CompletedSessionStore interface {
	RecordCompletedSession(ctx context.Context, record CompletedSessionRecord) error
	ListRecentCompleted(ctx context.Context, limit int) ([]CompletedSessionRecord, error)
}
