package session

import (
	"strings"
	"time"

	apperrors "github.com/halvedgames/coinduel/internal/platform/errors"
	"github.com/halvedgames/coinduel/internal/platform/id"
)

var (
	// ErrInvalidAmount indicates a non-positive wager amount.
	ErrInvalidAmount = apperrors.New(apperrors.CodeWagerAmountInvalid, "wager amount must be positive")
	// ErrCreatorRequired indicates a missing creator identifier.
	ErrCreatorRequired = apperrors.New(apperrors.CodeWagerCreatorRequired, "creator is required")
	// ErrSelfJoin indicates a participant tried to join their own session.
	ErrSelfJoin = apperrors.New(apperrors.CodeWagerSelfJoin, "participant cannot join their own session")
	// ErrSessionFull indicates the session already has a second participant.
	ErrSessionFull = apperrors.New(apperrors.CodeWagerSessionFull, "session already has an opponent")
	// ErrInvalidTransition indicates a disallowed lifecycle step.
	ErrInvalidTransition = apperrors.New(apperrors.CodeWagerInvalidTransition, "session status transition is not allowed")
	// ErrOutcomeApplied indicates outcome fields were already set once.
	ErrOutcomeApplied = apperrors.New(apperrors.CodeWagerOutcomeApplied, "session outcome is already applied")
	// ErrPayoutExceedsPool indicates an over-payment attempt.
	ErrPayoutExceedsPool = apperrors.New(apperrors.CodeWagerPayoutExceedsPool, "payout exceeds session pool")
)

// Session is one two-party wager from creation to settlement.
//
// LocalKey is assigned at local creation time and stays stable for the
// lifetime of any optimistic reference. LedgerKey is assigned by the ledger
// once the creation transaction is observed and, once set, is the permanent
// identity of the session.
type Session struct {
	LocalKey       string
	LedgerKey      string
	WagerAmount    int64
	Creator        string
	Opponent       string
	CreatorSide    Side
	OpponentSide   Side
	Status         Status
	OutcomeSide    Side
	Winner         string
	Payout         int64
	CreatedAt      time.Time
	LastObservedAt time.Time
}

// New creates a pending local-only session with a generated local key.
func New(creator string, wagerAmount int64, side Side, now func() time.Time) (*Session, error) {
	if now == nil {
		now = time.Now
	}
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return nil, ErrCreatorRequired
	}
	if wagerAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !side.Valid() {
		return nil, ErrInvalidSide
	}

	localKey, err := id.NewID()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "generate session local key", err)
	}

	createdAt := now().UTC()
	return &Session{
		LocalKey:       localKey,
		WagerAmount:    wagerAmount,
		Creator:        creator,
		CreatorSide:    side,
		OpponentSide:   side.Opposite(),
		Status:         StatusPending,
		CreatedAt:      createdAt,
		LastObservedAt: createdAt,
	}, nil
}

// Participants counts staked participants.
func (s *Session) Participants() int {
	if s.Opponent != "" {
		return 2
	}
	return 1
}

// Pool is the total staked amount. It is derived, never stored, so it cannot
// drift from the symmetric-wager invariant.
func (s *Session) Pool() int64 {
	return s.WagerAmount * int64(s.Participants())
}

// Key returns the canonical registry identity: the ledger key once assigned,
// the local key before that.
func (s *Session) Key() string {
	if s.LedgerKey != "" {
		return s.LedgerKey
	}
	return s.LocalKey
}

// ConfirmCreated records the ledger-assigned identity and advances the
// session out of the optimistic pending phase.
func (s *Session) ConfirmCreated(ledgerKey string, at time.Time) (Event, error) {
	ledgerKey = strings.TrimSpace(ledgerKey)
	if ledgerKey == "" {
		return Event{}, apperrors.New(apperrors.CodeUnknown, "ledger key is required")
	}
	if s.LedgerKey != "" {
		if s.LedgerKey != ledgerKey {
			return Event{}, ErrInvalidTransition
		}
		// Re-observing the same confirmation is a no-op merge.
		return s.observe(EventKindObserved, at), nil
	}
	if !s.Status.CanTransition(StatusWaitingForOpponent) {
		return Event{}, ErrInvalidTransition
	}
	s.LedgerKey = ledgerKey
	s.Status = StatusWaitingForOpponent
	return s.observe(EventKindConfirmed, at), nil
}

// AttachOpponent records the second participant. Self-join is an invariant
// violation, not a UI restriction, and double-join is rejected so a human
// joiner is never displaced.
func (s *Session) AttachOpponent(opponent string, at time.Time) (Event, error) {
	opponent = strings.TrimSpace(opponent)
	if opponent == "" {
		return Event{}, ErrCreatorRequired
	}
	if opponent == s.Creator {
		return Event{}, ErrSelfJoin
	}
	if s.Opponent != "" {
		if s.Opponent == opponent {
			return s.observe(EventKindObserved, at), nil
		}
		return Event{}, ErrSessionFull
	}
	if !s.Status.CanTransition(StatusReadyToResolve) {
		return Event{}, ErrInvalidTransition
	}
	s.Opponent = opponent
	s.OpponentSide = s.CreatorSide.Opposite()
	s.Status = StatusReadyToResolve
	return s.observe(EventKindJoined, at), nil
}

// BeginResolve enters the resolving phase. Once entered it cannot be
// externally cancelled; Complete or Fail are the only exits.
func (s *Session) BeginResolve(at time.Time) (Event, error) {
	if !s.Status.CanTransition(StatusResolving) {
		return Event{}, ErrInvalidTransition
	}
	s.Status = StatusResolving
	return s.observe(EventKindResolving, at), nil
}

// Complete applies the outcome exactly once, atomically with the transition
// into the completed status.
func (s *Session) Complete(outcomeSide Side, winner string, payout int64, at time.Time) (Event, error) {
	if s.Status == StatusCompleted || s.Winner != "" {
		return Event{}, ErrOutcomeApplied
	}
	if !s.Status.CanTransition(StatusCompleted) {
		return Event{}, ErrInvalidTransition
	}
	if !outcomeSide.Valid() {
		return Event{}, ErrInvalidSide
	}
	winner = strings.TrimSpace(winner)
	if winner != s.Creator && winner != s.Opponent {
		return Event{}, ErrInvalidTransition
	}
	if payout < 0 || payout > s.Pool() {
		return Event{}, ErrPayoutExceedsPool
	}
	s.OutcomeSide = outcomeSide
	s.Winner = winner
	s.Payout = payout
	s.Status = StatusCompleted
	return s.observe(EventKindCompleted, at), nil
}

// Cancel withdraws a local-only pending session. The outstanding ledger call
// cannot be retracted here; reconciliation re-admits the session if the call
// later lands.
func (s *Session) Cancel(at time.Time) (Event, error) {
	if !s.Status.CanTransition(StatusCancelled) {
		return Event{}, ErrInvalidTransition
	}
	s.Status = StatusCancelled
	return s.observe(EventKindCancelled, at), nil
}

// Fail moves a non-terminal session into the failed status.
func (s *Session) Fail(at time.Time) (Event, error) {
	if !s.Status.CanTransition(StatusFailed) {
		return Event{}, ErrInvalidTransition
	}
	s.Status = StatusFailed
	return s.observe(EventKindFailed, at), nil
}

func (s *Session) observe(kind EventKind, at time.Time) Event {
	if at.IsZero() {
		at = time.Now()
	}
	s.LastObservedAt = at.UTC()
	return Event{
		Kind:      kind,
		LocalKey:  s.LocalKey,
		LedgerKey: s.LedgerKey,
		Status:    s.Status,
		At:        s.LastObservedAt,
	}
}

// Snapshot is a value copy of a session handed to readers outside the
// mutation boundary.
type Snapshot struct {
	LocalKey       string
	LedgerKey      string
	WagerAmount    int64
	Pool           int64
	Creator        string
	Opponent       string
	CreatorSide    Side
	OpponentSide   Side
	Status         Status
	OutcomeSide    Side
	Winner         string
	Payout         int64
	CreatedAt      time.Time
	LastObservedAt time.Time
}

// Key returns the canonical registry identity captured by the snapshot: the
// ledger key once assigned, the local key before that.
func (s Snapshot) Key() string {
	if s.LedgerKey != "" {
		return s.LedgerKey
	}
	return s.LocalKey
}

// Snapshot copies the current session state.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		LocalKey:       s.LocalKey,
		LedgerKey:      s.LedgerKey,
		WagerAmount:    s.WagerAmount,
		Pool:           s.Pool(),
		Creator:        s.Creator,
		Opponent:       s.Opponent,
		CreatorSide:    s.CreatorSide,
		OpponentSide:   s.OpponentSide,
		Status:         s.Status,
		OutcomeSide:    s.OutcomeSide,
		Winner:         s.Winner,
		Payout:         s.Payout,
		CreatedAt:      s.CreatedAt,
		LastObservedAt: s.LastObservedAt,
	}
}
