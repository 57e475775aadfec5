package session

import (
	"errors"
	"testing"
	"time"
)

var testNow = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New("creator-1", 100, SideHeads, testNow)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func TestNewValidatesInput(t *testing.T) {
	if _, err := New("", 100, SideHeads, testNow); !errors.Is(err, ErrCreatorRequired) {
		t.Fatalf("err = %v, want ErrCreatorRequired", err)
	}
	if _, err := New("creator-1", 0, SideHeads, testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	if _, err := New("creator-1", -5, SideHeads, testNow); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	if _, err := New("creator-1", 100, SideUnspecified, testNow); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("err = %v, want ErrInvalidSide", err)
	}
}

func TestNewStartsPendingWithDerivedSides(t *testing.T) {
	s := newTestSession(t)

	if s.Status != StatusPending {
		t.Fatalf("status = %v, want pending", s.Status)
	}
	if s.LocalKey == "" {
		t.Fatal("expected local key")
	}
	if s.LedgerKey != "" {
		t.Fatal("expected no ledger key before confirmation")
	}
	if s.OpponentSide != SideTails {
		t.Fatalf("opponent side = %v, want tails", s.OpponentSide)
	}
	if s.Pool() != 100 {
		t.Fatalf("pool = %d, want 100", s.Pool())
	}
}

func TestConfirmCreatedAssignsLedgerKeyOnce(t *testing.T) {
	s := newTestSession(t)

	evt, err := s.ConfirmCreated("ledger-abc", testNow())
	if err != nil {
		t.Fatalf("confirm created: %v", err)
	}
	if evt.Kind != EventKindConfirmed {
		t.Fatalf("event kind = %v, want confirmed", evt.Kind)
	}
	if s.Status != StatusWaitingForOpponent {
		t.Fatalf("status = %v, want waiting_for_opponent", s.Status)
	}
	if s.Key() != "ledger-abc" {
		t.Fatalf("key = %q, want ledger key", s.Key())
	}

	// Re-observing the same ledger record is an idempotent merge.
	evt, err = s.ConfirmCreated("ledger-abc", testNow())
	if err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if evt.Kind != EventKindObserved {
		t.Fatalf("event kind = %v, want observed", evt.Kind)
	}

	if _, err := s.ConfirmCreated("ledger-other", testNow()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition for conflicting ledger key", err)
	}
}

func TestAttachOpponentRejectsSelfJoin(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.ConfirmCreated("ledger-abc", testNow()); err != nil {
		t.Fatalf("confirm created: %v", err)
	}

	if _, err := s.AttachOpponent("creator-1", testNow()); !errors.Is(err, ErrSelfJoin) {
		t.Fatalf("err = %v, want ErrSelfJoin", err)
	}
	if s.Status != StatusWaitingForOpponent {
		t.Fatalf("status changed on rejected self-join: %v", s.Status)
	}
}

func TestAttachOpponentDerivesComplementSide(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.ConfirmCreated("ledger-abc", testNow()); err != nil {
		t.Fatalf("confirm created: %v", err)
	}

	evt, err := s.AttachOpponent("opponent-1", testNow())
	if err != nil {
		t.Fatalf("attach opponent: %v", err)
	}
	if evt.Kind != EventKindJoined {
		t.Fatalf("event kind = %v, want joined", evt.Kind)
	}
	if s.Status != StatusReadyToResolve {
		t.Fatalf("status = %v, want ready_to_resolve", s.Status)
	}
	if s.OpponentSide != SideTails {
		t.Fatalf("opponent side = %v, want tails", s.OpponentSide)
	}
	if s.Pool() != 200 {
		t.Fatalf("pool = %d, want 200", s.Pool())
	}
}

func TestAttachOpponentRejectsSecondJoiner(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.ConfirmCreated("ledger-abc", testNow()); err != nil {
		t.Fatalf("confirm created: %v", err)
	}
	if _, err := s.AttachOpponent("opponent-1", testNow()); err != nil {
		t.Fatalf("attach opponent: %v", err)
	}

	// Same joiner re-observed is idempotent.
	evt, err := s.AttachOpponent("opponent-1", testNow())
	if err != nil {
		t.Fatalf("re-attach same opponent: %v", err)
	}
	if evt.Kind != EventKindObserved {
		t.Fatalf("event kind = %v, want observed", evt.Kind)
	}

	if _, err := s.AttachOpponent("opponent-2", testNow()); !errors.Is(err, ErrSessionFull) {
		t.Fatalf("err = %v, want ErrSessionFull", err)
	}
}

func TestCompleteAppliesOutcomeExactlyOnce(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.ConfirmCreated("ledger-abc", testNow()); err != nil {
		t.Fatalf("confirm created: %v", err)
	}
	if _, err := s.AttachOpponent("opponent-1", testNow()); err != nil {
		t.Fatalf("attach opponent: %v", err)
	}
	if _, err := s.BeginResolve(testNow()); err != nil {
		t.Fatalf("begin resolve: %v", err)
	}

	evt, err := s.Complete(SideHeads, "creator-1", 190, testNow())
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if evt.Kind != EventKindCompleted {
		t.Fatalf("event kind = %v, want completed", evt.Kind)
	}
	if s.Status != StatusCompleted {
		t.Fatalf("status = %v, want completed", s.Status)
	}
	if s.Winner != "creator-1" || s.Payout != 190 || s.OutcomeSide != SideHeads {
		t.Fatalf("outcome = (%q, %d, %v), want (creator-1, 190, heads)", s.Winner, s.Payout, s.OutcomeSide)
	}

	if _, err := s.Complete(SideTails, "opponent-1", 190, testNow()); !errors.Is(err, ErrOutcomeApplied) {
		t.Fatalf("err = %v, want ErrOutcomeApplied", err)
	}
}

func TestCompleteRejectsOverPayment(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.ConfirmCreated("ledger-abc", testNow()); err != nil {
		t.Fatalf("confirm created: %v", err)
	}
	if _, err := s.AttachOpponent("opponent-1", testNow()); err != nil {
		t.Fatalf("attach opponent: %v", err)
	}
	if _, err := s.BeginResolve(testNow()); err != nil {
		t.Fatalf("begin resolve: %v", err)
	}

	if _, err := s.Complete(SideHeads, "creator-1", 201, testNow()); !errors.Is(err, ErrPayoutExceedsPool) {
		t.Fatalf("err = %v, want ErrPayoutExceedsPool", err)
	}
}

func TestCancelOnlyFromPending(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Cancel(testNow()); err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if s.Status != StatusCancelled {
		t.Fatalf("status = %v, want cancelled", s.Status)
	}

	confirmed := newTestSession(t)
	if _, err := confirmed.ConfirmCreated("ledger-abc", testNow()); err != nil {
		t.Fatalf("confirm created: %v", err)
	}
	if _, err := confirmed.Cancel(testNow()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition after confirmation", err)
	}
}

func TestFailFromAnyNonTerminal(t *testing.T) {
	for _, status := range []Status{StatusPending, StatusWaitingForOpponent, StatusReadyToResolve, StatusResolving} {
		s := newTestSession(t)
		s.Status = status
		if _, err := s.Fail(testNow()); err != nil {
			t.Fatalf("fail from %v: %v", status, err)
		}
		if s.Status != StatusFailed {
			t.Fatalf("status = %v, want failed", s.Status)
		}
	}

	done := newTestSession(t)
	done.Status = StatusCompleted
	if _, err := done.Fail(testNow()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition from terminal", err)
	}
}

func TestStatusTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusWaitingForOpponent, true},
		{StatusPending, StatusReadyToResolve, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusWaitingForOpponent, StatusReadyToResolve, true},
		{StatusWaitingForOpponent, StatusCancelled, false},
		{StatusReadyToResolve, StatusResolving, true},
		{StatusResolving, StatusCompleted, true},
		{StatusResolving, StatusFailed, true},
		{StatusCompleted, StatusFailed, false},
		{StatusCancelled, StatusWaitingForOpponent, false},
		{StatusFailed, StatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("CanTransition(%v, %v) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestSnapshotIsValueCopy(t *testing.T) {
	s := newTestSession(t)
	snap := s.Snapshot()
	if snap.Pool != 100 {
		t.Fatalf("snapshot pool = %d, want 100", snap.Pool)
	}

	s.WagerAmount = 500
	if snap.WagerAmount != 100 {
		t.Fatal("snapshot mutated by later session change")
	}
}

func TestSnapshotKeyPrefersLedgerIdentity(t *testing.T) {
	s := newTestSession(t)
	snap := s.Snapshot()
	if snap.Key() != s.LocalKey {
		t.Fatalf("key = %q, want local key %q before confirmation", snap.Key(), s.LocalKey)
	}

	if _, err := s.ConfirmCreated("ledger-1", time.Now()); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	snap = s.Snapshot()
	if snap.Key() != "ledger-1" {
		t.Fatalf("key = %q, want ledger key once assigned", snap.Key())
	}
	if snap.Key() != s.Key() {
		t.Fatalf("snapshot key %q diverges from session key %q", snap.Key(), s.Key())
	}
}

func TestSideOppositeAndParse(t *testing.T) {
	if SideHeads.Opposite() != SideTails || SideTails.Opposite() != SideHeads {
		t.Fatal("expected heads and tails to be complements")
	}
	if SideUnspecified.Opposite() != SideUnspecified {
		t.Fatal("expected unspecified to have no complement")
	}

	side, err := ParseSide(" HEADS ")
	if err != nil || side != SideHeads {
		t.Fatalf("parse heads = (%v, %v)", side, err)
	}
	if _, err := ParseSide("edge"); !errors.Is(err, ErrInvalidSide) {
		t.Fatalf("err = %v, want ErrInvalidSide", err)
	}
}
