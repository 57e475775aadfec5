package registry

import (
	"errors"
	"testing"
	"time"

	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
)

var testNow = func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) }

func newPending(t *testing.T, creator string) *session.Session {
	t.Helper()
	sess, err := session.New(creator, 100, session.SideHeads, testNow)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return sess
}

func TestInsertLocalAndGetByLocalKey(t *testing.T) {
	r := New()
	sess := newPending(t, "creator-1")
	r.InsertLocal(sess)

	snap, ok := r.Get(sess.LocalKey)
	if !ok {
		t.Fatal("expected session by local key")
	}
	if snap.Status != session.StatusPending {
		t.Fatalf("status = %v, want pending", snap.Status)
	}
}

func TestBindLedgerKeyResolvesBothIdentities(t *testing.T) {
	r := New()
	sess := newPending(t, "creator-1")
	r.InsertLocal(sess)

	if _, err := r.Update(sess.LocalKey, func(s *session.Session) (session.Event, error) {
		return s.ConfirmCreated("ledger-abc", testNow())
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := r.BindLedgerKey(sess.LocalKey, "ledger-abc"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	byLocal, ok := r.Get(sess.LocalKey)
	if !ok {
		t.Fatal("expected session by local key after bind")
	}
	byLedger, ok := r.Get("ledger-abc")
	if !ok {
		t.Fatal("expected session by ledger key after bind")
	}
	if byLocal.LedgerKey != byLedger.LedgerKey || byLocal.LocalKey != byLedger.LocalKey {
		t.Fatal("expected both keys to resolve to the same session")
	}

	// Binding again for the same entry is idempotent.
	if err := r.BindLedgerKey(sess.LocalKey, "ledger-abc"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
}

func TestBindLedgerKeyRejectsDuplicate(t *testing.T) {
	r := New()
	first := newPending(t, "creator-1")
	second := newPending(t, "creator-2")
	r.InsertLocal(first)
	r.InsertLocal(second)

	if err := r.BindLedgerKey(first.LocalKey, "ledger-abc"); err != nil {
		t.Fatalf("bind first: %v", err)
	}
	if err := r.BindLedgerKey(second.LocalKey, "ledger-abc"); !errors.Is(err, ErrDuplicateLedgerKey) {
		t.Fatalf("err = %v, want ErrDuplicateLedgerKey", err)
	}
}

func TestInsertFromLedgerRejectsDuplicateLedgerKey(t *testing.T) {
	r := New()
	sess := newPending(t, "creator-1")
	sess.LedgerKey = "ledger-abc"
	if err := r.InsertFromLedger(sess); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := newPending(t, "creator-2")
	dup.LedgerKey = "ledger-abc"
	if err := r.InsertFromLedger(dup); !errors.Is(err, ErrDuplicateLedgerKey) {
		t.Fatalf("err = %v, want ErrDuplicateLedgerKey", err)
	}

	if got := len(r.ListActive()); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}
}

func TestUpdateNotFound(t *testing.T) {
	r := New()
	if _, err := r.Update("missing", func(s *session.Session) (session.Event, error) {
		return session.Event{}, nil
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSubscribeDeliversSnapshotsOnTransitions(t *testing.T) {
	r := New()
	sess := newPending(t, "creator-1")
	r.InsertLocal(sess)

	var got []session.Snapshot
	if err := r.Subscribe(sess.LocalKey, func(snap session.Snapshot) {
		got = append(got, snap)
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := r.Update(sess.LocalKey, func(s *session.Session) (session.Event, error) {
		return s.ConfirmCreated("ledger-abc", testNow())
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(got))
	}
	if got[0].Status != session.StatusWaitingForOpponent {
		t.Fatalf("snapshot status = %v, want waiting_for_opponent", got[0].Status)
	}

	// Idempotent re-observation does not notify.
	if _, err := r.Update(sess.LocalKey, func(s *session.Session) (session.Event, error) {
		return s.ConfirmCreated("ledger-abc", testNow())
	}); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("deliveries after re-observation = %d, want 1", len(got))
	}
}

func TestMissCounting(t *testing.T) {
	r := New()
	sess := newPending(t, "creator-1")
	r.InsertLocal(sess)

	if got := r.MarkMissed(sess.LocalKey); got != 1 {
		t.Fatalf("missed = %d, want 1", got)
	}
	if got := r.MarkMissed(sess.LocalKey); got != 2 {
		t.Fatalf("missed = %d, want 2", got)
	}
	r.MarkSeen(sess.LocalKey)
	if got := r.MarkMissed(sess.LocalKey); got != 1 {
		t.Fatalf("missed after seen = %d, want 1", got)
	}
}

func TestListActiveDeduplicatesDualKeyedEntries(t *testing.T) {
	r := New()
	sess := newPending(t, "creator-1")
	r.InsertLocal(sess)
	if _, err := r.Update(sess.LocalKey, func(s *session.Session) (session.Event, error) {
		return s.ConfirmCreated("ledger-abc", testNow())
	}); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := r.BindLedgerKey(sess.LocalKey, "ledger-abc"); err != nil {
		t.Fatalf("bind: %v", err)
	}

	if got := len(r.ListActive()); got != 1 {
		t.Fatalf("active sessions = %d, want 1", got)
	}
}

func TestPruneDropsOldTerminalSessions(t *testing.T) {
	r := New()
	done := newPending(t, "creator-1")
	done.Status = session.StatusFailed
	done.LastObservedAt = testNow().Add(-2 * time.Hour)
	r.InsertLocal(done)

	live := newPending(t, "creator-2")
	r.InsertLocal(live)

	if got := r.Prune(time.Hour, testNow()); got != 1 {
		t.Fatalf("pruned = %d, want 1", got)
	}
	if _, ok := r.Get(done.LocalKey); ok {
		t.Fatal("expected terminal session to be pruned")
	}
	if _, ok := r.Get(live.LocalKey); !ok {
		t.Fatal("expected live session to survive pruning")
	}
}
