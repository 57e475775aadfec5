// Package registry holds the process-wide collection of known wager sessions.
//
// Entries cover both optimistic local-only sessions and ledger-confirmed
// ones. The reconcile engine and the request paths both mutate entries, so
// every write goes through a per-entry lock; the registry-level lock only
// guards map shape. Readers always get value snapshots, never references into
// mutable state.
package registry

import (
	"sort"
	"sync"
	"time"

	apperrors "github.com/halvedgames/coinduel/internal/platform/errors"
	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
)

// ErrNotFound indicates no entry matches the requested key.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "session not found")

// ErrDuplicateLedgerKey indicates an attempt to index two entries under one
// ledger identity. Deduplication is total: this never succeeds.
var ErrDuplicateLedgerKey = apperrors.New(apperrors.CodeWagerInvalidTransition, "ledger key already bound to another session")

// Subscriber receives a snapshot after every transition of one session.
type Subscriber func(session.Snapshot)

type entry struct {
	mu          sync.Mutex
	sess        *session.Session
	subscribers []Subscriber
	missedPolls int
}

// Registry is the shared session collection.
type Registry struct {
	mu       sync.RWMutex
	byLocal  map[string]*entry
	byLedger map[string]*entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		byLocal:  map[string]*entry{},
		byLedger: map[string]*entry{},
	}
}

// resolve finds the entry for a local or ledger key.
func (r *Registry) resolve(key string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.byLedger[key]; ok {
		return e, true
	}
	if e, ok := r.byLocal[key]; ok {
		return e, true
	}
	return nil, false
}

// InsertLocal adds an optimistic local-only session.
func (r *Registry) InsertLocal(sess *session.Session) {
	e := &entry{sess: sess}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLocal[sess.LocalKey] = e
	if sess.LedgerKey != "" {
		r.byLedger[sess.LedgerKey] = e
	}
}

// InsertFromLedger adds a session discovered on the ledger with no local
// counterpart (created by another actor, or local state lost to a restart).
func (r *Registry) InsertFromLedger(sess *session.Session) error {
	if sess.LedgerKey == "" {
		return apperrors.New(apperrors.CodeUnknown, "ledger key is required")
	}
	e := &entry{sess: sess}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byLedger[sess.LedgerKey]; exists {
		return ErrDuplicateLedgerKey
	}
	r.byLedger[sess.LedgerKey] = e
	if sess.LocalKey != "" {
		r.byLocal[sess.LocalKey] = e
	}
	return nil
}

// BindLedgerKey links a confirmed local entry into the ledger-key index so
// subsequent reconciliation resolves it canonically. Binding is idempotent
// for the same entry and rejected for a different one.
func (r *Registry) BindLedgerKey(localKey, ledgerKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byLocal[localKey]
	if !ok {
		return ErrNotFound
	}
	if bound, exists := r.byLedger[ledgerKey]; exists {
		if bound == e {
			return nil
		}
		return ErrDuplicateLedgerKey
	}
	r.byLedger[ledgerKey] = e
	return nil
}

// HasLedgerKey reports whether an entry is already indexed by this ledger key.
func (r *Registry) HasLedgerKey(ledgerKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byLedger[ledgerKey]
	return ok
}

// Update applies a guarded transition to one session. The mutation runs under
// the entry lock only, so unrelated sessions reconcile independently.
// Subscribers are notified with a snapshot after the lock is released.
func (r *Registry) Update(key string, fn func(*session.Session) (session.Event, error)) (session.Snapshot, error) {
	e, ok := r.resolve(key)
	if !ok {
		return session.Snapshot{}, ErrNotFound
	}

	e.mu.Lock()
	evt, err := fn(e.sess)
	if err != nil {
		e.mu.Unlock()
		return session.Snapshot{}, err
	}
	snap := e.sess.Snapshot()
	subs := make([]Subscriber, len(e.subscribers))
	copy(subs, e.subscribers)
	e.mu.Unlock()

	if evt.Kind != session.EventKindObserved {
		for _, sub := range subs {
			sub(snap)
		}
	}
	return snap, nil
}

// Get returns a snapshot of the session for a local or ledger key.
func (r *Registry) Get(key string) (session.Snapshot, bool) {
	e, ok := r.resolve(key)
	if !ok {
		return session.Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Snapshot(), true
}

// Subscribe registers a callback delivered a snapshot on every transition of
// the keyed session.
func (r *Registry) Subscribe(key string, sub Subscriber) error {
	e, ok := r.resolve(key)
	if !ok {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subscribers = append(e.subscribers, sub)
	return nil
}

// MarkMissed increments and returns the consecutive poll-miss count for a
// non-terminal session whose ledger record disappeared from a poll.
func (r *Registry) MarkMissed(key string) int {
	e, ok := r.resolve(key)
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.missedPolls++
	return e.missedPolls
}

// MarkSeen clears the poll-miss count after a ledger record reappears.
func (r *Registry) MarkSeen(key string) {
	e, ok := r.resolve(key)
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.missedPolls = 0
}

// ListActive returns snapshots of all non-terminal sessions, newest first.
func (r *Registry) ListActive() []session.Snapshot {
	return r.list(func(snap session.Snapshot) bool {
		return !snap.Status.Terminal()
	})
}

// ListTerminal returns snapshots of all terminal sessions, newest first.
func (r *Registry) ListTerminal() []session.Snapshot {
	return r.list(func(snap session.Snapshot) bool {
		return snap.Status.Terminal()
	})
}

func (r *Registry) list(keep func(session.Snapshot) bool) []session.Snapshot {
	entries := r.allEntries()

	var out []session.Snapshot
	seen := map[*entry]bool{}
	for _, e := range entries {
		if seen[e] {
			continue
		}
		seen[e] = true
		e.mu.Lock()
		snap := e.sess.Snapshot()
		e.mu.Unlock()
		if keep(snap) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r *Registry) allEntries() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]*entry, 0, len(r.byLocal)+len(r.byLedger))
	for _, e := range r.byLocal {
		entries = append(entries, e)
	}
	for _, e := range r.byLedger {
		entries = append(entries, e)
	}
	return entries
}

// Prune drops terminal sessions that have been quiet longer than retention.
// Historical records live in the persistence collaborator, not here.
func (r *Registry) Prune(retention time.Duration, now time.Time) int {
	cutoff := now.UTC().Add(-retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := map[*entry]bool{}
	for key, e := range r.byLedger {
		if prunable(e, cutoff) {
			delete(r.byLedger, key)
			pruned[e] = true
		}
	}
	for key, e := range r.byLocal {
		if pruned[e] || prunable(e, cutoff) {
			delete(r.byLocal, key)
			pruned[e] = true
		}
	}
	return len(pruned)
}

func prunable(e *entry, cutoff time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Status.Terminal() && e.sess.LastObservedAt.Before(cutoff)
}
