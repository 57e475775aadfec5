// Package reconcile merges optimistic local session state with ledger truth.
//
// One long-lived polling loop runs independently of the request paths. Each
// pass fetches the ledger's view of two-party sessions in a single batched
// query and merges every record into the registry under that session's own
// lock, so one slow or malformed record never stalls reconciliation of the
// others.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/halvedgames/coinduel/internal/platform/timeouts"
	"github.com/halvedgames/coinduel/internal/services/wager/domain/accounting"
	"github.com/halvedgames/coinduel/internal/services/wager/domain/outcome"
	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
	"github.com/halvedgames/coinduel/internal/services/wager/ledger"
	"github.com/halvedgames/coinduel/internal/services/wager/registry"
	"github.com/halvedgames/coinduel/internal/services/wager/storage"
)

const (
	defaultPollInterval     = 2 * time.Second
	defaultPropagationDelay = 3 * time.Second
	defaultCompletionGrace  = 90 * time.Second
	defaultMaxMissedPolls   = 3
	defaultRetention        = 15 * time.Minute
)

// Config controls polling cadence and reconciliation policy.
type Config struct {
	// PollInterval is the fixed cadence of the background loop.
	PollInterval time.Duration
	// PropagationDelay schedules the follow-up poll after a local action so
	// a slow ledger still gets a second chance to show the effect.
	PropagationDelay time.Duration
	// CompletionGrace is the age past which a fully-staked record carrying a
	// draw value is treated as settled even without the explicit flag.
	CompletionGrace time.Duration
	// MaxMissedPolls is how many consecutive polls may lose sight of a
	// non-terminal session before it is declared failed.
	MaxMissedPolls int
	// FeeRateBps is the platform fee applied to the winner's payout.
	FeeRateBps int64
	// Retention bounds how long terminal sessions stay in the live registry.
	Retention time.Duration
}

func (c Config) normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PropagationDelay <= 0 {
		c.PropagationDelay = defaultPropagationDelay
	}
	if c.CompletionGrace <= 0 {
		c.CompletionGrace = defaultCompletionGrace
	}
	if c.MaxMissedPolls <= 0 {
		c.MaxMissedPolls = defaultMaxMissedPolls
	}
	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	return c
}

// Engine drives reconciliation between the registry and the ledger.
type Engine struct {
	reg    *registry.Registry
	client ledger.Client
	store  storage.CompletedSessionStore
	cfg    Config
	tracer trace.Tracer
	kick   chan struct{}
	now    func() time.Time
}

// New constructs an engine. The store may be nil when history persistence is
// disabled; completed sessions are then only kept in the registry window.
func New(reg *registry.Registry, client ledger.Client, store storage.CompletedSessionStore, cfg Config) *Engine {
	return &Engine{
		reg:    reg,
		client: client,
		store:  store,
		cfg:    cfg.normalized(),
		tracer: otel.Tracer("coinduel/reconcile"),
		kick:   make(chan struct{}, 1),
		now:    time.Now,
	}
}

// Kick requests an immediate poll, plus a follow-up after the propagation
// delay. Called after every local action so ledger effects surface quickly.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
	time.AfterFunc(e.cfg.PropagationDelay, func() {
		select {
		case e.kick <- struct{}{}:
		default:
		}
	})
}

// Run executes the polling loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.kick:
		}
		if err := e.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Stale poll: existing registry state is retained unchanged.
			log.Printf("reconcile poll: %v", err)
		}
	}
}

// PollOnce performs a single reconciliation pass.
func (e *Engine) PollOnce(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "reconcile.poll")
	defer span.End()

	queryCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerQuery)
	records, err := e.client.QuerySessions(queryCtx, ledger.Filter{Capacity: 2})
	cancel()
	if err != nil {
		return fmt.Errorf("query ledger sessions: %w", err)
	}
	span.SetAttributes(attribute.Int("ledger.records", len(records)))

	seen := map[string]bool{}
	for _, rec := range records {
		seen[rec.LedgerID] = true
		e.reconcileRecord(ctx, rec)
	}

	e.markMissing(seen)
	e.reg.Prune(e.cfg.Retention, e.now())
	return nil
}

// reconcileRecord merges one ledger record into the registry. Errors are
// isolated per session: a malformed record is logged and skipped.
func (e *Engine) reconcileRecord(ctx context.Context, rec ledger.Record) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("reconcile record %s: panic: %v", rec.LedgerID, r)
		}
	}()

	key := rec.LedgerID
	switch {
	case e.reg.HasLedgerKey(key):
		// Already canonical; merge in place.
	case e.linkPending(rec):
		// A pending local entry matched this record and is now bound; the
		// optimistic entry keeps its local key for still-pending subscribers.
	default:
		if err := e.insertFromLedger(rec); err != nil {
			log.Printf("reconcile record %s: insert: %v", key, err)
		}
		return
	}

	if err := e.mergeRecord(ctx, key, rec); err != nil {
		log.Printf("reconcile record %s: merge: %v", key, err)
		return
	}
	e.reg.MarkSeen(key)
}

// linkPending matches a ledger record to an optimistic pending session whose
// create call never returned a handle (the ambiguous-create case) and binds
// the ledger identity to it instead of inserting a duplicate.
func (e *Engine) linkPending(rec ledger.Record) bool {
	for _, snap := range e.reg.ListActive() {
		if snap.Status != session.StatusPending || snap.LedgerKey != "" {
			continue
		}
		if snap.Creator != rec.Creator || snap.WagerAmount != rec.WagerAmount || snap.CreatorSide != rec.CreatorSide {
			continue
		}
		if _, err := e.reg.Update(snap.LocalKey, func(s *session.Session) (session.Event, error) {
			return s.ConfirmCreated(rec.LedgerID, e.now())
		}); err != nil {
			log.Printf("reconcile record %s: confirm pending %s: %v", rec.LedgerID, snap.LocalKey, err)
			return false
		}
		if err := e.reg.BindLedgerKey(snap.LocalKey, rec.LedgerID); err != nil {
			log.Printf("reconcile record %s: bind %s: %v", rec.LedgerID, snap.LocalKey, err)
			return false
		}
		return true
	}
	return false
}

// insertFromLedger admits a session known only to the ledger: created by
// another actor, lost to a process restart, or cancelled locally after its
// create call landed anyway. Real funds are committed, so dropping it is not
// an option.
func (e *Engine) insertFromLedger(rec ledger.Record) error {
	status := session.StatusWaitingForOpponent
	if rec.Opponent != "" {
		status = session.StatusReadyToResolve
	}
	now := e.now().UTC()
	sess := &session.Session{
		LedgerKey:      rec.LedgerID,
		WagerAmount:    rec.WagerAmount,
		Creator:        rec.Creator,
		Opponent:       rec.Opponent,
		CreatorSide:    rec.CreatorSide,
		OpponentSide:   rec.CreatorSide.Opposite(),
		Status:         status,
		CreatedAt:      rec.CreatedAt,
		LastObservedAt: now,
	}
	if err := e.reg.InsertFromLedger(sess); err != nil {
		return err
	}
	log.Printf("reconcile: admitted ledger session %s (creator %s)", rec.LedgerID, rec.Creator)
	return nil
}

// mergeRecord advances a registered session toward the state the ledger
// reports, one guarded transition at a time.
func (e *Engine) mergeRecord(ctx context.Context, key string, rec ledger.Record) error {
	snap, ok := e.reg.Get(key)
	if !ok {
		return registry.ErrNotFound
	}
	if snap.Status.Terminal() {
		return nil
	}

	if snap.LedgerKey == "" || snap.Status == session.StatusPending {
		updated, err := e.reg.Update(key, func(s *session.Session) (session.Event, error) {
			return s.ConfirmCreated(rec.LedgerID, e.now())
		})
		if err != nil {
			return err
		}
		snap = updated
	}

	if rec.Opponent != "" && snap.Opponent == "" {
		updated, err := e.reg.Update(key, func(s *session.Session) (session.Event, error) {
			return s.AttachOpponent(rec.Opponent, e.now())
		})
		if err != nil {
			return err
		}
		snap = updated
	}

	if snap.Status == session.StatusReadyToResolve && rec.Draw != "" && e.settlementDue(rec) {
		return e.resolve(ctx, key, rec)
	}
	return nil
}

// settlementDue decides whether a draw-bearing record should settle now. The
// explicit flag always wins; age is the fallback signal for ledgers that
// never set it, and triggering it is logged so the heuristic stays visible.
func (e *Engine) settlementDue(rec ledger.Record) bool {
	if rec.Settled {
		return true
	}
	age := e.now().Sub(rec.CreatedAt)
	if age > e.cfg.CompletionGrace {
		log.Printf("reconcile: treating session %s as settled by age (%s > %s)", rec.LedgerID, age.Round(time.Second), e.cfg.CompletionGrace)
		return true
	}
	return false
}

// resolve applies the draw, computes the payout, and completes the session.
// ReadyToResolve through Completed is one atomic step from the caller's
// perspective: once Resolving is entered there is no external cancellation.
func (e *Engine) resolve(ctx context.Context, key string, rec ledger.Record) error {
	drawn, err := outcome.Resolve(rec.Draw)
	if err != nil {
		// Fail closed: never guess a winner from a malformed draw.
		log.Printf("reconcile: session %s draw %q rejected: %v", key, rec.Draw, err)
		_, failErr := e.reg.Update(key, func(s *session.Session) (session.Event, error) {
			return s.Fail(e.now())
		})
		if failErr != nil {
			return failErr
		}
		return err
	}

	snap, err := e.reg.Update(key, func(s *session.Session) (session.Event, error) {
		return s.BeginResolve(e.now())
	})
	if err != nil {
		return err
	}

	winner, err := outcome.Winner(snap, drawn)
	if err != nil {
		_, failErr := e.reg.Update(key, func(s *session.Session) (session.Event, error) {
			return s.Fail(e.now())
		})
		if failErr != nil {
			return failErr
		}
		return err
	}

	pool, err := accounting.Pool(snap.WagerAmount, 2)
	if err != nil {
		return err
	}
	payout, err := accounting.Payout(pool, e.cfg.FeeRateBps)
	if err != nil {
		return err
	}

	completed, err := e.reg.Update(key, func(s *session.Session) (session.Event, error) {
		return s.Complete(drawn, winner, payout, e.now())
	})
	if err != nil {
		return err
	}

	e.persistCompleted(ctx, completed)
	return nil
}

// persistCompleted hands the settled session to the history collaborator.
// Fire-and-forget: a persistence failure never rolls back a settled session.
func (e *Engine) persistCompleted(ctx context.Context, snap session.Snapshot) {
	if e.store == nil {
		return
	}
	go func() {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeouts.Persist)
		defer cancel()
		err := e.store.RecordCompletedSession(persistCtx, storage.CompletedSessionRecord{
			LedgerKey:   snap.LedgerKey,
			LocalKey:    snap.LocalKey,
			Creator:     snap.Creator,
			Opponent:    snap.Opponent,
			WagerAmount: snap.WagerAmount,
			Pool:        snap.Pool,
			CreatorSide: snap.CreatorSide,
			OutcomeSide: snap.OutcomeSide,
			Winner:      snap.Winner,
			Payout:      snap.Payout,
			CreatedAt:   snap.CreatedAt,
			CompletedAt: snap.LastObservedAt,
		})
		if err != nil {
			log.Printf("record completed session %s: %v", snap.LedgerKey, err)
		}
	}()
}

// markMissing counts polls in which a previously-known, non-terminal session
// did not appear. Ledger query services can lag, so a session is only failed
// after the configured number of consecutive misses.
func (e *Engine) markMissing(seen map[string]bool) {
	for _, snap := range e.reg.ListActive() {
		key := snap.Key()
		if snap.LedgerKey != "" {
			if seen[snap.LedgerKey] {
				continue
			}
		} else if snap.Status != session.StatusPending {
			continue
		}

		misses := e.reg.MarkMissed(key)
		if misses < e.cfg.MaxMissedPolls {
			continue
		}
		if _, err := e.reg.Update(key, func(s *session.Session) (session.Event, error) {
			return s.Fail(e.now())
		}); err != nil {
			log.Printf("reconcile: fail missing session %s: %v", key, err)
			continue
		}
		log.Printf("reconcile: session %s failed after %d missed polls", key, misses)
	}
}
