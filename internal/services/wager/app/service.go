// Package app wires the wager domain, registry, ledger client, and
// reconciliation engine into the operations exposed by wagerd.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/halvedgames/coinduel/internal/platform/errors"
	"github.com/halvedgames/coinduel/internal/platform/timeouts"
	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
	"github.com/halvedgames/coinduel/internal/services/wager/ledger"
	"github.com/halvedgames/coinduel/internal/services/wager/reconcile"
	"github.com/halvedgames/coinduel/internal/services/wager/registry"
	"github.com/halvedgames/coinduel/internal/services/wager/storage"
)

var (
	// ErrNotCreator indicates a privileged action requested by a non-creator.
	ErrNotCreator = apperrors.New(apperrors.CodeWagerNotCreator, "only the session creator may perform this action")
	// ErrLedgerRejected indicates the ledger explicitly refused a call.
	ErrLedgerRejected = apperrors.New(apperrors.CodeLedgerRejected, "ledger rejected the request")
	// ErrSigningDeclined indicates the actor refused to sign the stake transfer.
	ErrSigningDeclined = apperrors.New(apperrors.CodeLedgerUserDeclined, "stake signing declined")
	// ErrHistoryDisabled indicates the history store is not configured.
	ErrHistoryDisabled = apperrors.New(apperrors.CodeNotFound, "session history persistence is disabled")
)

// Service exposes the session lifecycle operations. All reads return value
// snapshots; all writes go through the registry's guarded transitions.
type Service struct {
	reg    *registry.Registry
	client ledger.Client
	signer ledger.Signer
	store  storage.CompletedSessionStore
	engine *reconcile.Engine
	tracer trace.Tracer
	now    func() time.Time
}

// NewService constructs the wager service. The signer and store may be nil:
// without a signer stakes are unsigned, without a store history reads fail.
func NewService(reg *registry.Registry, client ledger.Client, signer ledger.Signer, store storage.CompletedSessionStore, engine *reconcile.Engine) *Service {
	return &Service{
		reg:    reg,
		client: client,
		signer: signer,
		store:  store,
		engine: engine,
		tracer: otel.Tracer("coinduel/wager"),
		now:    time.Now,
	}
}

// CreateSession opens a new wager session. The local entry is registered and
// its key returned before the ledger call completes; the stake call runs in
// the background and its tri-state result is merged asynchronously.
func (s *Service) CreateSession(ctx context.Context, creator string, wagerAmount int64, side session.Side) (string, error) {
	ctx, span := s.tracer.Start(ctx, "wager.create_session")
	defer span.End()

	sess, err := session.New(creator, wagerAmount, side, s.now)
	if err != nil {
		return "", err
	}

	signature, err := s.sign(ctx, ledger.TransactionIntent{
		Actor:       sess.Creator,
		WagerAmount: sess.WagerAmount,
		Side:        sess.CreatorSide,
	})
	if err != nil {
		return "", err
	}

	s.reg.InsertLocal(sess)
	span.SetAttributes(attribute.String("session.local_key", sess.LocalKey))

	intent := ledger.CreateIntent{
		Creator:     sess.Creator,
		WagerAmount: sess.WagerAmount,
		Side:        sess.CreatorSide,
		Signature:   signature,
	}
	go s.stake(context.WithoutCancel(ctx), sess.LocalKey, intent)

	return sess.LocalKey, nil
}

// stake performs the background CreateAndStake call and merges its result.
func (s *Service) stake(ctx context.Context, localKey string, intent ledger.CreateIntent) {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerCall)
	defer cancel()

	result, err := s.client.CreateAndStake(callCtx, intent)
	if err != nil {
		// Contract violation or cancellation; reconciliation owns the outcome.
		log.Printf("create session %s: stake call: %v", localKey, err)
		s.engine.Kick()
		return
	}

	switch result.State {
	case ledger.ResultConfirmed:
		if _, err := s.reg.Update(localKey, func(sess *session.Session) (session.Event, error) {
			return sess.ConfirmCreated(result.Handle, s.now())
		}); err != nil {
			// Withdrawn while the call was in flight; the stake landed anyway
			// and reconciliation will re-admit it under the ledger key.
			log.Printf("create session %s: confirm: %v", localKey, err)
		} else if err := s.reg.BindLedgerKey(localKey, result.Handle); err != nil {
			log.Printf("create session %s: bind %s: %v", localKey, result.Handle, err)
		}
	case ledger.ResultRejected:
		log.Printf("create session %s: ledger rejected: %s", localKey, result.Reason)
		if _, err := s.reg.Update(localKey, func(sess *session.Session) (session.Event, error) {
			return sess.Fail(s.now())
		}); err != nil {
			log.Printf("create session %s: fail: %v", localKey, err)
		}
	case ledger.ResultAmbiguous:
		// Leave the entry pending. Polls either link the landed record or
		// fail the session after the miss budget runs out.
		log.Printf("create session %s: ambiguous stake result", localKey)
	}
	s.engine.Kick()
}

// JoinSession stakes the second participant into an open session.
func (s *Service) JoinSession(ctx context.Context, key, joiner string) error {
	ctx, span := s.tracer.Start(ctx, "wager.join_session")
	defer span.End()

	snap, ok := s.reg.Get(key)
	if !ok {
		return registry.ErrNotFound
	}
	if snap.LedgerKey == "" || snap.Status != session.StatusWaitingForOpponent {
		return session.ErrInvalidTransition
	}
	if joiner == snap.Creator {
		return session.ErrSelfJoin
	}
	if snap.Opponent != "" {
		return session.ErrSessionFull
	}

	side := snap.CreatorSide.Opposite()
	signature, err := s.sign(ctx, ledger.TransactionIntent{
		Actor:         joiner,
		WagerAmount:   snap.WagerAmount,
		Side:          side,
		SessionHandle: snap.LedgerKey,
	})
	if err != nil {
		return err
	}

	return s.join(ctx, snap.LedgerKey, ledger.JoinIntent{
		SessionHandle: snap.LedgerKey,
		Joiner:        joiner,
		Side:          side,
		Signature:     signature,
	})
}

// RequestBotFallback substitutes a synthetic opponent into a stalled session.
// Creator-only. The registry snapshot is not trusted for the race with a human
// joiner: ledger truth is re-read immediately before acting, and a human
// opponent observed there wins unconditionally.
func (s *Service) RequestBotFallback(ctx context.Context, key, actor string) error {
	ctx, span := s.tracer.Start(ctx, "wager.request_bot_fallback")
	defer span.End()

	snap, ok := s.reg.Get(key)
	if !ok {
		return registry.ErrNotFound
	}
	if actor != snap.Creator {
		return ErrNotCreator
	}
	if snap.LedgerKey == "" || snap.Status != session.StatusWaitingForOpponent {
		return session.ErrInvalidTransition
	}

	rec, err := s.freshRecord(ctx, snap)
	if err != nil {
		return err
	}
	if rec.Opponent != "" {
		// A human joined while the request was in flight.
		s.engine.Kick()
		return session.ErrSessionFull
	}

	return s.join(ctx, snap.LedgerKey, ledger.JoinIntent{
		SessionHandle: snap.LedgerKey,
		Joiner:        botParticipant(snap.LedgerKey),
		Side:          snap.CreatorSide.Opposite(),
	})
}

// freshRecord re-reads one session's ledger record, bypassing all cached state.
func (s *Service) freshRecord(ctx context.Context, snap session.Snapshot) (ledger.Record, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerQuery)
	defer cancel()

	records, err := s.client.QuerySessions(queryCtx, ledger.Filter{Capacity: 2, Participant: snap.Creator})
	if err != nil {
		return ledger.Record{}, fmt.Errorf("re-check ledger session %s: %w", snap.LedgerKey, err)
	}
	for _, rec := range records {
		if rec.LedgerID == snap.LedgerKey {
			return rec, nil
		}
	}
	return ledger.Record{}, registry.ErrNotFound
}

// join performs the ledger join call and merges a confirmed result.
func (s *Service) join(ctx context.Context, ledgerKey string, intent ledger.JoinIntent) error {
	callCtx, cancel := context.WithTimeout(ctx, timeouts.LedgerCall)
	defer cancel()

	result, err := s.client.Join(callCtx, intent)
	if err != nil {
		return fmt.Errorf("join session %s: %w", ledgerKey, err)
	}

	switch result.State {
	case ledger.ResultConfirmed:
		if _, err := s.reg.Update(ledgerKey, func(sess *session.Session) (session.Event, error) {
			return sess.AttachOpponent(intent.Joiner, s.now())
		}); err != nil && !errors.Is(err, session.ErrSessionFull) {
			return err
		}
		s.engine.Kick()
		return nil
	case ledger.ResultRejected:
		s.engine.Kick()
		return apperrors.New(apperrors.CodeLedgerRejected, result.Reason)
	default:
		// Ambiguous: the stake may have landed. Polls settle the question.
		log.Printf("join session %s: ambiguous result for %s", ledgerKey, intent.Joiner)
		s.engine.Kick()
		return nil
	}
}

// Withdraw cancels a still-pending session at the creator's request. The
// outstanding create call cannot be retracted; if it lands after cancellation
// the reconciler re-admits the session under its ledger key.
func (s *Service) Withdraw(ctx context.Context, key, actor string) error {
	_, span := s.tracer.Start(ctx, "wager.withdraw")
	defer span.End()

	snap, ok := s.reg.Get(key)
	if !ok {
		return registry.ErrNotFound
	}
	if actor != snap.Creator {
		return ErrNotCreator
	}

	if _, err := s.reg.Update(key, func(sess *session.Session) (session.Event, error) {
		return sess.Cancel(s.now())
	}); err != nil {
		return err
	}
	s.engine.Kick()
	return nil
}

// GetSession returns a snapshot for a local or ledger key.
func (s *Service) GetSession(key string) (session.Snapshot, bool) {
	return s.reg.Get(key)
}

// Subscribe delivers a snapshot after every transition of the keyed session.
func (s *Service) Subscribe(key string, sub registry.Subscriber) error {
	return s.reg.Subscribe(key, sub)
}

// ListActiveSessions returns all non-terminal sessions, newest first.
func (s *Service) ListActiveSessions() []session.Snapshot {
	return s.reg.ListActive()
}

// ListRecentCompleted returns settled sessions from the history store.
func (s *Service) ListRecentCompleted(ctx context.Context, limit int) ([]storage.CompletedSessionRecord, error) {
	if s.store == nil {
		return nil, ErrHistoryDisabled
	}
	return s.store.ListRecentCompleted(ctx, limit)
}

func (s *Service) sign(ctx context.Context, intent ledger.TransactionIntent) (string, error) {
	if s.signer == nil {
		return "", nil
	}
	signature, err := s.signer.Sign(ctx, intent)
	if err != nil {
		if errors.Is(err, ledger.ErrUserDeclined) {
			return "", ErrSigningDeclined
		}
		return "", fmt.Errorf("sign stake transfer: %w", err)
	}
	return signature, nil
}

// botParticipant derives the synthetic opponent identity for a session. One
// bot per session keeps history rows and winner fields unambiguous.
func botParticipant(ledgerKey string) string {
	return "bot-" + ledgerKey
}
