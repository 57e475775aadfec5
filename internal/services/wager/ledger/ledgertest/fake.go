// Package ledgertest provides an in-memory ledger honoring the client
// contract, with scriptable ambiguity, rejection, and lagging-view behavior
// for reconciliation tests. It also backs wagerd's dev mode so the service
// runs end-to-end without a real ledger.
package ledgertest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/halvedgames/coinduel/internal/platform/id"
	"github.com/halvedgames/coinduel/internal/platform/random"
	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
	"github.com/halvedgames/coinduel/internal/services/wager/ledger"
)

// Fake is an in-memory ledger.Client.
type Fake struct {
	mu      sync.Mutex
	records map[string]*ledger.Record
	rng     *rand.Rand

	createState      ledger.ResultState
	createLandsOnled bool
	joinState        ledger.ResultState
	queryErr         error
	hidden           map[string]bool
	autoSettle       bool
}

var _ ledger.Client = (*Fake)(nil)

// NewFake returns a fake ledger with auto-settlement enabled and a
// crypto-seeded draw generator.
func NewFake() *Fake {
	seed, err := random.NewSeed()
	if err != nil {
		seed = time.Now().UnixNano()
	}
	return &Fake{
		records:     map[string]*ledger.Record{},
		rng:         rand.New(rand.NewSource(seed)),
		createState: ledger.ResultConfirmed,
		joinState:   ledger.ResultConfirmed,
		hidden:      map[string]bool{},
		autoSettle:  true,
	}
}

// ScriptCreate forces the next CreateAndStake calls into the given state.
// When landsAnyway is set with an ambiguous state, the session is still
// created on the ledger; the caller just never hears about it. This is the
// timed-out-but-succeeded case reconciliation must absorb.
func (f *Fake) ScriptCreate(state ledger.ResultState, landsAnyway bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createState = state
	f.createLandsOnled = landsAnyway
}

// ScriptJoin forces Join calls into the given state.
func (f *Fake) ScriptJoin(state ledger.ResultState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinState = state
}

// ScriptQueryError makes QuerySessions fail until cleared with nil.
func (f *Fake) ScriptQueryError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

// SetAutoSettle toggles immediate draw generation once both stakes are held.
func (f *Fake) SetAutoSettle(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.autoSettle = enabled
}

// Hide removes a session from query results without deleting it, simulating
// a lagging or partial ledger view.
func (f *Fake) Hide(handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[handle] = true
}

// Show reverses Hide.
func (f *Fake) Show(handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.hidden, handle)
}

// Settle records an explicit draw for a session.
func (f *Fake) Settle(handle, draw string, explicit bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[handle]; ok {
		rec.Draw = draw
		rec.Settled = explicit
	}
}

// Record returns a copy of the stored record, if any.
func (f *Fake) Record(handle string) (ledger.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[handle]
	if !ok {
		return ledger.Record{}, false
	}
	return *rec, true
}

// CreateAndStake implements ledger.Client.
func (f *Fake) CreateAndStake(ctx context.Context, intent ledger.CreateIntent) (ledger.CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return ledger.CreateResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch f.createState {
	case ledger.ResultRejected:
		return ledger.CreateResult{State: ledger.ResultRejected, Reason: "insufficient funds"}, nil
	case ledger.ResultAmbiguous:
		if f.createLandsOnled {
			f.createLocked(intent)
		}
		return ledger.CreateResult{State: ledger.ResultAmbiguous}, nil
	}

	handle := f.createLocked(intent)
	return ledger.CreateResult{State: ledger.ResultConfirmed, Handle: handle}, nil
}

func (f *Fake) createLocked(intent ledger.CreateIntent) string {
	handle, err := id.NewID()
	if err != nil {
		handle = "ledger-" + intent.Creator
	}
	f.records[handle] = &ledger.Record{
		LedgerID:    handle,
		Creator:     intent.Creator,
		WagerAmount: intent.WagerAmount,
		CreatorSide: intent.Side,
		CreatedAt:   time.Now().UTC(),
	}
	return handle
}

// Join implements ledger.Client. The first join wins; a second join is
// rejected as session-full regardless of which request arrived first locally.
func (f *Fake) Join(ctx context.Context, intent ledger.JoinIntent) (ledger.JoinResult, error) {
	if err := ctx.Err(); err != nil {
		return ledger.JoinResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.joinState != ledger.ResultConfirmed {
		return ledger.JoinResult{State: f.joinState, Reason: "scripted"}, nil
	}

	rec, ok := f.records[intent.SessionHandle]
	if !ok {
		return ledger.JoinResult{State: ledger.ResultRejected, Reason: "session not found"}, nil
	}
	if rec.Opponent != "" {
		return ledger.JoinResult{State: ledger.ResultRejected, Reason: "session already full"}, nil
	}
	if intent.Joiner == rec.Creator {
		return ledger.JoinResult{State: ledger.ResultRejected, Reason: "joiner holds the creator stake"}, nil
	}

	rec.Opponent = intent.Joiner
	rec.OpponentSide = rec.CreatorSide.Opposite()
	if f.autoSettle {
		rec.Draw = f.drawLocked()
		rec.Settled = true
	}
	return ledger.JoinResult{State: ledger.ResultConfirmed}, nil
}

func (f *Fake) drawLocked() string {
	if f.rng.Intn(2) == 0 {
		return session.SideHeads.String()
	}
	return session.SideTails.String()
}

// QuerySessions implements ledger.Client.
func (f *Fake) QuerySessions(ctx context.Context, filter ledger.Filter) ([]ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queryErr != nil {
		return nil, f.queryErr
	}

	var out []ledger.Record
	for handle, rec := range f.records {
		if f.hidden[handle] {
			continue
		}
		if filter.Participant != "" && rec.Creator != filter.Participant && rec.Opponent != filter.Participant {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}
