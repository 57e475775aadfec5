// Package outcome applies the ledger's draw value to a session's side picks.
//
// The core never generates randomness; it consumes an opaque draw supplied by
// the ledger and applies it deterministically. A fairness audit depends on
// Resolve returning the same winner for the same inputs every time.
package outcome

import (
	apperrors "github.com/halvedgames/coinduel/internal/platform/errors"
	"github.com/halvedgames/coinduel/internal/services/wager/domain/session"
)

// ErrInvalidDraw indicates a malformed or out-of-domain draw value.
// Resolution fails closed: a winner is never guessed.
var ErrInvalidDraw = apperrors.New(apperrors.CodeResolutionDrawInvalid, "draw value is outside the expected domain")

// Resolve parses the opaque draw value into the drawn side.
func Resolve(draw string) (session.Side, error) {
	side, err := session.ParseSide(draw)
	if err != nil {
		return session.SideUnspecified, apperrors.Wrap(apperrors.CodeResolutionDrawInvalid, "parse draw value", err)
	}
	return side, nil
}

// Winner returns the participant whose pick matches the drawn side. Sides are
// binary and strictly complementary, so exactly one participant wins.
func Winner(s session.Snapshot, drawn session.Side) (string, error) {
	if !drawn.Valid() {
		return "", ErrInvalidDraw
	}
	if s.Opponent == "" || s.OpponentSide != s.CreatorSide.Opposite() {
		return "", apperrors.New(apperrors.CodeResolutionDrawInvalid, "session sides are not complementary")
	}
	if drawn == s.CreatorSide {
		return s.Creator, nil
	}
	return s.Opponent, nil
}
