package session

import (
	"strings"

	apperrors "github.com/halvedgames/coinduel/internal/platform/errors"
)

// Side is one of the two opposing picks in a session.
type Side int

const (
	// SideUnspecified represents an invalid side value.
	SideUnspecified Side = iota
	// SideHeads is the creator-selectable heads pick.
	SideHeads
	// SideTails is the creator-selectable tails pick.
	SideTails
)

// ErrInvalidSide indicates a missing or unrecognized side value.
var ErrInvalidSide = apperrors.New(apperrors.CodeWagerSideInvalid, "side must be heads or tails")

// Opposite returns the complementary side. The second participant is never
// offered a free choice; their side is always the complement of the creator's.
func (s Side) Opposite() Side {
	switch s {
	case SideHeads:
		return SideTails
	case SideTails:
		return SideHeads
	default:
		return SideUnspecified
	}
}

// Valid reports whether the side is one of the two legal picks.
func (s Side) Valid() bool {
	return s == SideHeads || s == SideTails
}

// String returns the canonical lowercase label for the side.
func (s Side) String() string {
	switch s {
	case SideHeads:
		return "heads"
	case SideTails:
		return "tails"
	default:
		return "unspecified"
	}
}

// ParseSide maps a canonical label back to a Side.
func ParseSide(value string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "heads":
		return SideHeads, nil
	case "tails":
		return SideTails, nil
	default:
		return SideUnspecified, ErrInvalidSide
	}
}
