// Package accounting computes pool totals and fee-adjusted payouts.
//
// All functions are pure; fee rates come from platform configuration, not
// from this package.
package accounting

import (
	apperrors "github.com/halvedgames/coinduel/internal/platform/errors"
)

// BpsDenominator is the basis-point scale used for fee rates.
const BpsDenominator = 10_000

var (
	// ErrInvalidAmount indicates a non-positive wager amount.
	ErrInvalidAmount = apperrors.New(apperrors.CodeWagerAmountInvalid, "wager amount must be positive")
	// ErrInvalidParticipants indicates a participant count outside {1, 2}.
	ErrInvalidParticipants = apperrors.New(apperrors.CodeAccountingParticipants, "participant count must be 1 or 2")
	// ErrInvalidFeeRate indicates a fee rate outside [0, 10000] basis points.
	ErrInvalidFeeRate = apperrors.New(apperrors.CodeAccountingFeeRate, "fee rate must be between 0 and 10000 basis points")
)

// Pool returns the total staked amount for a symmetric wager.
func Pool(wagerAmount int64, participants int) (int64, error) {
	if wagerAmount <= 0 {
		return 0, ErrInvalidAmount
	}
	if participants != 1 && participants != 2 {
		return 0, ErrInvalidParticipants
	}
	return wagerAmount * int64(participants), nil
}

// Payout returns the net amount due to the winner after the platform fee.
//
// Fractional remainders round down so the platform, never the winner, absorbs
// the rounding benefit; the result is always within [0, pool]. The pool is
// split around the basis-point scale before multiplying so the computation
// cannot overflow for any representable pool.
func Payout(pool int64, feeRateBps int64) (int64, error) {
	if pool < 0 {
		return 0, ErrInvalidAmount
	}
	if feeRateBps < 0 || feeRateBps > BpsDenominator {
		return 0, ErrInvalidFeeRate
	}
	keepRateBps := BpsDenominator - feeRateBps
	whole, remainder := pool/BpsDenominator, pool%BpsDenominator
	return whole*keepRateBps + remainder*keepRateBps/BpsDenominator, nil
}
