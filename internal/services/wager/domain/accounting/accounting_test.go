package accounting

import (
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPoolValidation(t *testing.T) {
	if _, err := Pool(0, 2); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
	if _, err := Pool(100, 0); !errors.Is(err, ErrInvalidParticipants) {
		t.Fatalf("err = %v, want ErrInvalidParticipants", err)
	}
	if _, err := Pool(100, 3); !errors.Is(err, ErrInvalidParticipants) {
		t.Fatalf("err = %v, want ErrInvalidParticipants", err)
	}
}

func TestPayoutValidation(t *testing.T) {
	if _, err := Payout(200, -1); !errors.Is(err, ErrInvalidFeeRate) {
		t.Fatalf("err = %v, want ErrInvalidFeeRate", err)
	}
	if _, err := Payout(200, BpsDenominator+1); !errors.Is(err, ErrInvalidFeeRate) {
		t.Fatalf("err = %v, want ErrInvalidFeeRate", err)
	}
	if _, err := Payout(-1, 500); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestPayoutRoundsDown(t *testing.T) {
	// 2.5% of 201 is 5.025; the winner gets 195, not 196.
	got, err := Payout(201, 250)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if got != 195 {
		t.Fatalf("payout = %d, want 195", got)
	}
}

func TestPayoutBoundaryRates(t *testing.T) {
	got, err := Payout(200, 0)
	if err != nil || got != 200 {
		t.Fatalf("payout(200, 0) = (%d, %v), want 200", got, err)
	}
	got, err = Payout(200, BpsDenominator)
	if err != nil || got != 0 {
		t.Fatalf("payout(200, 10000) = (%d, %v), want 0", got, err)
	}
}

func TestPayoutLargePools(t *testing.T) {
	// 2^60 at a 5% fee; naive pool*(10000-fee) multiplication wraps negative.
	pool := int64(1) << 60
	got, err := Payout(pool, 500)
	if err != nil {
		t.Fatalf("payout: %v", err)
	}
	if got != 1095275429376504627 {
		t.Fatalf("payout = %d, want 1095275429376504627", got)
	}
	if got < 0 || got > pool {
		t.Fatalf("payout = %d, want within [0, %d]", got, pool)
	}

	got, err = Payout(math.MaxInt64, BpsDenominator)
	if err != nil || got != 0 {
		t.Fatalf("payout(max, 10000) = (%d, %v), want 0", got, err)
	}
	got, err = Payout(math.MaxInt64, 0)
	if err != nil || got != math.MaxInt64 {
		t.Fatalf("payout(max, 0) = (%d, %v), want full pool", got, err)
	}
}

func TestPoolProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("pool is wager times participants", prop.ForAll(
		func(wager int64, participants int) bool {
			got, err := Pool(wager, participants)
			return err == nil && got == wager*int64(participants)
		},
		gen.Int64Range(1, 1<<30),
		gen.IntRange(1, 2),
	))

	properties.TestingRun(t)
}

func TestPayoutProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("payout never exceeds pool and never goes negative", prop.ForAll(
		func(pool int64, feeRateBps int64) bool {
			got, err := Payout(pool, feeRateBps)
			return err == nil && got >= 0 && got <= pool
		},
		gen.Int64Range(0, math.MaxInt64),
		gen.Int64Range(0, BpsDenominator),
	))

	// Conservation checked below the overflow threshold of the naive exact
	// fee computation used as the oracle.
	properties.Property("fee plus payout conserves the pool within rounding", prop.ForAll(
		func(pool int64, feeRateBps int64) bool {
			got, err := Payout(pool, feeRateBps)
			if err != nil {
				return false
			}
			fee := pool - got
			exactFee := pool * feeRateBps / BpsDenominator
			return fee >= exactFee && fee-exactFee <= 1
		},
		gen.Int64Range(0, 1<<31),
		gen.Int64Range(0, BpsDenominator),
	))

	properties.TestingRun(t)
}
