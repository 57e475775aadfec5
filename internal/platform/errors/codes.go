// Package errors provides structured error handling for the wagering core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Wager session errors
	CodeWagerAmountInvalid     Code = "WAGER_AMOUNT_INVALID"
	CodeWagerSideInvalid       Code = "WAGER_SIDE_INVALID"
	CodeWagerCreatorRequired   Code = "WAGER_CREATOR_REQUIRED"
	CodeWagerSelfJoin          Code = "WAGER_SELF_JOIN"
	CodeWagerSessionFull       Code = "WAGER_SESSION_FULL"
	CodeWagerInvalidTransition Code = "WAGER_INVALID_TRANSITION"
	CodeWagerNotCreator        Code = "WAGER_NOT_CREATOR"
	CodeWagerOutcomeApplied    Code = "WAGER_OUTCOME_ALREADY_APPLIED"
	CodeWagerPayoutExceedsPool Code = "WAGER_PAYOUT_EXCEEDS_POOL"

	// Accounting errors
	CodeAccountingParticipants Code = "ACCOUNTING_PARTICIPANT_COUNT_INVALID"
	CodeAccountingFeeRate      Code = "ACCOUNTING_FEE_RATE_INVALID"

	// Outcome resolution errors
	CodeResolutionDrawInvalid Code = "RESOLUTION_DRAW_INVALID"

	// Ledger collaborator errors
	CodeLedgerRejected     Code = "LEDGER_REJECTED"
	CodeLedgerUserDeclined Code = "LEDGER_USER_DECLINED"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeWagerAmountInvalid,
		CodeWagerSideInvalid,
		CodeWagerCreatorRequired,
		CodeAccountingParticipants,
		CodeAccountingFeeRate:
		return codes.InvalidArgument

	// FailedPrecondition - state machine guards
	case CodeWagerSelfJoin,
		CodeWagerSessionFull,
		CodeWagerInvalidTransition,
		CodeWagerOutcomeApplied,
		CodeLedgerRejected:
		return codes.FailedPrecondition

	// PermissionDenied - capability checks
	case CodeWagerNotCreator,
		CodeLedgerUserDeclined:
		return codes.PermissionDenied

	// Internal - invariant violations
	case CodeWagerPayoutExceedsPool,
		CodeResolutionDrawInvalid:
		return codes.Internal

	// NotFound
	case CodeNotFound:
		return codes.NotFound

	default:
		return codes.Unknown
	}
}
