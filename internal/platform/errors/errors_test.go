package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	first := New(CodeWagerSelfJoin, "creator cannot join own session")
	second := New(CodeWagerSelfJoin, "different message")

	if !stderrors.Is(first, second) {
		t.Fatal("expected errors with same code to match")
	}
	if stderrors.Is(first, New(CodeNotFound, "missing")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("db down")
	wrapped := Wrap(CodeNotFound, "session lookup failed", cause)

	if !stderrors.Is(wrapped, cause) {
		t.Fatal("expected wrapped cause to be reachable")
	}
}

func TestToGRPCStatusCarriesCode(t *testing.T) {
	err := WithMetadata(CodeWagerNotCreator, "bot fallback requires creator", map[string]string{
		"actor": "p2",
	}).ToGRPCStatus()

	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected grpc status error")
	}
	if st.Code() != codes.PermissionDenied {
		t.Fatalf("grpc code = %v, want PermissionDenied", st.Code())
	}
}

func TestGRPCCodeDefaultsToUnknown(t *testing.T) {
	if got := Code("SOMETHING_ELSE").GRPCCode(); got != codes.Unknown {
		t.Fatalf("grpc code = %v, want Unknown", got)
	}
}
