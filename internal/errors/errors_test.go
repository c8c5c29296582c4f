package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeCheckDecisionConflict, "check already decided")
	wrapped := fmt.Errorf("approve: %w", err)

	if !stderrors.Is(wrapped, New(CodeCheckDecisionConflict, "")) {
		t.Fatal("expected wrapped error to match by code")
	}
	if stderrors.Is(wrapped, New(CodeNotFound, "")) {
		t.Fatal("expected mismatched code to not match")
	}
}

func TestGetCode(t *testing.T) {
	if got := GetCode(New(CodeCheckNoEvidence, "no evidence")); got != CodeCheckNoEvidence {
		t.Fatalf("code = %q, want %q", got, CodeCheckNoEvidence)
	}
	if got := GetCode(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeCheckReferenceEmpty, codes.InvalidArgument},
		{CodeActorForbidden, codes.PermissionDenied},
		{CodeCheckNoEvidence, codes.FailedPrecondition},
		{CodeCheckAlreadyDecided, codes.FailedPrecondition},
		{CodeCheckDecisionConflict, codes.Aborted},
		{CodeNotFound, codes.NotFound},
		{CodeAuditChainBroken, codes.DataLoss},
		{CodeUnknown, codes.Internal},
	}
	for _, tt := range tests {
		if got := tt.code.GRPCCode(); got != tt.want {
			t.Fatalf("%s maps to %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestHandleErrorAttachesDetails(t *testing.T) {
	err := WithMetadata(CodeCheckReferenceExists, "reference already exists", map[string]string{
		"reference": "REF-001",
	})
	st, ok := status.FromError(HandleError(err))
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.InvalidArgument {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.InvalidArgument)
	}
	if len(st.Details()) == 0 {
		t.Fatal("expected error details to be attached")
	}
}

func TestHandleErrorUnknown(t *testing.T) {
	st, ok := status.FromError(HandleError(stderrors.New("boom")))
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.Internal {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.Internal)
	}
}
