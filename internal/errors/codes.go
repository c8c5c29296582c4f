// Package errors provides structured error handling for the release-check core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Check errors
	CodeCheckReferenceEmpty   Code = "CHECK_REFERENCE_EMPTY"
	CodeCheckReferenceTooLong Code = "CHECK_REFERENCE_TOO_LONG"
	CodeCheckReferenceExists  Code = "CHECK_REFERENCE_EXISTS"
	CodeCheckInvalidSchedule  Code = "CHECK_INVALID_SCHEDULE"
	CodeCheckInvalidStatus    Code = "CHECK_INVALID_STATUS"
	CodeCheckAlreadyDecided   Code = "CHECK_ALREADY_DECIDED"
	CodeCheckDecisionConflict Code = "CHECK_DECISION_CONFLICT"
	CodeCheckNoEvidence       Code = "CHECK_NO_EVIDENCE"
	CodeCheckReasonEmpty      Code = "CHECK_REASON_EMPTY"
	CodeCheckReasonTooLong    Code = "CHECK_REASON_TOO_LONG"

	// Actor errors
	CodeActorForbidden Code = "ACTOR_FORBIDDEN"
	CodeActorIDEmpty   Code = "ACTOR_ID_EMPTY"

	// Evidence errors
	CodeEvidenceInvalidType   Code = "EVIDENCE_INVALID_TYPE"
	CodeEvidenceValueEmpty    Code = "EVIDENCE_VALUE_EMPTY"
	CodeEvidenceValueInvalid  Code = "EVIDENCE_VALUE_INVALID"
	CodeEvidenceSourceTooLong Code = "EVIDENCE_SOURCE_TOO_LONG"

	// Query errors
	CodeQueryInvalidStatus Code = "QUERY_INVALID_STATUS"
	CodeQueryInvalidSort   Code = "QUERY_INVALID_SORT"
	CodeQueryInvalidCursor Code = "QUERY_INVALID_CURSOR"
	CodeQueryInvalidFilter Code = "QUERY_INVALID_FILTER"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"

	// Audit chain errors
	CodeAuditChainBroken Code = "AUDIT_CHAIN_BROKEN"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeCheckReferenceEmpty,
		CodeCheckReferenceTooLong,
		CodeCheckReferenceExists,
		CodeCheckInvalidSchedule,
		CodeCheckInvalidStatus,
		CodeCheckReasonEmpty,
		CodeCheckReasonTooLong,
		CodeActorIDEmpty,
		CodeEvidenceInvalidType,
		CodeEvidenceValueEmpty,
		CodeEvidenceValueInvalid,
		CodeEvidenceSourceTooLong,
		CodeQueryInvalidStatus,
		CodeQueryInvalidSort,
		CodeQueryInvalidCursor,
		CodeQueryInvalidFilter:
		return codes.InvalidArgument

	// PermissionDenied - role not permitted for the action
	case CodeActorForbidden:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow the operation
	case CodeCheckAlreadyDecided,
		CodeCheckNoEvidence:
		return codes.FailedPrecondition

	// Aborted - a concurrent decision raced this operation
	case CodeCheckDecisionConflict:
		return codes.Aborted

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// DataLoss - the audit chain failed verification
	case CodeAuditChainBroken:
		return codes.DataLoss

	default:
		return codes.Internal
	}
}
