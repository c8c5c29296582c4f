// Package check defines the release-check domain model: the check lifecycle,
// its evidence items, and the validation rules the state machine enforces.
package check

import (
	"strings"
	"time"

	apperrors "github.com/releasegate/releasegate/internal/errors"
)

// MaxReferenceLength bounds the caller-supplied human reference.
const MaxReferenceLength = 64

// MaxReasonLength bounds the rejection reason.
const MaxReasonLength = 1000

// Status describes the lifecycle of a release check.
type Status string

const (
	// StatusUnspecified represents an invalid status value.
	StatusUnspecified Status = ""
	// StatusPending indicates the check is awaiting a decision.
	StatusPending Status = "PENDING"
	// StatusApproved indicates the check was approved. Terminal.
	StatusApproved Status = "APPROVED"
	// StatusRejected indicates the check was rejected. Terminal.
	StatusRejected Status = "REJECTED"
)

var (
	// ErrEmptyReference indicates a missing check reference.
	ErrEmptyReference = apperrors.New(apperrors.CodeCheckReferenceEmpty, "check reference is required")
	// ErrReferenceTooLong indicates a reference over the length limit.
	ErrReferenceTooLong = apperrors.New(apperrors.CodeCheckReferenceTooLong, "check reference exceeds length limit")
	// ErrInvalidSchedule indicates a missing or invalid scheduled release time.
	ErrInvalidSchedule = apperrors.New(apperrors.CodeCheckInvalidSchedule, "scheduled release time is required")
	// ErrEmptyActorID indicates a missing actor identifier.
	ErrEmptyActorID = apperrors.New(apperrors.CodeActorIDEmpty, "actor id is required")
	// ErrEmptyReason indicates a missing rejection reason.
	ErrEmptyReason = apperrors.New(apperrors.CodeCheckReasonEmpty, "rejection reason is required")
	// ErrReasonTooLong indicates a rejection reason over the length limit.
	ErrReasonTooLong = apperrors.New(apperrors.CodeCheckReasonTooLong, "rejection reason exceeds length limit")
)

// Check represents one release-decision case.
type Check struct {
	// ID is the opaque, globally unique check identifier.
	ID string
	// Reference is the caller-supplied human reference (unique).
	Reference string
	// Status is the lifecycle status.
	Status Status
	// ScheduledReleaseAt is when the release is scheduled to happen.
	ScheduledReleaseAt time.Time
	// CreatedBy is the actor that created the check.
	CreatedBy string
	// CreatedAt is when the check was created.
	CreatedAt time.Time
	// DecidedAt is when the check was approved or rejected. Nil while pending.
	DecidedAt *time.Time
	// DecisionReason holds the rejection reason. Nil unless rejected.
	DecisionReason *string
}

// IsDecided reports whether the check has reached a terminal status.
func (c Check) IsDecided() bool {
	return c.Status == StatusApproved || c.Status == StatusRejected
}

// ParseStatus canonicalizes a status label.
func ParseStatus(value string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "PENDING":
		return StatusPending, true
	case "APPROVED":
		return StatusApproved, true
	case "REJECTED":
		return StatusRejected, true
	default:
		return StatusUnspecified, false
	}
}

// IsStatusTransitionAllowed reports whether a status transition is permitted.
// The only legal transitions are PENDING to APPROVED and PENDING to REJECTED.
func IsStatusTransitionAllowed(from, to Status) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusApproved || to == StatusRejected
}

// NewCheckInput carries the caller inputs for creating a check.
type NewCheckInput struct {
	Reference          string
	ScheduledReleaseAt time.Time
	ActorID            string
}

// NewCheck validates input and constructs a pending check.
// The clock and idGenerator seams keep construction deterministic in tests.
func NewCheck(input NewCheckInput, clock func() time.Time, idGenerator func() (string, error)) (Check, error) {
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return Check{}, ErrEmptyReference
	}
	if len(reference) > MaxReferenceLength {
		return Check{}, apperrors.WithMetadata(apperrors.CodeCheckReferenceTooLong,
			"check reference exceeds length limit",
			map[string]string{"reference": reference})
	}
	if input.ScheduledReleaseAt.IsZero() {
		return Check{}, ErrInvalidSchedule
	}
	actorID := strings.TrimSpace(input.ActorID)
	if actorID == "" {
		return Check{}, ErrEmptyActorID
	}

	checkID, err := idGenerator()
	if err != nil {
		return Check{}, err
	}

	return Check{
		ID:                 checkID,
		Reference:          reference,
		Status:             StatusPending,
		ScheduledReleaseAt: input.ScheduledReleaseAt.UTC(),
		CreatedBy:          actorID,
		CreatedAt:          clock().UTC(),
	}, nil
}

// ValidateReason validates a rejection reason and returns its trimmed form.
func ValidateReason(reason string) (string, error) {
	trimmed := strings.TrimSpace(reason)
	if trimmed == "" {
		return "", ErrEmptyReason
	}
	if len(trimmed) > MaxReasonLength {
		return "", ErrReasonTooLong
	}
	return trimmed, nil
}
