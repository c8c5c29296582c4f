// Package service implements the release-check operations on top of the
// storage layer: the check state machine and the read-side query service.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/releasegate/releasegate/internal/audit"
	"github.com/releasegate/releasegate/internal/authz"
	"github.com/releasegate/releasegate/internal/check"
	apperrors "github.com/releasegate/releasegate/internal/errors"
	"github.com/releasegate/releasegate/internal/id"
	"github.com/releasegate/releasegate/internal/storage"
)

var tracer = otel.Tracer("releasegate/service")

// CheckService owns the check lifecycle. Every mutation commits atomically
// with exactly one audit record through the storage layer.
type CheckService struct {
	store storage.Store
	clock func() time.Time
	newID func() (string, error)
}

// CheckServiceOption configures a CheckService.
type CheckServiceOption func(*CheckService)

// WithClock overrides the service clock.
func WithClock(clock func() time.Time) CheckServiceOption {
	return func(s *CheckService) {
		s.clock = clock
	}
}

// WithIDGenerator overrides the identifier generator.
func WithIDGenerator(newID func() (string, error)) CheckServiceOption {
	return func(s *CheckService) {
		s.newID = newID
	}
}

// NewCheckService constructs a CheckService backed by the given store.
func NewCheckService(store storage.Store, opts ...CheckServiceOption) *CheckService {
	s := &CheckService{
		store: store,
		clock: time.Now,
		newID: id.NewID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// CreateCheckRequest carries the inputs for creating a check.
type CreateCheckRequest struct {
	Reference          string
	ScheduledReleaseAt time.Time
	ActorID            string
	ActorRole          authz.Role
}

// CreateCheck creates a pending check and its CREATED audit record.
func (s *CheckService) CreateCheck(ctx context.Context, req CreateCheckRequest) (check.Check, error) {
	ctx, span := tracer.Start(ctx, "CheckService.CreateCheck")
	defer span.End()

	c, err := check.NewCheck(check.NewCheckInput{
		Reference:          req.Reference,
		ScheduledReleaseAt: req.ScheduledReleaseAt,
		ActorID:            req.ActorID,
	}, s.clock, s.newID)
	if err != nil {
		return check.Check{}, err
	}
	span.SetAttributes(attribute.String("check.id", c.ID))

	created, _, err := s.store.CreateCheck(ctx, c, req.ActorRole)
	if errors.Is(err, storage.ErrReferenceExists) {
		return check.Check{}, apperrors.WithMetadata(apperrors.CodeCheckReferenceExists,
			"check reference already exists",
			map[string]string{"reference": c.Reference})
	}
	if err != nil {
		return check.Check{}, apperrors.Wrap(apperrors.CodeUnknown, "create check", err)
	}
	return created, nil
}

// AddEvidenceRequest carries the inputs for attaching evidence to a check.
type AddEvidenceRequest struct {
	CheckID   string
	Type      check.EvidenceType
	Value     json.RawMessage
	Source    string
	ActorID   string
	ActorRole authz.Role
}

// AddEvidence attaches an evidence item to a pending check and appends its
// EVIDENCE_ADDED audit record in the same transaction.
func (s *CheckService) AddEvidence(ctx context.Context, req AddEvidenceRequest) (check.EvidenceItem, error) {
	ctx, span := tracer.Start(ctx, "CheckService.AddEvidence")
	defer span.End()
	span.SetAttributes(attribute.String("check.id", req.CheckID))

	current, err := s.store.GetCheck(ctx, req.CheckID)
	if err != nil {
		return check.EvidenceItem{}, mapLookupErr(err, req.CheckID)
	}
	count, err := s.store.CountEvidence(ctx, req.CheckID)
	if err != nil {
		return check.EvidenceItem{}, apperrors.Wrap(apperrors.CodeUnknown, "count evidence", err)
	}

	decision := authz.Permit(req.ActorRole, authz.ActionAddEvidence, current.Status, count)
	if !decision.Allowed {
		return check.EvidenceItem{}, denyError(decision, authz.ActionAddEvidence, req.ActorRole)
	}

	item, err := check.NewEvidenceItem(check.NewEvidenceInput{
		CheckID: req.CheckID,
		Type:    req.Type,
		Value:   req.Value,
		Source:  req.Source,
		ActorID: req.ActorID,
	}, s.clock, s.newID)
	if err != nil {
		return check.EvidenceItem{}, err
	}

	stored, _, err := s.store.AddEvidence(ctx, item, req.ActorRole)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return check.EvidenceItem{}, mapLookupErr(err, req.CheckID)
	case errors.Is(err, storage.ErrCheckDecided):
		// The decision raced past the permit check above.
		return check.EvidenceItem{}, apperrors.WithMetadata(apperrors.CodeCheckAlreadyDecided,
			"check is already decided",
			map[string]string{"check_id": req.CheckID})
	case err != nil:
		return check.EvidenceItem{}, apperrors.Wrap(apperrors.CodeUnknown, "add evidence", err)
	}
	return stored, nil
}

// DecideCheckRequest carries the inputs for approving or rejecting a check.
type DecideCheckRequest struct {
	CheckID   string
	Reason    string
	ActorID   string
	ActorRole authz.Role
}

// ApproveCheck transitions a pending check to APPROVED and appends the
// APPROVED audit record in the same transaction.
func (s *CheckService) ApproveCheck(ctx context.Context, req DecideCheckRequest) (check.Check, error) {
	ctx, span := tracer.Start(ctx, "CheckService.ApproveCheck")
	defer span.End()
	span.SetAttributes(attribute.String("check.id", req.CheckID))

	return s.decide(ctx, req, check.StatusApproved, authz.ActionApprove, "")
}

// RejectCheck transitions a pending check to REJECTED with a reason and
// appends the REJECTED audit record in the same transaction.
func (s *CheckService) RejectCheck(ctx context.Context, req DecideCheckRequest) (check.Check, error) {
	ctx, span := tracer.Start(ctx, "CheckService.RejectCheck")
	defer span.End()
	span.SetAttributes(attribute.String("check.id", req.CheckID))

	reason, err := check.ValidateReason(req.Reason)
	if err != nil {
		return check.Check{}, err
	}
	return s.decide(ctx, req, check.StatusRejected, authz.ActionReject, reason)
}

func (s *CheckService) decide(ctx context.Context, req DecideCheckRequest, decision check.Status, action authz.Action, reason string) (check.Check, error) {
	if _, err := validActor(req.ActorID); err != nil {
		return check.Check{}, err
	}

	current, err := s.store.GetCheck(ctx, req.CheckID)
	if err != nil {
		return check.Check{}, mapLookupErr(err, req.CheckID)
	}
	count, err := s.store.CountEvidence(ctx, req.CheckID)
	if err != nil {
		return check.Check{}, apperrors.Wrap(apperrors.CodeUnknown, "count evidence", err)
	}

	permit := authz.Permit(req.ActorRole, action, current.Status, count)
	if !permit.Allowed {
		return check.Check{}, denyError(permit, action, req.ActorRole)
	}

	decided, _, err := s.store.DecideCheck(ctx, storage.DecideCheckRequest{
		CheckID:   req.CheckID,
		Decision:  decision,
		Reason:    reason,
		ActorID:   req.ActorID,
		ActorRole: req.ActorRole,
	})
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return check.Check{}, mapLookupErr(err, req.CheckID)
	case errors.Is(err, storage.ErrCheckDecided):
		return check.Check{}, apperrors.WithMetadata(apperrors.CodeCheckDecisionConflict,
			"check was decided concurrently",
			map[string]string{"check_id": req.CheckID})
	case errors.Is(err, storage.ErrNoEvidence):
		return check.Check{}, apperrors.WithMetadata(apperrors.CodeCheckNoEvidence,
			"approval requires at least one evidence item",
			map[string]string{"check_id": req.CheckID})
	case err != nil:
		return check.Check{}, apperrors.Wrap(apperrors.CodeUnknown, "decide check", err)
	}
	return decided, nil
}

func validActor(actorID string) (string, error) {
	if actorID == "" {
		return "", check.ErrEmptyActorID
	}
	return actorID, nil
}

// denyError maps a policy denial to the error taxonomy: role denials are
// Forbidden, status denials are a decision conflict for approve/reject and a
// precondition failure for evidence, missing evidence is a precondition
// failure.
func denyError(decision authz.Decision, action authz.Action, role authz.Role) error {
	metadata := map[string]string{
		"action": string(action),
		"role":   string(role),
		"reason": decision.ReasonCode,
	}
	switch decision.ReasonCode {
	case authz.ReasonDenyStatus:
		if action == authz.ActionAddEvidence {
			return apperrors.WithMetadata(apperrors.CodeCheckAlreadyDecided,
				"check is already decided", metadata)
		}
		return apperrors.WithMetadata(apperrors.CodeCheckDecisionConflict,
			"check is not pending", metadata)
	case authz.ReasonDenyNoEvidence:
		return apperrors.WithMetadata(apperrors.CodeCheckNoEvidence,
			"approval requires at least one evidence item", metadata)
	default:
		return apperrors.WithMetadata(apperrors.CodeActorForbidden,
			"role is not permitted for this action", metadata)
	}
}

func mapLookupErr(err error, checkID string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperrors.WithMetadata(apperrors.CodeNotFound,
			"check not found", map[string]string{"check_id": checkID})
	}
	return apperrors.Wrap(apperrors.CodeUnknown, "load check", err)
}

// Ledger returns the audit records for a check in chain order. It exists for
// callers that need the raw chain rather than a page, such as the seeder.
func (s *CheckService) Ledger(ctx context.Context, checkID string, afterSeq uint64, limit int) ([]audit.Record, error) {
	records, err := s.store.ListAuditRecords(ctx, checkID, afterSeq, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnknown, "list audit records", err)
	}
	return records, nil
}
