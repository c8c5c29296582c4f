package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/releasegate/releasegate/internal/audit"
	"github.com/releasegate/releasegate/internal/check"
	apperrors "github.com/releasegate/releasegate/internal/errors"
	"github.com/releasegate/releasegate/internal/filter"
	"github.com/releasegate/releasegate/internal/storage"
	"github.com/releasegate/releasegate/internal/storage/cursor"
)

// QueryService provides read-only projections over checks, evidence, and
// audit records. It never mutates state.
type QueryService struct {
	store storage.Store
}

// NewQueryService constructs a QueryService backed by the given store.
func NewQueryService(store storage.Store) *QueryService {
	return &QueryService{store: store}
}

// GetCheck loads one check with its authoritative evidence and audit counts.
func (s *QueryService) GetCheck(ctx context.Context, checkID string) (storage.CheckWithCounts, error) {
	ctx, span := tracer.Start(ctx, "QueryService.GetCheck")
	defer span.End()
	span.SetAttributes(attribute.String("check.id", checkID))

	result, err := s.store.GetCheckWithCounts(ctx, checkID)
	if err != nil {
		return storage.CheckWithCounts{}, mapLookupErr(err, checkID)
	}
	return result, nil
}

// ListChecksRequest describes one page of the check listing.
type ListChecksRequest struct {
	// Query free-text matches against reference and identifier.
	Query string
	// Status filters by lifecycle status when non-empty.
	Status string
	// SortBy is "createdAt" (default) or "scheduledReleaseAt".
	SortBy string
	// Descending reverses the sort order.
	Descending bool
	PageSize   int
	// PageToken is an opaque cursor from a previous page.
	PageToken string
}

// ListChecksResult is one page of checks.
type ListChecksResult struct {
	Checks        []storage.CheckWithCounts
	NextPageToken string
	TotalCount    int
}

func invalidCursor(err error) error {
	return apperrors.WithMetadata(apperrors.CodeQueryInvalidCursor,
		"page token is not valid for this query",
		map[string]string{"cause": err.Error()})
}

// ListChecks returns one page of checks matching the request.
func (s *QueryService) ListChecks(ctx context.Context, req ListChecksRequest) (ListChecksResult, error) {
	ctx, span := tracer.Start(ctx, "QueryService.ListChecks")
	defer span.End()

	var status check.Status
	if req.Status != "" {
		parsed, ok := check.ParseStatus(req.Status)
		if !ok {
			return ListChecksResult{}, apperrors.WithMetadata(apperrors.CodeQueryInvalidStatus,
				"status is not a recognized value",
				map[string]string{"status": req.Status})
		}
		status = parsed
	}

	sortKey, ok := storage.ParseSortKey(req.SortBy)
	if !ok {
		return ListChecksResult{}, apperrors.WithMetadata(apperrors.CodeQueryInvalidSort,
			"sort key is not a recognized value",
			map[string]string{"sort_by": req.SortBy})
	}

	filterKey := req.Query + "|" + string(status)
	orderKey := fmt.Sprintf("%s:%v", sortKey, req.Descending)

	storeReq := storage.ListChecksPageRequest{
		Query:      req.Query,
		Status:     status,
		SortKey:    sortKey,
		Descending: req.Descending,
		PageSize:   req.PageSize,
	}

	if req.PageToken != "" {
		c, err := cursor.Decode(req.PageToken)
		if err != nil {
			return ListChecksResult{}, invalidCursor(err)
		}
		if err := cursor.ValidateFilterHash(c, filterKey); err != nil {
			return ListChecksResult{}, invalidCursor(err)
		}
		if err := cursor.ValidateOrderHash(c, orderKey); err != nil {
			return ListChecksResult{}, invalidCursor(err)
		}
		storeReq.HasCursor = true
		storeReq.CursorKey = c.Key
		storeReq.CursorID = c.ID
	}

	page, err := s.store.ListChecksPage(ctx, storeReq)
	if err != nil {
		return ListChecksResult{}, apperrors.Wrap(apperrors.CodeUnknown, "list checks", err)
	}

	result := ListChecksResult{Checks: page.Checks, TotalCount: page.TotalCount}
	if page.HasMore && len(page.Checks) > 0 {
		last := page.Checks[len(page.Checks)-1]
		key := last.CreatedAt.UnixMilli()
		if sortKey == storage.SortByScheduledReleaseAt {
			key = last.ScheduledReleaseAt.UnixMilli()
		}
		token, err := cursor.Encode(cursor.NewKeyCursor(key, last.ID, req.Descending, filterKey, orderKey))
		if err != nil {
			return ListChecksResult{}, apperrors.Wrap(apperrors.CodeUnknown, "encode cursor", err)
		}
		result.NextPageToken = token
	}
	return result, nil
}

// ListEvidenceRequest describes one page of a check's evidence.
type ListEvidenceRequest struct {
	CheckID string
	// OldestFirst returns creation order. The default is newest first, the
	// display order.
	OldestFirst bool
	PageSize    int
	PageToken   string
}

// ListEvidenceResult is one page of evidence items.
type ListEvidenceResult struct {
	Items         []check.EvidenceItem
	NextPageToken string
}

// ListEvidence returns one page of a check's evidence items.
func (s *QueryService) ListEvidence(ctx context.Context, req ListEvidenceRequest) (ListEvidenceResult, error) {
	ctx, span := tracer.Start(ctx, "QueryService.ListEvidence")
	defer span.End()
	span.SetAttributes(attribute.String("check.id", req.CheckID))

	if _, err := s.store.GetCheck(ctx, req.CheckID); err != nil {
		return ListEvidenceResult{}, mapLookupErr(err, req.CheckID)
	}

	descending := !req.OldestFirst
	storeReq := storage.ListEvidencePageRequest{
		CheckID:    req.CheckID,
		Descending: descending,
		PageSize:   req.PageSize,
	}

	if req.PageToken != "" {
		c, err := cursor.Decode(req.PageToken)
		if err != nil {
			return ListEvidenceResult{}, invalidCursor(err)
		}
		if err := validateSeqCursorDirection(c, descending); err != nil {
			return ListEvidenceResult{}, invalidCursor(err)
		}
		if err := cursor.ValidateFilterHash(c, ""); err != nil {
			return ListEvidenceResult{}, invalidCursor(err)
		}
		storeReq.CursorSeq = c.Seq
	}

	page, err := s.store.ListEvidencePage(ctx, storeReq)
	if err != nil {
		return ListEvidenceResult{}, apperrors.Wrap(apperrors.CodeUnknown, "list evidence", err)
	}

	result := ListEvidenceResult{Items: page.Items}
	if page.HasMore && len(page.Items) > 0 {
		last := page.Items[len(page.Items)-1]
		token, err := cursor.Encode(cursor.NewSeqCursor(last.Seq, descending, ""))
		if err != nil {
			return ListEvidenceResult{}, apperrors.Wrap(apperrors.CodeUnknown, "encode cursor", err)
		}
		result.NextPageToken = token
	}
	return result, nil
}

// ListAuditRequest describes one page of a check's audit chain.
type ListAuditRequest struct {
	CheckID string
	// Filter is an optional AIP-160 expression over action, actor_id,
	// actor_role, and ts.
	Filter string
	// Descending returns newest records first. The default is chain order,
	// which verification depends on.
	Descending bool
	PageSize   int
	PageToken  string
	// Verify additionally runs chain verification over the whole chain.
	Verify bool
}

// ListAuditResult is one page of audit records, optionally with the chain
// verification outcome.
type ListAuditResult struct {
	Records       []audit.Record
	NextPageToken string
	Verification  *storage.VerifyResult
}

// ListAudit returns one page of a check's audit chain.
func (s *QueryService) ListAudit(ctx context.Context, req ListAuditRequest) (ListAuditResult, error) {
	ctx, span := tracer.Start(ctx, "QueryService.ListAudit")
	defer span.End()
	span.SetAttributes(attribute.String("check.id", req.CheckID))

	if _, err := s.store.GetCheck(ctx, req.CheckID); err != nil {
		return ListAuditResult{}, mapLookupErr(err, req.CheckID)
	}

	condition, err := filter.ParseAuditFilter(req.Filter)
	if err != nil {
		return ListAuditResult{}, apperrors.WithMetadata(apperrors.CodeQueryInvalidFilter,
			"filter expression is not valid",
			map[string]string{"cause": err.Error()})
	}

	storeReq := storage.ListAuditPageRequest{
		CheckID:      req.CheckID,
		FilterClause: condition.Clause,
		FilterParams: condition.Params,
		Descending:   req.Descending,
		PageSize:     req.PageSize,
	}

	if req.PageToken != "" {
		c, err := cursor.Decode(req.PageToken)
		if err != nil {
			return ListAuditResult{}, invalidCursor(err)
		}
		if err := validateSeqCursorDirection(c, req.Descending); err != nil {
			return ListAuditResult{}, invalidCursor(err)
		}
		if err := cursor.ValidateFilterHash(c, req.Filter); err != nil {
			return ListAuditResult{}, invalidCursor(err)
		}
		storeReq.CursorSeq = c.Seq
	}

	page, err := s.store.ListAuditPage(ctx, storeReq)
	if err != nil {
		return ListAuditResult{}, apperrors.Wrap(apperrors.CodeUnknown, "list audit records", err)
	}

	result := ListAuditResult{Records: page.Records}
	if page.HasMore && len(page.Records) > 0 {
		last := page.Records[len(page.Records)-1]
		token, err := cursor.Encode(cursor.NewSeqCursor(last.Seq, req.Descending, req.Filter))
		if err != nil {
			return ListAuditResult{}, apperrors.Wrap(apperrors.CodeUnknown, "encode cursor", err)
		}
		result.NextPageToken = token
	}

	if req.Verify {
		verification, err := s.store.VerifyAuditChain(ctx, req.CheckID)
		if err != nil {
			return ListAuditResult{}, apperrors.Wrap(apperrors.CodeUnknown, "verify audit chain", err)
		}
		result.Verification = &verification
	}
	return result, nil
}

// Verify recomputes a check's full audit chain and reports the outcome.
func (s *QueryService) Verify(ctx context.Context, checkID string) (storage.VerifyResult, error) {
	ctx, span := tracer.Start(ctx, "QueryService.Verify")
	defer span.End()
	span.SetAttributes(attribute.String("check.id", checkID))

	if _, err := s.store.GetCheck(ctx, checkID); err != nil {
		return storage.VerifyResult{}, mapLookupErr(err, checkID)
	}

	result, err := s.store.VerifyAuditChain(ctx, checkID)
	if err != nil {
		return storage.VerifyResult{}, apperrors.Wrap(apperrors.CodeUnknown, "verify audit chain", err)
	}
	return result, nil
}

// IntegrityError converts a failed verification into the taxonomy error.
// A valid result yields nil.
func IntegrityError(checkID string, result storage.VerifyResult) error {
	if result.Valid {
		return nil
	}
	return apperrors.WithMetadata(apperrors.CodeAuditChainBroken,
		"audit chain verification failed",
		map[string]string{
			"check_id":  checkID,
			"seq":       fmt.Sprintf("%d", result.BrokenSeq),
			"record_id": result.BrokenRecordID,
			"reason":    result.Reason,
		})
}

func validateSeqCursorDirection(c cursor.Cursor, descending bool) error {
	want := cursor.DirectionForward
	if descending {
		want = cursor.DirectionBackward
	}
	if c.Dir != want {
		return errors.New("ordering changed since cursor was created")
	}
	return nil
}
