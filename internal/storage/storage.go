// Package storage defines the persistence interfaces for checks, evidence,
// and the audit chain, plus the request/result types for paginated reads.
//
// Implementations must provide an atomic check-and-commit boundary scoped to
// one check: a mutation and its audit append either both commit or neither
// does, and concurrent appends for the same check observe a single total
// order.
package storage

import (
	"context"
	"errors"

	"github.com/releasegate/releasegate/internal/audit"
	"github.com/releasegate/releasegate/internal/authz"
	"github.com/releasegate/releasegate/internal/check"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrReferenceExists indicates the check reference is already taken.
var ErrReferenceExists = errors.New("check reference already exists")

// ErrCheckDecided indicates the check is no longer pending at commit time.
var ErrCheckDecided = errors.New("check is already decided")

// ErrNoEvidence indicates approval was attempted with zero committed evidence.
var ErrNoEvidence = errors.New("check has no evidence")

// SortKey selects the ordering column for check listings.
type SortKey string

const (
	// SortByCreatedAt orders checks by creation time.
	SortByCreatedAt SortKey = "createdAt"
	// SortByScheduledReleaseAt orders checks by scheduled release time.
	SortByScheduledReleaseAt SortKey = "scheduledReleaseAt"
)

// ParseSortKey canonicalizes a sort key label.
func ParseSortKey(value string) (SortKey, bool) {
	switch SortKey(value) {
	case "", SortByCreatedAt:
		return SortByCreatedAt, true
	case SortByScheduledReleaseAt:
		return SortByScheduledReleaseAt, true
	default:
		return "", false
	}
}

// CheckWithCounts is a check projection carrying authoritative child counts.
type CheckWithCounts struct {
	check.Check
	EvidenceCount int
	AuditCount    int
}

// DecideCheckRequest carries one approval or rejection decision.
type DecideCheckRequest struct {
	CheckID   string
	Decision  check.Status // StatusApproved or StatusRejected
	Reason    string       // required for rejections
	ActorID   string
	ActorRole authz.Role
}

// ListChecksPageRequest describes one page of the check listing.
type ListChecksPageRequest struct {
	// Query free-text matches against reference and identifier.
	Query string
	// Status filters by lifecycle status when set.
	Status check.Status
	// SortKey selects the ordering column; ties break by check id.
	SortKey SortKey
	// Descending reverses the sort order.
	Descending bool
	// PageSize bounds the page; implementations clamp it.
	PageSize int
	// HasCursor indicates CursorKey/CursorID position the page.
	HasCursor bool
	// CursorKey is the ordering key value (UTC millis) to paginate from.
	CursorKey int64
	// CursorID is the tiebreaker check id to paginate from.
	CursorID string
}

// ListChecksPageResult is one page of checks.
type ListChecksPageResult struct {
	Checks     []CheckWithCounts
	HasMore    bool
	TotalCount int
}

// ListEvidencePageRequest describes one page of a check's evidence.
type ListEvidencePageRequest struct {
	CheckID string
	// Descending returns newest items first (the display order); ascending
	// returns creation order (the audit-reasoning order).
	Descending bool
	PageSize   int
	// CursorSeq positions the page after (or before, descending) this
	// evidence sequence number. Zero means the first page.
	CursorSeq uint64
}

// ListEvidencePageResult is one page of evidence items.
type ListEvidencePageResult struct {
	Items   []check.EvidenceItem
	HasMore bool
}

// ListAuditPageRequest describes one page of a check's audit chain.
type ListAuditPageRequest struct {
	CheckID string
	// FilterClause is an optional SQL condition over audit columns produced
	// by the filter package; FilterParams are its positional parameters.
	FilterClause string
	FilterParams []any
	Descending   bool
	PageSize     int
	CursorSeq    uint64
}

// ListAuditPageResult is one page of audit records.
type ListAuditPageResult struct {
	Records []audit.Record
	HasMore bool
}

// VerifyResult reports the outcome of one chain verification.
type VerifyResult struct {
	// Valid is true when every record's linkage, hash, and signature check out.
	Valid bool
	// Records is the number of records inspected.
	Records int
	// BrokenSeq is the chain position of the first offending record.
	BrokenSeq uint64
	// BrokenRecordID identifies the first offending record.
	BrokenRecordID string
	// Reason describes the first detected mismatch.
	Reason string
}

// CheckStore persists check records and their creation audit entry.
type CheckStore interface {
	// CreateCheck commits a new pending check together with its CREATED
	// audit record in one atomic unit.
	CreateCheck(ctx context.Context, c check.Check, role authz.Role) (check.Check, audit.Record, error)
	GetCheck(ctx context.Context, checkID string) (check.Check, error)
	GetCheckWithCounts(ctx context.Context, checkID string) (CheckWithCounts, error)
	ListChecksPage(ctx context.Context, req ListChecksPageRequest) (ListChecksPageResult, error)
	// DecideCheck transitions a pending check to a terminal status and
	// appends the matching audit record in one atomic unit. It fails with
	// ErrCheckDecided when the check is no longer pending at commit time
	// and with ErrNoEvidence when approving a check without evidence.
	DecideCheck(ctx context.Context, req DecideCheckRequest) (check.Check, audit.Record, error)
}

// EvidenceStore persists append-only evidence items.
type EvidenceStore interface {
	// AddEvidence commits an evidence item together with its EVIDENCE_ADDED
	// audit record in one atomic unit. It fails with ErrCheckDecided when
	// the owning check is no longer pending.
	AddEvidence(ctx context.Context, item check.EvidenceItem, role authz.Role) (check.EvidenceItem, audit.Record, error)
	ListEvidencePage(ctx context.Context, req ListEvidencePageRequest) (ListEvidencePageResult, error)
	// CountEvidence reflects all committed items for the check.
	CountEvidence(ctx context.Context, checkID string) (int, error)
}

// AuditStore reads and verifies audit chains.
type AuditStore interface {
	// ListAuditRecords returns records in chain order after the given
	// sequence number. Chain order is load-bearing for verification.
	ListAuditRecords(ctx context.Context, checkID string, afterSeq uint64, limit int) ([]audit.Record, error)
	ListAuditPage(ctx context.Context, req ListAuditPageRequest) (ListAuditPageResult, error)
	// VerifyAuditChain recomputes the full chain for a check. It never
	// repairs or rewrites stored records.
	VerifyAuditChain(ctx context.Context, checkID string) (VerifyResult, error)
	// ListCheckIDs returns every check id with at least one audit record.
	ListCheckIDs(ctx context.Context) ([]string, error)
}

// Store combines all storage interfaces.
type Store interface {
	CheckStore
	EvidenceStore
	AuditStore
	Close() error
}
