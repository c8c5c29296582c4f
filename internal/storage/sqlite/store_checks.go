package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/releasegate/releasegate/internal/audit"
	"github.com/releasegate/releasegate/internal/authz"
	"github.com/releasegate/releasegate/internal/check"
	"github.com/releasegate/releasegate/internal/storage"
)

const checkColumns = `id, reference, status, scheduled_release_at, created_by,
created_at, decided_at, decision_reason`

func scanCheck(row interface{ Scan(...any) error }) (check.Check, error) {
	var c check.Check
	var status string
	var scheduled, created int64
	var decided sql.NullInt64
	var reason sql.NullString
	if err := row.Scan(&c.ID, &c.Reference, &status, &scheduled, &c.CreatedBy,
		&created, &decided, &reason); err != nil {
		return check.Check{}, err
	}
	c.Status = check.Status(status)
	c.ScheduledReleaseAt = fromMillis(scheduled)
	c.CreatedAt = fromMillis(created)
	c.DecidedAt = fromNullMillis(decided)
	if reason.Valid {
		c.DecisionReason = &reason.String
	}
	return c, nil
}

// CreateCheck commits a new pending check and its CREATED audit record in one
// transaction.
func (s *Store) CreateCheck(ctx context.Context, c check.Check, role authz.Role) (check.Check, audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return check.Check{}, audit.Record{}, err
	}
	if s == nil || s.sqlDB == nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("storage is not configured")
	}

	c.CreatedAt = c.CreatedAt.UTC().Truncate(time.Millisecond)
	c.ScheduledReleaseAt = c.ScheduledReleaseAt.UTC().Truncate(time.Millisecond)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO checks (id, reference, status, scheduled_release_at, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.Reference, string(c.Status), toMillis(c.ScheduledReleaseAt),
		c.CreatedBy, toMillis(c.CreatedAt),
	); err != nil {
		if isUniqueReferenceConflict(err) {
			return check.Check{}, audit.Record{}, storage.ErrReferenceExists
		}
		return check.Check{}, audit.Record{}, fmt.Errorf("insert check: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"reference":          c.Reference,
		"scheduledReleaseAt": c.ScheduledReleaseAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("marshal created payload: %w", err)
	}

	rec, err := s.appendAuditTx(ctx, tx, audit.Record{
		CheckID:     c.ID,
		Action:      audit.ActionCreated,
		ActorID:     c.CreatedBy,
		ActorRole:   role,
		Timestamp:   c.CreatedAt,
		PayloadJSON: payload,
	})
	if err != nil {
		return check.Check{}, audit.Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("commit: %w", err)
	}

	return c, rec, nil
}

// GetCheck loads one check by id.
func (s *Store) GetCheck(ctx context.Context, checkID string) (check.Check, error) {
	if err := ctx.Err(); err != nil {
		return check.Check{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM checks WHERE id = ?", checkColumns), checkID)
	c, err := scanCheck(row)
	if errors.Is(err, sql.ErrNoRows) {
		return check.Check{}, storage.ErrNotFound
	}
	if err != nil {
		return check.Check{}, fmt.Errorf("get check: %w", err)
	}
	return c, nil
}

// GetCheckWithCounts loads one check together with its child counts.
func (s *Store) GetCheckWithCounts(ctx context.Context, checkID string) (storage.CheckWithCounts, error) {
	c, err := s.GetCheck(ctx, checkID)
	if err != nil {
		return storage.CheckWithCounts{}, err
	}

	result := storage.CheckWithCounts{Check: c}
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM evidence_items WHERE check_id = ?", checkID).Scan(&result.EvidenceCount); err != nil {
		return storage.CheckWithCounts{}, fmt.Errorf("count evidence: %w", err)
	}
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_records WHERE check_id = ?", checkID).Scan(&result.AuditCount); err != nil {
		return storage.CheckWithCounts{}, fmt.Errorf("count audit records: %w", err)
	}
	return result, nil
}

// ListChecksPage returns one page of the check listing.
func (s *Store) ListChecksPage(ctx context.Context, req storage.ListChecksPageRequest) (storage.ListChecksPageResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListChecksPageResult{}, err
	}

	pageSize := clampPageSize(req.PageSize)
	plan := buildListChecksPageSQLPlan(req, pageSize)

	countQuery := "SELECT COUNT(*) FROM checks"
	if plan.countWhereClause != "" {
		countQuery += " WHERE " + plan.countWhereClause
	}
	var total int
	if err := s.sqlDB.QueryRowContext(ctx, countQuery, plan.countParams...).Scan(&total); err != nil {
		return storage.ListChecksPageResult{}, fmt.Errorf("count checks: %w", err)
	}

	query := fmt.Sprintf("SELECT %s FROM checks", checkColumns)
	if plan.whereClause != "" {
		query += " WHERE " + plan.whereClause
	}
	query += " " + plan.orderClause + " " + plan.limitClause

	rows, err := s.sqlDB.QueryContext(ctx, query, plan.params...)
	if err != nil {
		return storage.ListChecksPageResult{}, fmt.Errorf("list checks: %w", err)
	}
	defer rows.Close()

	var checks []check.Check
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return storage.ListChecksPageResult{}, fmt.Errorf("scan check: %w", err)
		}
		checks = append(checks, c)
	}
	if err := rows.Err(); err != nil {
		return storage.ListChecksPageResult{}, fmt.Errorf("iterate checks: %w", err)
	}

	hasMore := false
	if len(checks) > pageSize {
		hasMore = true
		checks = checks[:pageSize]
	}

	result := storage.ListChecksPageResult{HasMore: hasMore, TotalCount: total}
	for _, c := range checks {
		withCounts := storage.CheckWithCounts{Check: c}
		if err := s.sqlDB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM evidence_items WHERE check_id = ?", c.ID).Scan(&withCounts.EvidenceCount); err != nil {
			return storage.ListChecksPageResult{}, fmt.Errorf("count evidence: %w", err)
		}
		if err := s.sqlDB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM audit_records WHERE check_id = ?", c.ID).Scan(&withCounts.AuditCount); err != nil {
			return storage.ListChecksPageResult{}, fmt.Errorf("count audit records: %w", err)
		}
		result.Checks = append(result.Checks, withCounts)
	}

	return result, nil
}

// DecideCheck transitions a pending check to a terminal status and appends the
// matching audit record in one transaction.
//
// The status guard lives in the UPDATE itself: a concurrent decision that
// commits first flips the row away from PENDING, so the loser's update
// matches zero rows and the whole transaction rolls back.
func (s *Store) DecideCheck(ctx context.Context, req storage.DecideCheckRequest) (check.Check, audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return check.Check{}, audit.Record{}, err
	}
	if !check.IsStatusTransitionAllowed(check.StatusPending, req.Decision) {
		return check.Check{}, audit.Record{}, fmt.Errorf("decision %q is not a terminal status", req.Decision)
	}

	decidedAt := time.Now().UTC().Truncate(time.Millisecond)

	reason := sql.NullString{}
	if req.Decision == check.StatusRejected {
		reason = sql.NullString{String: req.Reason, Valid: true}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// The guarded UPDATE is the first statement on purpose: it takes the
	// write lock immediately, so concurrent deciders serialize on the busy
	// timeout instead of failing a read-to-write upgrade, and only one of
	// them can flip the row away from PENDING.
	res, err := tx.ExecContext(ctx, `
UPDATE checks SET status = ?, decided_at = ?, decision_reason = ?
WHERE id = ? AND status = ?`,
		string(req.Decision), toMillis(decidedAt), reason,
		req.CheckID, string(check.StatusPending))
	if err != nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("decide check: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("decide check rows: %w", err)
	}
	if affected == 0 {
		var exists int
		err = tx.QueryRowContext(ctx,
			"SELECT 1 FROM checks WHERE id = ?", req.CheckID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return check.Check{}, audit.Record{}, storage.ErrNotFound
		}
		if err != nil {
			return check.Check{}, audit.Record{}, fmt.Errorf("load check: %w", err)
		}
		return check.Check{}, audit.Record{}, storage.ErrCheckDecided
	}

	if req.Decision == check.StatusApproved {
		var evidenceCount int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM evidence_items WHERE check_id = ?", req.CheckID).Scan(&evidenceCount); err != nil {
			return check.Check{}, audit.Record{}, fmt.Errorf("count evidence: %w", err)
		}
		if evidenceCount == 0 {
			// Rolling back undoes the status flip above.
			return check.Check{}, audit.Record{}, storage.ErrNoEvidence
		}
	}

	action := audit.ActionApproved
	var payload []byte
	if req.Decision == check.StatusRejected {
		action = audit.ActionRejected
		payload, err = json.Marshal(map[string]string{"reason": req.Reason})
		if err != nil {
			return check.Check{}, audit.Record{}, fmt.Errorf("marshal rejected payload: %w", err)
		}
	}

	rec, err := s.appendAuditTx(ctx, tx, audit.Record{
		CheckID:     req.CheckID,
		Action:      action,
		ActorID:     req.ActorID,
		ActorRole:   req.ActorRole,
		Timestamp:   decidedAt,
		PayloadJSON: payload,
	})
	if err != nil {
		return check.Check{}, audit.Record{}, err
	}

	row := tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM checks WHERE id = ?", checkColumns), req.CheckID)
	decided, err := scanCheck(row)
	if err != nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("reload check: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return check.Check{}, audit.Record{}, fmt.Errorf("commit: %w", err)
	}

	return decided, rec, nil
}
