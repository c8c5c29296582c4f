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

const evidenceColumns = `id, check_id, seq, evidence_type, value_json, source,
created_by, created_at`

func scanEvidenceItem(row interface{ Scan(...any) error }) (check.EvidenceItem, error) {
	var item check.EvidenceItem
	var seq int64
	var evidenceType, value string
	var created int64
	if err := row.Scan(&item.ID, &item.CheckID, &seq, &evidenceType, &value,
		&item.Source, &item.CreatedBy, &created); err != nil {
		return check.EvidenceItem{}, err
	}
	item.Seq = uint64(seq)
	item.Type = check.EvidenceType(evidenceType)
	item.Value = json.RawMessage(value)
	item.CreatedAt = fromMillis(created)
	return item, nil
}

// AddEvidence commits an evidence item and its EVIDENCE_ADDED audit record in
// one transaction. Evidence attaches to pending checks only.
func (s *Store) AddEvidence(ctx context.Context, item check.EvidenceItem, role authz.Role) (check.EvidenceItem, audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return check.EvidenceItem{}, audit.Record{}, err
	}
	if s == nil || s.sqlDB == nil {
		return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("storage is not configured")
	}

	item.CreatedAt = item.CreatedAt.UTC().Truncate(time.Millisecond)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// The no-op guard UPDATE takes the write lock up front and re-checks the
	// status inside the transaction, so a decision that committed after the
	// caller's read still rejects this append.
	res, err := tx.ExecContext(ctx,
		"UPDATE checks SET status = status WHERE id = ? AND status = ?",
		item.CheckID, string(check.StatusPending))
	if err != nil {
		return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("guard check status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("guard check rows: %w", err)
	}
	if affected == 0 {
		var exists int
		err = tx.QueryRowContext(ctx,
			"SELECT 1 FROM checks WHERE id = ?", item.CheckID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return check.EvidenceItem{}, audit.Record{}, storage.ErrNotFound
		}
		if err != nil {
			return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("load check: %w", err)
		}
		return check.EvidenceItem{}, audit.Record{}, storage.ErrCheckDecided
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) + 1 FROM evidence_items WHERE check_id = ?",
		item.CheckID).Scan(&seq); err != nil {
		return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("next evidence seq: %w", err)
	}
	item.Seq = uint64(seq)

	if _, err := tx.ExecContext(ctx, `
INSERT INTO evidence_items (id, check_id, seq, evidence_type, value_json, source, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.CheckID, seq, string(item.Type), string(item.Value),
		item.Source, item.CreatedBy, toMillis(item.CreatedAt),
	); err != nil {
		return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("insert evidence: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"evidenceId": item.ID,
		"type":       string(item.Type),
	})
	if err != nil {
		return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("marshal evidence payload: %w", err)
	}

	rec, err := s.appendAuditTx(ctx, tx, audit.Record{
		CheckID:     item.CheckID,
		Action:      audit.ActionEvidenceAdded,
		ActorID:     item.CreatedBy,
		ActorRole:   role,
		Timestamp:   item.CreatedAt,
		PayloadJSON: payload,
	})
	if err != nil {
		return check.EvidenceItem{}, audit.Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return check.EvidenceItem{}, audit.Record{}, fmt.Errorf("commit: %w", err)
	}

	return item, rec, nil
}

// ListEvidencePage returns one page of a check's evidence items.
func (s *Store) ListEvidencePage(ctx context.Context, req storage.ListEvidencePageRequest) (storage.ListEvidencePageResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListEvidencePageResult{}, err
	}

	pageSize := clampPageSize(req.PageSize)

	whereClause := "check_id = ?"
	params := []any{req.CheckID}
	if req.CursorSeq > 0 {
		if req.Descending {
			whereClause += " AND seq < ?"
		} else {
			whereClause += " AND seq > ?"
		}
		params = append(params, int64(req.CursorSeq))
	}

	orderClause := "ORDER BY seq ASC"
	if req.Descending {
		orderClause = "ORDER BY seq DESC"
	}

	query := fmt.Sprintf("SELECT %s FROM evidence_items WHERE %s %s LIMIT %d",
		evidenceColumns, whereClause, orderClause, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return storage.ListEvidencePageResult{}, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	var items []check.EvidenceItem
	for rows.Next() {
		item, err := scanEvidenceItem(rows)
		if err != nil {
			return storage.ListEvidencePageResult{}, fmt.Errorf("scan evidence: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return storage.ListEvidencePageResult{}, fmt.Errorf("iterate evidence: %w", err)
	}

	hasMore := false
	if len(items) > pageSize {
		hasMore = true
		items = items[:pageSize]
	}

	return storage.ListEvidencePageResult{Items: items, HasMore: hasMore}, nil
}

// CountEvidence reflects all committed items for the check.
func (s *Store) CountEvidence(ctx context.Context, checkID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	if err := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM evidence_items WHERE check_id = ?", checkID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count evidence: %w", err)
	}
	return count, nil
}
