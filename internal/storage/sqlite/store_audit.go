package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/releasegate/releasegate/internal/audit"
	"github.com/releasegate/releasegate/internal/authz"
	"github.com/releasegate/releasegate/internal/id"
	"github.com/releasegate/releasegate/internal/storage"
)

// verifyPageSize bounds how many records one verification query loads.
const verifyPageSize = 200

// appendAuditTx appends one record to a check's chain inside the caller's
// transaction. Sequence allocation, predecessor lookup, hashing, and signing
// all happen under the same write lock, so concurrent appends for the same
// check serialize into a single total order.
func (s *Store) appendAuditTx(ctx context.Context, tx *sql.Tx, rec audit.Record) (audit.Record, error) {
	validated, err := audit.ValidateForAppend(rec)
	if err != nil {
		return audit.Record{}, err
	}
	rec = validated

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	rec.Timestamp = rec.Timestamp.UTC().Truncate(time.Millisecond)

	if rec.ID == "" {
		recordID, err := id.NewID()
		if err != nil {
			return audit.Record{}, fmt.Errorf("generate audit record id: %w", err)
		}
		rec.ID = recordID
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO audit_seq (check_id, seq) VALUES (?, 1)", rec.CheckID); err != nil {
		return audit.Record{}, fmt.Errorf("init audit seq: %w", err)
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT seq FROM audit_seq WHERE check_id = ?", rec.CheckID).Scan(&seq); err != nil {
		return audit.Record{}, fmt.Errorf("get audit seq: %w", err)
	}
	rec.Seq = uint64(seq)

	if _, err := tx.ExecContext(ctx,
		"UPDATE audit_seq SET seq = seq + 1 WHERE check_id = ?", rec.CheckID); err != nil {
		return audit.Record{}, fmt.Errorf("increment audit seq: %w", err)
	}

	prevHash := ""
	if rec.Seq > 1 {
		if err := tx.QueryRowContext(ctx,
			"SELECT hash FROM audit_records WHERE check_id = ? AND seq = ?",
			rec.CheckID, seq-1).Scan(&prevHash); err != nil {
			return audit.Record{}, fmt.Errorf("load previous audit record: %w", err)
		}
	}

	hash, err := audit.RecordHash(rec, prevHash)
	if err != nil {
		return audit.Record{}, fmt.Errorf("compute record hash: %w", err)
	}

	signature, keyID, err := s.keyring.SignRecordHash(rec.CheckID, hash)
	if err != nil {
		return audit.Record{}, fmt.Errorf("sign record hash: %w", err)
	}

	rec.PrevHash = prevHash
	rec.Hash = hash
	rec.Signature = signature
	rec.SignatureKeyID = keyID

	payload := sql.NullString{}
	if len(rec.PayloadJSON) > 0 {
		payload = sql.NullString{String: string(rec.PayloadJSON), Valid: true}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_records (
    id, check_id, seq, action, actor_id, actor_role, timestamp,
    payload_json, prev_hash, hash, signature, signature_key_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CheckID, int64(rec.Seq), string(rec.Action), rec.ActorID,
		string(rec.ActorRole), toMillis(rec.Timestamp), payload,
		rec.PrevHash, rec.Hash, rec.Signature, rec.SignatureKeyID,
	); err != nil {
		return audit.Record{}, fmt.Errorf("append audit record: %w", err)
	}

	return rec, nil
}

const auditColumns = `id, check_id, seq, action, actor_id, actor_role, timestamp,
payload_json, prev_hash, hash, signature, signature_key_id`

func scanAuditRecord(row interface{ Scan(...any) error }) (audit.Record, error) {
	var rec audit.Record
	var seq int64
	var action, role string
	var ts int64
	var payload sql.NullString
	if err := row.Scan(&rec.ID, &rec.CheckID, &seq, &action, &rec.ActorID, &role,
		&ts, &payload, &rec.PrevHash, &rec.Hash, &rec.Signature, &rec.SignatureKeyID); err != nil {
		return audit.Record{}, err
	}
	rec.Seq = uint64(seq)
	rec.Action = audit.Action(action)
	rec.ActorRole = authz.Role(role)
	rec.Timestamp = fromMillis(ts)
	if payload.Valid {
		rec.PayloadJSON = []byte(payload.String)
	}
	return rec, nil
}

// ListAuditRecords returns records in chain order after the given sequence number.
func (s *Store) ListAuditRecords(ctx context.Context, checkID string, afterSeq uint64, limit int) ([]audit.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = verifyPageSize
	}

	rows, err := s.sqlDB.QueryContext(ctx, fmt.Sprintf(`
SELECT %s FROM audit_records
WHERE check_id = ? AND seq > ?
ORDER BY seq ASC
LIMIT ?`, auditColumns), checkID, int64(afterSeq), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}

// ListAuditPage returns one page of a check's audit chain, optionally filtered.
func (s *Store) ListAuditPage(ctx context.Context, req storage.ListAuditPageRequest) (storage.ListAuditPageResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.ListAuditPageResult{}, err
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
	if req.FilterClause != "" {
		whereClause += " AND " + req.FilterClause
		params = append(params, req.FilterParams...)
	}

	orderClause := "ORDER BY seq ASC"
	if req.Descending {
		orderClause = "ORDER BY seq DESC"
	}

	query := fmt.Sprintf("SELECT %s FROM audit_records WHERE %s %s LIMIT %d",
		auditColumns, whereClause, orderClause, pageSize+1)

	rows, err := s.sqlDB.QueryContext(ctx, query, params...)
	if err != nil {
		return storage.ListAuditPageResult{}, fmt.Errorf("list audit page: %w", err)
	}
	defer rows.Close()

	var records []audit.Record
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return storage.ListAuditPageResult{}, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return storage.ListAuditPageResult{}, fmt.Errorf("iterate audit records: %w", err)
	}

	hasMore := false
	if len(records) > pageSize {
		hasMore = true
		records = records[:pageSize]
	}

	return storage.ListAuditPageResult{Records: records, HasMore: hasMore}, nil
}

// VerifyAuditChain recomputes a check's full chain and reports the first
// mismatch, if any. Stored records are never repaired or rewritten.
func (s *Store) VerifyAuditChain(ctx context.Context, checkID string) (storage.VerifyResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.VerifyResult{}, err
	}
	if strings.TrimSpace(checkID) == "" {
		return storage.VerifyResult{}, fmt.Errorf("check id is required")
	}

	result := storage.VerifyResult{Valid: true}
	prevHash := ""
	var lastSeq uint64

	for {
		records, err := s.ListAuditRecords(ctx, checkID, lastSeq, verifyPageSize)
		if err != nil {
			return storage.VerifyResult{}, err
		}
		if len(records) == 0 {
			committedSeq, err := s.committedAuditSeq(ctx, checkID)
			if err != nil {
				return storage.VerifyResult{}, err
			}
			if lastSeq < committedSeq {
				result.Valid = false
				result.BrokenSeq = lastSeq + 1
				result.Reason = fmt.Sprintf("missing trailing records: expected %d, found %d", committedSeq, lastSeq)
			}
			return result, nil
		}

		for _, rec := range records {
			result.Records++

			if rec.Seq != lastSeq+1 {
				return brokenChain(result, rec, fmt.Sprintf("sequence gap: expected %d, got %d", lastSeq+1, rec.Seq)), nil
			}
			if rec.PrevHash != prevHash {
				return brokenChain(result, rec, "previous hash mismatch"), nil
			}

			recomputed, err := audit.RecordHash(rec, prevHash)
			if err != nil {
				return brokenChain(result, rec, fmt.Sprintf("recompute hash: %v", err)), nil
			}
			if recomputed != rec.Hash {
				return brokenChain(result, rec, "record hash mismatch"), nil
			}

			if err := s.keyring.VerifyRecordHash(checkID, rec.Hash, rec.Signature, rec.SignatureKeyID); err != nil {
				return brokenChain(result, rec, fmt.Sprintf("signature mismatch: %v", err)), nil
			}

			prevHash = rec.Hash
			lastSeq = rec.Seq
		}
	}
}

// committedAuditSeq returns the last audit sequence number committed for the
// check per the counter table, or zero when the chain was never written. The
// counter survives record deletion, so it exposes a truncated chain tail.
func (s *Store) committedAuditSeq(ctx context.Context, checkID string) (uint64, error) {
	var next int64
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT seq FROM audit_seq WHERE check_id = ?", checkID).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load audit seq counter: %w", err)
	}
	// The counter holds the next sequence to allocate.
	return uint64(next) - 1, nil
}

func brokenChain(result storage.VerifyResult, rec audit.Record, reason string) storage.VerifyResult {
	result.Valid = false
	result.BrokenSeq = rec.Seq
	result.BrokenRecordID = rec.ID
	result.Reason = reason
	return result
}

// ListCheckIDs returns every check id with at least one audit record.
func (s *Store) ListCheckIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT DISTINCT check_id FROM audit_records ORDER BY check_id")
	if err != nil {
		return nil, fmt.Errorf("list check ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var checkID string
		if err := rows.Scan(&checkID); err != nil {
			return nil, fmt.Errorf("scan check id: %w", err)
		}
		ids = append(ids, checkID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate check ids: %w", err)
	}
	return ids, nil
}
