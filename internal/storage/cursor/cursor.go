// Package cursor provides opaque pagination token encoding/decoding.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Direction indicates the pagination direction.
type Direction string

const (
	// DirectionForward paginates forward (position > cursor).
	DirectionForward Direction = "fwd"
	// DirectionBackward paginates backward (position < cursor).
	DirectionBackward Direction = "bwd"
)

// Cursor represents the internal state of a pagination cursor.
//
// Seq positions sequence-keyed listings (evidence, audit records). Key and
// ID position check listings, where the ordering key is a timestamp column
// with the check id as tiebreaker.
type Cursor struct {
	// Seq is the sequence number to paginate from (sequence-keyed listings).
	Seq uint64 `json:"seq,omitempty"`
	// Key is the ordering key value to paginate from (key-keyed listings).
	Key int64 `json:"key,omitempty"`
	// ID is the tiebreaker identifier for key-keyed listings.
	ID string `json:"id,omitempty"`
	// Dir is the pagination direction.
	Dir Direction `json:"dir"`
	// FilterHash invalidates tokens when the filter changes.
	FilterHash string `json:"filter_hash,omitempty"`
	// OrderHash invalidates tokens when the ordering changes.
	OrderHash string `json:"order_hash,omitempty"`
}

// Encode encodes a cursor to an opaque base64 string.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode decodes an opaque base64 string to a cursor.
// Returns an error if the token is invalid or malformed.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, fmt.Errorf("empty token")
	}

	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode base64: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}

	if c.Dir != DirectionForward && c.Dir != DirectionBackward {
		return Cursor{}, fmt.Errorf("invalid cursor direction: %q", c.Dir)
	}

	return c, nil
}

// HashFilter computes a short hash of the filter string for cursor validation.
// Returns empty string for empty filter.
func HashFilter(filter string) string {
	if filter == "" {
		return ""
	}
	h := sha256.Sum256([]byte(filter))
	return hex.EncodeToString(h[:8])
}

// ValidateFilterHash checks if the cursor's filter hash matches the current filter.
func ValidateFilterHash(c Cursor, currentFilter string) error {
	if c.FilterHash != HashFilter(currentFilter) {
		return fmt.Errorf("filter changed since cursor was created")
	}
	return nil
}

// ValidateOrderHash checks if the cursor's order hash matches the current ordering.
func ValidateOrderHash(c Cursor, currentOrderBy string) error {
	if c.OrderHash != HashFilter(currentOrderBy) {
		return fmt.Errorf("ordering changed since cursor was created")
	}
	return nil
}

// NewSeqCursor creates a cursor positioned after lastSeq.
// For descending listings the next page holds smaller sequence numbers.
func NewSeqCursor(lastSeq uint64, descending bool, filter string) Cursor {
	dir := DirectionForward
	if descending {
		dir = DirectionBackward
	}
	return Cursor{
		Seq:        lastSeq,
		Dir:        dir,
		FilterHash: HashFilter(filter),
	}
}

// NewKeyCursor creates a cursor positioned after (lastKey, lastID).
func NewKeyCursor(lastKey int64, lastID string, descending bool, filter, orderBy string) Cursor {
	dir := DirectionForward
	if descending {
		dir = DirectionBackward
	}
	return Cursor{
		Key:        lastKey,
		ID:         lastID,
		Dir:        dir,
		FilterHash: HashFilter(filter),
		OrderHash:  HashFilter(orderBy),
	}
}
