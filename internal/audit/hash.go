package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// envelopeVersion tags the hash envelope so the scheme can evolve without
// invalidating stored chains.
const envelopeVersion = "relgate.audit.v1"

var (
	errEmptyCheckID  = errors.New("audit record check id is required")
	errInvalidAction = errors.New("audit record action is not recognized")
	errEmptyActorID  = errors.New("audit record actor id is required")
)

// RecordHash computes the SHA-256 hash linking a record to its predecessor.
//
// The envelope is newline-separated with a version tag, so no field value can
// shift a boundary into an adjacent field. The payload is canonicalized before
// hashing: identical logical content always hashes identically.
func RecordHash(rec Record, prevHash string) (string, error) {
	if strings.TrimSpace(rec.CheckID) == "" {
		return "", errEmptyCheckID
	}
	if !rec.Action.IsValid() {
		return "", errInvalidAction
	}
	if rec.Timestamp.IsZero() {
		return "", fmt.Errorf("audit record timestamp is required")
	}

	payload, err := CanonicalPayload(rec.PayloadJSON)
	if err != nil {
		return "", fmt.Errorf("canonicalize payload: %w", err)
	}

	envelope := strings.Join([]string{
		envelopeVersion,
		prevHash,
		rec.CheckID,
		string(rec.Action),
		rec.ActorID,
		string(rec.ActorRole),
		canonicalTimestamp(rec.Timestamp),
		payload,
	}, "\n")

	sum := sha256.Sum256([]byte(envelope))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalTimestamp renders a timestamp the same way storage persists it:
// UTC, truncated to millisecond precision.
func canonicalTimestamp(value time.Time) string {
	return value.UTC().Truncate(time.Millisecond).Format(time.RFC3339Nano)
}

// CanonicalPayload produces a deterministic encoding of a JSON payload.
//
// Object keys are sorted at every depth and number literals are preserved
// verbatim, so semantically identical payloads always encode identically.
// A nil or empty payload canonicalizes to "null".
func CanonicalPayload(raw []byte) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "null", nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return "", fmt.Errorf("decode payload: %w", err)
	}
	if decoder.More() {
		return "", fmt.Errorf("payload contains trailing data")
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, value); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// writeCanonical renders a decoded JSON value with sorted object keys.
func writeCanonical(buf *bytes.Buffer, value any) error {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return err
			}
			buf.Write(encodedKey)
			buf.WriteByte(':')
			if err := writeCanonical(buf, v[key]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case json.Number:
		buf.WriteString(v.String())
		return nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(encoded)
		return nil
	}
}
