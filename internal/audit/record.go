// Package audit defines the hash-chained audit record model.
//
// Every mutating action on a check appends exactly one immutable record to
// that check's chain. Record n's PrevHash equals record n-1's Hash, so any
// retroactive edit or reorder is detectable by recomputation.
package audit

import (
	"strings"
	"time"

	"github.com/releasegate/releasegate/internal/authz"
)

// Action identifies the kind of mutating operation a record documents.
type Action string

const (
	// ActionCreated records the creation of a check.
	ActionCreated Action = "CREATED"
	// ActionEvidenceAdded records an evidence item being attached.
	ActionEvidenceAdded Action = "EVIDENCE_ADDED"
	// ActionApproved records an approval decision.
	ActionApproved Action = "APPROVED"
	// ActionRejected records a rejection decision.
	ActionRejected Action = "REJECTED"
)

// IsValid reports whether the action is a known member of the enumeration.
func (a Action) IsValid() bool {
	switch a {
	case ActionCreated, ActionEvidenceAdded, ActionApproved, ActionRejected:
		return true
	default:
		return false
	}
}

// Record is one immutable entry in a check's audit chain.
type Record struct {
	// ID is the opaque record identifier.
	ID string
	// CheckID is the check this record belongs to.
	CheckID string
	// Seq is the record's position within the check's chain (starts at 1).
	// Assigned by storage on append.
	Seq uint64
	// Action identifies the documented operation.
	Action Action
	// ActorID is the actor that performed the operation.
	ActorID string
	// ActorRole is the actor's resolved role at the time of the operation.
	ActorRole authz.Role
	// Timestamp is when the operation committed.
	Timestamp time.Time
	// PayloadJSON holds action-specific data as JSON (may be nil).
	PayloadJSON []byte
	// PrevHash is the predecessor record's hash; empty for the first record.
	PrevHash string
	// Hash is the record's content hash over PrevHash and all hashed fields.
	// Assigned by storage on append.
	Hash string
	// Signature is the HMAC signature over Hash. Assigned by storage.
	Signature string
	// SignatureKeyID identifies the root key used for Signature.
	SignatureKeyID string
}

// ValidateForAppend normalizes a record before it enters the chain.
func ValidateForAppend(rec Record) (Record, error) {
	if strings.TrimSpace(rec.CheckID) == "" {
		return Record{}, errEmptyCheckID
	}
	if !rec.Action.IsValid() {
		return Record{}, errInvalidAction
	}
	if strings.TrimSpace(rec.ActorID) == "" {
		return Record{}, errEmptyActorID
	}
	rec.CheckID = strings.TrimSpace(rec.CheckID)
	rec.ActorID = strings.TrimSpace(rec.ActorID)
	return rec, nil
}
