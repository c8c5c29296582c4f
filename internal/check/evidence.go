package check

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/releasegate/releasegate/internal/errors"
)

// MaxSourceLength bounds the optional evidence source label.
const MaxSourceLength = 255

// EvidenceType identifies the kind of evidence attached to a check.
type EvidenceType string

const (
	// EvidenceTypeCourtOrder records a court order.
	EvidenceTypeCourtOrder EvidenceType = "COURT_ORDER"
	// EvidenceTypeLicenceStatus records the licence standing.
	EvidenceTypeLicenceStatus EvidenceType = "LICENCE_STATUS"
	// EvidenceTypeRecallStatus records the recall standing.
	EvidenceTypeRecallStatus EvidenceType = "RECALL_STATUS"
	// EvidenceTypeImmigrationHold records an immigration hold lookup.
	EvidenceTypeImmigrationHold EvidenceType = "IMMIGRATION_HOLD"
	// EvidenceTypeWarrantCheck records an outstanding-warrant lookup.
	EvidenceTypeWarrantCheck EvidenceType = "WARRANT_CHECK"
	// EvidenceTypeSafeguardingCheck records a safeguarding assessment.
	EvidenceTypeSafeguardingCheck EvidenceType = "SAFEGUARDING_CHECK"
	// EvidenceTypeOther records evidence outside the closed categories.
	EvidenceTypeOther EvidenceType = "OTHER"
)

var (
	// ErrInvalidEvidenceType indicates an unrecognized evidence type.
	ErrInvalidEvidenceType = apperrors.New(apperrors.CodeEvidenceInvalidType, "evidence type is not recognized")
	// ErrEmptyEvidenceValue indicates a missing evidence payload.
	ErrEmptyEvidenceValue = apperrors.New(apperrors.CodeEvidenceValueEmpty, "evidence value is required")
	// ErrInvalidEvidenceValue indicates a malformed evidence payload.
	ErrInvalidEvidenceValue = apperrors.New(apperrors.CodeEvidenceValueInvalid, "evidence value is not valid JSON")
	// ErrSourceTooLong indicates a source label over the length limit.
	ErrSourceTooLong = apperrors.New(apperrors.CodeEvidenceSourceTooLong, "evidence source exceeds length limit")
)

// EvidenceItem is one immutable piece of evidence attached to a pending check.
type EvidenceItem struct {
	// ID is the opaque evidence identifier.
	ID string
	// CheckID is the owning check.
	CheckID string
	// Seq is the item's position within the check's evidence sequence
	// (starts at 1). Assigned by storage on append.
	Seq uint64
	// Type is the evidence category.
	Type EvidenceType
	// Value holds the structured evidence payload as JSON.
	Value json.RawMessage
	// Source optionally labels where the evidence came from.
	Source string
	// CreatedBy is the actor that recorded the evidence.
	CreatedBy string
	// CreatedAt is when the evidence was recorded.
	CreatedAt time.Time
}

// ParseEvidenceType canonicalizes an evidence type label.
func ParseEvidenceType(value string) (EvidenceType, bool) {
	switch EvidenceType(strings.ToUpper(strings.TrimSpace(value))) {
	case EvidenceTypeCourtOrder:
		return EvidenceTypeCourtOrder, true
	case EvidenceTypeLicenceStatus:
		return EvidenceTypeLicenceStatus, true
	case EvidenceTypeRecallStatus:
		return EvidenceTypeRecallStatus, true
	case EvidenceTypeImmigrationHold:
		return EvidenceTypeImmigrationHold, true
	case EvidenceTypeWarrantCheck:
		return EvidenceTypeWarrantCheck, true
	case EvidenceTypeSafeguardingCheck:
		return EvidenceTypeSafeguardingCheck, true
	case EvidenceTypeOther:
		return EvidenceTypeOther, true
	default:
		return "", false
	}
}

// NewEvidenceInput carries the caller inputs for adding evidence.
type NewEvidenceInput struct {
	CheckID string
	Type    EvidenceType
	Value   json.RawMessage
	Source  string
	ActorID string
}

// NewEvidenceItem validates input and constructs an evidence item.
func NewEvidenceItem(input NewEvidenceInput, clock func() time.Time, idGenerator func() (string, error)) (EvidenceItem, error) {
	if _, ok := ParseEvidenceType(string(input.Type)); !ok {
		return EvidenceItem{}, ErrInvalidEvidenceType
	}
	if err := validateEvidenceValue(input.Value); err != nil {
		return EvidenceItem{}, err
	}
	source := strings.TrimSpace(input.Source)
	if len(source) > MaxSourceLength {
		return EvidenceItem{}, ErrSourceTooLong
	}
	actorID := strings.TrimSpace(input.ActorID)
	if actorID == "" {
		return EvidenceItem{}, ErrEmptyActorID
	}

	itemID, err := idGenerator()
	if err != nil {
		return EvidenceItem{}, err
	}

	return EvidenceItem{
		ID:        itemID,
		CheckID:   strings.TrimSpace(input.CheckID),
		Type:      input.Type,
		Value:     input.Value,
		Source:    source,
		CreatedBy: actorID,
		CreatedAt: clock().UTC(),
	}, nil
}

// validateEvidenceValue rejects empty, null, or malformed payloads.
func validateEvidenceValue(value json.RawMessage) error {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ErrEmptyEvidenceValue
	}
	if !json.Valid(trimmed) {
		return ErrInvalidEvidenceValue
	}
	// An empty object carries no evidence content.
	if bytes.Equal(trimmed, []byte("{}")) {
		return ErrEmptyEvidenceValue
	}
	return nil
}
