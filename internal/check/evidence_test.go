package check

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/releasegate/releasegate/internal/errors"
)

func TestNewEvidenceItem(t *testing.T) {
	item, err := NewEvidenceItem(NewEvidenceInput{
		CheckID: "check-0001",
		Type:    EvidenceTypeCourtOrder,
		Value:   json.RawMessage(`{"court":"Crown Court","order":"CO-17"}`),
		Source:  " registry ",
		ActorID: "officer-1",
	}, fixedClock, staticID)
	if err != nil {
		t.Fatalf("new evidence: %v", err)
	}
	if item.CheckID != "check-0001" {
		t.Fatalf("check id = %q", item.CheckID)
	}
	if item.Source != "registry" {
		t.Fatalf("expected trimmed source, got %q", item.Source)
	}
	if item.CreatedAt != fixedClock() {
		t.Fatalf("created at = %v", item.CreatedAt)
	}
}

func TestNewEvidenceItemValidation(t *testing.T) {
	valid := NewEvidenceInput{
		CheckID: "check-0001",
		Type:    EvidenceTypeWarrantCheck,
		Value:   json.RawMessage(`{"result":"clear"}`),
		ActorID: "officer-1",
	}

	tests := []struct {
		name    string
		mutate  func(*NewEvidenceInput)
		wantErr *apperrors.Error
	}{
		{
			name:    "unknown type",
			mutate:  func(in *NewEvidenceInput) { in.Type = "DNA_SAMPLE" },
			wantErr: ErrInvalidEvidenceType,
		},
		{
			name:    "nil value",
			mutate:  func(in *NewEvidenceInput) { in.Value = nil },
			wantErr: ErrEmptyEvidenceValue,
		},
		{
			name:    "null value",
			mutate:  func(in *NewEvidenceInput) { in.Value = json.RawMessage(`null`) },
			wantErr: ErrEmptyEvidenceValue,
		},
		{
			name:    "empty object value",
			mutate:  func(in *NewEvidenceInput) { in.Value = json.RawMessage(`{}`) },
			wantErr: ErrEmptyEvidenceValue,
		},
		{
			name:    "malformed value",
			mutate:  func(in *NewEvidenceInput) { in.Value = json.RawMessage(`{"result":`) },
			wantErr: ErrInvalidEvidenceValue,
		},
		{
			name:    "source too long",
			mutate:  func(in *NewEvidenceInput) { in.Source = strings.Repeat("s", MaxSourceLength+1) },
			wantErr: ErrSourceTooLong,
		},
		{
			name:    "empty actor",
			mutate:  func(in *NewEvidenceInput) { in.ActorID = " " },
			wantErr: ErrEmptyActorID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)
			_, err := NewEvidenceItem(input, fixedClock, staticID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseEvidenceType(t *testing.T) {
	for _, label := range []string{
		"COURT_ORDER", "LICENCE_STATUS", "RECALL_STATUS",
		"IMMIGRATION_HOLD", "WARRANT_CHECK", "SAFEGUARDING_CHECK", "OTHER",
	} {
		if _, ok := ParseEvidenceType(label); !ok {
			t.Fatalf("expected %q to parse", label)
		}
	}
	if _, ok := ParseEvidenceType("FINGERPRINT"); ok {
		t.Fatal("expected unknown type to be rejected")
	}
	if got, ok := ParseEvidenceType(" court_order "); !ok || got != EvidenceTypeCourtOrder {
		t.Fatalf("expected case-insensitive parse, got %q/%v", got, ok)
	}
}
