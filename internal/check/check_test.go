package check

import (
	"errors"
	"strings"
	"testing"
	"time"

	apperrors "github.com/releasegate/releasegate/internal/errors"
)

func fixedClock() time.Time {
	return time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
}

func staticID() (string, error) {
	return "check-0001", nil
}

func TestNewCheck(t *testing.T) {
	created, err := NewCheck(NewCheckInput{
		Reference:          "  REF-001  ",
		ScheduledReleaseAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ActorID:            "officer-1",
	}, fixedClock, staticID)
	if err != nil {
		t.Fatalf("new check: %v", err)
	}

	if created.ID != "check-0001" {
		t.Fatalf("id = %q", created.ID)
	}
	if created.Reference != "REF-001" {
		t.Fatalf("expected trimmed reference, got %q", created.Reference)
	}
	if created.Status != StatusPending {
		t.Fatalf("status = %q, want %q", created.Status, StatusPending)
	}
	if created.CreatedAt != fixedClock() {
		t.Fatalf("created at = %v", created.CreatedAt)
	}
	if created.DecidedAt != nil || created.DecisionReason != nil {
		t.Fatal("expected no decision fields on a new check")
	}
}

func TestNewCheckValidation(t *testing.T) {
	valid := NewCheckInput{
		Reference:          "REF-001",
		ScheduledReleaseAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ActorID:            "officer-1",
	}

	tests := []struct {
		name    string
		mutate  func(*NewCheckInput)
		wantErr *apperrors.Error
	}{
		{
			name:    "empty reference",
			mutate:  func(in *NewCheckInput) { in.Reference = "   " },
			wantErr: ErrEmptyReference,
		},
		{
			name:    "reference too long",
			mutate:  func(in *NewCheckInput) { in.Reference = strings.Repeat("x", MaxReferenceLength+1) },
			wantErr: ErrReferenceTooLong,
		},
		{
			name:    "zero schedule",
			mutate:  func(in *NewCheckInput) { in.ScheduledReleaseAt = time.Time{} },
			wantErr: ErrInvalidSchedule,
		},
		{
			name:    "empty actor",
			mutate:  func(in *NewCheckInput) { in.ActorID = "" },
			wantErr: ErrEmptyActorID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := valid
			tt.mutate(&input)
			_, err := NewCheck(input, fixedClock, staticID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{"PENDING", StatusPending, true},
		{" pending ", StatusPending, true},
		{"Approved", StatusApproved, true},
		{"REJECTED", StatusRejected, true},
		{"", StatusUnspecified, false},
		{"CANCELLED", StatusUnspecified, false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseStatus(%q) = %q/%v, want %q/%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestStatusTransitions(t *testing.T) {
	if !IsStatusTransitionAllowed(StatusPending, StatusApproved) {
		t.Fatal("pending to approved should be allowed")
	}
	if !IsStatusTransitionAllowed(StatusPending, StatusRejected) {
		t.Fatal("pending to rejected should be allowed")
	}
	if IsStatusTransitionAllowed(StatusApproved, StatusRejected) {
		t.Fatal("approved is terminal")
	}
	if IsStatusTransitionAllowed(StatusRejected, StatusPending) {
		t.Fatal("rejected is terminal")
	}
	if IsStatusTransitionAllowed(StatusPending, StatusPending) {
		t.Fatal("no self transition")
	}
}

func TestValidateReason(t *testing.T) {
	if _, err := ValidateReason("  "); !errors.Is(err, ErrEmptyReason) {
		t.Fatalf("err = %v, want %v", err, ErrEmptyReason)
	}
	if _, err := ValidateReason(strings.Repeat("a", MaxReasonLength+1)); !errors.Is(err, ErrReasonTooLong) {
		t.Fatalf("err = %v, want %v", err, ErrReasonTooLong)
	}
	got, err := ValidateReason(" missing court order ")
	if err != nil {
		t.Fatalf("validate reason: %v", err)
	}
	if got != "missing court order" {
		t.Fatalf("reason = %q", got)
	}
}
