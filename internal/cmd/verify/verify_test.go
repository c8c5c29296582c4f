package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/releasegate/releasegate/internal/authz"
	"github.com/releasegate/releasegate/internal/check"
	"github.com/releasegate/releasegate/internal/service"
	"github.com/releasegate/releasegate/internal/storage/integrity"
	"github.com/releasegate/releasegate/internal/storage/sqlite"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("RELEASEGATE_DB_PATH", "/var/lib/releasegate/env.db")

	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.DBPath != "/var/lib/releasegate/env.db" {
		t.Errorf("DBPath = %q, want env value", cfg.DBPath)
	}
	if cfg.CheckID != "" {
		t.Errorf("CheckID = %q, want empty", cfg.CheckID)
	}
}

func TestParseConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("RELEASEGATE_DB_PATH", "/var/lib/releasegate/env.db")

	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "flag.db", "-check", "chk_1"})
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.DBPath != "flag.db" {
		t.Errorf("DBPath = %q, want flag value", cfg.DBPath)
	}
	if cfg.CheckID != "chk_1" {
		t.Errorf("CheckID = %q, want chk_1", cfg.CheckID)
	}
}

func seedVerifyDB(t *testing.T) (dbPath string, checkIDs []string) {
	t.Helper()
	t.Setenv("RELEASEGATE_AUDIT_HMAC_KEY", "verify-test-root-key")

	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		t.Fatalf("KeyringFromEnv() error = %v", err)
	}

	dbPath = filepath.Join(t.TempDir(), "verify.db")
	store, err := sqlite.Open(dbPath, keyring)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	checks := service.NewCheckService(store)
	ctx := context.Background()

	for _, reference := range []string{"REL-2026-001", "REL-2026-002"} {
		created, err := checks.CreateCheck(ctx, service.CreateCheckRequest{
			Reference:          reference,
			ScheduledReleaseAt: time.Date(2026, 9, 15, 8, 0, 0, 0, time.UTC),
			ActorID:            "officer-1",
			ActorRole:          authz.RoleOfficer,
		})
		if err != nil {
			t.Fatalf("CreateCheck(%s) error = %v", reference, err)
		}
		if _, err := checks.AddEvidence(ctx, service.AddEvidenceRequest{
			CheckID:   created.ID,
			Type:      check.EvidenceTypeWarrantCheck,
			Value:     json.RawMessage(`{"outstanding":false}`),
			Source:    "registry",
			ActorID:   "officer-1",
			ActorRole: authz.RoleOfficer,
		}); err != nil {
			t.Fatalf("AddEvidence(%s) error = %v", reference, err)
		}
		checkIDs = append(checkIDs, created.ID)
	}
	return dbPath, checkIDs
}

func TestRunReportsValidChains(t *testing.T) {
	dbPath, _ := seedVerifyDB(t)

	var out bytes.Buffer
	if err := Run(context.Background(), Config{DBPath: dbPath}, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	report := out.String()
	if got := strings.Count(report, ": ok ("); got != 2 {
		t.Errorf("ok lines = %d, want 2\n%s", got, report)
	}
	if !strings.Contains(report, "verified 2 chains, 0 broken") {
		t.Errorf("missing summary line\n%s", report)
	}
}

func TestRunSingleCheck(t *testing.T) {
	dbPath, checkIDs := seedVerifyDB(t)

	var out bytes.Buffer
	cfg := Config{DBPath: dbPath, CheckID: checkIDs[0]}
	if err := Run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	report := out.String()
	if strings.Contains(report, checkIDs[1]) {
		t.Errorf("report mentions the other check\n%s", report)
	}
	if !strings.Contains(report, "verified 1 chains, 0 broken") {
		t.Errorf("missing summary line\n%s", report)
	}
}

func TestRunDetectsTamper(t *testing.T) {
	dbPath, checkIDs := seedVerifyDB(t)

	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		t.Fatalf("KeyringFromEnv() error = %v", err)
	}
	store, err := sqlite.Open(dbPath, keyring)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_, err = store.DB().ExecContext(context.Background(),
		`UPDATE audit_records SET actor_id = 'intruder' WHERE check_id = ? AND seq = 2`,
		checkIDs[0])
	if err != nil {
		t.Fatalf("tamper update error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	var out bytes.Buffer
	err = Run(context.Background(), Config{DBPath: dbPath}, &out)
	if err == nil {
		t.Fatal("Run() error = nil, want failed verification")
	}
	if !strings.Contains(err.Error(), "failed verification") {
		t.Errorf("Run() error = %v, want failed verification", err)
	}
	report := out.String()
	if !strings.Contains(report, checkIDs[0]+": BROKEN at seq 2") {
		t.Errorf("missing broken line for tampered chain\n%s", report)
	}
	if !strings.Contains(report, "verified 2 chains, 1 broken") {
		t.Errorf("missing summary line\n%s", report)
	}
}
