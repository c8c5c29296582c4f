package seed

import (
	"bytes"
	"context"
	"flag"
	"path/filepath"
	"strings"
	"testing"

	"github.com/releasegate/releasegate/internal/storage/integrity"
	"github.com/releasegate/releasegate/internal/storage/sqlite"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("RELEASEGATE_DB_PATH", "env.db")

	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "flag.db"})
	if err != nil {
		t.Fatalf("ParseConfig() error = %v", err)
	}
	if cfg.DBPath != "flag.db" {
		t.Errorf("DBPath = %q, want flag value", cfg.DBPath)
	}
}

func TestRunSeedsDecidedAndPendingChecks(t *testing.T) {
	t.Setenv("RELEASEGATE_AUDIT_HMAC_KEY", "seed-test-root-key")
	dbPath := filepath.Join(t.TempDir(), "seed.db")

	var out bytes.Buffer
	if err := Run(context.Background(), Config{DBPath: dbPath}, &out); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	report := out.String()
	for _, want := range []string{
		"DEMO-APPROVED APPROVED",
		"DEMO-REJECTED REJECTED",
		"DEMO-PENDING PENDING",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q\n%s", want, report)
		}
	}

	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		t.Fatalf("KeyringFromEnv() error = %v", err)
	}
	store, err := sqlite.Open(dbPath, keyring)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	checkIDs, err := store.ListCheckIDs(context.Background())
	if err != nil {
		t.Fatalf("ListCheckIDs() error = %v", err)
	}
	if len(checkIDs) != 3 {
		t.Fatalf("seeded %d checks, want 3", len(checkIDs))
	}
	for _, checkID := range checkIDs {
		result, err := store.VerifyAuditChain(context.Background(), checkID)
		if err != nil {
			t.Fatalf("VerifyAuditChain(%s) error = %v", checkID, err)
		}
		if !result.Valid {
			t.Errorf("chain for %s broken at seq %d: %s", checkID, result.BrokenSeq, result.Reason)
		}
	}
}

func TestRunFailsOnExistingReferences(t *testing.T) {
	t.Setenv("RELEASEGATE_AUDIT_HMAC_KEY", "seed-test-root-key")
	dbPath := filepath.Join(t.TempDir(), "seed.db")

	var out bytes.Buffer
	if err := Run(context.Background(), Config{DBPath: dbPath}, &out); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if err := Run(context.Background(), Config{DBPath: dbPath}, &out); err == nil {
		t.Fatal("second Run() error = nil, want reference conflict")
	}
}
