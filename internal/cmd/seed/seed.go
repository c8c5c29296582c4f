// Package seed populates a local development database by driving the check
// service end to end.
package seed

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/releasegate/releasegate/internal/authz"
	"github.com/releasegate/releasegate/internal/check"
	entrypoint "github.com/releasegate/releasegate/internal/platform/cmd"
	"github.com/releasegate/releasegate/internal/service"
	"github.com/releasegate/releasegate/internal/storage/integrity"
	"github.com/releasegate/releasegate/internal/storage/sqlite"
)

// Config holds seed command configuration.
type Config struct {
	DBPath string `env:"RELEASEGATE_DB_PATH" envDefault:"releasegate.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite database")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run seeds one approved, one rejected, and one pending check, then verifies
// every chain it created.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	keyring, err := integrity.KeyringFromEnv()
	if err != nil {
		return err
	}

	store, err := sqlite.Open(cfg.DBPath, keyring)
	if err != nil {
		return err
	}
	defer store.Close()

	checks := service.NewCheckService(store)
	queries := service.NewQueryService(store)

	approved, err := seedApproved(ctx, checks)
	if err != nil {
		return err
	}
	rejected, err := seedRejected(ctx, checks)
	if err != nil {
		return err
	}
	pending, err := seedPending(ctx, checks)
	if err != nil {
		return err
	}

	for _, c := range []check.Check{approved, rejected, pending} {
		result, err := queries.Verify(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("verify %s: %w", c.Reference, err)
		}
		if verr := service.IntegrityError(c.ID, result); verr != nil {
			return verr
		}
		fmt.Fprintf(out, "%s %s %s (%d audit records)\n", c.ID, c.Reference, c.Status, result.Records)
	}
	return nil
}

func seedApproved(ctx context.Context, checks *service.CheckService) (check.Check, error) {
	created, err := checks.CreateCheck(ctx, service.CreateCheckRequest{
		Reference:          "DEMO-APPROVED",
		ScheduledReleaseAt: time.Now().UTC().AddDate(0, 1, 0),
		ActorID:            "officer-demo",
		ActorRole:          authz.RoleOfficer,
	})
	if err != nil {
		return check.Check{}, fmt.Errorf("create DEMO-APPROVED: %w", err)
	}

	evidence := []struct {
		evidenceType check.EvidenceType
		value        string
		source       string
	}{
		{check.EvidenceTypeCourtOrder, `{"caseNumber":"CR-2026-014","outcome":"release ordered"}`, "crown court"},
		{check.EvidenceTypeWarrantCheck, `{"outstanding":false}`, "national registry"},
	}
	for _, e := range evidence {
		if _, err := checks.AddEvidence(ctx, service.AddEvidenceRequest{
			CheckID:   created.ID,
			Type:      e.evidenceType,
			Value:     json.RawMessage(e.value),
			Source:    e.source,
			ActorID:   "officer-demo",
			ActorRole: authz.RoleOfficer,
		}); err != nil {
			return check.Check{}, fmt.Errorf("add evidence to DEMO-APPROVED: %w", err)
		}
	}

	approved, err := checks.ApproveCheck(ctx, service.DecideCheckRequest{
		CheckID:   created.ID,
		ActorID:   "supervisor-demo",
		ActorRole: authz.RoleSupervisor,
	})
	if err != nil {
		return check.Check{}, fmt.Errorf("approve DEMO-APPROVED: %w", err)
	}
	return approved, nil
}

func seedRejected(ctx context.Context, checks *service.CheckService) (check.Check, error) {
	created, err := checks.CreateCheck(ctx, service.CreateCheckRequest{
		Reference:          "DEMO-REJECTED",
		ScheduledReleaseAt: time.Now().UTC().AddDate(0, 0, 14),
		ActorID:            "officer-demo",
		ActorRole:          authz.RoleOfficer,
	})
	if err != nil {
		return check.Check{}, fmt.Errorf("create DEMO-REJECTED: %w", err)
	}

	if _, err := checks.AddEvidence(ctx, service.AddEvidenceRequest{
		CheckID:   created.ID,
		Type:      check.EvidenceTypeRecallStatus,
		Value:     json.RawMessage(`{"recalled":true,"since":"2026-07-12"}`),
		Source:    "probation service",
		ActorID:   "officer-demo",
		ActorRole: authz.RoleOfficer,
	}); err != nil {
		return check.Check{}, fmt.Errorf("add evidence to DEMO-REJECTED: %w", err)
	}

	rejected, err := checks.RejectCheck(ctx, service.DecideCheckRequest{
		CheckID:   created.ID,
		Reason:    "active recall in force",
		ActorID:   "auditor-demo",
		ActorRole: authz.RoleAuditor,
	})
	if err != nil {
		return check.Check{}, fmt.Errorf("reject DEMO-REJECTED: %w", err)
	}
	return rejected, nil
}

func seedPending(ctx context.Context, checks *service.CheckService) (check.Check, error) {
	created, err := checks.CreateCheck(ctx, service.CreateCheckRequest{
		Reference:          "DEMO-PENDING",
		ScheduledReleaseAt: time.Now().UTC().AddDate(0, 2, 0),
		ActorID:            "officer-demo",
		ActorRole:          authz.RoleOfficer,
	})
	if err != nil {
		return check.Check{}, fmt.Errorf("create DEMO-PENDING: %w", err)
	}

	if _, err := checks.AddEvidence(ctx, service.AddEvidenceRequest{
		CheckID:   created.ID,
		Type:      check.EvidenceTypeLicenceStatus,
		Value:     json.RawMessage(`{"standing":"under review"}`),
		Source:    "licensing board",
		ActorID:   "officer-demo",
		ActorRole: authz.RoleOfficer,
	}); err != nil {
		return check.Check{}, fmt.Errorf("add evidence to DEMO-PENDING: %w", err)
	}
	return created, nil
}
