// Package verify parses verify command flags and runs the audit chain sweep.
package verify

import (
	"context"
	"flag"
	"fmt"
	"io"

	entrypoint "github.com/releasegate/releasegate/internal/platform/cmd"
	"github.com/releasegate/releasegate/internal/storage/integrity"
	"github.com/releasegate/releasegate/internal/storage/sqlite"
)

// Config holds verify command configuration.
type Config struct {
	DBPath string `env:"RELEASEGATE_DB_PATH" envDefault:"releasegate.db"`
	// CheckID restricts the sweep to one check when set.
	CheckID string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to the SQLite database")
	fs.StringVar(&cfg.CheckID, "check", cfg.CheckID, "verify a single check id (default: all)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run verifies audit chains and writes a per-check report to out.
// It returns an error when any chain fails verification.
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

	checkIDs := []string{cfg.CheckID}
	if cfg.CheckID == "" {
		checkIDs, err = store.ListCheckIDs(ctx)
		if err != nil {
			return err
		}
	}

	broken := 0
	for _, checkID := range checkIDs {
		result, err := store.VerifyAuditChain(ctx, checkID)
		if err != nil {
			return fmt.Errorf("verify %s: %w", checkID, err)
		}
		if result.Valid {
			fmt.Fprintf(out, "%s: ok (%d records)\n", checkID, result.Records)
			continue
		}
		broken++
		fmt.Fprintf(out, "%s: BROKEN at seq %d record %s: %s\n",
			checkID, result.BrokenSeq, result.BrokenRecordID, result.Reason)
	}

	fmt.Fprintf(out, "verified %d chains, %d broken\n", len(checkIDs), broken)
	if broken > 0 {
		return fmt.Errorf("%d of %d audit chains failed verification", broken, len(checkIDs))
	}
	return nil
}
