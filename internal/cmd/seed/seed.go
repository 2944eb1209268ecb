// Package seed parses seed command flags and loads a manifest into the
// trading database.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	entrypoint "github.com/louisbranch/catmarket/internal/platform/cmd"
	"github.com/louisbranch/catmarket/internal/platform/logging"
	"github.com/louisbranch/catmarket/internal/services/trading/settlement/credits"
	"github.com/louisbranch/catmarket/internal/services/trading/storage/sqlite"
	"github.com/louisbranch/catmarket/internal/tools/seed"
)

// Config holds seed command configuration.
type Config struct {
	DBPath       string `env:"CATMARKET_SEED_DB_PATH" envDefault:"data/trading.db"`
	ManifestPath string `env:"CATMARKET_SEED_MANIFEST"`
	DryRun       bool   `env:"CATMARKET_SEED_DRY_RUN"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the trading SQLite database")
	fs.StringVar(&cfg.ManifestPath, "manifest", cfg.ManifestPath, "TOML seed manifest (default: bundled demo)")
	fs.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Validate the manifest without writing")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return Config{}, fmt.Errorf("db path is required")
	}
	return cfg, nil
}

// Run loads the manifest and applies it, writing a summary to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	manifest, err := loadManifest(cfg.ManifestPath)
	if err != nil {
		return err
	}
	if cfg.DryRun {
		fmt.Fprintf(out, "manifest %q is valid: %d assets, %d wallets\n", manifest.Name, len(manifest.Assets), len(manifest.Wallets))
		return nil
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create db dir: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open trading store: %w", err)
	}
	defer store.Close()
	wallets, err := credits.New(ctx, store.DB())
	if err != nil {
		return fmt.Errorf("open wallets: %w", err)
	}

	runner := seed.NewRunner(store, wallets, nil, logging.New(entrypoint.ServiceSeed))
	result, err := runner.Apply(ctx, manifest)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "assets: %d created, %d updated\n", result.AssetsCreated, result.AssetsUpdated)
	fmt.Fprintf(out, "genesis records: %d\n", result.GenesisRecords)
	fmt.Fprintf(out, "wallets funded: %d\n", result.WalletsFunded)
	return nil
}

func loadManifest(path string) (seed.Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return seed.DemoManifest()
	}
	return seed.LoadManifest(path)
}
