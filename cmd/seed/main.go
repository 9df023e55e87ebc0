package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"contentpay/backend/internal/config"
	"contentpay/backend/internal/ledger"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/repository"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile, configFile string
	var balances map[string]string
	cmd := &cobra.Command{
		Use:          "seed",
		Short:        "Initialize user balances in the configured store",
		Long:         "Initialize user balances from seed.balances in the config file, overridden per user by --balance flags.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), envFile, configFile, balances)
		},
	}
	cmd.Flags().StringVar(&envFile, "env", "", "Path to .env file")
	cmd.Flags().StringVar(&configFile, "config", "", "Path to config file (default ./config.yaml)")
	cmd.Flags().StringToStringVar(&balances, "balance", nil, "Opening balance per user, e.g. --balance alice=25.00")
	return cmd
}

func run(ctx context.Context, envFile, configFile string, overrides map[string]string) error {
	cfg, err := config.LoadConfig(envFile, configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.NewLogger(cfg.Environment)

	if cfg.Storage.Driver != config.StoragePostgres {
		return errors.New("seeding needs storage.driver=postgres; the memory store is seeded by the server at startup")
	}

	seed := make(map[string]string, len(cfg.Seed.Balances)+len(overrides))
	for u, amount := range cfg.Seed.Balances {
		seed[u] = amount
	}
	for u, amount := range overrides {
		seed[u] = amount
	}
	if len(seed) == 0 {
		logger.Warn("Nothing to seed")
		return nil
	}

	stores, err := repository.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	n, err := ledger.New(stores.Ledger, logger).SeedBalances(ctx, seed)
	if err != nil {
		return fmt.Errorf("seeded %d users before failing: %w", n, err)
	}
	logger.Info("Seeding complete", "users", n)
	return nil
}
