package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	workerapp "geneledger/contexts/data-marketplace/dataset-registry/application/workers"
	"geneledger/contexts/data-marketplace/dataset-registry/domain/entities"
	"geneledger/internal/app/bootstrap"
	"geneledger/internal/platform/config"
	"geneledger/internal/platform/messaging"
)

var (
	configPath string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "registryctl",
	Short: "Operator tooling for the dataset registry",
	Long: `registryctl inspects and maintains durable dataset registry storage.

It reads the same configuration as the API and worker processes; every
command except relay-once is read-only.`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the storage schema",
	RunE:  runMigrate,
}

var balanceCmd = &cobra.Command{
	Use:   "balance <owner>",
	Short: "Print the escrow balance of an owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

var datasetCmd = &cobra.Command{
	Use:   "dataset <id>",
	Short: "Print a registered dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runDataset,
}

var withdrawalsCmd = &cobra.Command{
	Use:   "withdrawals <owner>",
	Short: "List the withdrawal journal of an owner",
	Args:  cobra.ExactArgs(1),
	RunE:  runWithdrawals,
}

var relayOnceCmd = &cobra.Command{
	Use:   "relay-once",
	Short: "Publish one batch of pending outbox events and exit",
	RunE:  runRelayOnce,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "overall command timeout")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(datasetCmd)
	rootCmd.AddCommand(withdrawalsCmd)
	rootCmd.AddCommand(relayOnceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStorage loads config and connects a durable driver. The memory driver
// holds no state outside a running API process, so it is rejected.
func openStorage(ctx context.Context) (*bootstrap.Storage, config.Config, error) {
	if configPath != "" {
		if err := os.Setenv("CONFIG_FILE", configPath); err != nil {
			return nil, config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	if cfg.Storage == config.StorageMemory {
		return nil, cfg, fmt.Errorf("registryctl needs a durable storage driver, got %q", cfg.Storage)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	storage, err := bootstrap.OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, cfg, err
	}
	return storage, cfg, nil
}

func withStorage(cmd *cobra.Command, fn func(ctx context.Context, storage *bootstrap.Storage, cfg config.Config) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	storage, cfg, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer storage.Close()
	return fn(ctx, storage, cfg)
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	return withStorage(cmd, func(ctx context.Context, storage *bootstrap.Storage, _ config.Config) error {
		if err := storage.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", storage.Driver)
		return nil
	})
}

func runBalance(cmd *cobra.Command, args []string) error {
	owner, err := entities.ParsePrincipal(args[0])
	if err != nil {
		return err
	}
	return withStorage(cmd, func(ctx context.Context, storage *bootstrap.Storage, _ config.Config) error {
		account, ok, err := storage.Repository.LoadEscrow(ctx, owner)
		if err != nil {
			return err
		}
		if !ok {
			account = entities.EscrowAccount{Owner: owner}
		}
		return printJSON(cmd, map[string]any{
			"owner":      account.Owner.String(),
			"balance":    account.Balance.String(),
			"updated_at": account.UpdatedAt,
		})
	})
}

func runDataset(cmd *cobra.Command, args []string) error {
	datasetID, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("dataset id %q: %w", args[0], err)
	}
	return withStorage(cmd, func(ctx context.Context, storage *bootstrap.Storage, _ config.Config) error {
		dataset, err := storage.Repository.LoadDataset(ctx, datasetID)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"dataset_id":  dataset.DatasetID,
			"owner":       dataset.Owner.String(),
			"title":       dataset.Title,
			"content_ref": dataset.ContentRef,
			"price":       dataset.Price.String(),
			"access_tier": dataset.Tier,
			"data_type":   dataset.DataType,
			"tags":        dataset.Tags,
			"file_size":   dataset.FileSize,
			"created_at":  dataset.CreatedAt,
		})
	})
}

func runWithdrawals(cmd *cobra.Command, args []string) error {
	owner, err := entities.ParsePrincipal(args[0])
	if err != nil {
		return err
	}
	return withStorage(cmd, func(ctx context.Context, storage *bootstrap.Storage, _ config.Config) error {
		withdrawals, err := storage.Repository.ListWithdrawals(ctx, owner)
		if err != nil {
			return err
		}
		rows := make([]map[string]any, 0, len(withdrawals))
		for _, w := range withdrawals {
			rows = append(rows, map[string]any{
				"withdrawal_id":  w.WithdrawalID,
				"amount":         w.Amount.String(),
				"status":         w.Status,
				"settlement_ref": w.SettlementRef,
				"failure_reason": w.FailureReason,
				"created_at":     w.CreatedAt,
			})
		}
		return printJSON(cmd, rows)
	})
}

func runRelayOnce(cmd *cobra.Command, _ []string) error {
	return withStorage(cmd, func(ctx context.Context, storage *bootstrap.Storage, cfg config.Config) error {
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
		relay := workerapp.OutboxRelay{
			Outbox:    storage.Outbox,
			Publisher: messaging.NewBus(cfg.KafkaBrokers, logger),
			Clock:     storage.Clock,
			BatchSize: 100,
			Logger:    logger,
		}
		return relay.RunOnce(ctx)
	})
}

func printJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
