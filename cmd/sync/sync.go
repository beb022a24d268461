package sync

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"secret-reflector/internal/config"
	"secret-reflector/internal/core"
	"secret-reflector/pkg/log"
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile external secrets into local targets",
	Long:  `Reconcile secrets from the configured external backends into local target secrets.`,
}

var runCmd = &cobra.Command{
	Use:     "run",
	Short:   "Run the reconciliation engine until interrupted",
	Long:    `Start one reconciler per mapping and keep reconciling on each mapping's refresh interval until stopped.`,
	Example: `secret-reflector sync run --config /path/to/config.yaml`,
	Run:     runEngine,
}

var onceCmd = &cobra.Command{
	Use:     "once",
	Short:   "Run one reconciliation pass and exit",
	Long:    `Perform a single reconciliation pass over every mapping and exit.`,
	Example: `secret-reflector sync once --config /path/to/config.yaml`,
	Run:     runOnce,
}

var dryRunCmd = &cobra.Command{
	Use:     "dry-run",
	Short:   "Validate stores and show what would be synced",
	Long:    `Probe every configured store and display the mappings that would be reconciled, without fetching or writing any secret.`,
	Example: `secret-reflector sync dry-run --config /path/to/config.yaml`,
	Run:     runDryRun,
}

func init() {
	SyncCmd.AddCommand(runCmd)
	SyncCmd.AddCommand(onceCmd)
	SyncCmd.AddCommand(dryRunCmd)
}

func runEngine(cmd *cobra.Command, _ []string) {
	logger := log.Logger.With().Str("component", "sync-run").Logger()

	appConfig, err := config.NewConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Error creating config")
		return
	}
	log.Init(appConfig.ID, appConfig.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wiring := core.NewWiring(appConfig)
	syncEngine := wiring.InitSyncEngine(ctx)
	workloadReloader := wiring.InitReloader()

	logger.Info().Msg("Starting secret-reflector engine")

	go workloadReloader.Run(ctx)
	syncEngine.Run(ctx)

	logger.Info().Msg("Engine stopped")
}

func runOnce(cmd *cobra.Command, _ []string) {
	logger := log.Logger.With().Str("component", "sync-once").Logger()
	logger.Info().Msg("Starting one-shot reconciliation")

	appConfig, err := config.NewConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Error creating config")
		return
	}
	log.Init(appConfig.ID, appConfig.LogLevel)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	wiring := core.NewWiring(appConfig)
	syncEngine := wiring.InitSyncEngine(ctx)

	result, err := syncEngine.RunOnce(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error during reconciliation")
		return
	}

	logger.Info().
		Int("updated", result.Updated).
		Int("unchanged", result.Unchanged).
		Int("failed", result.Failed).
		Msg("One-shot reconciliation completed")
}

func runDryRun(cmd *cobra.Command, _ []string) {
	logger := log.Logger.With().Str("component", "sync-dry-run").Logger()
	logger.Info().Msg("Starting dry-run")

	appConfig, err := config.NewConfig()
	if err != nil {
		logger.Error().Err(err).Msg("Error creating config")
		return
	}
	log.Init(appConfig.ID, appConfig.LogLevel)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	wiring := core.NewWiring(appConfig)
	storeRegistry := wiring.InitStoreRegistry(ctx)

	logger.Info().Msg("=== DRY RUN: Store reachability ===")
	for _, storeName := range storeRegistry.StoreNames() {
		status := storeRegistry.Validate(ctx, storeName)
		if status.Ready {
			logger.Info().Str("store", storeName).Msg("Store is ready")
		} else {
			logger.Warn().Str("store", storeName).Str("reason", status.Reason).Msg("Store is not ready")
		}
	}

	logger.Info().Msg("=== DRY RUN: Mappings that would be reconciled ===")
	for _, mapping := range appConfig.SecretMappings() {
		logger.Info().
			Str("target_id", mapping.TargetID).
			Str("store", mapping.Store).
			Str("remote_key", mapping.RemoteKey).
			Dur("refresh_interval", mapping.RefreshInterval).
			Int("key_count", len(mapping.Keys)).
			Msg(" → Would reconcile")
	}

	logger.Info().Int("total_mappings", len(appConfig.Mappings)).Msg("=== DRY RUN COMPLETE ===")
}
