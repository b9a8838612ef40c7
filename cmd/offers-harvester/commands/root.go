package commands

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"offers-harvester/internal/app"
	"offers-harvester/internal/config"
	"offers-harvester/internal/fetcher"
	"offers-harvester/internal/observability"
	"offers-harvester/internal/storage"
	"offers-harvester/internal/storage/file"
	"offers-harvester/internal/storage/mssql"
	"offers-harvester/internal/token"
)

var (
	configPath string
	envPath    string
	runNames   []string
)

var rootCmd = &cobra.Command{
	Use:          "offers-harvester [--config <path>] [--run <name>]...",
	Short:        "Harvests promotional offers into JSON snapshots.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return harvest(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to the YAML config.")
	rootCmd.Flags().StringVar(&envPath, "env", ".env", "Optional dotenv file with secret overrides.")
	rootCmd.Flags().StringSliceVarP(&runNames, "run", "r", nil, "Run to execute; repeatable. Defaults to every configured run.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func harvest(parent context.Context) error {
	if err := config.LoadEnv(envPath); err != nil {
		return err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggerOptions{
		LogPath:    cfg.Observability.LogPath,
		LogLevel:   cfg.Observability.LogLevel,
		MaxSizeMB:  cfg.Observability.LogMaxSizeMB,
		MaxBackups: cfg.Observability.LogMaxBackups,
		Color:      cfg.Observability.Color,
		Console:    os.Stderr,
	})
	defer func() { _ = logger.Close() }()

	metrics := observability.NewMetrics()

	ctx, cancel := app.GracefulShutdown(parent, logger, cfg.GetRunTimeout())
	defer cancel()

	writers := storage.Fanout{}
	fileWriter, err := file.NewWriter(cfg.Output.Dir, cfg.Output.TimestampFile, storage.TimestampFormat{
		Layout:   cfg.Output.TimestampLayout,
		Location: cfg.GetTimeZone(),
	}, logger)
	if err != nil {
		return err
	}
	writers = append(writers, fileWriter)

	if cfg.Storage.MSSQL.Enabled {
		repo, err := mssql.NewRepository(cfg.Storage.MSSQL.DSN, cfg.GetCommandTimeout(), logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := repo.Close(); err != nil {
				logger.Warn("Failed to close database", "error", err.Error())
			}
		}()
		writers = append(writers, repo)
	}

	target, err := token.TargetFromConfig(cfg.Site)
	if err != nil {
		return err
	}
	acquirer := token.NewAcquirer(
		token.NewRodBrowser(cfg),
		target,
		cfg.GetTokenTimeout(),
		cfg.GetRodLocaleTimeout(),
		logger,
		metrics,
	)

	orch := app.NewOrchestrator(cfg, logger, metrics, acquirer, fetcher.NewFetcher(cfg, logger, metrics), writers)
	runs, err := orch.Select(runNames)
	if err != nil {
		return err
	}

	logger.Info("Config loaded",
		"config", configPath,
		"output_dir", cfg.Output.Dir,
		"mssql", cfg.Storage.MSSQL.Enabled,
		"runs", len(runs),
	)

	_, err = orch.Run(ctx, runs)
	return err
}
