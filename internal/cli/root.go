package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/tabellenwerk/standings/internal/control"
	"github.com/tabellenwerk/standings/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "standings",
	Short: "League standings calculation service",
	Long:  `Standings runs the automated league table pipeline: match-driven calculation jobs, snapshots and cached table serving.`,
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func initLogger(cfg *config.AppConfig) *slog.Logger {
	level := slog.LevelInfo
	if isDebug || (cfg != nil && cfg.Logging.Level == "debug") {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg != nil && cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	}
	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func runServe(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogger(nil)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := initLogger(cfg)

	app, err := control.NewPipeline(cfg, log)
	if err != nil {
		log.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start pipeline", "error", err)
		os.Exit(1)
	}

	log.Info("Pipeline started", "config", cfgPath)

	sig := <-sigChan
	log.Info("Received signal, shutting down...", "signal", sig)

	// Drain in-flight jobs first; the deferred cancel stops the loops.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
	log.Info("Pipeline stopped gracefully")
}
