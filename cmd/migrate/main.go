package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zoea-africa/v2-migrate/internal/config"
	"github.com/zoea-africa/v2-migrate/internal/logging"
	"github.com/zoea-africa/v2-migrate/internal/migration"
	"github.com/zoea-africa/v2-migrate/internal/refdata"
	"github.com/zoea-africa/v2-migrate/internal/source"
	"github.com/zoea-africa/v2-migrate/internal/target"
)

func main() {
	banner := figure.NewFigure("V2 MIGRATE", "slant", true)
	fmt.Printf("%s\n%s\n",
		color.CyanString(banner.String()),
		color.GreenString("legacy platform migration"))

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting migration engine",
		zap.Strings("phases", cfg.EffectivePhases()),
		zap.Int("workers", cfg.Workers),
		zap.String("grouping_strategy", cfg.GroupingStrategy))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGINT/SIGTERM stop scheduling new records; in-flight writes finish
	// and the partial summary still prints.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Warn("Shutdown signal received, finishing in-flight records",
			zap.String("signal", sig.String()))
		cancel()
	}()

	tables, err := refdata.Load(cfg.RefDataFile)
	if err != nil {
		logger.Fatal("Failed to load reference tables", zap.Error(err))
	}

	src, err := source.Open(ctx, cfg.V1Driver, cfg.V1DSN(),
		cfg.ConnectRetries, time.Duration(cfg.ConnectBackoffMs)*time.Millisecond, logger)
	if err != nil {
		logger.Fatal("Legacy database unavailable", zap.Error(err))
	}
	defer src.Close()

	store, err := target.Open(cfg.V2Driver, cfg.TargetDSN())
	if err != nil {
		logger.Fatal("Target store unavailable", zap.Error(err))
	}
	defer store.Close()
	logger.Info("Target store ready", zap.String("driver", cfg.V2Driver))

	if cfg.MetricsPort > 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: metricsMux,
		}
		go func() {
			logger.Info("Metrics server starting", zap.Int("port", cfg.MetricsPort))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	collector := migration.NewCollector(prometheus.DefaultRegisterer)
	migrator, err := migration.New(cfg, src, store, tables, collector, logger)
	if err != nil {
		logger.Fatal("Failed to build migrator", zap.Error(err))
	}

	if cfg.RepairLegacyUserID > 0 {
		res, err := migrator.RunRepair(ctx, cfg.RepairLegacyUserID)
		if err != nil {
			logger.Fatal("Repair run failed", zap.Error(err))
		}
		printRepairSummary(cfg.RepairLegacyUserID, res)
		if res.Failed() > 0 {
			os.Exit(1)
		}
		return
	}

	report, runErr := migrator.Run(ctx)
	printSummary(report)

	if runErr != nil {
		if ctx.Err() != nil {
			logger.Warn("Run cancelled, partial results above")
		} else {
			logger.Error("Run aborted", zap.Error(runErr))
		}
		os.Exit(1)
	}
	if report.TotalFailed() > 0 {
		logger.Warn("Run finished with residual failures",
			zap.Int64("failed", report.TotalFailed()))
		os.Exit(1)
	}
	logger.Info("Run finished with zero failures")
}

func printSummary(report *migration.Report) {
	fmt.Println()
	color.Cyan("Migration summary")
	for _, phase := range report.Phases() {
		res := report.Phase(phase)
		line := fmt.Sprintf("  %-10s success=%d failed=%d skipped=%d",
			phase, res.Success(), res.Failed(), res.Skipped())
		if res.Failed() > 0 {
			color.Red(line)
		} else {
			color.Green(line)
		}
	}
	fmt.Println()
}

func printRepairSummary(legacyUserID int64, res *migration.PhaseResult) {
	fmt.Println()
	color.Cyan("Repair summary for legacy user %d", legacyUserID)
	line := fmt.Sprintf("  venues     success=%d failed=%d skipped=%d",
		res.Success(), res.Failed(), res.Skipped())
	if res.Failed() > 0 {
		color.Red(line)
	} else {
		color.Green(line)
	}
	fmt.Println()
}
