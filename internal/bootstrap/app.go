// Package bootstrap wires configuration, logging, the identity client and
// the dispatch engine into one runnable migration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mohammadpnp/user-migrate/internal/application/migration"
	"github.com/mohammadpnp/user-migrate/internal/config"
	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
	"github.com/mohammadpnp/user-migrate/internal/infrastructure/identity"
	"github.com/mohammadpnp/user-migrate/internal/infrastructure/report"
	"github.com/mohammadpnp/user-migrate/internal/infrastructure/source"
	"go.uber.org/zap"
)

type Options struct {
	SourcePath        string
	SourceFormat      source.Format
	Concurrency       int
	Offset            int
	Limit             int
	ProcessMultiEmail bool
	EmailVerifiedMode migration.EmailVerifiedMode
	DryRun            bool
	ErrorReportPath   string
	ReportFormat      report.Format
}

// NewLogger builds the process logger from config.
func NewLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zapCfg.Level = level
	if verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}

	return zapCfg.Build()
}

// Run executes one migration to completion. Setup failures (bad config,
// unreadable source) return before any record is dispatched; once the engine
// starts, Run always returns the summary alongside any run error.
func Run(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (domain.Summary, error) {
	if err := cfg.Validate(opts.DryRun); err != nil {
		return domain.Summary{}, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = cfg.Concurrency
	}

	logger = logger.With(zap.String("run_id", uuid.NewString()))

	src, err := source.Open(opts.SourcePath, opts.SourceFormat)
	if err != nil {
		return domain.Summary{}, err
	}
	defer src.Close()

	client := identity.NewClient(identity.Config{
		BaseURL:   cfg.APIBaseURL,
		SecretKey: cfg.SecretKey,
		Timeout:   cfg.HTTPTimeout,
	}, logger)

	reconciler := migration.NewReconciler(client, opts.ProcessMultiEmail, opts.EmailVerifiedMode, logger)
	engine := migration.NewEngine(src, reconciler, migration.NewAggregator(), migration.EngineConfig{
		Concurrency: opts.Concurrency,
		Offset:      opts.Offset,
		Limit:       opts.Limit,
		DryRun:      opts.DryRun,
	}, logger)

	logger.Info("starting migration",
		zap.String("source", opts.SourcePath),
		zap.Int("concurrency", opts.Concurrency),
		zap.Bool("dry_run", opts.DryRun))

	summary, runErr := engine.Run(ctx)

	if opts.ErrorReportPath != "" {
		if err := report.WriteFile(opts.ErrorReportPath, opts.ReportFormat, summary.Failures); err != nil {
			logger.Error("writing error report failed", zap.Error(err))
			if runErr == nil {
				runErr = err
			}
		}
	}

	return summary, runErr
}
