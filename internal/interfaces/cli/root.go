// Package cli is the command surface of user-migrate.
package cli

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/jedib0t/go-pretty/table"
	"github.com/mohammadpnp/user-migrate/internal/application/migration"
	"github.com/mohammadpnp/user-migrate/internal/bootstrap"
	"github.com/mohammadpnp/user-migrate/internal/config"
	domain "github.com/mohammadpnp/user-migrate/internal/domain/user"
	"github.com/mohammadpnp/user-migrate/internal/infrastructure/report"
	"github.com/mohammadpnp/user-migrate/internal/infrastructure/source"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	sourcePath    string
	sourceFormat  string
	concurrency   int
	offset        int
	limit         int
	multiEmail    bool
	emailVerified string
	dryRun        bool
	errorReport   string
	reportFormat  string
	verbose       bool
}

func NewRootCommand() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:   "user-migrate",
		Short: "Bulk-migrate identity records into a Clerk-style identity service",
		Long: "user-migrate streams a CSV or JSON user export and reconciles every " +
			"record against the remote identity service under a fixed concurrency " +
			"ceiling, pausing and retrying when the service rate-limits.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.sourcePath, "source", "", "Path to the export file (.csv or .json).")
	cmd.Flags().StringVar(&flags.sourceFormat, "format", "auto", "Source format: auto, csv or json.")
	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Concurrency ceiling; 0 uses MIGRATE_CONCURRENCY.")
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "Skip the first N records of the source.")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Admit at most N records after the offset; 0 means all.")
	cmd.Flags().BoolVar(&flags.multiEmail, "multi-email", false, "Process records carrying more than one email address.")
	cmd.Flags().StringVar(&flags.emailVerified, "email-verified", "never", "Mark primary emails verified: never, always or from-csv.")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Validate the export without any remote call.")
	cmd.Flags().StringVar(&flags.errorReport, "error-report", "", "Write per-record failures to this file.")
	cmd.Flags().StringVar(&flags.reportFormat, "report-format", "auto", "Error report format: auto, csv or json.")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Enable debug logging.")
	cmd.MarkFlagRequired("source")

	return cmd
}

func run(cmd *cobra.Command, flags rootFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	sourceFormat, err := source.ParseFormat(flags.sourceFormat)
	if err != nil {
		return err
	}
	verifiedMode, err := migration.ParseEmailVerifiedMode(flags.emailVerified)
	if err != nil {
		return err
	}
	reportFormat, err := report.ParseFormat(flags.reportFormat)
	if err != nil {
		return err
	}

	logger, err := bootstrap.NewLogger(cfg, flags.verbose)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, runErr := bootstrap.Run(ctx, cfg, bootstrap.Options{
		SourcePath:        flags.sourcePath,
		SourceFormat:      sourceFormat,
		Concurrency:       flags.concurrency,
		Offset:            flags.offset,
		Limit:             flags.limit,
		ProcessMultiEmail: flags.multiEmail,
		EmailVerifiedMode: verifiedMode,
		DryRun:            flags.dryRun,
		ErrorReportPath:   flags.errorReport,
		ReportFormat:      reportFormat,
	}, logger)

	printSummary(cmd.OutOrStdout(), summary, flags.errorReport)
	return runErr
}

func printSummary(w io.Writer, s domain.Summary, reportPath string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Metric", "Count"})
	t.AppendRow(table.Row{"Total", s.Total})
	t.AppendRow(table.Row{"Imported", s.Imported})
	t.AppendRow(table.Row{"Skipped", s.Skipped})
	t.AppendRow(table.Row{"Warnings", s.Warnings})
	t.AppendRow(table.Row{"Errors", s.Errors})
	t.Render()

	if s.Errors > 0 {
		if reportPath != "" {
			fmt.Fprintf(w, "%d record(s) failed; details in %s\n", s.Errors, reportPath)
		} else {
			fmt.Fprintf(w, "%d record(s) failed; rerun with --error-report to capture details\n", s.Errors)
		}
	}
}
