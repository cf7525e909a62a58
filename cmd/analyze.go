package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/crossflow/internal/config"
	"github.com/xkilldash9x/crossflow/internal/engine"
	"github.com/xkilldash9x/crossflow/internal/observability"
	"github.com/xkilldash9x/crossflow/internal/reporting"
)

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Analyzes a project directory for cross-file taint flows",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so command-line values override config file and env.
			if err := viper.BindPFlag("analysis.max_depth", cmd.Flags().Lookup("depth")); err != nil {
				return err
			}
			if err := viper.BindPFlag("analysis.max_modules", cmd.Flags().Lookup("max-modules")); err != nil {
				return err
			}
			if err := viper.BindPFlag("analysis.timeout", cmd.Flags().Lookup("timeout")); err != nil {
				return err
			}
			if err := viper.BindPFlag("analysis.workers", cmd.Flags().Lookup("workers")); err != nil {
				return err
			}
			if err := viper.BindPFlag("analysis.catalog", cmd.Flags().Lookup("catalog")); err != nil {
				return err
			}
			if err := viper.BindPFlag("report.format", cmd.Flags().Lookup("format")); err != nil {
				return err
			}
			return viper.BindPFlag("report.output", cmd.Flags().Lookup("output"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return fmt.Errorf("failed to finalize config: %w", err)
			}

			root := args[0]
			logger.Info("starting analysis",
				zap.String("root", root),
				zap.Int("max_depth", cfg.Analysis.MaxDepth),
				zap.Int("workers", cfg.Analysis.Workers),
				zap.String("format", cfg.Report.Format))

			eng := engine.New(cfg, logger)
			res, err := eng.Analyze(ctx, root)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("analysis aborted")
					return fmt.Errorf("analysis aborted by user signal")
				}
				return err
			}

			if err := writeReport(cmd.OutOrStdout(), res.Report, cfg.Report); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "\nAnalysis complete. Run ID: %s (%d modules, %d findings)\n",
				res.RunID, res.ModulesAnalyzed, len(res.Report.Vulnerabilities))
			if res.Truncated {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: analysis budget exhausted, results may be incomplete.")
			}
			return nil
		},
	}

	analyzeCmd.Flags().StringP("output", "o", "", "Output file path for the report. If unset, the report goes to stdout.")
	analyzeCmd.Flags().StringP("format", "f", "json", "Format for the output report ('json' or 'sarif').")
	analyzeCmd.Flags().IntP("depth", "d", 0, "Maximum propagation depth. (Overrides config/env)")
	analyzeCmd.Flags().Int("max-modules", 0, "Maximum distinct modules visited per propagation. (Overrides config/env)")
	analyzeCmd.Flags().Duration("timeout", 0, "Wall-clock budget for propagation, e.g. 30s. (Overrides config/env)")
	analyzeCmd.Flags().IntP("workers", "j", 0, "Number of concurrent analysis workers. (Overrides config/env)")
	analyzeCmd.Flags().String("catalog", "", "Path to a YAML catalog extension file. (Overrides config/env)")

	return analyzeCmd
}

// writeReport renders the report to the configured destination.
func writeReport(stdout io.Writer, report *reporting.Report, cfg config.ReportConfig) error {
	var w io.Writer = stdout
	if cfg.Output != "" {
		f, err := os.Create(cfg.Output)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch strings.ToLower(cfg.Format) {
	case "sarif":
		return reporting.WriteSARIF(w, report)
	default:
		return reporting.WriteJSON(w, report)
	}
}
