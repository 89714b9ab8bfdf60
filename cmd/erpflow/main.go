// ERPFlow - ERP migration assessment and execution toolkit.
// Analyzes process event logs, runs migration objects through the ETLV
// lifecycle, and gates writes behind tiered approvals.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/erpflow/erpflow/pkg/analysis/socialnet"
	"github.com/erpflow/erpflow/pkg/config"
	"github.com/erpflow/erpflow/pkg/errors"
	"github.com/erpflow/erpflow/pkg/eventlog"
	"github.com/erpflow/erpflow/pkg/export"
	"github.com/erpflow/erpflow/pkg/intelligence"
	"github.com/erpflow/erpflow/pkg/refmodel"
	"github.com/erpflow/erpflow/pkg/telemetry"
	"github.com/erpflow/erpflow/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// CLI flags
var (
	processID    string
	outputFile   string
	formatFlag   string
	skipPhases   []string
	sodRulesFile string
	verbose      bool

	// CSV column flags
	csvCaseIDColumn    string
	csvActivityColumn  string
	csvTimestampColumn string
	csvResourceColumn  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "erpflow",
	Short: "ERPFlow - ERP migration assessment toolkit",
	Long: `ERPFlow analyzes process event logs for migration readiness, runs
migration objects through the extract-transform-validate-load lifecycle,
and gates target-system writes behind tiered approvals.`,
	Version: fmt.Sprintf("%s (%s)", version, commit),
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <log-file>",
	Short: "Run the process intelligence pipeline on an event log",
	Long: `Run all six analysis phases (variants, discovery, conformance,
performance, social, KPIs) on an event log and print the dashboard.

The log format is detected from the file extension (.csv, .xes, .parquet)
unless --format is given. Conformance runs when --process names a
registered reference model.

Examples:
  erpflow analyze events.csv --process order_to_cash
  erpflow analyze events.xes -o report.json
  erpflow analyze events.parquet -o report.xlsx --skip kpis`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	analyzeCmd.Flags().StringVarP(&processID, "process", "p", "", "reference model id for conformance")
	analyzeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the report to a file (.json or .xlsx)")
	analyzeCmd.Flags().StringVarP(&formatFlag, "format", "f", "", "log format: csv, xes, parquet (default: by extension)")
	analyzeCmd.Flags().StringSliceVar(&skipPhases, "skip", nil, "phases to skip")
	analyzeCmd.Flags().StringVar(&sodRulesFile, "sod-rules", "", "YAML file with segregation-of-duty rules")
	analyzeCmd.Flags().StringVar(&csvCaseIDColumn, "case-column", "", "CSV case id column")
	analyzeCmd.Flags().StringVar(&csvActivityColumn, "activity-column", "", "CSV activity column")
	analyzeCmd.Flags().StringVar(&csvTimestampColumn, "timestamp-column", "", "CSV timestamp column")
	analyzeCmd.Flags().StringVar(&csvResourceColumn, "resource-column", "", "CSV resource column")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(extractorsCmd)
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(watchCmd)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadEventLog reads a log file in the requested or detected format.
func loadEventLog(path, format string) (*eventlog.Log, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xes":
			format = "xes"
		case ".parquet":
			format = "parquet"
		default:
			format = "csv"
		}
	}

	switch format {
	case "csv":
		opts := eventlog.DefaultCSVOptions()
		if csvCaseIDColumn != "" {
			opts.Columns.CaseID = csvCaseIDColumn
		}
		if csvActivityColumn != "" {
			opts.Columns.Activity = csvActivityColumn
		}
		if csvTimestampColumn != "" {
			opts.Columns.Timestamp = csvTimestampColumn
		}
		if csvResourceColumn != "" {
			opts.Columns.Resource = csvResourceColumn
		}
		return eventlog.LoadCSVFile(path, opts)
	case "xes":
		return eventlog.LoadXESFile(path)
	case "parquet":
		opts := eventlog.DefaultCSVOptions()
		if csvCaseIDColumn != "" {
			opts.Columns.CaseID = csvCaseIDColumn
		}
		if csvActivityColumn != "" {
			opts.Columns.Activity = csvActivityColumn
		}
		if csvTimestampColumn != "" {
			opts.Columns.Timestamp = csvTimestampColumn
		}
		if csvResourceColumn != "" {
			opts.Columns.Resource = csvResourceColumn
		}
		src, err := eventlog.NewDuckDBSource(opts.Columns)
		if err != nil {
			return nil, err
		}
		defer src.Close()
		name := strings.TrimSuffix(filepath.Base(path), ".parquet")
		return src.LoadParquet(context.Background(), path, name)
	default:
		return nil, errors.Newf(errors.CodeLogParseFailed, "unknown log format %q", format)
	}
}

// buildEngine wires the analysis engine from configuration.
func buildEngine(cfg *config.Config, logger *slog.Logger) (*intelligence.Engine, func(context.Context) error, error) {
	registry := refmodel.Builtin()
	if cfg.Analysis.ModelsDir != "" {
		if err := registry.LoadDir(cfg.Analysis.ModelsDir); err != nil {
			return nil, nil, err
		}
	}

	engineCfg := intelligence.EngineConfig{
		Registry: registry,
		Logger:   logger,
		Metrics:  cfg.Telemetry.Metrics,
	}
	engineCfg.Discovery.DependencyThreshold = cfg.Analysis.DependencyThreshold
	engineCfg.Variants.MaxVariants = cfg.Analysis.MaxVariants
	engineCfg.Variants.EnableClustering = cfg.Analysis.EnableClustering
	engineCfg.KPI.ConfidenceLevel = cfg.Analysis.ConfidenceLevel
	engineCfg.KPI.Seed = cfg.Analysis.Seed

	shutdown := func(context.Context) error { return nil }
	if cfg.Telemetry.Enabled {
		otlpCfg := telemetry.DefaultOTLPConfig("erpflow")
		otlpCfg.Endpoint = cfg.Telemetry.Endpoint
		exporter := telemetry.NewOTLPExporter(otlpCfg)
		sd, err := exporter.Init(context.Background())
		if err != nil {
			return nil, nil, err
		}
		shutdown = sd
		engineCfg.Tracer = exporter.Tracer()
	}

	return intelligence.NewEngine(engineCfg), shutdown, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	cfg := config.Global().Get()

	log, err := loadEventLog(args[0], formatFlag)
	if err != nil {
		return err
	}

	engine, shutdown, err := buildEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer shutdown(context.Background())

	var sodRules []socialnet.SoDRule
	if sodRulesFile != "" {
		sodRules, err = socialnet.LoadRules(sodRulesFile)
		if err != nil {
			return err
		}
	}

	report, err := engine.Analyze(ctx, log, intelligence.Options{
		ProcessID: processID,
		Skip:      skipPhases,
		SoDRules:  sodRules,
	})
	if err != nil {
		return err
	}

	fmt.Print(tui.RenderReport(report))

	if outputFile != "" {
		format := export.FormatJSON
		if strings.EqualFold(filepath.Ext(outputFile), ".xlsx") {
			format = export.FormatXLSX
		}
		if err := export.Write(report, outputFile, format); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", outputFile)
	}
	return nil
}
