package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erpflow/erpflow/pkg/analysis/socialnet"
	"github.com/erpflow/erpflow/pkg/audit"
	"github.com/erpflow/erpflow/pkg/checkpoint"
	"github.com/erpflow/erpflow/pkg/config"
	"github.com/erpflow/erpflow/pkg/errors"
	"github.com/erpflow/erpflow/pkg/export"
	"github.com/erpflow/erpflow/pkg/extract"
	"github.com/erpflow/erpflow/pkg/intelligence"
	"github.com/erpflow/erpflow/pkg/migration"
	"github.com/erpflow/erpflow/pkg/migration/fieldmap"
	"github.com/erpflow/erpflow/pkg/migration/quality"
	"github.com/erpflow/erpflow/pkg/safety"
	"github.com/erpflow/erpflow/pkg/tui"
	"github.com/erpflow/erpflow/pkg/watch"
)

// Additional CLI flags
var (
	// Migrate flags
	migrateMode   string
	migrateTarget string
	dryRun        bool
	approvalID    string
	userID        string
	userMaxTier   int
	userRoles     []string

	// Approvals flags
	approvalComment string
	rejectReason    string

	// Watch flags
	watchOutput string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <object-id>",
	Short: "Run a migration object through the ETLV lifecycle",
	Long: `Run extract, transform, validate, load for one migration object.

Writes to staging or production targets are tier-gated: staging needs one
approved request, production two. Use --dry-run to exercise the full gate
without loading.

Examples:
  erpflow migrate customer_master --user alice --max-tier 2 --dry-run
  erpflow migrate customer_master --target staging --user alice --max-tier 3 --approval <id>
  erpflow migrate material_master --target production --user bob --max-tier 4 --roles admin --approval <id>`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Manage approval requests",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending approval requests",
	RunE:  runApprovalsList,
}

var approvalsRequestCmd = &cobra.Command{
	Use:   "request <operation>",
	Short: "Open an approval request for an operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalsRequest,
}

var approvalsApproveCmd = &cobra.Command{
	Use:   "approve <request-id>",
	Short: "Approve a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalsApprove,
}

var approvalsRejectCmd = &cobra.Command{
	Use:   "reject <request-id>",
	Short: "Reject a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalsReject,
}

var approvalsCancelCmd = &cobra.Command{
	Use:   "cancel <request-id>",
	Short: "Cancel a pending request",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovalsCancel,
}

var extractorsCmd = &cobra.Command{
	Use:   "extractors",
	Short: "List registered extractors and their source tables",
	RunE:  runExtractors,
}

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage extraction checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list <extractor-id>",
	Short: "List checkpointed record keys for an extractor",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointsList,
}

var checkpointsClearCmd = &cobra.Command{
	Use:   "clear <extractor-id>",
	Short: "Drop all checkpoint state for an extractor",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckpointsClear,
}

var watchCmd = &cobra.Command{
	Use:   "watch <log-file>",
	Short: "Watch an event log and re-analyze on changes",
	Long: `Watch an event log file and re-run the analysis pipeline whenever it
changes. Useful while the source system keeps exporting.

Examples:
  erpflow watch events.csv --process order_to_cash
  erpflow watch events.csv -o report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchCmd,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateMode, "mode", "mock", "extraction mode: mock or live")
	migrateCmd.Flags().StringVar(&migrateTarget, "target", "", "write target: staging or production (empty = dry assessment)")
	migrateCmd.Flags().BoolVar(&dryRun, "dry-run", false, "run the gate and lifecycle checks without loading")
	migrateCmd.Flags().StringVar(&approvalID, "approval", "", "approved request id covering this run")
	migrateCmd.Flags().StringVar(&userID, "user", "", "acting user id")
	migrateCmd.Flags().IntVar(&userMaxTier, "max-tier", safety.TierAssessment, "user's maximum permitted tier")
	migrateCmd.Flags().StringSliceVar(&userRoles, "roles", nil, "user roles (admin, production)")
	migrateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the run result JSON to a file")

	approvalsRequestCmd.Flags().StringVar(&userID, "user", "", "requesting user id")
	approvalsApproveCmd.Flags().StringVar(&userID, "user", "", "approving user id")
	approvalsApproveCmd.Flags().StringVar(&approvalComment, "comment", "", "approval comment")
	approvalsRejectCmd.Flags().StringVar(&userID, "user", "", "rejecting user id")
	approvalsRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "rejection reason")
	approvalsCancelCmd.Flags().StringVar(&userID, "user", "", "cancelling user id")
	approvalsCmd.AddCommand(approvalsListCmd, approvalsRequestCmd, approvalsApproveCmd, approvalsRejectCmd, approvalsCancelCmd)

	checkpointsCmd.AddCommand(checkpointsListCmd, checkpointsClearCmd)

	watchCmd.Flags().StringVarP(&processID, "process", "p", "", "reference model id for conformance")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", "", "rewrite the report file after each run")
	watchCmd.Flags().StringVarP(&formatFlag, "format", "f", "", "log format: csv, xes, parquet")
	watchCmd.Flags().StringVar(&sodRulesFile, "sod-rules", "", "YAML file with segregation-of-duty rules")
}

// buildCheckpointStore selects the backend from configuration.
func buildCheckpointStore(ctx context.Context, cfg *config.Config) (*checkpoint.Store, error) {
	switch cfg.Checkpoint.Backend {
	case "", "file":
		backend, err := checkpoint.NewFileBackend(cfg.Checkpoint.Dir)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewStore(backend), nil
	case "redis":
		backend, err := checkpoint.NewRedisBackend(checkpoint.DefaultRedisConfig(cfg.Checkpoint.RedisURL))
		if err != nil {
			return nil, err
		}
		return checkpoint.NewStore(backend), nil
	case "s3":
		s3cfg := checkpoint.DefaultS3Config(cfg.Checkpoint.S3Bucket)
		s3cfg.Region = cfg.Checkpoint.S3Region
		backend, err := checkpoint.NewS3Backend(ctx, s3cfg)
		if err != nil {
			return nil, err
		}
		return checkpoint.NewStore(backend), nil
	default:
		return nil, errors.Newf(errors.CodeConfigInvalid, "unknown checkpoint backend %q", cfg.Checkpoint.Backend)
	}
}

func buildAuditStore(cfg *config.Config) (audit.Store, error) {
	if cfg.Audit.Path == "" {
		return audit.NewMemoryStore(), nil
	}
	return audit.NewFileStore(cfg.Audit.Path)
}

// approvalManager is process-local; requests live for the lifetime of one
// operator session.
func approvalManager(cfg *config.Config) *safety.Manager {
	return safety.NewManager(safety.ManagerConfig{
		Logger:  newLogger(),
		TTL:     cfg.Safety.ApprovalTTL,
		Metrics: cfg.Telemetry.Metrics,
	})
}

// catalogueChecks loads every rule catalogue in a directory and flattens it
// into format checks.
func catalogueChecks(dir string) ([]quality.Check, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeConfigInvalid, "failed to read rule set directory %q", dir)
	}

	var checks []quality.Check
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		rs, err := quality.LoadRuleSet(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		checks = append(checks, rs.Checks()...)
	}
	return checks, nil
}

// builtinObject assembles the demo migration object for an extractor id.
func builtinObject(objectID string, mode extract.Mode, gateway migration.Loader, registry *extract.Registry, extra []quality.Check) (migration.Object, error) {
	extractor := registry.Get(objectID)
	if extractor == nil {
		return nil, errors.Newf(errors.CodeExtractFailed, "no extractor registered for %q (known: %s)",
			objectID, strings.Join(registry.IDs(), ", "))
	}

	var mappings []fieldmap.Mapping
	var checks []quality.Check

	switch objectID {
	case "customer_master":
		mappings = []fieldmap.Mapping{
			{Source: "KUNNR", Target: "CustomerID", Convert: "padLeft10"},
			{Source: "NAME1", Target: "Name", Convert: "toUpperCase"},
			{Source: "LAND1", Target: "Country"},
			{Source: "KTOKD", Target: "AccountGroup", Default: "Z001"},
			{Source: "LOEVM", Target: "DeletionFlag", Convert: "boolYN"},
		}
		checks = []quality.Check{
			{Type: quality.CheckRequired, Severity: quality.SeverityError, Field: "CustomerID"},
			{Type: quality.CheckExactDuplicate, Severity: quality.SeverityError, Fields: []string{"CustomerID"}},
			{Type: quality.CheckFormat, Severity: quality.SeverityError, Field: "Country", Pattern: "^[A-Z]{2}$"},
			{Type: quality.CheckFuzzyDuplicate, Severity: quality.SeverityWarning, Field: "Name"},
		}
	case "material_master":
		mappings = []fieldmap.Mapping{
			{Source: "MATNR", Target: "MaterialID", Convert: "toUpperCase"},
			{Source: "MTART", Target: "MaterialType"},
			{Source: "MEINS", Target: "BaseUnit", Default: "EA"},
			{Source: "BRGEW", Target: "GrossWeight", Convert: "toDecimal"},
		}
		checks = []quality.Check{
			{Type: quality.CheckRequired, Severity: quality.SeverityError, Field: "MaterialID"},
			{Type: quality.CheckExactDuplicate, Severity: quality.SeverityError, Fields: []string{"MaterialID"}},
			{Type: quality.CheckReferential, Severity: quality.SeverityWarning, Field: "MaterialType", ValidSet: []string{"FERT", "ROH", "HALB"}},
			{Type: quality.CheckRange, Severity: quality.SeverityWarning, Field: "GrossWeight", Min: ptr(0.0), Max: ptr(10000.0)},
		}
	default:
		return nil, errors.Newf(errors.CodeExtractFailed, "no migration object definition for %q", objectID)
	}

	engine, err := fieldmap.NewEngine(mappings)
	if err != nil {
		return nil, err
	}
	checker, err := quality.NewChecker(append(checks, extra...))
	if err != nil {
		return nil, err
	}
	return migration.NewStandardObject(objectID, extractor.Name(), extractor, mode, engine, checker, gateway), nil
}

func ptr(f float64) *float64 { return &f }

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	cfg := config.Global().Get()

	operation := "migrate_dry_run"
	switch migrateTarget {
	case "":
	case "staging":
		operation = "migrate_staging"
	case "production":
		operation = "migrate_production"
	default:
		return errors.Newf(errors.CodeConfigInvalid, "unknown target %q", migrateTarget)
	}

	registry := extract.NewRegistry(logger)
	extract.RegisterBuiltins(registry)

	gateway := migration.NewMockGateway(cfg.Migration.MockSeed)
	if cfg.Migration.ErrorRate >= 0 {
		gateway.WithErrorRate(cfg.Migration.ErrorRate)
	}

	var extraChecks []quality.Check
	if cfg.Migration.RuleSetDir != "" {
		checks, err := catalogueChecks(cfg.Migration.RuleSetDir)
		if err != nil {
			return err
		}
		extraChecks = checks
	}

	obj, err := builtinObject(args[0], extract.Mode(migrateMode), gateway, registry, extraChecks)
	if err != nil {
		return err
	}

	auditor, err := buildAuditStore(cfg)
	if err != nil {
		return err
	}
	gate := safety.NewGate(safety.NewClassifier(), approvalManager(cfg), auditor, logger)
	runner := migration.NewRunner(migration.RunnerConfig{
		Logger:       logger,
		ShowProgress: cfg.Migration.ShowProgress,
		Metrics:      cfg.Telemetry.Metrics,
	})

	user := safety.UserContext{UserID: userID, MaxTier: userMaxTier, Roles: userRoles}
	var result *migration.RunResult
	gateResult, err := gate.Execute(ctx, operation, user, safety.GateOptions{
		ApprovalID: approvalID,
		DryRun:     dryRun,
		Resource:   args[0],
	}, func(ctx context.Context) error {
		result = runner.Run(ctx, obj)
		if result.Status == migration.StatusError {
			return errors.Newf(errors.CodeLoadFailed, "migration run ended with status %s", result.Status)
		}
		return nil
	})
	if err != nil && result == nil {
		return err
	}

	if gateResult.Blocked != "" {
		fmt.Printf("Blocked: %s (tier %d, %s)\n", gateResult.Blocked, gateResult.Decision.Tier, gateResult.Decision.TierLabel)
		return nil
	}
	if gateResult.DryRun {
		fmt.Printf("Dry run: %s cleared tier %d (%s) checks; nothing was loaded\n",
			operation, gateResult.Decision.Tier, gateResult.Decision.TierLabel)
		return nil
	}

	fmt.Print(tui.RenderMigration(result))

	if outputFile != "" {
		if err := export.WriteMigrationJSON(result, outputFile); err != nil {
			return err
		}
		fmt.Printf("Result written to %s\n", outputFile)
	}
	return nil
}

func runApprovalsList(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	mgr := approvalManager(cfg)
	fmt.Print(tui.RenderApprovals(mgr.ListPendingApprovals()))
	return nil
}

func runApprovalsRequest(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	mgr := approvalManager(cfg)
	req := mgr.RequestApproval(args[0], userID, nil)
	fmt.Printf("Request %s opened: operation %s, tier %d, status %s, expires %s\n",
		req.RequestID, req.Operation, req.Tier, req.Status, req.ExpiresAt.Format("2006-01-02 15:04"))
	return nil
}

func runApprovalsApprove(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	mgr := approvalManager(cfg)
	req, err := mgr.Approve(args[0], userID, approvalComment)
	if err != nil {
		return err
	}
	fmt.Printf("Request %s: %d/%d approvals, status %s\n",
		req.RequestID, len(req.Approvals), req.Required(), req.Status)
	return nil
}

func runApprovalsReject(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	mgr := approvalManager(cfg)
	req, err := mgr.Reject(args[0], userID, rejectReason)
	if err != nil {
		return err
	}
	fmt.Printf("Request %s rejected by %s\n", req.RequestID, userID)
	return nil
}

func runApprovalsCancel(cmd *cobra.Command, args []string) error {
	cfg := config.Global().Get()
	mgr := approvalManager(cfg)
	req, err := mgr.Cancel(args[0], userID)
	if err != nil {
		return err
	}
	fmt.Printf("Request %s cancelled\n", req.RequestID)
	return nil
}

func runExtractors(cmd *cobra.Command, args []string) error {
	registry := extract.NewRegistry(newLogger())
	extract.RegisterBuiltins(registry)

	for _, e := range registry.List() {
		fmt.Printf("%s  (%s)\n", e.ID(), e.Name())
		for _, t := range e.Tables() {
			critical := ""
			if t.Critical {
				critical = " [critical]"
			}
			fmt.Printf("    %-8s %s%s\n", t.Name, t.Description, critical)
		}
	}
	return nil
}

func runCheckpointsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := config.Global().Get()
	store, err := buildCheckpointStore(ctx, cfg)
	if err != nil {
		return err
	}

	keys, err := store.Backend().Keys(ctx, args[0])
	if err != nil {
		return err
	}
	done, err := store.IsComplete(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d checkpointed record(s), complete=%t\n", args[0], len(keys), done)
	for _, key := range keys {
		fmt.Println("  " + key)
	}
	return nil
}

func runCheckpointsClear(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := config.Global().Get()
	store, err := buildCheckpointStore(ctx, cfg)
	if err != nil {
		return err
	}
	if err := store.Clear(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Cleared checkpoints for %s\n", args[0])
	return nil
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	logger := newLogger()
	cfg := config.Global().Get()

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

	analyzeOnce := func(path string) error {
		log, err := loadEventLog(path, formatFlag)
		if err != nil {
			return err
		}
		report, err := engine.Analyze(ctx, log, intelligence.Options{ProcessID: processID, SoDRules: sodRules})
		if err != nil {
			return err
		}
		fmt.Print(tui.RenderReport(report))
		if watchOutput != "" {
			return export.WriteJSON(report, watchOutput)
		}
		return nil
	}

	// Initial run, then watch.
	if err := analyzeOnce(args[0]); err != nil {
		return err
	}

	watcher, err := watch.NewWatcher(logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	watcher.OnChange = analyzeOnce
	watcher.OnError = func(path string, err error) {
		fmt.Fprintf(os.Stderr, "watch error (%s): %v\n", path, err)
	}
	if err := watcher.Watch(args[0]); err != nil {
		return err
	}

	err = watcher.Run(ctx)
	if err == context.Canceled {
		return nil
	}
	return err
}
