package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/boshu2/identityctl/internal/catalog"
	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/upgrade"
)

var (
	updateIdentityID  string
	updateMode        string
	updateMetricsPath string
	updateOutDir      string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Run the upgrade decider/executor (review-required or safe-auto)",
	RunE:  runUpdate,
}

func init() {
	updateCmd.Flags().StringVar(&updateIdentityID, "identity-id", "", "identity id (required)")
	updateCmd.Flags().StringVar(&updateMode, "mode", "", "review-required or safe-auto (required)")
	updateCmd.Flags().StringVar(&updateMetricsPath, "metrics-path", "", "route-quality metrics document (default from config)")
	updateCmd.Flags().StringVar(&updateOutDir, "out-dir", "", "execution-report output directory (default from config)")
	_ = updateCmd.MarkFlagRequired("identity-id")
	_ = updateCmd.MarkFlagRequired("mode")
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	var mode upgrade.Mode
	switch updateMode {
	case "review-required":
		mode = upgrade.ModeReviewRequired
	case "safe-auto":
		mode = upgrade.ModeSafeAuto
	default:
		return fmt.Errorf("%w: --mode must be review-required or safe-auto, got %q", upgrade.ErrPrecondition, updateMode)
	}

	store := docstore.New()
	cat, err := store.LoadCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	resolver := catalog.New(cat, cfg.PackRoot)

	pack, err := resolver.ResolvePack(updateIdentityID)
	if err != nil {
		return err
	}
	taskPath, err := resolver.ResolveTask(updateIdentityID)
	if err != nil {
		return err
	}
	tr, _, err := store.LoadTaskRecord(taskPath)
	if err != nil {
		return err
	}

	metricsPath := updateMetricsPath
	if metricsPath == "" {
		metricsPath = cfg.MetricsPath(updateIdentityID)
	}
	var routeMetrics docstore.RouteQualityMetrics
	if err := store.LoadJSON(metricsPath, &routeMetrics); err != nil {
		return fmt.Errorf("%w: load route-quality metrics: %v", upgrade.ErrPrecondition, err)
	}

	outDir := updateOutDir
	if outDir == "" {
		outDir = cfg.ReportsDir()
	}

	reg := buildRegistry(store, taskPath)
	setLabel := "v1_2_required"
	requiredChecks := []string{"contract_validation", "rulebook_append_only_check"}
	if tr.IdentityUpdateLifecycleContract != nil && len(tr.IdentityUpdateLifecycleContract.ValidationContract.RequiredChecks) > 0 {
		requiredChecks = tr.IdentityUpdateLifecycleContract.ValidationContract.RequiredChecks
	}
	reg.DeclareSet(setLabel, requiredChecks)

	// runID is generated up front (rather than left to the executor) so the
	// report path and patch-plan path can be named after the same run_id the
	// emitted ExecutionReport carries, which the CI enforcement gate's
	// self-upgrade rule requires as a sibling "<run_id>-patch-plan.json".
	runID := uuid.NewString()
	newRunID := firstThenFresh(runID)
	runLog := log.With(runID, updateIdentityID)
	runLog.Info("starting update run", map[string]any{"mode": updateMode})

	generatedBy := "local"
	if isTruthyEnv(os.Getenv("CI")) {
		generatedBy = "ci"
	}

	exec := upgrade.NewExecutor(store)
	report, plan, err := exec.Run(upgrade.Input{
		IdentityID:         updateIdentityID,
		Mode:                mode,
		TaskRecord:          tr,
		Metrics:             routeMetrics,
		RulebookPath:        filepath.Join(pack, "RULEBOOK.jsonl"),
		HistoryPath:         filepath.Join(pack, "TASK_HISTORY.md"),
		ArbitrationLogPath:  filepath.Join(cfg.ArbitrationLogsDir(), updateIdentityID+".jsonl"),
		PatchPlanPath:       filepath.Join(outDir, runID+"-patch-plan.json"),
		ReportPath:          filepath.Join(outDir, "identity-upgrade-exec-"+updateIdentityID+"-"+runID+".json"),
		CheckLogDir:         cfg.UpgradeLogsDir(updateIdentityID),
		Validators:          reg,
		ValidatorSetLabel:   setLabel,
		GeneratedBy:         generatedBy,
		GithubRunID:         os.Getenv("GITHUB_RUN_ID"),
		GithubSHA:           os.Getenv("GITHUB_SHA"),
		NewRunID:            newRunID,
	})
	if report != nil {
		if plan != nil && plan.UpgradeRequired {
			printLine("INFO", "upgrade required: %v", plan.Reasons)
		} else {
			printLine("INFO", "no upgrade required")
		}
		printLine("INFO", "actions taken: %v", report.ActionsTaken)
	}
	if err != nil {
		runLog.Error(err, "update run failed", nil)
		return err
	}
	runLog.Info("update run complete", map[string]any{"actions_taken": report.ActionsTaken})
	printLine("OK", "update run %s complete for %s", report.RunID, updateIdentityID)
	return nil
}

// firstThenFresh returns a run-ID generator that yields id on its first
// call (so the report's run_id matches the pre-named report/patch-plan
// paths) and a fresh uuid on every subsequent call (e.g. the arbitration
// record id the safe-auto apply step mints separately).
func firstThenFresh(id string) func() string {
	used := false
	return func() string {
		if !used {
			used = true
			return id
		}
		return uuid.NewString()
	}
}
