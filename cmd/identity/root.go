package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/boshu2/identityctl/internal/config"
	"github.com/boshu2/identityctl/internal/diag"
	"github.com/boshu2/identityctl/internal/upgrade"
)

var (
	flagCatalog     string
	flagPackRoot    string
	flagRuntimeRoot string
	flagJSON        bool
	flagVerbose     bool

	cfg *config.Config
	log *diag.Logger
)

// rootCmd is the identity governance engine's top-level command, wired the
// way the teacher's cmd/ao/root.go wires persistent flags and a
// PersistentPreRun config hook, generalized to the catalog/pack-root/
// runtime-root paths this engine reads and writes.
var rootCmd = &cobra.Command{
	Use:   "identity",
	Short: "Identity runtime governance engine",
	Long: `identity governs a catalog of identity packs: contract validation,
drift-driven upgrade execution, install safety, and CI evidence enforcement.

Core commands:
  init       Scaffold a new identity pack
  validate   Run the required validator set against an identity
  compile    Write the runtime brief (IDENTITY_COMPILED.md)
  activate   Mark an identity active
  update     Run the upgrade decider/executor (review-required or safe-auto)
  install    plan/dry-run/install/verify/rollback an identity pack
  status     Show one identity's current state
  list       List every catalog identity
  ci-gate    Enforce changelog/self-upgrade/install-provenance rules over a git diff`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagCatalog, "catalog", "", "catalog YAML path (default identity/catalog/identities.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagPackRoot, "pack-root", "", "legacy pack directory root (default identity/packs)")
	rootCmd.PersistentFlags().StringVar(&flagRuntimeRoot, "runtime-root", "", "runtime output root (default identity/runtime)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit structured JSON output (status, list)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose diagnostic logging")

	_ = viper.BindPFlag("catalog", rootCmd.PersistentFlags().Lookup("catalog"))
	_ = viper.BindPFlag("pack_root", rootCmd.PersistentFlags().Lookup("pack-root"))
	_ = viper.BindPFlag("runtime_root", rootCmd.PersistentFlags().Lookup("runtime-root"))
	viper.SetEnvPrefix("IDENTITY")
	viper.AutomaticEnv()
}

// loadConfig layers flags over environment over project/home config over
// defaults (internal/config.Load), then applies flag overrides viper has
// resolved from either --flag or the matching IDENTITY_* env var, so a flag
// left unset but an env var present still takes effect (config.Load already
// expresses env precedence directly; viper only additionally exposes the
// same env vars under the flag names, and subcommands read the merged
// result from cfg.Catalog etc., per SPEC_FULL.md §10.1).
func loadConfig() error {
	overrides := &config.Config{}
	if v := strings.TrimSpace(viper.GetString("catalog")); v != "" {
		overrides.Catalog = v
	}
	if v := strings.TrimSpace(viper.GetString("pack_root")); v != "" {
		overrides.PackRoot = v
	}
	if v := strings.TrimSpace(viper.GetString("runtime_root")); v != "" {
		overrides.RuntimeRoot = v
	}
	if flagJSON {
		overrides.Output = "json"
	}
	if flagVerbose {
		overrides.Verbose = true
	}

	loaded, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded
	log = diag.New(os.Stderr, cfg.Verbose)
	return nil
}

// Execute runs the root command and maps the returned error to the exit
// codes spec.md §6.1 assigns: 0 ok, 1 precondition/usage, 2 validator quorum
// failed, 3 path-policy violation.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "[FAIL] %v\n", err)

	switch {
	case errors.Is(err, upgrade.ErrValidatorQuorumFailed):
		os.Exit(2)
	case errors.Is(err, upgrade.ErrPathPolicyViolation):
		os.Exit(3)
	default:
		os.Exit(1)
	}
}

// printLine writes a line prefixed per spec.md §7's [OK]/[FAIL]/[INFO]/[WARN]
// user-visible output convention, kept verbatim from the teacher's plain
// fmt.Println CLI output style (no logging library on the stdout path).
func printLine(prefix, format string, args ...any) {
	fmt.Printf("[%s] %s\n", prefix, fmt.Sprintf(format, args...))
}
