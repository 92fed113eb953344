package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/installer"
)

var (
	installIdentityID   string
	installSourcePack   string
	installTargetPack   string
	installDestructive  bool
	installRegister     bool
	installActivate     bool
	installTitle        string
	installDescription  string
	installRollbackRef  string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Plan, apply, verify, or roll back an identity pack install",
}

var installPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Classify the source/target conflict and emit a dry-run report",
	RunE:  runInstallOp("plan"),
}

var installDryRunCmd = &cobra.Command{
	Use:   "dry-run",
	Short: "Behave like install but never mutate the target pack or catalog",
	RunE:  runInstallOp("dry-run"),
}

var installApplyCmd = &cobra.Command{
	Use:   "install",
	Short: "Apply the classified conflict action",
	RunE:  runInstallOp("install"),
}

var installVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the latest install report for an identity is well-formed",
	RunE:  runInstallOp("verify"),
}

var installRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Restore the target pack from a backup reference",
	RunE:  runInstallRollback,
}

func init() {
	for _, c := range []*cobra.Command{installPlanCmd, installDryRunCmd, installApplyCmd, installVerifyCmd, installRollbackCmd} {
		c.Flags().StringVar(&installIdentityID, "identity-id", "", "identity id (required)")
		c.Flags().StringVar(&installSourcePack, "source-pack", "", "source pack directory")
		c.Flags().StringVar(&installTargetPack, "target-root", "", "target pack directory")
		_ = c.MarkFlagRequired("identity-id")
	}
	installApplyCmd.Flags().BoolVar(&installDestructive, "destructive-replace", false, "treat a conflicting target as destructively replaceable")
	installApplyCmd.Flags().BoolVar(&installRegister, "register", false, "register the identity in the catalog after install")
	installApplyCmd.Flags().BoolVar(&installActivate, "activate", false, "mark the identity active on registration")
	installApplyCmd.Flags().StringVar(&installTitle, "title", "", "catalog title on registration")
	installApplyCmd.Flags().StringVar(&installDescription, "description", "", "catalog description on registration")

	installRollbackCmd.Flags().StringVar(&installRollbackRef, "rollback-ref", "", "restore_from:<path> reference to roll back to (required)")
	_ = installRollbackCmd.MarkFlagRequired("rollback-ref")

	installCmd.AddCommand(installPlanCmd, installDryRunCmd, installApplyCmd, installVerifyCmd, installRollbackCmd)
	rootCmd.AddCommand(installCmd)
}

func installInput() installer.Input {
	return installer.Input{
		IdentityID:  installIdentityID,
		SourcePack:  installSourcePack,
		TargetPack:  installTargetPack,
		ReportDir:   cfg.InstallReportsDir(),
		BackupDir:   cfg.BackupsDir(),
		Destructive: installDestructive,
		CatalogPath: cfg.Catalog,
		Title:       installTitle,
		Description: installDescription,
		Register:    installRegister,
		Activate:    installActivate,
		NewRunID:    uuid.NewString,
	}
}

func runInstallOp(op string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		inst := installer.New(docstore.New())
		in := installInput()

		var (
			report *installer.Report
			path   string
			err    error
		)
		switch op {
		case "plan":
			report, path, err = inst.Plan(in)
		case "dry-run":
			report, path, err = inst.DryRun(in)
		case "install":
			report, path, err = inst.Install(in)
		case "verify":
			report, path, err = inst.Verify(in)
		default:
			return fmt.Errorf("unknown install operation %q", op)
		}
		if err != nil {
			return err
		}

		printLine("OK", "%s: conflict=%s action=%s report=%s", op, report.ConflictType, report.Action, path)
		if report.Action == installer.ActionAbortAndExplain {
			return fmt.Errorf("install aborted: %s requires a non-destructive manual merge", report.ConflictType)
		}
		return nil
	}
}

func runInstallRollback(cmd *cobra.Command, args []string) error {
	inst := installer.New(docstore.New())
	in := installInput()
	if err := inst.Rollback(in, installRollbackRef); err != nil {
		return err
	}
	printLine("OK", "rolled back %s to %s", installIdentityID, installRollbackRef)
	return nil
}
