package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/boshu2/identityctl/internal/catalog"
	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/validator"
)

var validateIdentityID string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run the required validator set against an identity",
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateIdentityID, "identity-id", "", "identity to validate (required)")
	_ = validateCmd.MarkFlagRequired("identity-id")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	store := docstore.New()
	cat, err := store.LoadCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	resolver := catalog.New(cat, cfg.PackRoot)
	taskPath, err := resolver.ResolveTask(validateIdentityID)
	if err != nil {
		return err
	}

	tr, _, err := store.LoadTaskRecord(taskPath)
	if err != nil {
		return err
	}

	setLabel := tr.CIEnforcementContract.RequiredValidatorSetLabel
	if setLabel == "" {
		setLabel = "v1_2_required"
	}

	reg := buildRegistry(store, taskPath)
	reg.DeclareSet(setLabel, tr.CIEnforcementContract.RequiredValidators)
	if len(tr.CIEnforcementContract.RequiredValidators) == 0 {
		reg.DeclareSet(setLabel, []string{"contract_validation", "rulebook_append_only_check"})
	}

	verdicts, err := reg.RunSet(setLabel, tr.CIEnforcementContract.CandidateValidatorsV1_2, validator.RunContext{
		TaskRecord: tr,
		IdentityID: validateIdentityID,
		RunID:      uuid.NewString(),
		LogDir:     cfg.UpgradeLogsDir(validateIdentityID),
	})
	if err != nil {
		return fmt.Errorf("run validator set %s: %w", setLabel, err)
	}

	for _, v := range verdicts {
		if v.OK {
			printLine("OK", "%s passed", v.Name)
			continue
		}
		printLine("FAIL", "%s failed: %v", v.Name, v.Findings)
	}

	if !validator.AllPassed(verdicts) {
		return fmt.Errorf("validator set %s did not pass for %s", setLabel, validateIdentityID)
	}
	printLine("OK", "all validators passed for %s", validateIdentityID)
	return nil
}
