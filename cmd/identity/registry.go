package main

import (
	"os"

	"github.com/boshu2/identityctl/internal/contract"
	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/validator"
)

// buildRegistry wires the in-process validators every CLI subcommand that
// touches the validator set shares, generalized from the teacher's
// internal/ratchet fixed five-step dispatch table to a registry whose sets
// are declared by label (DeclareSet) rather than hardcoded at compile time.
func buildRegistry(store *docstore.Store, taskPath string) *validator.Registry {
	reg := validator.NewRegistry()

	reg.Register(validator.Validator{
		Name: "contract_validation",
		Run: func(_ *docstore.TaskRecord, identityID string) (bool, []string, error) {
			tr, rawKeys, err := store.LoadTaskRecord(taskPath)
			if err != nil {
				return false, nil, err
			}
			report := contract.Validate(tr, rawKeys, contract.Options{
				CreatorIdentityID:  identityID,
				RulebookPathExists: fileExists,
				EvidenceRoot:       ".",
			})
			if report.OK() {
				return true, nil, nil
			}
			findings := make([]string, 0, len(report.Findings))
			for _, f := range report.Findings {
				findings = append(findings, f.ID()+": "+f.Message)
			}
			return false, findings, nil
		},
	})

	reg.Register(validator.Validator{
		Name: "rulebook_append_only_check",
		Run: func(tr *docstore.TaskRecord, identityID string) (bool, []string, error) {
			path := tr.RulebookContract.RulebookPath
			if path == "" {
				return false, []string{"rulebook_contract.rulebook_path is empty"}, nil
			}
			_, malformed, err := store.LoadRulebook(path)
			if err != nil {
				return false, nil, err
			}
			if len(malformed) > 0 {
				return false, []string{"malformed rulebook lines present"}, nil
			}
			return true, nil, nil
		},
	})

	reg.DeclareSet("v1_2_required", []string{"contract_validation", "rulebook_append_only_check"})
	return reg
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
