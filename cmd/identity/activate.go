package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/identityctl/internal/docstore"
)

var activateIdentityID string

var activateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Mark an identity active",
	RunE:  runActivate,
}

func init() {
	activateCmd.Flags().StringVar(&activateIdentityID, "identity-id", "", "identity id (required)")
	_ = activateCmd.MarkFlagRequired("identity-id")
	rootCmd.AddCommand(activateCmd)
}

// runActivate flips the named catalog entry to status=active and leaves
// default_identity unchanged (spec §6.1: activate never silently changes
// the default).
func runActivate(cmd *cobra.Command, args []string) error {
	store := docstore.New()
	cat, err := store.LoadCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	found := false
	for i := range cat.Identities {
		if cat.Identities[i].ID == activateIdentityID {
			cat.Identities[i].Status = "active"
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("identity %q not found in catalog", activateIdentityID)
	}

	if err := store.SaveCatalog(cfg.Catalog, cat); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	printLine("OK", "activated %s", activateIdentityID)
	return nil
}
