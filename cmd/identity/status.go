package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/identityctl/internal/catalog"
	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/formatter"
)

var statusIdentityID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show one identity's current state",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusIdentityID, "identity-id", "", "identity id (required)")
	_ = statusCmd.MarkFlagRequired("identity-id")
	rootCmd.AddCommand(statusCmd)
}

// statusView is the projection status prints, in both table and --json form.
type statusView struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	CurrentState string `json:"current_state"`
	Objective    string `json:"objective"`
	PackPath     string `json:"pack_path"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	store := docstore.New()
	cat, err := store.LoadCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	resolver := catalog.New(cat, cfg.PackRoot)

	entry, err := resolver.Entry(statusIdentityID)
	if err != nil {
		return err
	}
	taskPath, err := resolver.ResolveTask(statusIdentityID)
	if err != nil {
		return err
	}
	tr, _, err := store.LoadTaskRecord(taskPath)
	if err != nil {
		return err
	}

	view := statusView{
		ID:           entry.ID,
		Title:        entry.Title,
		Status:       entry.Status,
		CurrentState: tr.StateMachine.CurrentState,
		Objective:    tr.Objective.Title,
		PackPath:     entry.PackPath,
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	t := formatter.NewTable(os.Stdout, "ID", "TITLE", "STATUS", "STATE", "OBJECTIVE")
	t.SetMaxWidth(4, 60)
	t.AddRow(view.ID, view.Title, view.Status, view.CurrentState, view.Objective)
	return t.Render()
}
