package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/identityctl/internal/docstore"
	"github.com/boshu2/identityctl/internal/formatter"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every catalog identity",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	store := docstore.New()
	cat, err := store.LoadCatalog(cfg.Catalog)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cat.Identities)
	}

	t := formatter.NewTable(os.Stdout, "ID", "TITLE", "STATUS", "DEFAULT")
	for _, e := range cat.Identities {
		isDefault := ""
		if e.ID == cat.DefaultIdentity {
			isDefault = "*"
		}
		t.AddRow(e.ID, e.Title, e.Status, isDefault)
	}
	return t.Render()
}
