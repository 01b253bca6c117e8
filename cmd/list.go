package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/store"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled identities",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runList(cmd.Context(), cmd.OutOrStdout(), Gallery, pg)
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// runList prints the gallery. With the postgres backend the enrollment dates are shown too.
func runList(ctx context.Context, out io.Writer, st gallery.Store, db *store.Store) error {
	if db != nil {
		identities, err := db.ListIdentities(ctx)
		if err != nil {
			utils.ShowError("Failed to list identities", err, nil)
			return err
		}
		if len(identities) == 0 {
			fmt.Fprintln(out, "No identities enrolled.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "LABEL\tDIM\tENROLLED\tUPDATED")
		fmt.Fprintln(w, "-----\t---\t--------\t-------")
		for _, id := range identities {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", id.Label, id.Dim,
				id.EnrolledAt.Local().Format("2006-01-02 15:04"),
				id.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	}

	g, err := st.Load(ctx)
	if err != nil {
		utils.ShowError("Failed to load the gallery", err, nil)
		return err
	}
	if len(g) == 0 {
		fmt.Fprintln(out, "No identities enrolled.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "LABEL\tDIM")
	fmt.Fprintln(w, "-----\t---")
	for _, e := range g.Entries() {
		fmt.Fprintf(w, "%s\t%d\n", e.Label, e.Embedding.Dim())
	}
	return w.Flush()
}
