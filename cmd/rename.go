package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/andresmejia3/vigil/internal/enroll"
	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <label> <new_label>",
	Short: "Move an enrolled face to a new name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runRename(cmd.Context(), cmd.OutOrStdout(), Gallery, args[0], args[1])
	},
}

var forgetCmd = &cobra.Command{
	Use:     "forget <label>",
	Aliases: []string{"rm"},
	Short:   "Remove an enrolled identity",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runForget(cmd.Context(), cmd.OutOrStdout(), Gallery, args[0])
	},
}

func init() {
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(forgetCmd)
}

func runRename(ctx context.Context, out io.Writer, st gallery.Store, from, to string) error {
	if err := enroll.Rename(ctx, from, to, st); err != nil {
		utils.ShowError("Failed to rename identity", err, nil)
		return err
	}
	fmt.Fprintf(out, "✅ '%s' is now '%s'\n", from, to)
	return nil
}

func runForget(ctx context.Context, out io.Writer, st gallery.Store, label string) error {
	if err := enroll.Forget(ctx, label, st); err != nil {
		utils.ShowError("Failed to forget identity", err, nil)
		return err
	}
	fmt.Fprintf(out, "🗑️  Forgot '%s'\n", label)
	return nil
}
