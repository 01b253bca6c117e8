package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetFrames string
	resetYes    bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset system state (Gallery, saved frames)",
	Long:  "Removes every enrolled identity. With --frames, also deletes a directory of annotated frames written by watch.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		var in io.Reader = os.Stdin
		if resetYes {
			in = strings.NewReader(strings.Repeat("y\n", 2))
		}
		return runReset(cmd.Context(), in, cmd.OutOrStdout(), Gallery, resetFrames)
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetFrames, "frames", "", "Also delete this directory of saved frames")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func runReset(ctx context.Context, in io.Reader, out io.Writer, st gallery.Store, framesDir string) error {
	reader := bufio.NewReader(in)

	if confirm(reader, out, "⚠️  Are you sure you want to remove ALL enrolled identities?") {
		fmt.Fprintln(out, "🗑️  Clearing Gallery...")
		if err := resetGallery(ctx, st); err != nil {
			utils.ShowError("Failed to reset gallery", err, nil)
			return err
		}
	}

	if framesDir != "" {
		if confirm(reader, out, fmt.Sprintf("⚠️  Are you sure you want to delete %s?", framesDir)) {
			fmt.Fprintln(out, "🗑️  Clearing Saved Frames...")
			removeDir(framesDir)
		}
	}

	fmt.Fprintln(out, "✨ Reset Complete.")
	return nil
}

func resetGallery(ctx context.Context, st gallery.Store) error {
	// Postgres also gets its schema refreshed.
	if pg != nil {
		return pg.Reset(ctx)
	}
	return st.Save(ctx, gallery.New())
}

func confirm(r *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
