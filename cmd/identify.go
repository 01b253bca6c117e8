package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/vigil/internal/annotate"
	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/spf13/cobra"
)

var identifyOpts Options

var identifyCmd = &cobra.Command{
	Use:   "identify <image_path>",
	Short: "Match every face in an image against the gallery",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()
		opts := identifyOpts
		resolveOptions(cmd, &opts)
		if err := validateThreshold(opts.MatchThreshold); err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
		ex, err := newExtractor(ctx, Cfg)
		if err != nil {
			utils.ShowError("Failed to start AI worker", err, nil)
			return err
		}
		defer ex.Close()

		return runIdentify(ctx, cmd.OutOrStdout(), Gallery, ex, args[0], opts.MatchThreshold)
	},
}

func init() {
	identifyCmd.Flags().Float64VarP(&identifyOpts.MatchThreshold, "threshold", "t", 0.6, "Face matching threshold (lower is stricter)")
	rootCmd.AddCommand(identifyCmd)
}

func runIdentify(ctx context.Context, out io.Writer, st gallery.Store, ex types.Extractor, imagePath string, threshold float64) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	g, err := st.Load(ctx)
	if err != nil {
		utils.ShowError("Failed to load the gallery", err, nil)
		return err
	}
	if len(g) == 0 {
		fmt.Fprintln(os.Stderr, "⚠️  Gallery is empty. Every face will be reported as Unknown; enroll someone first.")
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing faces...")
	dets, err := ex.Extract(ctx, imgData)
	if err != nil {
		utils.ShowError("AI processing failed", err, crashLogs(ex))
		return err
	}
	if len(dets) == 0 {
		fmt.Fprintln(out, "❌ No faces detected in the provided image.")
		return nil
	}

	results := annotate.Annotate(dets, g, threshold)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FACE\tLABEL\tDISTANCE\tBOX (T,R,B,L)")
	fmt.Fprintln(w, "----\t-----\t--------\t-------------")
	for i, r := range results {
		b := r.Detection.Box
		label, dist := r.Label, fmtDistance(r.Distance)
		if r.Err != nil {
			label, dist = "error: "+r.Err.Error(), "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d,%d,%d,%d\n", i+1, label, dist, b.Top, b.Right, b.Bottom, b.Left)
	}
	return w.Flush()
}

func fmtDistance(d float64) string {
	if math.IsInf(d, 1) {
		return "-"
	}
	return fmt.Sprintf("%.4f", d)
}
