package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/andresmejia3/vigil/internal/enroll"
	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <label> <image_path>",
	Short: "Register the face in an image under a name",
	Long:  "Extracts the first face found in the image and stores its embedding under the label, replacing any previous entry for that label.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		ctx := cmd.Context()

		// Fail fast before paying for the engine start-up.
		if _, err := enroll.NormalizeLabel(args[0]); err != nil {
			utils.ShowError("Invalid name", err, nil)
			return err
		}

		fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
		ex, err := newExtractor(ctx, Cfg)
		if err != nil {
			utils.ShowError("Failed to start AI worker", err, nil)
			return err
		}
		defer ex.Close()

		return runEnroll(ctx, cmd.OutOrStdout(), Gallery, ex, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
}

func runEnroll(ctx context.Context, out io.Writer, st gallery.Store, ex types.Extractor, label, imagePath string) error {
	imgData, err := os.ReadFile(imagePath)
	if err != nil {
		utils.ShowError("Failed to read image file", err, nil)
		return err
	}

	fmt.Fprintln(os.Stderr, "🔍 Analyzing face...")
	stored, det, err := enroll.EnrollImage(ctx, label, imgData, ex, st)
	if err != nil {
		var dim *gallery.DimensionMismatchError
		switch {
		case errors.Is(err, enroll.ErrEmptyLabel):
			utils.ShowError("Enter a name before registering", err, nil)
		case errors.Is(err, enroll.ErrReservedLabel):
			utils.ShowError("Choose a different name", err, nil)
		case errors.Is(err, enroll.ErrNoFaceDetected):
			utils.ShowError("No face detected in the provided image", err, nil)
		case errors.As(err, &dim):
			utils.ShowError("Embedding size does not match the gallery (was it built with another model?)", err, nil)
		case errors.Is(err, gallery.ErrStoreWrite):
			utils.ShowError("Failed to save the gallery", err, nil)
		case errors.Is(err, gallery.ErrCorruptStore):
			utils.ShowError("Gallery is corrupt; fix or reset it before enrolling", err, nil)
		default:
			utils.ShowError("Enrollment failed", err, crashLogs(ex))
		}
		return err
	}

	Log.WithFields(logrus.Fields{"label": stored, "dim": det.Embedding.Dim()}).Debug("identity enrolled")
	fmt.Fprintf(out, "✅ Registered '%s' (%d-d embedding, face at %v)\n", stored, det.Embedding.Dim(), det.Box.Rect())
	return nil
}
