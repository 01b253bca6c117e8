package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/andresmejia3/vigil/internal/annotate"
	"github.com/andresmejia3/vigil/internal/render"
	"github.com/andresmejia3/vigil/internal/session"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/andresmejia3/vigil/internal/video"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var watchOpts Options

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Identify faces live in a video file or webcam stream",
	Example: `  vigil watch -i clip.mp4 -n 5 -o ./data/frames
  vigil watch -i /dev/video0 --mjpeg | ffplay -f mjpeg -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		opts := watchOpts
		resolveOptions(cmd, &opts)
		return runWatch(cmd.Context(), opts)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchOpts.InputPath, "input", "i", "", "Path to video or capture device (e.g. /dev/video0)")
	watchCmd.Flags().StringVarP(&watchOpts.InputFormat, "format", "f", "", "Force the ffmpeg input format (v4l2 is used for /dev/video*)")
	watchCmd.Flags().IntVarP(&watchOpts.NthFrame, "nth-frame", "n", 1, "Only analyse every Nth frame")
	watchCmd.Flags().Float64VarP(&watchOpts.MatchThreshold, "threshold", "t", 0.6, "Face matching threshold (lower is stricter)")
	watchCmd.Flags().IntVarP(&watchOpts.Workers, "workers", "w", 1, "Faces matched in parallel within a frame")
	watchCmd.Flags().StringVar(&watchOpts.WorkerTimeout, "worker-timeout", "30s", "Timeout for the engine to process a single frame")
	watchCmd.Flags().StringVarP(&watchOpts.OutputDir, "output-dir", "o", "", "Save annotated frames to this directory")
	watchCmd.Flags().BoolVar(&watchOpts.OnlyFaces, "only-faces", false, "With --output-dir, skip frames without faces")
	watchCmd.Flags().BoolVar(&watchOpts.MJPEG, "mjpeg", false, "Write the annotated MJPEG stream to stdout (pipe into ffplay)")
	watchCmd.Flags().BoolVarP(&watchOpts.Quiet, "quiet", "q", false, "Do not log every recognised face")

	watchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(watchCmd)
}

// resolveOptions fills every option the user did not set explicitly from the config.
func resolveOptions(cmd *cobra.Command, opts *Options) {
	if Cfg == nil {
		return
	}
	unset := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && !f.Changed
	}
	if unset("threshold") {
		opts.MatchThreshold = Cfg.Match.Threshold
	}
	if unset("nth-frame") {
		opts.NthFrame = Cfg.Video.NthFrame
	}
	if unset("workers") {
		opts.Workers = Cfg.Annotate.Workers
	}
	if unset("worker-timeout") {
		opts.WorkerTimeout = Cfg.Worker.Timeout.String()
	}
	if unset("format") {
		opts.InputFormat = Cfg.Video.Format
	}
}

// runWatch streams frames from ffmpeg through the engine and matches every face against the gallery.
func runWatch(ctx context.Context, opts Options) error {
	// Create a cancellable context to ensure all child processes (FFmpeg, Python)
	// are killed immediately if this function returns early (e.g. on error).
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := validateWatchFlags(&opts); err != nil {
		return err
	}

	totalFrames := utils.GetTotalFrames(ctx, opts.InputPath)

	cfg := *Cfg
	cfg.Worker.Timeout, _ = time.ParseDuration(opts.WorkerTimeout)

	fmt.Fprintln(os.Stderr, "🚀 Starting AI Engine...")
	ex, err := newExtractor(ctx, &cfg)
	if err != nil {
		utils.ShowError("Failed to start AI worker", err, nil)
		return err
	}
	defer ex.Close()

	src, err := video.StartFFmpeg(ctx, opts.InputPath, opts.InputFormat, opts.NthFrame)
	if err != nil {
		utils.ShowError("Failed to start FFmpeg", err, nil)
		return err
	}
	defer src.Close()

	var barTotal int64 = int64(totalFrames)
	if barTotal <= 0 {
		barTotal = -1 // Trigger spinner mode
	}
	bar := progressbar.NewOptions64(barTotal,
		progressbar.OptionSetDescription("👁️  Vigil Watching"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)
	src.OnFrame = func() { bar.Add(1) }

	var stdout io.Writer
	if opts.MJPEG {
		stdout = os.Stdout
	}
	sink := buildSink(opts, stdout)

	sess, err := session.New(ctx, Gallery, src, ex,
		annotate.Annotator{Threshold: opts.MatchThreshold, Workers: opts.Workers}, sink, Log)
	if err != nil {
		utils.ShowError("Failed to load the gallery", err, nil)
		return err
	}

	stats, err := sess.Run(ctx)
	bar.Finish()
	printSummary(os.Stderr, stats, src.Read())

	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "🛑 Stopped.")
		return nil
	}
	if err != nil {
		utils.ShowError("Watch failed", err, crashLogs(ex))
		return err
	}
	return nil
}

// buildSink combines the log, directory and stream outputs selected by opts.
func buildSink(opts Options, stream io.Writer) session.Sink {
	var sinks []session.Sink
	if !opts.Quiet {
		sinks = append(sinks, render.LogSink{Log: Log})
	}
	if opts.OutputDir != "" || stream != nil {
		sinks = append(sinks, &render.JPEGSink{
			Dir:       opts.OutputDir,
			Stream:    stream,
			OnlyFaces: opts.OnlyFaces,
		})
	}
	return render.Multi(sinks...)
}

func printSummary(w io.Writer, st session.Stats, decoded int) {
	fmt.Fprintf(w, "\n---------------------------------------------------------\n")
	fmt.Fprintf(w, "📊 WATCH SUMMARY\n")
	fmt.Fprintf(w, "---------------------------------------------------------\n")
	fmt.Fprintf(w, "🎞️  Frames analysed:   %d of %d decoded\n", st.Frames, decoded)
	fmt.Fprintf(w, "👁️  Faces detected:    %d\n", st.Faces)
	fmt.Fprintf(w, "✅ Recognised:        %d\n", st.Known)
	fmt.Fprintf(w, "❓ Unknown:           %d\n", st.Unknown)
	if st.FailedFrames > 0 {
		fmt.Fprintf(w, "⚠️  Frames skipped:    %d\n", st.FailedFrames)
	}
	if st.Failed > 0 {
		fmt.Fprintf(w, "⚠️  Match failures:    %d\n", st.Failed)
	}
	fmt.Fprintf(w, "---------------------------------------------------------\n")
}

// validateWatchFlags ensures all CLI arguments are valid before starting heavy processes.
func validateWatchFlags(opts *Options) error {
	// Non-file inputs (avfoundation "0", dshow names) cannot be checked up front.
	if opts.InputFormat == "" || utils.IsDevice(opts.InputPath) {
		info, err := os.Stat(opts.InputPath)
		if err != nil {
			if os.IsNotExist(err) {
				utils.ShowError("Input does not exist", err, nil)
				return err
			}
			utils.ShowError("Unable to access input", err, nil)
			return err
		}
		if info.IsDir() {
			err := fmt.Errorf("is a directory")
			utils.ShowError("Input path is a directory, expected a video file or device", err, nil)
			return err
		}
	}

	if opts.NthFrame < 1 {
		err := fmt.Errorf("must be >= 1, got %d", opts.NthFrame)
		utils.ShowError("Invalid nth-frame interval", err, nil)
		return err
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if err := validateThreshold(opts.MatchThreshold); err != nil {
		return err
	}
	if d, err := time.ParseDuration(opts.WorkerTimeout); err != nil || d < 0 {
		if err == nil {
			err = fmt.Errorf("must not be negative, got %s", d)
		}
		utils.ShowError("Invalid worker-timeout format (use '30s', '1m')", err, nil)
		return err
	}
	return nil
}

func validateThreshold(t float64) error {
	if t <= 0 || math.IsInf(t, 0) || math.IsNaN(t) {
		err := fmt.Errorf("must be a positive number, got %f", t)
		utils.ShowError("Invalid match threshold", err, nil)
		return err
	}
	return nil
}
