package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/vigil/internal/config"
	"github.com/andresmejia3/vigil/internal/gallery"
	"github.com/andresmejia3/vigil/internal/logger"
	"github.com/andresmejia3/vigil/internal/store"
	"github.com/andresmejia3/vigil/internal/types"
	"github.com/andresmejia3/vigil/internal/utils"
	"github.com/andresmejia3/vigil/internal/worker"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Options holds shared configuration for the watch and identify commands
type Options struct {
	InputPath      string
	NthFrame       int
	MatchThreshold float64
	Workers        int
	WorkerTimeout  string
	InputFormat    string
	OutputDir      string
	MJPEG          bool
	OnlyFaces      bool
	Quiet          bool
}

var (
	// Gallery is the store shared by subcommands
	Gallery gallery.Store
	// Cfg is the resolved configuration (file, env, then flags)
	Cfg *config.Config
	// Log is the structured logger shared by subcommands
	Log *logrus.Logger

	// pg is set when the postgres backend is active
	pg *store.Store

	configPath  string
	dbURL       string
	galleryPath string
	backend     string
	logLevel    string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "vigil",
	Short:   "Live face identification against an enrolled gallery",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbURL != "" {
			cfg.Database.URL = dbURL
		}
		if galleryPath != "" {
			cfg.Gallery.Path = galleryPath
		}
		if backend != "" {
			cfg.Gallery.Backend = backend
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := cfg.Validate(); err != nil {
			utils.ShowError("Configuration Error", err, nil)
			return err
		}
		Cfg = cfg
		Log = logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

		// Use the command's context (which will be cancellable) for the connection
		s, err := openGallery(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		Gallery = gallery.NewLockedStore(s)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pg != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			pg.Close(context.Background())
			pg = nil
		}
	},
}

func openGallery(ctx context.Context, cfg *config.Config) (gallery.Store, error) {
	switch cfg.Gallery.Backend {
	case config.BackendPostgres:
		s, err := store.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		pg = s
		return s, nil
	default:
		return gallery.NewFileStore(cfg.Gallery.Path), nil
	}
}

// extractor is a face extractor owning an external process.
type extractor interface {
	types.Extractor
	Close()
}

// newExtractor starts the embedding engine. Tests replace it with a fake.
var newExtractor = func(ctx context.Context, cfg *config.Config) (extractor, error) {
	w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
		Python:      cfg.Worker.Python,
		Script:      cfg.Worker.Script,
		ReadTimeout: cfg.Worker.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// crashLogs returns the captured stderr of a Python-backed extractor, if any.
func crashLogs(ex types.Extractor) *utils.SafeCommand {
	if w, ok := ex.(*worker.PythonWorker); ok {
		return w.Cmd
	}
	return nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: ./vigil.yaml or ~/.config/vigil/vigil.yaml)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Gallery backend: file or postgres (default: file)")
	rootCmd.PersistentFlags().StringVar(&galleryPath, "gallery", "", "Gallery file for the file backend (default: ./data/gallery.json)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/vigil)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}
