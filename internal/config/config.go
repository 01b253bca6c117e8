// Package config loads vigil settings from vigil.yaml, .env and VIGIL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Gallery  GalleryConfig  `mapstructure:"gallery"`
	Database DatabaseConfig `mapstructure:"database"`
	Match    MatchConfig    `mapstructure:"match"`
	Annotate AnnotateConfig `mapstructure:"annotate"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Video    VideoConfig    `mapstructure:"video"`
	Log      LogConfig      `mapstructure:"log"`
}

type GalleryConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type MatchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

type AnnotateConfig struct {
	Workers int `mapstructure:"workers"`
}

type WorkerConfig struct {
	Python  string        `mapstructure:"python"`
	Script  string        `mapstructure:"script"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type VideoConfig struct {
	NthFrame int    `mapstructure:"nth_frame"`
	Format   string `mapstructure:"format"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration. configPath may be empty, in which case vigil.yaml
// is looked up in the working directory and ~/.config/vigil. A missing file is
// not an error.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("vigil")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/vigil")
		}
	}

	v.SetEnvPrefix("VIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("gallery.backend", BackendFile)
	v.SetDefault("gallery.path", "./data/gallery.json")
	v.SetDefault("database.url", "")
	v.SetDefault("match.threshold", 0.6)
	v.SetDefault("annotate.workers", 1)
	v.SetDefault("worker.python", "python3")
	v.SetDefault("worker.script", "python/worker.py")
	v.SetDefault("worker.timeout", "30s")
	v.SetDefault("video.nth_frame", 1)
	v.SetDefault("video.format", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = PostgresURLFromEnv()
	}
	return &cfg, nil
}

// PostgresURLFromEnv builds a connection string from the POSTGRES_* variables
// used by the docker setup, falling back to a local default.
func PostgresURLFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return "postgres://localhost:5432/vigil"
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}

// Validate checks the settings that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	switch c.Gallery.Backend {
	case BackendFile:
		if c.Gallery.Path == "" {
			return errors.New("gallery.path must be set for the file backend")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			return errors.New("database.url must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid gallery.backend '%s'. Must be 'file' or 'postgres'", c.Gallery.Backend)
	}

	if t := c.Match.Threshold; t <= 0 || math.IsInf(t, 0) || math.IsNaN(t) {
		return fmt.Errorf("match.threshold must be a positive number, got %v", t)
	}
	if c.Annotate.Workers < 1 {
		return fmt.Errorf("annotate.workers must be at least 1, got %d", c.Annotate.Workers)
	}
	if c.Video.NthFrame < 1 {
		return fmt.Errorf("video.nth_frame must be at least 1, got %d", c.Video.NthFrame)
	}
	if c.Worker.Timeout < 0 {
		return fmt.Errorf("worker.timeout must not be negative, got %s", c.Worker.Timeout)
	}
	return nil
}
