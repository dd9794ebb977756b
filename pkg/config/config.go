// Package config loads linkscan settings from a YAML file, a .env file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/daniel-butler/linkscan/pkg/extractor"
)

// Environment variables that override file settings.
const (
	EnvDB           = "LINKSCAN_DB"
	EnvAddr         = "LINKSCAN_ADDR"
	EnvWorkers      = "LINKSCAN_WORKERS"
	EnvKeepOverlaps = "LINKSCAN_KEEP_OVERLAPS"
)

// Config represents the application configuration
type Config struct {
	Database string       `yaml:"database"`
	Scan     ScanConfig   `yaml:"scan"`
	Server   ServerConfig `yaml:"server"`
	Fetch    FetchConfig  `yaml:"fetch"`
	Watch    WatchConfig  `yaml:"watch"`
	Export   ExportConfig `yaml:"export"`
}

// ScanConfig controls extraction.
type ScanConfig struct {
	Workers         int      `yaml:"workers"`
	Overlap         string   `yaml:"overlap"` // suppress or keep
	ContextWidth    int      `yaml:"context_width"`
	PromoteHeadings *bool    `yaml:"promote_headings,omitempty"`
	Families        []string `yaml:"families,omitempty"` // subset of built-in families, all when empty
	Mentions        bool     `yaml:"mentions"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// FetchConfig controls remote document retrieval.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	Attempts  uint          `yaml:"attempts"`
	UserAgent string        `yaml:"user_agent"`
	MaxBytes  int64         `yaml:"max_bytes"`
}

// WatchConfig controls directory watching.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// ExportConfig controls report output.
type ExportConfig struct {
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DefaultDBPath(),
		Scan: ScanConfig{
			Overlap:      extractor.OverlapSuppress.String(),
			ContextWidth: extractor.DefaultContextWidth,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			MaxUploadBytes: 32 << 20,
		},
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			Attempts:  3,
			UserAgent: "linkscan/1.0",
			MaxBytes:  20 << 20,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Export: ExportConfig{
			Format: "table",
		},
	}
}

// Dir is the per-user linkscan directory.
func Dir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".linkscan")
}

// DefaultDBPath is the history database used when none is configured.
func DefaultDBPath() string {
	return filepath.Join(Dir(), "linkscan.db")
}

// DefaultPath is the config file read when --config is not given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Load reads configuration from path, layered over Default. A missing file
// at the default location is not an error; a missing file that was asked
// for explicitly is. Variables from a .env file in the working directory
// are loaded first without overriding the real environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not load .env", "error", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDB); v != "" {
		c.Database = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvWorkers, err)
		}
		c.Scan.Workers = n
	}
	if v := os.Getenv(EnvKeepOverlaps); v != "" {
		keep, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvKeepOverlaps, err)
		}
		if keep {
			c.Scan.Overlap = extractor.OverlapKeep.String()
		} else {
			c.Scan.Overlap = extractor.OverlapSuppress.String()
		}
	}
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database) == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Scan.Workers < 0 {
		errs = append(errs, fmt.Errorf("scan.workers must not be negative, got %d", c.Scan.Workers))
	}
	if _, err := extractor.ParseOverlapPolicy(c.Scan.Overlap); err != nil {
		errs = append(errs, fmt.Errorf("scan.overlap: %w", err))
	}
	if c.Scan.ContextWidth < 0 {
		errs = append(errs, fmt.Errorf("scan.context_width must not be negative, got %d", c.Scan.ContextWidth))
	}
	known := make(map[string]bool)
	for _, id := range extractor.FamilyIDs() {
		known[id] = true
	}
	for _, id := range c.Scan.Families {
		if !known[id] {
			errs = append(errs, fmt.Errorf("scan.families: unknown family %q", id))
		}
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("server.max_upload_bytes must be positive"))
	}
	if c.Fetch.Attempts == 0 {
		errs = append(errs, errors.New("fetch.attempts must be at least 1"))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch.debounce must not be negative"))
	}
	switch c.Export.Format {
	case "table", "csv", "md", "markdown", "json":
	default:
		errs = append(errs, fmt.Errorf("export.format: unknown format %q", c.Export.Format))
	}
	return errors.Join(errs...)
}

// ExtractorOptions converts the scan settings into extractor options.
func (c *Config) ExtractorOptions() []extractor.Option {
	policy, _ := extractor.ParseOverlapPolicy(c.Scan.Overlap)
	opts := []extractor.Option{
		extractor.WithOverlapPolicy(policy),
		extractor.WithContextWidth(c.Scan.ContextWidth),
	}
	if len(c.Scan.Families) > 0 {
		opts = append(opts, extractor.WithEnabled(c.Scan.Families...))
	}
	return opts
}

// PromoteHeadings reports whether shout-case lines become headings.
func (c *Config) PromoteHeadings() bool {
	return c.Scan.PromoteHeadings == nil || *c.Scan.PromoteHeadings
}

// Write saves the configuration as YAML, creating parent directories.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
