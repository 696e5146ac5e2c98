// Package config loads the settings of a pdftomanifest run.
// Values come from defaults, an optional YAML file, the environment (a .env
// file is honoured) and finally command line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pdftomanifest/contracts"
)

const envPrefix = "PDF2IIIF_"

// Config is built once per run and passed by value afterwards.
type Config struct {
	TileSize         int                    `yaml:"tile_size"`
	BaseManifestURI  string                 `yaml:"base_manifest_uri"`
	BaseImageURI     string                 `yaml:"base_image_uri"`
	FailFast         bool                   `yaml:"fail_fast"`
	Workers          int                    `yaml:"workers"`
	Engine           string                 `yaml:"engine"` // go, vips or magick
	Format           contracts.OutputFormat `yaml:"format"`
	Quality          int                    `yaml:"quality"`
	DerivativeWidths []int                  `yaml:"derivative_widths"`
	TileLayout       contracts.TileLayout   `yaml:"tile_layout"`
	Paths            PathsConfig            `yaml:"paths"`
	Extract          ExtractConfig          `yaml:"extract"`
	Manifest         ManifestConfig         `yaml:"manifest"`
	Log              LogConfig              `yaml:"log"`
	Server           ServerConfig           `yaml:"server"`
}

type PathsConfig struct {
	OutputDir   string `yaml:"output_dir"`
	ExtractDir  string `yaml:"extract_dir"`
	ImageDir    string `yaml:"image_dir"`
	ManifestDir string `yaml:"manifest_dir"`
}

type ExtractConfig struct {
	Mode      contracts.ExtractMode `yaml:"mode"`
	RenderDPI int                   `yaml:"render_dpi"`
}

type ManifestConfig struct {
	Label           string `yaml:"label"`
	Description     string `yaml:"description"`
	ProvenanceLabel string `yaml:"provenance_label"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	_ = godotenv.Load() // a missing .env is fine
	applyEnvOverrides(&cfg)

	return cfg, nil
}

// Default returns the settings of the original localhost setup.
func Default() Config {
	return Config{
		TileSize:         512,
		BaseManifestURI:  "http://localhost:8000",
		BaseImageURI:     "http://localhost:8000/images",
		FailFast:         false,
		Workers:          0,
		Engine:           "go",
		Format:           contracts.JPEG,
		Quality:          90,
		DerivativeWidths: []int{90, 200},
		TileLayout:       contracts.LayoutIIIF,
		Paths: PathsConfig{
			OutputDir: "output",
		},
		Extract: ExtractConfig{
			Mode:      contracts.ExtractEmbedded,
			RenderDPI: 150,
		},
		Manifest: ManifestConfig{
			Label:           "Example Manifest from PDF",
			Description:     "Sample P2 manifest with images from PDF",
			ProvenanceLabel: "Generated from",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr: ":8000",
		},
	}
}

// ApplyFlags overrides the configuration with every non-zero flag value.
func (c Config) ApplyFlags(flags contracts.InputFlags) Config {
	if flags.OutputDir != "" {
		c.Paths.OutputDir = flags.OutputDir
	}
	if flags.Engine != "" {
		c.Engine = flags.Engine
	}
	if flags.TileSize > 0 {
		c.TileSize = flags.TileSize
	}
	if flags.Workers > 0 {
		c.Workers = flags.Workers
	}
	if flags.RenderDPI > 0 {
		c.Extract.RenderDPI = flags.RenderDPI
	}
	if flags.Mode != "" {
		c.Extract.Mode = contracts.ExtractMode(flags.Mode)
	}
	if flags.FailFast {
		c.FailFast = true
	}
	return c
}

// Resolve fills derived paths and the worker count. Explicit paths win.
func (c Config) Resolve() Config {
	iiifDir := filepath.Join(c.Paths.OutputDir, string(contracts.IIIF))
	if c.Paths.ExtractDir == "" {
		c.Paths.ExtractDir = filepath.Join(c.Paths.OutputDir, string(contracts.Extracted))
	}
	if c.Paths.ImageDir == "" {
		c.Paths.ImageDir = filepath.Join(iiifDir, string(contracts.Images))
	}
	if c.Paths.ManifestDir == "" {
		c.Paths.ManifestDir = filepath.Join(iiifDir, string(contracts.Manifest))
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	c.BaseManifestURI = strings.TrimRight(c.BaseManifestURI, "/")
	c.BaseImageURI = strings.TrimRight(c.BaseImageURI, "/")
	c.DerivativeWidths = append([]int(nil), c.DerivativeWidths...)
	return c
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.TileSize < 1 {
		return fmt.Errorf("tile_size must be positive, got %d", c.TileSize)
	}
	if err := validateBaseURI("base_manifest_uri", c.BaseManifestURI); err != nil {
		return err
	}
	if err := validateBaseURI("base_image_uri", c.BaseImageURI); err != nil {
		return err
	}
	switch c.Engine {
	case "go", "vips", "magick":
	default:
		return fmt.Errorf("invalid engine: %s", c.Engine)
	}
	if c.Format != contracts.JPEG && c.Format != contracts.PNG {
		return fmt.Errorf("invalid format: %s", c.Format)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be between 1 and 100, got %d", c.Quality)
	}
	if c.TileLayout != contracts.LayoutIIIF && c.TileLayout != contracts.LayoutLevel {
		return fmt.Errorf("invalid tile_layout: %s", c.TileLayout)
	}
	for _, w := range c.DerivativeWidths {
		if w < 1 {
			return fmt.Errorf("derivative widths must be positive, got %d", w)
		}
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if c.Extract.Mode != contracts.ExtractEmbedded && c.Extract.Mode != contracts.ExtractRender {
		return fmt.Errorf("invalid extract mode: %s", c.Extract.Mode)
	}
	if c.Extract.RenderDPI < 1 {
		return fmt.Errorf("render_dpi must be positive, got %d", c.Extract.RenderDPI)
	}
	return nil
}

func validateBaseURI(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URI, got %q", name, raw)
	}
	return nil
}

// applyEnvOverrides applies PDF2IIIF_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("TILE_SIZE"); ok {
		cfg.TileSize = v
	}
	if v := os.Getenv(envPrefix + "BASE_MANIFEST_URI"); v != "" {
		cfg.BaseManifestURI = v
	}
	if v := os.Getenv(envPrefix + "BASE_IMAGE_URI"); v != "" {
		cfg.BaseImageURI = v
	}
	if v := os.Getenv(envPrefix + "FAIL_FAST"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.FailFast = b
		}
	}
	if v, ok := envInt("WORKERS"); ok {
		cfg.Workers = v
	}
	if v := os.Getenv(envPrefix + "ENGINE"); v != "" {
		cfg.Engine = v
	}
	if v := os.Getenv(envPrefix + "EXTRACT_MODE"); v != "" {
		cfg.Extract.Mode = contracts.ExtractMode(v)
	}
	if v := os.Getenv(envPrefix + "OUTPUT_DIR"); v != "" {
		cfg.Paths.OutputDir = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv(envPrefix + "SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(envPrefix + name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
