package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdftomanifest/contracts"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default().Resolve()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 512, cfg.TileSize)
	assert.Equal(t, "http://localhost:8000", cfg.BaseManifestURI)
	assert.Equal(t, "http://localhost:8000/images", cfg.BaseImageURI)
	assert.False(t, cfg.FailFast)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, filepath.Join("output", "images"), cfg.Paths.ExtractDir)
	assert.Equal(t, filepath.Join("output", "iiif", "images"), cfg.Paths.ImageDir)
	assert.Equal(t, filepath.Join("output", "iiif", "manifest"), cfg.Paths.ManifestDir)
	assert.Equal(t, contracts.ExtractEmbedded, cfg.Extract.Mode)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
tile_size: 256
base_manifest_uri: https://example.org/iiif/
fail_fast: true
format: png
derivative_widths: [120]
tile_layout: level
paths:
  output_dir: /tmp/out
manifest:
  label: Scanned report
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("PDF2IIIF_BASE_IMAGE_URI", "https://img.example.org/iiif")
	t.Setenv("PDF2IIIF_WORKERS", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	cfg = cfg.Resolve()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 256, cfg.TileSize)
	assert.Equal(t, "https://example.org/iiif", cfg.BaseManifestURI)
	assert.Equal(t, "https://img.example.org/iiif", cfg.BaseImageURI)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, contracts.PNG, cfg.Format)
	assert.Equal(t, []int{120}, cfg.DerivativeWidths)
	assert.Equal(t, contracts.LayoutLevel, cfg.TileLayout)
	assert.Equal(t, "Scanned report", cfg.Manifest.Label)
	assert.Equal(t, "Sample P2 manifest with images from PDF", cfg.Manifest.Description)
	assert.Equal(t, filepath.Join("/tmp/out", "iiif", "images"), cfg.Paths.ImageDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestApplyFlags(t *testing.T) {
	cfg := Default().ApplyFlags(contracts.InputFlags{
		OutputDir: "dist",
		TileSize:  1024,
		FailFast:  true,
		Engine:    "vips",
		Mode:      "render",
	})

	assert.Equal(t, "dist", cfg.Paths.OutputDir)
	assert.Equal(t, 1024, cfg.TileSize)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, "vips", cfg.Engine)
	assert.Equal(t, 150, cfg.Extract.RenderDPI)
	assert.Equal(t, contracts.ExtractRender, cfg.Extract.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tile size", func(c *Config) { c.TileSize = 0 }},
		{"relative manifest uri", func(c *Config) { c.BaseManifestURI = "/iiif" }},
		{"image uri without host", func(c *Config) { c.BaseImageURI = "file:///tmp" }},
		{"unknown engine", func(c *Config) { c.Engine = "gimp" }},
		{"unknown format", func(c *Config) { c.Format = "gif" }},
		{"quality out of range", func(c *Config) { c.Quality = 101 }},
		{"unknown layout", func(c *Config) { c.TileLayout = "zoomify" }},
		{"negative derivative", func(c *Config) { c.DerivativeWidths = []int{-1} }},
		{"no output dir", func(c *Config) { c.Paths.OutputDir = "" }},
		{"unknown extract mode", func(c *Config) { c.Extract.Mode = "ocr" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
