package tests

import (
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/phpdave11/gofpdf"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
	"pdftomanifest/converter"
	"pdftomanifest/extractor"
	"pdftomanifest/files_manager"
	"pdftomanifest/manifest_writer"
	"pdftomanifest/pipeline"
	"pdftomanifest/server"
)

type env struct {
	cfg    config.Config
	layout *files_manager.Layout
	run    *pipeline.Pipeline
}

func newEnv(t *testing.T, failFast bool) *env {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.TileSize = 256
	cfg.Workers = 2
	cfg.FailFast = failFast
	cfg.Extract.Mode = contracts.ExtractRender
	cfg.Extract.RenderDPI = 96
	cfg = cfg.Resolve()
	require.NoError(t, cfg.Validate())

	layout := files_manager.NewLayout(cfg)
	require.NoError(t, files_manager.EnsureDirs(layout))

	engine, err := converter.NewEngine(cfg.Engine)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })

	run := pipeline.New(cfg,
		converter.NewGenerator(cfg, layout, engine, zerolog.Nop()),
		manifest_writer.NewBuilder(cfg, layout),
		manifest_writer.NewWriter(layout, zerolog.Nop()),
		zerolog.Nop())
	return &env{cfg: cfg, layout: layout, run: run}
}

// writeBook writes a three page PDF with pages of different shapes.
func writeBook(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.pdf")
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 24)

	pdf.AddPage()
	pdf.Cell(60, 20, "Title page")

	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: 200, Ht: 100})
	pdf.SetFillColor(20, 120, 200)
	pdf.Rect(20, 20, 160, 60, "F")

	pdf.AddPageFormat("P", gofpdf.SizeType{Wd: 80, Ht: 80})
	pdf.Cell(40, 20, "End")

	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func extract(t *testing.T, e *env, pdfPath string) *extractor.Result {
	t.Helper()
	res, err := extractor.NewPDFSource(pdfPath, e.cfg, e.layout, zerolog.Nop()).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 3)
	return res
}

func readManifest(t *testing.T, path string) manifest_writer.Manifest {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var m manifest_writer.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestPDFToManifest(t *testing.T) {
	e := newEnv(t, false)
	res := extract(t, e, writeBook(t))

	report, err := e.run.Run(context.Background(), res.Descriptors, res.Provenance)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.True(t, report.ManifestWritten)

	m := readManifest(t, report.ManifestPath)
	assert.Equal(t, []manifest_writer.MetadataEntry{{Label: "Generated from", Value: "book.pdf"}}, m.Metadata)
	canvases := m.Sequences[0].Canvases
	require.Len(t, canvases, 3)

	for i, c := range canvases {
		desc := res.Descriptors[i]
		assert.Equal(t, desc.Width, c.Width)
		assert.Equal(t, desc.Height, c.Height)

		var info contracts.ImageService
		data, err := os.ReadFile(e.layout.InfoPath(desc.ID))
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &info))

		assert.Equal(t, c.Images[0].Resource.Service.ID, info.ID, "manifest and info.json agree on the service")
		assert.Equal(t, c.Width, info.Width)
		assert.Equal(t, c.Height, info.Height)
		assert.Equal(t, 256, info.TileSize())
		assert.Equal(t, 1, info.ScaleFactors()[0])
	}
}

func TestServedTilesResolve(t *testing.T) {
	e := newEnv(t, false)
	res := extract(t, e, writeBook(t))
	report, err := e.run.Run(context.Background(), res.Descriptors, res.Provenance)
	require.NoError(t, err)

	router, err := server.NewRouter(e.cfg, e.layout, zerolog.Nop())
	require.NoError(t, err)
	srv := httptest.NewServer(router)
	defer srv.Close()

	fetch := func(uri string) *http.Response {
		u, err := url.Parse(uri)
		require.NoError(t, err)
		resp, err := http.Get(srv.URL + u.Path)
		require.NoError(t, err)
		return resp
	}

	resp := fetch(e.layout.ManifestURI())
	var m manifest_writer.Manifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	resp.Body.Close()
	assert.Equal(t, readManifest(t, report.ManifestPath), m)

	// Follow the first canvas to its info.json and request every tile of
	// the full-resolution level the way a level-0 viewer would.
	svcID := m.Sequences[0].Canvases[0].Images[0].Resource.Service.ID
	resp = fetch(svcID + "/info.json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info contracts.ImageService
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	resp.Body.Close()

	tile := info.TileSize()
	for y := 0; y < info.Height; y += tile {
		for x := 0; x < info.Width; x += tile {
			region := image.Rect(x, y, min(x+tile, info.Width), min(y+tile, info.Height))
			uri := svcID + "/" + files_manager.RegionParam(region, info.Width, info.Height) +
				"/" + strconv.Itoa(region.Dx()) + ",/0/default.jpg"
			resp := fetch(uri)
			assert.Equal(t, http.StatusOK, resp.StatusCode, uri)
			resp.Body.Close()
		}
	}
}

func TestUnreadablePage(t *testing.T) {
	for _, failFast := range []bool{false, true} {
		name := "skip and warn"
		if failFast {
			name = "fail fast"
		}
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, failFast)
			res := extract(t, e, writeBook(t))
			require.NoError(t, os.WriteFile(res.Descriptors[1].SourcePath, []byte("not a png"), 0o644))

			report, err := e.run.Run(context.Background(), res.Descriptors, res.Provenance)
			if failFast {
				require.Error(t, err)
				assert.ErrorIs(t, err, contracts.ErrUnreadableImage)
				assert.False(t, report.ManifestWritten)
				assert.NoFileExists(t, e.layout.ManifestOutputPath())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 2, report.Processed)
			assert.Equal(t, 1, report.Skipped)
			require.Len(t, report.Failures, 1)
			assert.Equal(t, "01", report.Failures[0].ImageID)
			assert.Equal(t, contracts.ErrUnreadableImage, report.Failures[0].Kind)

			m := readManifest(t, report.ManifestPath)
			canvases := m.Sequences[0].Canvases
			require.Len(t, canvases, 2)
			assert.Equal(t, e.layout.CanvasURI("00"), canvases[0].ID)
			assert.Equal(t, e.layout.CanvasURI("02"), canvases[1].ID)
		})
	}
}

func TestRegenerationIsStable(t *testing.T) {
	e := newEnv(t, false)
	res := extract(t, e, writeBook(t))

	first, err := e.run.Run(context.Background(), res.Descriptors, res.Provenance)
	require.NoError(t, err)
	before, err := os.ReadFile(first.ManifestPath)
	require.NoError(t, err)
	infoBefore, err := os.ReadFile(e.layout.InfoPath("02"))
	require.NoError(t, err)

	second, err := e.run.Run(context.Background(), res.Descriptors, res.Provenance)
	require.NoError(t, err)
	after, err := os.ReadFile(second.ManifestPath)
	require.NoError(t, err)
	infoAfter, err := os.ReadFile(e.layout.InfoPath("02"))
	require.NoError(t, err)

	assert.Equal(t, string(before), string(after))
	assert.Equal(t, string(infoBefore), string(infoAfter))
	assert.NotEqual(t, first.RunID, second.RunID)
}

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, width, height))))
	require.NoError(t, f.Close())
}

func TestCorruptFileInImageDirectory(t *testing.T) {
	e := newEnv(t, false)
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 300, 200)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.png"), []byte("garbage"), 0o644))
	writePNG(t, filepath.Join(dir, "c.png"), 200, 300)

	res, err := extractor.NewDirSource(dir, zerolog.Nop()).Extract(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Descriptors, 3)

	report, err := e.run.Run(context.Background(), res.Descriptors, res.Provenance)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "01", report.Failures[0].ImageID)
	assert.Equal(t, contracts.ErrUnreadableImage, report.Failures[0].Kind)
	assert.ErrorIs(t, report.Failures[0].Err, contracts.ErrUnreadableImage)
}

func TestTileWriteFailure(t *testing.T) {
	for _, failFast := range []bool{false, true} {
		name := "skip and warn"
		if failFast {
			name = "fail fast"
		}
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, failFast)
			res := extract(t, e, writeBook(t))
			// A plain file where the tiles of image 01 belong.
			require.NoError(t, os.WriteFile(e.layout.TileOutputDir("01"), []byte("x"), 0o644))

			report, err := e.run.Run(context.Background(), res.Descriptors, res.Provenance)
			if failFast {
				assert.ErrorIs(t, err, contracts.ErrWriteFailure)
				assert.False(t, report.ManifestWritten)
				assert.NoFileExists(t, e.layout.ManifestOutputPath())
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 2, report.Processed)
			require.Len(t, report.Failures, 1)
			assert.Equal(t, "01", report.Failures[0].ImageID)
			assert.Equal(t, contracts.ErrWriteFailure, report.Failures[0].Kind)
			require.Len(t, readManifest(t, report.ManifestPath).Sequences[0].Canvases, 2)
		})
	}
}
