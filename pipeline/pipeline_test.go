package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
	"pdftomanifest/files_manager"
	"pdftomanifest/manifest_writer"
)

// fakeGenerator finishes images after per-id delays and fails the ids in fail.
type fakeGenerator struct {
	layout *files_manager.Layout
	delays map[string]time.Duration
	fail   map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *fakeGenerator) Generate(ctx context.Context, desc ImageDescriptor) (*ImageService, error) {
	select {
	case <-time.After(f.delays[desc.ID]):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	f.mu.Lock()
	f.calls = append(f.calls, desc.ID)
	f.mu.Unlock()

	if kind, ok := f.fail[desc.ID]; ok {
		return nil, contracts.NewImageError(kind, desc.ID, fmt.Errorf("fixture"))
	}
	return &ImageService{
		Context:  contracts.ImageContext,
		ID:       f.layout.PublicImageBaseURI(desc.ID),
		Protocol: contracts.ImageProtocol,
		Profile:  []string{contracts.Level0Profile},
		Width:    desc.Width,
		Height:   desc.Height,
		Tiles:    []contracts.TileSpec{{Width: 512, ScaleFactors: []int{1}}},
	}, nil
}

func (f *fakeGenerator) completionOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func newTestPipeline(t *testing.T, failFast bool, gen func(*files_manager.Layout) Generator) (*Pipeline, *files_manager.Layout) {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg.Workers = 4
	cfg.FailFast = failFast
	cfg = cfg.Resolve()
	layout := files_manager.NewLayout(cfg)

	p := New(cfg, gen(layout),
		manifest_writer.NewBuilder(cfg, layout),
		manifest_writer.NewWriter(layout, zerolog.Nop()),
		zerolog.Nop())
	return p, layout
}

func descriptors(n int) []ImageDescriptor {
	descs := make([]ImageDescriptor, n)
	for i := range descs {
		descs[i] = ImageDescriptor{ID: contracts.PageID(i), PageIndex: i, Width: 100 + i, Height: 200}
	}
	return descs
}

func TestRunKeepsInputOrder(t *testing.T) {
	var fake *fakeGenerator
	p, layout := newTestPipeline(t, false, func(l *files_manager.Layout) Generator {
		fake = &fakeGenerator{
			layout: l,
			delays: map[string]time.Duration{"00": 60 * time.Millisecond, "01": 30 * time.Millisecond, "02": 0, "03": 10 * time.Millisecond},
		}
		return fake
	})

	var emitted []int
	p.OnResult(func(index int, res ImageResult) {
		emitted = append(emitted, index)
		assert.NoError(t, res.Err)
	})

	report, err := p.Run(context.Background(), descriptors(4), "book.pdf")
	require.NoError(t, err)

	assert.NotEqual(t, []string{"00", "01", "02", "03"}, fake.completionOrder(), "fixture should finish out of order")
	assert.Equal(t, []int{0, 1, 2, 3}, emitted)
	assert.Equal(t, 4, report.Processed)
	assert.Zero(t, report.Skipped)
	assert.True(t, report.ManifestWritten)
	assert.Equal(t, layout.ManifestOutputPath(), report.ManifestPath)
	assert.NotEmpty(t, report.RunID)

	data, err := os.ReadFile(report.ManifestPath)
	require.NoError(t, err)
	var m manifest_writer.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	require.Len(t, m.Sequences, 1)
	var canvasIDs []string
	for _, c := range m.Sequences[0].Canvases {
		canvasIDs = append(canvasIDs, c.ID)
	}
	assert.Equal(t, []string{
		layout.CanvasURI("00"), layout.CanvasURI("01"), layout.CanvasURI("02"), layout.CanvasURI("03"),
	}, canvasIDs)
}

func TestRunSkipAndWarn(t *testing.T) {
	p, layout := newTestPipeline(t, false, func(l *files_manager.Layout) Generator {
		return &fakeGenerator{layout: l, fail: map[string]error{"01": contracts.ErrUnreadableImage}}
	})

	report, err := p.Run(context.Background(), descriptors(3), "book.pdf")
	require.NoError(t, err)

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "01", report.Failures[0].ImageID)
	assert.Equal(t, contracts.ErrUnreadableImage, report.Failures[0].Kind)
	assert.True(t, report.ManifestWritten)
	assert.FileExists(t, layout.ManifestOutputPath())
}

func TestRunSkipAndWarnManifestCanvases(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.OutputDir = t.TempDir()
	cfg = cfg.Resolve()
	layout := files_manager.NewLayout(cfg)
	builder := manifest_writer.NewBuilder(cfg, layout)

	gen := &fakeGenerator{layout: layout, fail: map[string]error{"01": contracts.ErrUnreadableImage}}
	p := New(cfg, gen, builder, manifest_writer.NewWriter(layout, zerolog.Nop()), zerolog.Nop())

	_, err := p.Run(context.Background(), descriptors(3), "book.pdf")
	require.NoError(t, err)

	all := descriptors(3)
	kept := []ImageDescriptor{all[0], all[2]}
	services := map[string]*ImageService{}
	for _, d := range kept {
		svc, err := gen.Generate(context.Background(), d)
		require.NoError(t, err)
		services[d.ID] = svc
	}
	built, err := builder.Build(kept, services, "book.pdf")
	require.NoError(t, err)
	want, err := manifest_writer.Serialize(built)
	require.NoError(t, err)

	got, err := os.ReadFile(layout.ManifestOutputPath())
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got), "the manifest holds the two readable pages in order")
}

func TestRunFailFast(t *testing.T) {
	p, layout := newTestPipeline(t, true, func(l *files_manager.Layout) Generator {
		return &fakeGenerator{
			layout: l,
			delays: map[string]time.Duration{"00": 200 * time.Millisecond, "02": 200 * time.Millisecond},
			fail:   map[string]error{"01": contracts.ErrUnreadableImage},
		}
	})

	report, err := p.Run(context.Background(), descriptors(3), "book.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrUnreadableImage)
	assert.False(t, report.ManifestWritten)
	assert.NoFileExists(t, layout.ManifestOutputPath())
	assert.GreaterOrEqual(t, report.Skipped, 1)
}

func TestRunEveryImageFails(t *testing.T) {
	p, layout := newTestPipeline(t, false, func(l *files_manager.Layout) Generator {
		return &fakeGenerator{layout: l, fail: map[string]error{"00": contracts.ErrInvalidDimensions}}
	})

	report, err := p.Run(context.Background(), descriptors(1), "")
	assert.ErrorIs(t, err, ErrNothingToPublish)
	assert.Equal(t, 1, report.Skipped)
	assert.NoFileExists(t, layout.ManifestOutputPath())
}

func TestRunNoInput(t *testing.T) {
	p, _ := newTestPipeline(t, false, func(l *files_manager.Layout) Generator {
		return &fakeGenerator{layout: l}
	})
	_, err := p.Run(context.Background(), nil, "")
	assert.ErrorIs(t, err, ErrNothingToPublish)
}

func TestRunCancelled(t *testing.T) {
	p, layout := newTestPipeline(t, false, func(l *files_manager.Layout) Generator {
		return &fakeGenerator{layout: l, delays: map[string]time.Duration{"00": time.Second}}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	report, err := p.Run(ctx, descriptors(2), "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, report.ManifestWritten)
	assert.NoFileExists(t, layout.ManifestOutputPath())
}

func TestOrderedReporter(t *testing.T) {
	var got []int
	r := newOrderedReporter(4, func(i int, _ ImageResult) { got = append(got, i) })
	r.add(2, ImageResult{})
	r.add(0, ImageResult{})
	r.add(3, ImageResult{})
	r.add(1, ImageResult{})
	r.close()
	assert.Equal(t, []int{0, 1, 2, 3}, got)

	got = nil
	r = newOrderedReporter(3, func(i int, _ ImageResult) { got = append(got, i) })
	r.add(0, ImageResult{})
	r.add(2, ImageResult{})
	r.close()
	assert.Equal(t, []int{0}, got, "a missing page holds back the ones after it")
}
