// Package pipeline runs the tile generator over every page image with a
// bounded worker pool and emits the manifest once all of them are done.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
	"pdftomanifest/manifest_writer"
)

type ImageDescriptor = contracts.ImageDescriptor
type ImageService = contracts.ImageService

var ErrNothingToPublish = errors.New("no image was processed")

// Generator is the per-image step of a run.
type Generator interface {
	Generate(ctx context.Context, desc ImageDescriptor) (*ImageService, error)
}

type ImageResult struct {
	Descriptor ImageDescriptor
	Service    *ImageService
	Err        error
}

type Failure struct {
	ImageID string
	Kind    error
	Err     error
}

type Report struct {
	RunID           string
	Processed       int
	Skipped         int
	Failures        []Failure
	ManifestWritten bool
	ManifestPath    string
	Duration        time.Duration
}

type Pipeline struct {
	cfg       config.Config
	generator Generator
	builder   *manifest_writer.Builder
	writer    *manifest_writer.Writer
	logger    zerolog.Logger
	onResult  func(index int, res ImageResult)
}

func New(cfg config.Config, generator Generator, builder *manifest_writer.Builder, writer *manifest_writer.Writer, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		generator: generator,
		builder:   builder,
		writer:    writer,
		logger:    logger,
	}
}

// OnResult registers fn to receive per-image results in page order, as soon
// as every earlier page has finished.
func (p *Pipeline) OnResult(fn func(index int, res ImageResult)) {
	p.onResult = fn
}

// Run generates every image, waits for all of them and then writes the
// manifest from the successful ones in input order. Under fail-fast the
// first image error cancels the remaining work and no manifest is written.
func (p *Pipeline) Run(ctx context.Context, descs []ImageDescriptor, provenance string) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString()}
	logger := p.logger.With().Str("run_id", report.RunID).Logger()
	defer func() { report.Duration = time.Since(start) }()

	if len(descs) == 0 {
		return report, ErrNothingToPublish
	}

	workers := max(p.cfg.Workers, 1)
	logger.Info().
		Int("images", len(descs)).
		Int("workers", workers).
		Bool("fail_fast", p.cfg.FailFast).
		Msg("starting run")

	results := make([]ImageResult, len(descs))
	started := make([]bool, len(descs))
	reporter := newOrderedReporter(len(descs), p.emit(logger))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, desc := range descs {
		if gctx.Err() != nil {
			break
		}
		started[i] = true
		g.Go(func() error {
			svc, err := p.generator.Generate(gctx, desc)
			res := ImageResult{Descriptor: desc, Service: svc, Err: err}
			results[i] = res
			reporter.add(i, res)

			if err == nil {
				return nil
			}
			if contracts.Kind(err) == nil || p.cfg.FailFast {
				return err
			}
			return nil
		})
	}

	waitErr := g.Wait()
	reporter.close()

	// barrier: every started image has finished
	ordered := make([]ImageDescriptor, 0, len(descs))
	services := make(map[string]*ImageService, len(descs))
	for i, res := range results {
		if !started[i] {
			continue
		}
		if res.Err != nil {
			report.Skipped++
			report.Failures = append(report.Failures, Failure{
				ImageID: res.Descriptor.ID,
				Kind:    contracts.Kind(res.Err),
				Err:     res.Err,
			})
			continue
		}
		report.Processed++
		ordered = append(ordered, res.Descriptor)
		services[res.Descriptor.ID] = res.Service
	}

	if waitErr != nil {
		logger.Error().Err(waitErr).Msg("run aborted, no manifest written")
		return report, waitErr
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(ordered) == 0 {
		logger.Error().Int("skipped", report.Skipped).Msg("every image failed, no manifest written")
		return report, ErrNothingToPublish
	}

	manifest, err := p.builder.Build(ordered, services, provenance)
	if err != nil {
		return report, fmt.Errorf("build manifest: %w", err)
	}
	path, err := p.writer.Write(manifest)
	if err != nil {
		return report, err
	}
	report.ManifestWritten = true
	report.ManifestPath = path

	logger.Info().
		Int("processed", report.Processed).
		Int("skipped", report.Skipped).
		Str("manifest", path).
		Msg("run finished")
	return report, nil
}

func (p *Pipeline) emit(logger zerolog.Logger) func(int, ImageResult) {
	return func(index int, res ImageResult) {
		if res.Err != nil {
			logger.Warn().
				Err(res.Err).
				Str("image_id", res.Descriptor.ID).
				Msg("image skipped")
		} else {
			logger.Debug().Str("image_id", res.Descriptor.ID).Msg("image done")
		}
		if p.onResult != nil {
			p.onResult(index, res)
		}
	}
}
