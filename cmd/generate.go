package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pdftomanifest/config"
	"pdftomanifest/converter"
	"pdftomanifest/extractor"
	"pdftomanifest/files_manager"
	"pdftomanifest/logging"
	"pdftomanifest/manifest_writer"
	"pdftomanifest/pipeline"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <file.pdf|image-dir>",
		Short: "Extract page images and write tiles, info.json files and the manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.Input = args[0]
			return runGenerate(cmd.Context(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&flags.TileSize, "tile-size", 0, "tile edge in pixels (default 512)")
	cmd.Flags().BoolVar(&flags.FailFast, "fail-fast", false, "abort the run on the first image error")
	cmd.Flags().StringVar(&flags.Engine, "engine", "", "image engine: go, vips or magick")
	cmd.Flags().IntVar(&flags.Workers, "workers", 0, "parallel images (default: number of CPUs)")
	cmd.Flags().IntVar(&flags.RenderDPI, "dpi", 0, "PDF render resolution (default 150)")
	cmd.Flags().StringVar(&flags.Mode, "extract-mode", "", "PDF extraction: embedded images or rendered pages (default embedded)")
	return cmd
}

func runGenerate(ctx context.Context, out io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	startTime := time.Now()
	defer func() {
		fmt.Fprintf(out, "Total time taken: %s\n", time.Since(startTime).Round(time.Millisecond))
	}()

	layout := files_manager.NewLayout(cfg)
	if err := files_manager.EnsureDirs(layout); err != nil {
		return err
	}

	source, err := newSource(flags.Input, cfg, layout, logger)
	if err != nil {
		return err
	}
	extracted, err := source.Extract(ctx)
	if err != nil {
		return fmt.Errorf("extract %s: %w", flags.Input, err)
	}
	if extracted.Title != "" {
		logger.Info().Str("title", extracted.Title).Msg("document title")
	}

	engine, err := converter.NewEngine(cfg.Engine)
	if err != nil {
		return err
	}
	defer engine.Close()

	generator := converter.NewGenerator(cfg, layout, engine, logging.Component(logger, "generator"))
	run := pipeline.New(cfg, generator,
		manifest_writer.NewBuilder(cfg, layout),
		manifest_writer.NewWriter(layout, logging.Component(logger, "manifest")),
		logging.Component(logger, "pipeline"))

	bar := newBar(len(extracted.Descriptors), "tiling")
	run.OnResult(func(_ int, _ pipeline.ImageResult) {
		_ = bar.Add(1)
	})

	report, runErr := run.Run(ctx, extracted.Descriptors, extracted.Provenance)
	_ = bar.Finish()
	printSummary(out, report, runErr)
	return runErr
}

type progressSource interface {
	extractor.Source
	OnProgress(extractor.ProgressFunc)
}

func newSource(input string, cfg config.Config, layout *files_manager.Layout, logger zerolog.Logger) (extractor.Source, error) {
	var src progressSource
	switch {
	case extractor.IsPDF(input):
		src = extractor.NewPDFSource(input, cfg, layout, logging.Component(logger, "extractor"))
	default:
		info, err := os.Stat(input)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", input, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("input %s is neither a PDF nor a directory", input)
		}
		src = extractor.NewDirSource(input, logging.Component(logger, "extractor"))
	}

	var bar *progressbar.ProgressBar
	src.OnProgress(func(done, total int) {
		if bar == nil {
			bar = newBar(total, "extracting")
		}
		_ = bar.Set(done)
		if done == total {
			_ = bar.Finish()
		}
	})
	return src, nil
}

func newBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func printSummary(out io.Writer, report *pipeline.Report, runErr error) {
	if report == nil {
		return
	}
	for _, f := range report.Failures {
		kind := "error"
		if f.Kind != nil {
			kind = f.Kind.Error()
		}
		fmt.Fprintf(out, "%s image %s: %s\n", color.YellowString("[SKIPPED]"), f.ImageID, kind)
	}

	fmt.Fprintf(out, "Images processed: %s, skipped: %s\n",
		color.GreenString("%d", report.Processed),
		color.YellowString("%d", report.Skipped))

	if report.ManifestWritten {
		fmt.Fprintf(out, "%s %s\n", color.GreenString("Manifest written:"), report.ManifestPath)
	} else {
		fmt.Fprintf(out, "%s %v\n", color.RedString("No manifest produced:"), runErr)
	}
}
