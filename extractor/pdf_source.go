package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
	"pdftomanifest/files_manager"
)

// PDFSource turns a PDF into page images in the extract directory. In
// embedded mode it saves every image the pages carry, numbered across the
// whole document; in render mode it rasterizes each page once. Either way
// the output is RGB, so CMYK content never reaches the generator.
type PDFSource struct {
	path     string
	mode     contracts.ExtractMode
	dpi      int
	layout   *files_manager.Layout
	logger   zerolog.Logger
	progress ProgressFunc
}

func NewPDFSource(path string, cfg config.Config, layout *files_manager.Layout, logger zerolog.Logger) *PDFSource {
	return &PDFSource{
		path:   path,
		mode:   cfg.Extract.Mode,
		dpi:    cfg.Extract.RenderDPI,
		layout: layout,
		logger: logger,
	}
}

func (s *PDFSource) OnProgress(fn ProgressFunc) {
	s.progress = fn
}

func (s *PDFSource) Extract(ctx context.Context) (*Result, error) {
	doc, err := fitz.New(s.path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", s.path, err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("pdf %s has no pages", s.path)
	}

	res := &Result{
		Descriptors: make([]ImageDescriptor, 0, pageCount),
		Provenance:  filepath.Base(s.path),
		Title:       doc.Metadata()["title"],
	}
	s.logger.Info().
		Str("pdf", s.path).
		Str("mode", string(s.mode)).
		Int("pages", pageCount).
		Msg("extracting images")

	if s.mode == contracts.ExtractRender {
		err = s.renderPages(ctx, doc, pageCount, res)
	} else {
		err = s.saveEmbedded(ctx, res)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("images", len(res.Descriptors)).Msg("finished extracting")
	return res, nil
}

func (s *PDFSource) renderPages(ctx context.Context, doc *fitz.Document, pageCount int, res *Result) error {
	var buf bytes.Buffer
	for i := 0; i < pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		img, err := doc.ImageDPI(i, float64(s.dpi))
		if err != nil {
			return fmt.Errorf("render page %d: %w", i+1, err)
		}

		buf.Reset()
		if err := png.Encode(&buf, img); err != nil {
			return fmt.Errorf("encode page %d: %w", i+1, err)
		}

		id := contracts.PageID(i)
		out := s.layout.SourcePath(id, ".png")
		if err := files_manager.WriteFileAtomic(out, buf.Bytes()); err != nil {
			return fmt.Errorf("write page %d: %w", i+1, err)
		}

		bounds := img.Bounds()
		res.Descriptors = append(res.Descriptors, ImageDescriptor{
			ID:         id,
			PageIndex:  i,
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
			SourcePath: out,
			DPI:        float64(s.dpi),
		})
		s.logger.Debug().Str("image_id", id).Int("width", bounds.Dx()).Int("height", bounds.Dy()).Msg("page rendered")

		if s.progress != nil {
			s.progress(i+1, pageCount)
		}
	}
	return nil
}
