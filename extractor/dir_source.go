package extractor

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pdftomanifest/contracts"
	"pdftomanifest/files_manager"
	"pdftomanifest/utils"
)

// DirSource reads an existing directory of page images in name order.
// Images stay where they are; only their headers are read here.
type DirSource struct {
	dir      string
	logger   zerolog.Logger
	progress ProgressFunc
}

func NewDirSource(dir string, logger zerolog.Logger) *DirSource {
	return &DirSource{dir: dir, logger: logger}
}

func (s *DirSource) OnProgress(fn ProgressFunc) {
	s.progress = fn
}

func (s *DirSource) Extract(ctx context.Context) (*Result, error) {
	paths, totalSize, err := files_manager.GetImagePaths(s.dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images found in %s", s.dir)
	}
	s.logger.Info().Str("dir", s.dir).Int("images", len(paths)).Int64("bytes", totalSize).Msg("reading image directory")

	res := &Result{
		Descriptors: make([]ImageDescriptor, 0, len(paths)),
		Provenance:  filepath.Base(filepath.Clean(s.dir)),
	}
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := contracts.PageID(i)
		desc := ImageDescriptor{ID: id, PageIndex: i, SourcePath: path}

		// Unreadable headers leave the size at zero; the generator reports
		// the image and the rest of the run goes on.
		if w, h, err := imageSize(path); err != nil {
			s.logger.Warn().Err(err).Str("image_id", id).Str("path", path).Msg("cannot read image header")
		} else {
			desc.Width, desc.Height = w, h
		}

		if dpi, err := utils.GetImageDPI(path); err != nil {
			s.logger.Debug().Err(err).Str("image_id", id).Msg("no resolution")
		} else {
			desc.DPI = dpi
		}

		res.Descriptors = append(res.Descriptors, desc)
		if s.progress != nil {
			s.progress(i+1, len(paths))
		}
	}
	return res, nil
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode header of %s: %w", path, err)
	}
	return cfg.Width, cfg.Height, nil
}
