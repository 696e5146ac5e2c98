package converter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
	"pdftomanifest/files_manager"
	"pdftomanifest/pyramid"
)

type ImageDescriptor = contracts.ImageDescriptor
type ImageService = contracts.ImageService

// Generator writes the static tile pyramid, whole-image derivatives and
// info.json of one image at a time. It keeps no state between calls, so
// one Generator may serve many workers.
type Generator struct {
	cfg    config.Config
	layout *files_manager.Layout
	engine Engine
	logger zerolog.Logger
}

func NewGenerator(cfg config.Config, layout *files_manager.Layout, engine Engine, logger zerolog.Logger) *Generator {
	return &Generator{
		cfg:    cfg,
		layout: layout,
		engine: engine,
		logger: logger,
	}
}

// Generate renders every level of desc and returns the descriptor of what
// was written.
func (g *Generator) Generate(ctx context.Context, desc ImageDescriptor) (*ImageService, error) {
	logger := g.logger.With().Str("image_id", desc.ID).Logger()

	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, g.unknownSize(desc)
	}
	plan, err := pyramid.New(desc.Width, desc.Height, g.cfg.TileSize)
	if err != nil {
		return nil, contracts.NewImageError(contracts.ErrInvalidDimensions, desc.ID, err)
	}

	src, err := g.engine.Decode(desc.SourcePath)
	if err != nil {
		return nil, contracts.NewImageError(contracts.ErrUnreadableImage, desc.ID, err)
	}
	defer src.Release()

	if got := src.Size(); got != image.Pt(desc.Width, desc.Height) {
		return nil, contracts.NewImageError(contracts.ErrInvalidDimensions, desc.ID,
			fmt.Errorf("decoded %dx%d, descriptor declares %dx%d", got.X, got.Y, desc.Width, desc.Height))
	}

	// Tiles covering the whole image are also valid full-size requests. They
	// share the full/{w}, path with derivatives, so a derivative of the same
	// width is left to the tile.
	sizes := fullImageSizes(plan, desc)

	derived, err := g.writeDerivatives(ctx, desc, src, sizes)
	if err != nil {
		return nil, err
	}
	sizes = append(sizes, derived...)

	tileCount, err := g.writePyramid(ctx, desc, plan, src)
	if err != nil {
		return nil, err
	}

	service := &ImageService{
		Context:  contracts.ImageContext,
		ID:       g.layout.PublicImageBaseURI(desc.ID),
		Protocol: contracts.ImageProtocol,
		Profile:  []string{contracts.Level0Profile},
		Width:    desc.Width,
		Height:   desc.Height,
		Sizes:    normalizeSizes(sizes),
		Tiles: []contracts.TileSpec{{
			Width:        plan.TileSize,
			ScaleFactors: plan.ScaleFactors(),
		}},
	}

	if err := g.writeInfo(desc.ID, service); err != nil {
		return nil, err
	}

	logger.Debug().
		Int("levels", len(plan.Levels)).
		Int("tiles", tileCount).
		Ints("scale_factors", service.ScaleFactors()).
		Msg("image pyramid written")

	return service, nil
}

// unknownSize reports a descriptor without dimensions. A source that does
// not decode either is unreadable rather than mis-sized.
func (g *Generator) unknownSize(desc ImageDescriptor) error {
	src, err := g.engine.Decode(desc.SourcePath)
	if err != nil {
		return contracts.NewImageError(contracts.ErrUnreadableImage, desc.ID, err)
	}
	got := src.Size()
	src.Release()
	return contracts.NewImageError(contracts.ErrInvalidDimensions, desc.ID,
		fmt.Errorf("descriptor declares %dx%d, file is %dx%d", desc.Width, desc.Height, got.X, got.Y))
}

func fullImageSizes(plan *pyramid.Pyramid, desc ImageDescriptor) []contracts.Size {
	var sizes []contracts.Size
	for _, tile := range plan.AllTiles() {
		if tile.Region == image.Rect(0, 0, desc.Width, desc.Height) {
			sizes = append(sizes, contracts.Size{Width: tile.Size.X, Height: tile.Size.Y})
		}
	}
	return sizes
}

// writePyramid walks from full resolution down, resampling each level from
// the one above it.
func (g *Generator) writePyramid(ctx context.Context, desc ImageDescriptor, plan *pyramid.Pyramid, src Picture) (int, error) {
	count := 0
	current := src
	defer func() {
		if current != src {
			current.Release()
		}
	}()

	for i := len(plan.Levels) - 1; i >= 0; i-- {
		level := plan.Levels[i]

		scaled, err := current.Scale(level.Width, level.Height)
		if err != nil {
			return count, contracts.NewImageError(contracts.ErrUnreadableImage, desc.ID,
				fmt.Errorf("resample level %d: %w", level.Index, err))
		}
		if current != src && scaled != current {
			current.Release()
		}
		current = scaled

		for _, tile := range plan.Tiles(level) {
			if err := ctx.Err(); err != nil {
				return count, err
			}
			path := g.layout.TilePath(desc, tile, g.cfg.Format)
			if err := g.writeRendition(path, current, pyramid.LevelRect(tile, plan.TileSize)); err != nil {
				return count, contracts.NewImageError(contracts.ErrWriteFailure, desc.ID, err)
			}
			count++
		}
	}
	return count, nil
}

// writeDerivatives emits the configured whole-image thumbnails. Widths
// larger than the image are skipped because level 0 never upsamples, and
// widths already served by a full-image tile are skipped as well.
func (g *Generator) writeDerivatives(ctx context.Context, desc ImageDescriptor, src Picture, taken []contracts.Size) ([]contracts.Size, error) {
	var sizes []contracts.Size
	for _, width := range g.cfg.DerivativeWidths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if width > desc.Width || hasWidth(taken, width) || hasWidth(sizes, width) {
			continue
		}
		size := DerivativeSize(desc.Width, desc.Height, width)

		scaled, err := src.Scale(size.Width, size.Height)
		if err != nil {
			return nil, contracts.NewImageError(contracts.ErrUnreadableImage, desc.ID,
				fmt.Errorf("resample derivative %d: %w", width, err))
		}
		path := g.layout.DerivativePath(desc.ID, size, g.cfg.Format)
		err = g.writeRendition(path, scaled, image.Rect(0, 0, size.Width, size.Height))
		if scaled != src {
			scaled.Release()
		}
		if err != nil {
			return nil, contracts.NewImageError(contracts.ErrWriteFailure, desc.ID, err)
		}
		sizes = append(sizes, size)
	}
	return sizes, nil
}

func hasWidth(sizes []contracts.Size, width int) bool {
	for _, s := range sizes {
		if s.Width == width {
			return true
		}
	}
	return false
}

// DerivativeSize keeps the aspect ratio of a width×height image at the
// given width.
func DerivativeSize(width, height, targetWidth int) contracts.Size {
	h := int(math.Round(float64(targetWidth) * float64(height) / float64(width)))
	return contracts.Size{Width: targetWidth, Height: max(h, 1)}
}

func (g *Generator) writeRendition(path string, pic Picture, rect image.Rectangle) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tile directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	bw := bufio.NewWriterSize(f, 256*1024)
	if err := pic.Encode(bw, rect, g.cfg.Format, g.cfg.Quality); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

func (g *Generator) writeInfo(id string, service *ImageService) error {
	data, err := MarshalInfo(service)
	if err != nil {
		return contracts.NewImageError(contracts.ErrWriteFailure, id, err)
	}
	if err := files_manager.WriteFileAtomic(g.layout.InfoPath(id), data); err != nil {
		return contracts.NewImageError(contracts.ErrWriteFailure, id, err)
	}
	return nil
}

// MarshalInfo renders info.json. The output only depends on the service
// value, so regenerating an image yields the same bytes.
func MarshalInfo(service *ImageService) ([]byte, error) {
	data, err := json.MarshalIndent(service, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal info.json: %w", err)
	}
	return append(data, '\n'), nil
}

func normalizeSizes(sizes []contracts.Size) []contracts.Size {
	if len(sizes) == 0 {
		return nil
	}
	sort.SliceStable(sizes, func(i, j int) bool { return sizes[i].Width < sizes[j].Width })
	out := sizes[:1]
	for _, s := range sizes[1:] {
		if s.Width != out[len(out)-1].Width {
			out = append(out, s)
		}
	}
	return out
}
