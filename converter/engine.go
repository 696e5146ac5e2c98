package converter

import (
	"fmt"
	"image"
	"io"

	"pdftomanifest/contracts"
)

// Engine decodes page images into Pictures. One Engine is shared by all
// workers of a run; the Pictures it returns are owned by a single worker.
type Engine interface {
	Name() string
	Decode(path string) (Picture, error)
	Close() error
}

// Picture is a decoded raster held by an Engine.
type Picture interface {
	Size() image.Point
	// Scale returns the picture resampled to exactly width×height. It may
	// return the receiver when the size already matches.
	Scale(width, height int) (Picture, error)
	// Encode writes rect, in the picture's own pixel space, to w.
	Encode(w io.Writer, rect image.Rectangle, format contracts.OutputFormat, quality int) error
	Release()
}

// NewEngine returns the engine registered under name. The vips and magick
// engines need the matching build tag.
func NewEngine(name string) (Engine, error) {
	switch name {
	case "", "go":
		return newGoEngine(), nil
	case "vips":
		return newVipsEngine()
	case "magick":
		return newMagickEngine()
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", contracts.ErrEngineUnavailable, name)
	}
}
