//go:build vips

package converter

import (
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"pdftomanifest/contracts"
)

var (
	vipsStartOnce sync.Once
	vipsStopOnce  sync.Once
)

// vipsEngine resamples with libvips' Lanczos3 kernel.
type vipsEngine struct{}

func newVipsEngine() (Engine, error) {
	vipsStartOnce.Do(func() {
		vips.Startup(&vips.Config{ConcurrencyLevel: 1})
	})
	return &vipsEngine{}, nil
}

func (e *vipsEngine) Name() string { return "vips" }

// Close shuts libvips down; it cannot be started again in this process.
func (e *vipsEngine) Close() error {
	vipsStopOnce.Do(vips.Shutdown)
	return nil
}

func (e *vipsEngine) Decode(path string) (Picture, error) {
	ref, err := vips.NewImageFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("vips load %s: %w", path, err)
	}
	return &vipsPicture{ref: ref}, nil
}

type vipsPicture struct {
	ref *vips.ImageRef
}

func (p *vipsPicture) Size() image.Point {
	return image.Pt(p.ref.Width(), p.ref.Height())
}

func (p *vipsPicture) Scale(width, height int) (Picture, error) {
	if p.Size() == image.Pt(width, height) {
		return p, nil
	}
	scaled, err := p.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("vips copy: %w", err)
	}
	hScale := float64(width) / float64(p.ref.Width())
	vScale := float64(height) / float64(p.ref.Height())
	if err := scaled.ResizeWithVScale(hScale, vScale, vips.KernelLanczos3); err != nil {
		scaled.Close()
		return nil, fmt.Errorf("vips resize: %w", err)
	}

	// libvips rounds the output size; trim a stray extra row or column.
	if scaled.Width() < width || scaled.Height() < height {
		got := image.Pt(scaled.Width(), scaled.Height())
		scaled.Close()
		return nil, fmt.Errorf("vips resize produced %v, want %dx%d", got, width, height)
	}
	if scaled.Width() != width || scaled.Height() != height {
		if err := scaled.ExtractArea(0, 0, width, height); err != nil {
			scaled.Close()
			return nil, fmt.Errorf("vips trim: %w", err)
		}
	}
	return &vipsPicture{ref: scaled}, nil
}

func (p *vipsPicture) Encode(w io.Writer, rect image.Rectangle, format contracts.OutputFormat, quality int) error {
	crop, err := p.ref.Copy()
	if err != nil {
		return fmt.Errorf("vips copy: %w", err)
	}
	defer crop.Close()

	if rect != image.Rect(0, 0, p.ref.Width(), p.ref.Height()) {
		if err := crop.ExtractArea(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()); err != nil {
			return fmt.Errorf("vips crop: %w", err)
		}
	}

	var data []byte
	if format == contracts.PNG {
		data, _, err = crop.ExportPng(vips.NewPngExportParams())
	} else {
		if crop.HasAlpha() {
			if err := crop.Flatten(&vips.Color{R: 255, G: 255, B: 255}); err != nil {
				return fmt.Errorf("vips flatten: %w", err)
			}
		}
		params := vips.NewJpegExportParams()
		params.Quality = quality
		params.StripMetadata = true
		data, _, err = crop.ExportJpeg(params)
	}
	if err != nil {
		return fmt.Errorf("vips export: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func (p *vipsPicture) Release() {
	if p.ref != nil {
		p.ref.Close()
		p.ref = nil
	}
}
