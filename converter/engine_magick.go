//go:build magick

package converter

import (
	"fmt"
	"image"
	"io"
	"sync"

	"gopkg.in/gographics/imagick.v2/imagick"

	"pdftomanifest/contracts"
)

var (
	magickStartOnce sync.Once
	magickStopOnce  sync.Once
)

// magickEngine resamples with ImageMagick's Lanczos filter.
type magickEngine struct{}

func newMagickEngine() (Engine, error) {
	magickStartOnce.Do(imagick.Initialize)
	return &magickEngine{}, nil
}

func (e *magickEngine) Name() string { return "magick" }

func (e *magickEngine) Close() error {
	magickStopOnce.Do(imagick.Terminate)
	return nil
}

func (e *magickEngine) Decode(path string) (Picture, error) {
	mw := imagick.NewMagickWand()
	if err := mw.ReadImage(path); err != nil {
		mw.Destroy()
		return nil, fmt.Errorf("magick read %s: %w", path, err)
	}
	return &magickPicture{mw: mw}, nil
}

type magickPicture struct {
	mw *imagick.MagickWand
}

func (p *magickPicture) Size() image.Point {
	return image.Pt(int(p.mw.GetImageWidth()), int(p.mw.GetImageHeight()))
}

func (p *magickPicture) Scale(width, height int) (Picture, error) {
	if p.Size() == image.Pt(width, height) {
		return p, nil
	}
	scaled := p.mw.Clone()
	if err := scaled.ResizeImage(uint(width), uint(height), imagick.FILTER_LANCZOS, 1); err != nil {
		scaled.Destroy()
		return nil, fmt.Errorf("magick resize: %w", err)
	}
	return &magickPicture{mw: scaled}, nil
}

func (p *magickPicture) Encode(w io.Writer, rect image.Rectangle, format contracts.OutputFormat, quality int) error {
	crop := p.mw.Clone()
	defer crop.Destroy()

	if rect != (image.Rectangle{Max: p.Size()}) {
		if err := crop.CropImage(uint(rect.Dx()), uint(rect.Dy()), rect.Min.X, rect.Min.Y); err != nil {
			return fmt.Errorf("magick crop: %w", err)
		}
		if err := crop.ResetImagePage(""); err != nil {
			return fmt.Errorf("magick page reset: %w", err)
		}
	}

	if format == contracts.PNG {
		if err := crop.SetImageFormat("PNG"); err != nil {
			return fmt.Errorf("magick format: %w", err)
		}
	} else {
		white := imagick.NewPixelWand()
		defer white.Destroy()
		white.SetColor("white")
		if err := crop.SetImageBackgroundColor(white); err != nil {
			return fmt.Errorf("magick background: %w", err)
		}
		flat := crop.MergeImageLayers(imagick.IMAGE_LAYER_FLATTEN)
		defer flat.Destroy()
		if err := flat.SetImageFormat("JPEG"); err != nil {
			return fmt.Errorf("magick format: %w", err)
		}
		if err := flat.SetImageCompressionQuality(uint(quality)); err != nil {
			return fmt.Errorf("magick quality: %w", err)
		}
		_, err := w.Write(flat.GetImageBlob())
		return err
	}

	_, err := w.Write(crop.GetImageBlob())
	return err
}

func (p *magickPicture) Release() {
	if p.mw != nil {
		p.mw.Destroy()
		p.mw = nil
	}
}
