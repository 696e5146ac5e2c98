package converter

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"pdftomanifest/contracts"
)

// goEngine is the pure Go engine. Resampling uses Catmull-Rom, which is
// deterministic for identical input.
type goEngine struct{}

func newGoEngine() *goEngine {
	return &goEngine{}
}

func (e *goEngine) Name() string { return "go" }

func (e *goEngine) Close() error { return nil }

func (e *goEngine) Decode(path string) (Picture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening image file: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("error decoding image file: %w", err)
	}
	return &goPicture{img: img}, nil
}

type goPicture struct {
	img image.Image
}

func (p *goPicture) Size() image.Point {
	return p.img.Bounds().Size()
}

func (p *goPicture) Scale(width, height int) (Picture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("cannot scale to %dx%d", width, height)
	}
	if p.Size() == image.Pt(width, height) {
		return p, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), p.img, p.img.Bounds(), draw.Src, nil)
	return &goPicture{img: dst}, nil
}

func (p *goPicture) Encode(w io.Writer, rect image.Rectangle, format contracts.OutputFormat, quality int) error {
	origin := p.img.Bounds().Min
	crop := cropImage(p.img, rect.Add(origin))

	if format == contracts.PNG {
		return png.Encode(w, crop)
	}
	return jpeg.Encode(w, flatten(crop), &jpeg.Options{Quality: quality})
}

func (p *goPicture) Release() {
	p.img = nil
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func cropImage(img image.Image, r image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// flatten composites translucent pixels onto white; JPEG has no alpha.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
