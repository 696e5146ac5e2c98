package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"pdftomanifest/contracts"
	"pdftomanifest/files_manager"
)

var disableConfigDir sync.Once

func pdfcpuConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// embeddedImages lists the image XObjects of every page, pages in document
// order and images on a page by object number. Page thumbnails are left out.
func embeddedImages(path string) ([]model.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer f.Close()

	pages, err := api.ExtractImagesRaw(f, nil, pdfcpuConfig())
	if err != nil {
		return nil, fmt.Errorf("read images of %s: %w", path, err)
	}

	var images []model.Image
	for _, page := range pages {
		for _, img := range page {
			if img.Thumb {
				continue
			}
			images = append(images, img)
		}
	}
	sort.Slice(images, func(i, j int) bool {
		if images[i].PageNr != images[j].PageNr {
			return images[i].PageNr < images[j].PageNr
		}
		return images[i].ObjNr < images[j].ObjNr
	})
	return images, nil
}

// saveEmbedded writes each embedded image as {id}.png. A stream that does
// not decode is kept as is with no size, and the generator reports it.
func (s *PDFSource) saveEmbedded(ctx context.Context, res *Result) error {
	images, err := embeddedImages(s.path)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("pdf %s has no embedded images", s.path)
	}

	var buf bytes.Buffer
	for n, asset := range images {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := contracts.PageID(n)
		desc := ImageDescriptor{ID: id, PageIndex: asset.PageNr - 1}

		data, err := io.ReadAll(asset)
		if err != nil {
			return fmt.Errorf("read image %s on page %d: %w", asset.Name, asset.PageNr, err)
		}

		img, _, decodeErr := image.Decode(bytes.NewReader(data))
		if decodeErr != nil {
			s.logger.Warn().
				Err(decodeErr).
				Str("image_id", id).
				Int("page", asset.PageNr).
				Str("type", asset.FileType).
				Msg("cannot decode embedded image")
			desc.SourcePath = s.layout.SourcePath(id, rawExt(asset.FileType))
		} else {
			buf.Reset()
			if err := png.Encode(&buf, toRGB(img)); err != nil {
				return fmt.Errorf("encode image %s: %w", id, err)
			}
			data = buf.Bytes()
			bounds := img.Bounds()
			desc.Width, desc.Height = bounds.Dx(), bounds.Dy()
			desc.SourcePath = s.layout.SourcePath(id, ".png")
		}

		if err := files_manager.WriteFileAtomic(desc.SourcePath, data); err != nil {
			return fmt.Errorf("write image %s: %w", id, err)
		}
		res.Descriptors = append(res.Descriptors, desc)
		s.logger.Debug().
			Str("image_id", id).
			Int("page", asset.PageNr).
			Int("width", desc.Width).
			Int("height", desc.Height).
			Msg("image extracted")

		if s.progress != nil {
			s.progress(n+1, len(images))
		}
	}
	return nil
}

func rawExt(fileType string) string {
	if fileType == "" {
		return ".bin"
	}
	return "." + fileType
}

// toRGB converts CMYK pixels to RGB; other models pass through.
func toRGB(img image.Image) image.Image {
	if _, ok := img.(*image.CMYK); !ok {
		return img
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba
}
