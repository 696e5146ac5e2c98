package contracts

import (
	"fmt"
	"image"
)

// Level-0 profile and contexts of the IIIF Image API 2.x.
const (
	ImageContext  = "http://iiif.io/api/image/2/context.json"
	ImageProtocol = "http://iiif.io/api/image"
	Level0Profile = "http://iiif.io/api/image/2/level0.json"
)

type OutputFormat string

const (
	JPEG OutputFormat = "jpg"
	PNG  OutputFormat = "png"
)

func (f OutputFormat) MediaType() string {
	if f == PNG {
		return "image/png"
	}
	return "image/jpeg"
}

// ImageDescriptor identifies one page image handed over by the extraction
// step. It is treated as immutable once created.
type ImageDescriptor struct {
	ID         string
	PageIndex  int // zero-based page the image came from
	Width      int
	Height     int
	SourcePath string
	DPI        float64 // 0 when the source carries no resolution
}

// PageID returns the stable identifier of the i-th extracted image.
func PageID(i int) string {
	return fmt.Sprintf("%02d", i)
}

type PyramidLevel struct {
	Index       int
	ScaleFactor int
	Width       int
	Height      int
	TilesAcross int
	TilesDown   int
}

type Tile struct {
	Level  int
	Column int
	Row    int
	// Region is expressed in full-resolution pixels and clipped at the image edge.
	Region image.Rectangle
	// Size is the pixel size of the tile at its level.
	Size image.Point
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type TileSpec struct {
	Width        int   `json:"width"`
	ScaleFactors []int `json:"scaleFactors"`
}

// ImageService is the info.json document of one image. It only ever lists
// what was written to disk.
type ImageService struct {
	Context  string     `json:"@context"`
	ID       string     `json:"@id"`
	Protocol string     `json:"protocol"`
	Profile  []string   `json:"profile"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Sizes    []Size     `json:"sizes,omitempty"`
	Tiles    []TileSpec `json:"tiles"`
}

func (s *ImageService) TileSize() int {
	if len(s.Tiles) == 0 {
		return 0
	}
	return s.Tiles[0].Width
}

func (s *ImageService) ScaleFactors() []int {
	if len(s.Tiles) == 0 {
		return nil
	}
	return s.Tiles[0].ScaleFactors
}
