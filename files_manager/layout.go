package files_manager

import (
	"fmt"
	"image"
	"net/url"
	"path"
	"path/filepath"

	"pdftomanifest/config"
	"pdftomanifest/contracts"
)

// Layout maps image ids to output paths and public URIs. It only builds
// strings from its configuration, so the tile generator and the manifest
// builder agree on every location without talking to each other.
type Layout struct {
	cfg config.Config
}

func NewLayout(cfg config.Config) *Layout {
	return &Layout{cfg: cfg}
}

func (l *Layout) TileSourceDir(id string) string {
	return l.cfg.Paths.ExtractDir
}

// SourcePath is where the extraction step stores the page image of id.
func (l *Layout) SourcePath(id string, ext string) string {
	return filepath.Join(l.TileSourceDir(id), id+ext)
}

func (l *Layout) TileOutputDir(id string) string {
	return filepath.Join(l.cfg.Paths.ImageDir, id)
}

func (l *Layout) InfoPath(id string) string {
	return filepath.Join(l.TileOutputDir(id), contracts.InfoFileName)
}

func (l *Layout) ManifestOutputPath() string {
	return filepath.Join(l.cfg.Paths.ManifestDir, contracts.ManifestFileName)
}

// TilePath returns the file of one tile. The path encodes image id, region,
// size and level so a tile is located without listing directories.
func (l *Layout) TilePath(desc contracts.ImageDescriptor, tile contracts.Tile, format contracts.OutputFormat) string {
	if l.cfg.TileLayout == contracts.LayoutLevel {
		name := fmt.Sprintf("%d_%d.%s", tile.Region.Min.X, tile.Region.Min.Y, format)
		return filepath.Join(l.TileOutputDir(desc.ID), fmt.Sprint(tile.Level), name)
	}
	return filepath.Join(l.TileOutputDir(desc.ID), filepath.FromSlash(iiifTileSuffix(desc, tile, format)))
}

// DerivativePath returns the file of a whole-image rendition size.Width wide.
func (l *Layout) DerivativePath(id string, size contracts.Size, format contracts.OutputFormat) string {
	return filepath.Join(l.TileOutputDir(id), filepath.FromSlash(derivativeSuffix(size, format)))
}

func (l *Layout) PublicManifestBaseURI() string {
	return l.cfg.BaseManifestURI
}

func (l *Layout) PublicImageBaseURI(id string) string {
	return l.cfg.BaseImageURI + "/" + url.PathEscape(id)
}

func (l *Layout) ManifestURI() string {
	return l.PublicManifestBaseURI() + "/" + contracts.ManifestFileName
}

func (l *Layout) SequenceURI() string {
	return l.PublicManifestBaseURI() + "/sequence/normal.json"
}

func (l *Layout) CanvasURI(id string) string {
	return l.PublicManifestBaseURI() + "/canvas/" + url.PathEscape(id) + ".json"
}

func (l *Layout) AnnotationURI(id string) string {
	return l.PublicManifestBaseURI() + "/annotation/" + url.PathEscape(id) + ".json"
}

// ImageResourceURI is the canonical full-size request for id.
func (l *Layout) ImageResourceURI(id string, format contracts.OutputFormat) string {
	return l.PublicImageBaseURI(id) + "/full/full/0/default." + string(format)
}

// TileURI is the public URI of a tile written with the iiif layout.
func (l *Layout) TileURI(desc contracts.ImageDescriptor, tile contracts.Tile, format contracts.OutputFormat) string {
	return l.PublicImageBaseURI(desc.ID) + "/" + iiifTileSuffix(desc, tile, format)
}

// RegionParam formats a region the way a level-0 client requests it.
func RegionParam(region image.Rectangle, width, height int) string {
	if region == image.Rect(0, 0, width, height) {
		return "full"
	}
	return fmt.Sprintf("%d,%d,%d,%d", region.Min.X, region.Min.Y, region.Dx(), region.Dy())
}

func iiifTileSuffix(desc contracts.ImageDescriptor, tile contracts.Tile, format contracts.OutputFormat) string {
	region := RegionParam(tile.Region, desc.Width, desc.Height)
	return path.Join(region, fmt.Sprintf("%d,", tile.Size.X), "0", "default."+string(format))
}

func derivativeSuffix(size contracts.Size, format contracts.OutputFormat) string {
	return path.Join("full", fmt.Sprintf("%d,", size.Width), "0", "default."+string(format))
}
