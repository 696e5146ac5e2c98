// Package pyramid computes the resolution levels and tile grid of a static
// IIIF image pyramid. Level 0 is the lowest resolution; the last level is
// always the full-resolution image.
package pyramid

import (
	"fmt"
	"image"

	"pdftomanifest/contracts"
)

type PyramidLevel = contracts.PyramidLevel
type Tile = contracts.Tile

type Pyramid struct {
	Width    int
	Height   int
	TileSize int
	Levels   []PyramidLevel
}

// LevelCount returns ceil(log2(max(width, height) / tileSize)) + 1, at
// least 1. It is computed on integers so that exact powers of two do not
// pick up an extra level from floating point error.
func LevelCount(width, height, tileSize int) int {
	maxDim := max(width, height)
	k := 0
	for maxDim > tileSize<<k {
		k++
	}
	return k + 1
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// New plans the pyramid of a width×height image cut into tileSize tiles.
func New(width, height, tileSize int) (*Pyramid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", contracts.ErrInvalidDimensions, width, height)
	}
	if tileSize <= 0 {
		return nil, fmt.Errorf("tile size must be positive, got %d", tileSize)
	}

	count := LevelCount(width, height, tileSize)
	levels := make([]PyramidLevel, count)
	for l := 0; l < count; l++ {
		scale := 1 << (count - 1 - l)
		w := ceilDiv(width, scale)
		h := ceilDiv(height, scale)
		levels[l] = PyramidLevel{
			Index:       l,
			ScaleFactor: scale,
			Width:       w,
			Height:      h,
			TilesAcross: ceilDiv(w, tileSize),
			TilesDown:   ceilDiv(h, tileSize),
		}
	}

	return &Pyramid{
		Width:    width,
		Height:   height,
		TileSize: tileSize,
		Levels:   levels,
	}, nil
}

// ScaleFactors lists the scale factors from full resolution downwards, the
// order info.json uses.
func (p *Pyramid) ScaleFactors() []int {
	out := make([]int, 0, len(p.Levels))
	for i := len(p.Levels) - 1; i >= 0; i-- {
		out = append(out, p.Levels[i].ScaleFactor)
	}
	return out
}

func (p *Pyramid) Top() PyramidLevel {
	return p.Levels[len(p.Levels)-1]
}

// Tiles returns the tiles of one level in row-major order.
func (p *Pyramid) Tiles(level PyramidLevel) []Tile {
	tiles := make([]Tile, 0, level.TilesAcross*level.TilesDown)
	scale := level.ScaleFactor
	for row := 0; row < level.TilesDown; row++ {
		y := row * p.TileSize
		h := min(p.TileSize, level.Height-y)
		for col := 0; col < level.TilesAcross; col++ {
			x := col * p.TileSize
			w := min(p.TileSize, level.Width-x)

			region := image.Rect(x*scale, y*scale, (x+w)*scale, (y+h)*scale).
				Intersect(image.Rect(0, 0, p.Width, p.Height))

			tiles = append(tiles, Tile{
				Level:  level.Index,
				Column: col,
				Row:    row,
				Region: region,
				Size:   image.Pt(w, h),
			})
		}
	}
	return tiles
}

// LevelRect returns the tile's rectangle in the pixel space of its level.
func LevelRect(t Tile, tileSize int) image.Rectangle {
	origin := image.Pt(t.Column*tileSize, t.Row*tileSize)
	return image.Rectangle{Min: origin, Max: origin.Add(t.Size)}
}

// AllTiles walks every level from lowest to full resolution.
func (p *Pyramid) AllTiles() []Tile {
	var out []Tile
	for _, level := range p.Levels {
		out = append(out, p.Tiles(level)...)
	}
	return out
}
