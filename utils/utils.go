package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var errNoResolution = errors.New("no resolution recorded")

// GetImageDPI returns the horizontal resolution stored in an image file, or
// 0 when the file does not record one.
func GetImageDPI(filePath string) (float64, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return 0, err
	}

	var dpi float64
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".png":
		dpi, err = GetDPIfromPNG(data)
	default:
		dpi, _, err = GetEXIFDPI(data)
	}
	if errors.Is(err, errNoResolution) {
		return 0, nil
	}
	return dpi, err
}

// GetEXIFDPI reads X/YResolution from the EXIF block of a JPEG or TIFF.
func GetEXIFDPI(data []byte) (float64, float64, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return 0, 0, errNoResolution
		}
		return 0, 0, fmt.Errorf("EXIF not found: %w", err)
	}

	im := exifcommon.NewIfdMapping()
	ti := exif.NewTagIndex()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return 0, 0, err
	}

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return 0, 0, err
	}

	dpiX, dpiY := 0.0, 0.0

	if tag, err := index.RootIfd.FindTagWithName("XResolution"); err == nil {
		if val, err := tag[0].Value(); err == nil {
			if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
				dpiX = float64(rats[0].Numerator) / float64(rats[0].Denominator)
			}
		}
	}

	if tag, err := index.RootIfd.FindTagWithName("YResolution"); err == nil {
		if val, err := tag[0].Value(); err == nil {
			if rats, ok := val.([]exifcommon.Rational); ok && len(rats) > 0 && rats[0].Denominator != 0 {
				dpiY = float64(rats[0].Numerator) / float64(rats[0].Denominator)
			}
		}
	}

	if tag, err := index.RootIfd.FindTagWithName("ResolutionUnit"); err == nil {
		if val, err := tag[0].Value(); err == nil {
			if units, ok := val.([]uint16); ok && len(units) > 0 && units[0] == 3 {
				dpiX *= 2.54
				dpiY *= 2.54
			}
		}
	}

	if dpiX == 0 {
		return 0, 0, errNoResolution
	}
	return dpiX, dpiY, nil
}

// GetDPIfromPNG reads the pHYs chunk of a PNG stream.
func GetDPIfromPNG(data []byte) (float64, error) {
	const physChunk = "pHYs"
	if !bytes.HasPrefix(data, pngSignature) {
		return 0, fmt.Errorf("not a PNG stream")
	}
	buf := bytes.NewReader(data[len(pngSignature):])

	for {
		var length uint32
		if err := binary.Read(buf, binary.BigEndian, &length); err != nil {
			break
		}

		chunkType := make([]byte, 4)
		if _, err := io.ReadFull(buf, chunkType); err != nil {
			break
		}

		if string(chunkType) == physChunk {
			var pxPerUnitX, pxPerUnitY uint32
			var unit byte

			if err := binary.Read(buf, binary.BigEndian, &pxPerUnitX); err != nil {
				return 0, err
			}
			if err := binary.Read(buf, binary.BigEndian, &pxPerUnitY); err != nil {
				return 0, err
			}
			if err := binary.Read(buf, binary.BigEndian, &unit); err != nil {
				return 0, err
			}

			// unit 1 is metres, 0 only gives an aspect ratio
			if unit == 1 {
				return float64(pxPerUnitX) * 0.0254, nil
			}
			break
		}
		if string(chunkType) == "IDAT" {
			break // pHYs must precede image data
		}

		// skip chunk data + CRC
		if _, err := buf.Seek(int64(length)+4, io.SeekCurrent); err != nil {
			break
		}
	}

	return 0, errNoResolution
}
