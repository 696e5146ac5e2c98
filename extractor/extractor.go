// Package extractor turns a PDF or a directory of page images into the
// ordered image descriptors the tile generator consumes.
package extractor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"pdftomanifest/contracts"
)

type ImageDescriptor = contracts.ImageDescriptor

// Result is the ordered output of one extraction.
type Result struct {
	Descriptors []ImageDescriptor
	// Provenance names the input in the manifest metadata.
	Provenance string
	Title      string
}

type Source interface {
	Extract(ctx context.Context) (*Result, error)
}

// ProgressFunc is called after each page with the number done and the total.
type ProgressFunc func(done, total int)

// IsPDF reports whether input looks like a PDF file rather than a directory.
func IsPDF(input string) bool {
	info, err := os.Stat(input)
	if err != nil || info.IsDir() {
		return false
	}
	return strings.EqualFold(filepath.Ext(input), ".pdf")
}
