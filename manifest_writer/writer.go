package manifest_writer

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"pdftomanifest/contracts"
	"pdftomanifest/files_manager"
)

// Serialize renders the manifest as indented JSON. Equal graphs give equal
// bytes.
func Serialize(m *Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Writer persists a manifest at the layout's manifest path.
type Writer struct {
	layout *files_manager.Layout
	logger zerolog.Logger
}

func NewWriter(layout *files_manager.Layout, logger zerolog.Logger) *Writer {
	return &Writer{layout: layout, logger: logger}
}

// Write replaces the manifest file in one rename, so readers see either the
// previous document or the new one.
func (w *Writer) Write(m *Manifest) (string, error) {
	data, err := Serialize(m)
	if err != nil {
		return "", err
	}
	path := w.layout.ManifestOutputPath()
	if err := files_manager.WriteFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("%w: %w", contracts.ErrWriteFailure, err)
	}

	canvases := 0
	if len(m.Sequences) > 0 {
		canvases = len(m.Sequences[0].Canvases)
	}
	w.logger.Info().Str("path", path).Int("canvases", canvases).Msg("manifest written")
	return path, nil
}
