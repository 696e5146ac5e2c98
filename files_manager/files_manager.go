package files_manager

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
	".webp": true,
	".gif":  true,
}

func IsImagePath(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// GetImagePaths lists the image files directly inside dir in name order,
// which is the page order of an extracted document.
func GetImagePaths(dir string) ([]string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	imageFiles := make([]string, 0, len(entries))
	var size int64 = 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "._") || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !IsImagePath(entry.Name()) {
			continue
		}
		imageFiles = append(imageFiles, filepath.Join(dir, entry.Name()))
		if info, err := entry.Info(); err == nil {
			size += info.Size()
		}
	}
	sort.Strings(imageFiles)
	return imageFiles, size, nil
}

// EnsureDirs creates every output directory of the layout.
func EnsureDirs(l *Layout) error {
	for _, dir := range []string{l.cfg.Paths.ExtractDir, l.cfg.Paths.ImageDir, l.cfg.Paths.ManifestDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never observe a partially written file.
func WriteFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
