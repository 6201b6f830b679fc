package thumbnail

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"thumbcache/internal/logging"
)

// ImageInfo describes a readable image found on disk.
type ImageInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Parent  string    `json:"parentPath"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

// ListImages returns the regular files in dir that a codec can read,
// in lexical order. Symlinks are skipped. With recursive set it descends
// into subdirectories.
func (s *Service) ListImages(dir string, recursive bool) ([]ImageInfo, error) {
	var out []ImageInfo

	visit := func(path string, d fs.DirEntry) {
		if !d.Type().IsRegular() {
			return
		}
		if !s.decoder.SupportsRead(path) {
			return
		}
		info, err := d.Info()
		if err != nil {
			logging.Debug("skipping %s: %v", path, err)
			return
		}
		out = append(out, ImageInfo{
			Name:    d.Name(),
			Path:    path,
			Parent:  filepath.Dir(path),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	if !recursive {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			visit(filepath.Join(dir, e.Name()), e)
		}
		return out, nil
	}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			logging.Debug("skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		visit(path, d)
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return nil, err
	}
	return out, nil
}
