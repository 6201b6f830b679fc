package thumbnail

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"thumbcache/internal/locking"
	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// Store maps a key and tier to a PNG file under <cacheHome>/thumbnails.
// File existence is the only index; there is no metadata database.
type Store struct {
	root        string
	locks       locking.Group
	compression png.CompressionLevel
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLockGroup sets the per-key lock used by WithKeyLock. The default is an
// in-process MemLock.
func WithLockGroup(g locking.Group) StoreOption {
	return func(s *Store) {
		if g != nil {
			s.locks = g
		}
	}
}

// WithCompression sets the PNG compression level for written tiers.
func WithCompression(level png.CompressionLevel) StoreOption {
	return func(s *Store) {
		s.compression = level
	}
}

// NewStore returns a Store rooted at <cacheHome>/thumbnails. No directories
// are created until the first write.
func NewStore(cacheHome string, opts ...StoreOption) *Store {
	s := &Store{
		root:        filepath.Join(cacheHome, "thumbnails"),
		locks:       locking.NewMemLock(),
		compression: png.DefaultCompression,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultCacheHome returns $XDG_CACHE_HOME, falling back to $HOME/.cache.
func DefaultCacheHome() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), ".cache")
	}
	return filepath.Join(home, ".cache")
}

// Root returns the thumbnails directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns where the entry for key in tier lives, whether or not it
// exists.
func (s *Store) Path(key Key, tier Tier) string {
	return filepath.Join(s.root, tier.String(), string(key)+".png")
}

// Locate returns the entry path if the file exists. It does not open or
// validate the file and takes no lock.
func (s *Store) Locate(key Key, tier Tier) (string, bool) {
	p := s.Path(key, tier)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Write encodes img as PNG with attrs embedded and moves it into place
// atomically. Readers never observe a partially written entry.
func (s *Store) Write(key Key, tier Tier, img image.Image, attrs Attributes) error {
	dir := filepath.Join(s.root, tier.String())
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s tier directory: %w", tier, err)
	}

	tmp, err := os.CreateTemp(dir, "."+string(key)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := encodePNG(tmp, img, attrs, s.compression); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(key, tier)); err != nil {
		return fmt.Errorf("failed to move %s thumbnail into place: %w", tier, err)
	}
	tmpName = ""

	logging.Debug("Wrote %s thumbnail %s", tier, key)
	return nil
}

// Remove deletes the entry for key in every tier. Missing files are not an
// error.
func (s *Store) Remove(key Key) error {
	var errs []error
	for _, tier := range Tiers {
		if err := s.removeTier(key, tier); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) removeTier(key Key, tier Tier) error {
	if err := os.Remove(s.Path(key, tier)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s thumbnail: %w", tier, err)
	}
	return nil
}

// Load decodes the cached PNG for key in tier.
func (s *Store) Load(key Key, tier Tier) (image.Image, error) {
	f, err := os.Open(s.Path(key, tier))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close thumbnail %s: %v", f.Name(), err)
		}
	}()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached %s thumbnail: %w", tier, err)
	}
	return img, nil
}

// ReadAttributes returns the tEXt attributes of the cached entry.
func (s *Store) ReadAttributes(key Key, tier Tier) (Attributes, error) {
	f, err := os.Open(s.Path(key, tier))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return readTextChunks(f)
}

// WithKeyLock runs fn while holding the lock for key. Every mutation of the
// entries for a key goes through here.
func (s *Store) WithKeyLock(key Key, fn func() error) error {
	return s.locks.DoWithLock(string(key), fn)
}

// Stats counts files and bytes per tier. Temp files from in-progress
// writes are skipped.
func (s *Store) Stats() (map[string]metrics.TierStats, error) {
	out := make(map[string]metrics.TierStats, len(Tiers))
	for _, tier := range Tiers {
		var ts metrics.TierStats
		entries, err := os.ReadDir(filepath.Join(s.root, tier.String()))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s tier: %w", tier, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			ts.Files++
			ts.Bytes += info.Size()
		}
		out[tier.String()] = ts
	}
	return out, nil
}
