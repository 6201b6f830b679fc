package thumbnail

import (
	"crypto/md5"
	"encoding/hex"
	"path/filepath"
)

// Key identifies a source image in the cache. It is the lowercase hex MD5
// of the source URI and doubles as the file name stem in every tier.
type Key string

// URIFor returns the file:// URI the cache key is derived from. Relative
// paths are made absolute against the working directory; the path is not
// percent-encoded, matching what other freedesktop thumbnailers produce for
// the same file.
func URIFor(path string) string {
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	} else {
		path = filepath.Clean(path)
	}
	return "file://" + path
}

// KeyFor returns the cache key for path.
func KeyFor(path string) Key {
	sum := md5.Sum([]byte(URIFor(path)))
	return Key(hex.EncodeToString(sum[:]))
}

func (k Key) String() string {
	return string(k)
}
