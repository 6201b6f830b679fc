package thumbnail

import (
	"sort"
	"strconv"
)

// Attribute keys written into every cached PNG as tEXt chunks.
const (
	AttrMimetype    = "Thumb::Mimetype"
	AttrSize        = "Thumb::Size"
	AttrURI         = "Thumb::URI"
	AttrMTime       = "Thumb::MTime"
	AttrImageWidth  = "Thumb::Image::Width"
	AttrImageHeight = "Thumb::Image::Height"
	AttrSoftware    = "Software"
)

// DefaultSoftware is the Software attribute used when none is configured.
const DefaultSoftware = "thumbcache"

// Attributes are the key/value pairs embedded in a cached thumbnail.
type Attributes map[string]string

// Keys returns the attribute keys in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// URI returns Thumb::URI.
func (a Attributes) URI() string {
	return a[AttrURI]
}

// MTime returns Thumb::MTime as Unix seconds.
func (a Attributes) MTime() (int64, bool) {
	return a.int(AttrMTime)
}

// Size returns Thumb::Size in bytes.
func (a Attributes) Size() (int64, bool) {
	return a.int(AttrSize)
}

// ImageSize returns the source dimensions, if they were recorded.
func (a Attributes) ImageSize() (width, height int, ok bool) {
	w, okW := a.int(AttrImageWidth)
	h, okH := a.int(AttrImageHeight)
	if !okW || !okH {
		return 0, 0, false
	}
	return int(w), int(h), true
}

func (a Attributes) int(key string) (int64, bool) {
	v, ok := a[key]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
