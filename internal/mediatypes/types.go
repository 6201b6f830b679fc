package mediatypes

import (
	"path/filepath"
	"strings"
)

// ImageExtensions maps file extensions to whether they are image formats
// the browser lists. Whether a given file actually decodes is decided by the
// codecs, not by this table.
var ImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".svg": true, ".ico": true,
	".tiff": true, ".tif": true, ".heic": true, ".heif": true,
	".avif": true, ".jxl": true, ".pbm": true, ".pgm": true,
	".ppm": true, ".xbm": true, ".xpm": true, ".tga": true,
	".jp2": true, ".dds": true, ".icns": true, ".wbmp": true,
	".cr2": true, ".crw": true, ".nef": true, ".arw": true,
	".dng": true, ".orf": true, ".pef": true, ".raf": true,
}

// VectorExtensions lists formats that render at any resolution.
var VectorExtensions = map[string]bool{
	".svg":  true,
	".svgz": true,
}

// RawExtensions lists camera RAW formats. They are slow to decode and are
// never rewritten in place.
var RawExtensions = map[string]bool{
	".cr2": true, ".crw": true, ".dcr": true, ".kdc": true,
	".mrw": true, ".nef": true, ".orf": true, ".pef": true,
	".raf": true, ".srf": true, ".x3f": true, ".arw": true,
	".dng": true,
}

// MimeTypes maps file extensions to their MIME types.
var MimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".svgz": "image/svg+xml-compressed",
	".ico":  "image/vnd.microsoft.icon",
	".tiff": "image/tiff",
	".tif":  "image/tiff",
	".heic": "image/heic",
	".heif": "image/heif",
	".avif": "image/avif",
	".jxl":  "image/jxl",
	".pbm":  "image/x-portable-bitmap",
	".pgm":  "image/x-portable-graymap",
	".ppm":  "image/x-portable-pixmap",
	".xbm":  "image/x-xbitmap",
	".xpm":  "image/x-xpixmap",
	".tga":  "image/x-tga",
	".jp2":  "image/jp2",
	".cr2":  "image/x-canon-cr2",
	".nef":  "image/x-nikon-nef",
	".arw":  "image/x-sony-arw",
	".dng":  "image/x-adobe-dng",
}

// formatMimeTypes maps sniffed formats to MIME types.
var formatMimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"heif": "image/heif",
	"avif": "image/avif",
	"jxl":  "image/jxl",
	"svg":  "image/svg+xml",
}

// Ext returns the lowercase extension of path including the dot.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// IsImage reports whether path has an image extension.
func IsImage(path string) bool {
	return ImageExtensions[Ext(path)]
}

// IsVector reports whether path has a vector image extension.
func IsVector(path string) bool {
	return VectorExtensions[Ext(path)]
}

// IsRaw reports whether path has a camera RAW extension.
func IsRaw(path string) bool {
	return RawExtensions[Ext(path)]
}

// GetMimeType returns the MIME type for a given file extension.
// The extension should be lowercase and include the leading dot.
// Returns "application/octet-stream" if the extension is not recognized.
func GetMimeType(ext string) string {
	if mime, ok := MimeTypes[ext]; ok {
		return mime
	}
	return "application/octet-stream"
}

// MimeTypeFor picks a MIME type for a file, preferring what the header bytes
// say over the extension. A zero-length header is classified by extension
// alone; an empty file is reported as "application/x-zerosize".
func MimeTypeFor(path string, header []byte, size int64) string {
	if size == 0 {
		return "application/x-zerosize"
	}
	if mime, ok := formatMimeTypes[DetectFormat(header)]; ok {
		return mime
	}
	return GetMimeType(Ext(path))
}
