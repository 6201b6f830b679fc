package mediatypes

import (
	"bytes"
	"io"
)

// SniffLen is the number of header bytes DetectFormat looks at.
const SniffLen = 512

// ReadHeader reads up to SniffLen bytes from r.
func ReadHeader(r io.Reader) ([]byte, error) {
	header := make([]byte, SniffLen)
	n, err := io.ReadFull(r, header)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return header[:n], err
}

// DetectFormat identifies an image container from its magic bytes.
// Returns "unknown" when nothing matches.
func DetectFormat(header []byte) string {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg"

	case len(header) >= 8 && bytes.Equal(header[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return "png"

	case len(header) >= 4 && bytes.Equal(header[:4], []byte("GIF8")):
		return "gif"

	case len(header) >= 12 && bytes.Equal(header[:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return "webp"

	case len(header) >= 2 && header[0] == 'B' && header[1] == 'M':
		return "bmp"

	case len(header) >= 4 && (bytes.Equal(header[:4], []byte{'I', 'I', 0x2A, 0x00}) ||
		bytes.Equal(header[:4], []byte{'M', 'M', 0x00, 0x2A})):
		return "tiff"

	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		switch string(header[8:12]) {
		case "heic", "heix", "hevc", "hevx", "mif1", "msf1":
			return "heif"
		case "avif", "avis":
			return "avif"
		}
		return "unknown"

	case len(header) >= 2 && header[0] == 0xFF && header[1] == 0x0A:
		return "jxl"

	case len(header) >= 12 && bytes.Equal(header[:12], []byte{0, 0, 0, 0x0C, 'J', 'X', 'L', ' ', 0x0D, 0x0A, 0x87, 0x0A}):
		return "jxl"

	case looksLikeSVG(header):
		return "svg"
	}

	return "unknown"
}

func looksLikeSVG(header []byte) bool {
	trimmed := bytes.TrimLeft(header, " \t\r\n\xEF\xBB\xBF")
	if !bytes.HasPrefix(trimmed, []byte("<")) {
		return false
	}
	return bytes.Contains(header, []byte("<svg"))
}
