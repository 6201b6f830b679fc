package thumbnail

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"image"
	"image/png"
	"io"
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

// ihdrEnd is the offset just past the IHDR chunk: signature (8) plus
// length, type, 13 data bytes and CRC.
const ihdrEnd = 8 + 4 + 4 + 13 + 4

// maxTextChunk bounds how much of a single tEXt chunk the reader will
// buffer.
const maxTextChunk = 64 * 1024

var errNotPNG = errors.New("not a PNG file")

// encodePNG encodes img and inserts one text chunk per attribute directly
// after IHDR, in sorted key order.
func encodePNG(w io.Writer, img image.Image, attrs Attributes, level png.CompressionLevel) error {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("failed to encode png: %w", err)
	}

	data := buf.Bytes()
	if len(data) < ihdrEnd || string(data[12:16]) != "IHDR" {
		return fmt.Errorf("unexpected png layout from encoder")
	}

	if _, err := w.Write(data[:ihdrEnd]); err != nil {
		return err
	}
	for _, k := range attrs.Keys() {
		if err := writeTextChunk(w, k, attrs[k]); err != nil {
			return err
		}
	}
	_, err := w.Write(data[ihdrEnd:])
	return err
}

// writeTextChunk writes key=value as tEXt when value is plain ASCII and as
// an uncompressed iTXt chunk otherwise, since tEXt is Latin-1 and would
// mangle UTF-8 paths.
func writeTextChunk(w io.Writer, key, value string) error {
	if len(key) == 0 || len(key) > 79 || bytes.IndexByte([]byte(key), 0) >= 0 {
		return fmt.Errorf("invalid png text keyword %q", key)
	}

	typ := "tEXt"
	payload := make([]byte, 0, len(key)+5+len(value))
	payload = append(payload, key...)
	payload = append(payload, 0)
	if !isASCII(value) {
		typ = "iTXt"
		// compression flag, method, empty language tag and translated keyword
		payload = append(payload, 0, 0, 0, 0)
	}
	payload = append(payload, value...)

	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(payload)))
	copy(header[4:], typ)

	crc := crc32.NewIEEE()
	crc.Write(header[4:])
	crc.Write(payload)

	var footer [4]byte
	binary.BigEndian.PutUint32(footer[:], crc.Sum32())

	for _, b := range [][]byte{header[:], payload, footer[:]} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// parseITXt returns the keyword and UTF-8 text of an iTXt payload,
// inflating it when the compression flag is set.
func parseITXt(payload []byte) (string, string, bool) {
	key, rest, ok := bytes.Cut(payload, []byte{0})
	if !ok || len(rest) < 2 {
		return "", "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]
	// language tag, then translated keyword
	for i := 0; i < 2; i++ {
		if _, rest, ok = bytes.Cut(rest, []byte{0}); !ok {
			return "", "", false
		}
	}
	if !compressed {
		return string(key), string(rest), true
	}
	zr, err := zlib.NewReader(bytes.NewReader(rest))
	if err != nil {
		return "", "", false
	}
	defer zr.Close()
	text, err := io.ReadAll(io.LimitReader(zr, maxTextChunk))
	if err != nil {
		return "", "", false
	}
	return string(key), string(text), true
}

// readTextChunks returns the tEXt and iTXt chunks of a PNG stream. It stops at IEND
// and does not decode pixel data.
func readTextChunks(r io.Reader) (Attributes, error) {
	br := bufio.NewReader(r)

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil || !bytes.Equal(sig, pngSignature) {
		return nil, errNotPNG
	}

	attrs := make(Attributes)
	var header [8]byte
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			return nil, fmt.Errorf("truncated png: %w", err)
		}
		length := int64(binary.BigEndian.Uint32(header[:4]))
		typ := string(header[4:])

		switch {
		case typ == "IEND":
			return attrs, nil
		case (typ == "tEXt" || typ == "iTXt") && length <= maxTextChunk:
			payload := make([]byte, length)
			if _, err := io.ReadFull(br, payload); err != nil {
				return nil, fmt.Errorf("truncated %s chunk: %w", typ, err)
			}
			if typ == "iTXt" {
				if k, v, ok := parseITXt(payload); ok {
					attrs[k] = v
				}
			} else if k, v, ok := bytes.Cut(payload, []byte{0}); ok {
				attrs[string(k)] = string(v)
			}
			if _, err := br.Discard(4); err != nil {
				return nil, fmt.Errorf("truncated %s chunk: %w", typ, err)
			}
		default:
			if _, err := io.CopyN(io.Discard, br, length+4); err != nil {
				return nil, fmt.Errorf("truncated %s chunk: %w", typ, err)
			}
		}
	}
}
