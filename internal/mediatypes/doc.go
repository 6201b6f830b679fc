// Package mediatypes classifies image files by extension and by magic
// bytes. It has no dependencies beyond the standard library so every other
// package can import it.
//
// The thumbnail generator records a MIME type in every cache entry
// (Thumb::Mimetype). MimeTypeFor prefers the sniffed container over the
// extension, so a PNG saved as photo.jpg is still recorded as image/png:
//
//	header, _ := mediatypes.ReadHeader(f)
//	mime := mediatypes.MimeTypeFor(path, header, info.Size())
//
// Directory listings use IsImage to decide which files are worth offering
// to the decoder.
package mediatypes
