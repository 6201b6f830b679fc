// Package handlers provides the HTTP API over the thumbnail cache.
//
// It includes handlers for:
//   - Thumbnail retrieval, invalidation and source rotation
//   - Directory listings from the image index
//   - EXIF metadata of a source image
//   - Cache statistics and generation latency
//   - Health, readiness and version probes
//
// Request paths are relative to the configured media directory; anything
// that resolves outside of it is rejected with 400.
package handlers
