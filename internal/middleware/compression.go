package middleware

import (
	"compress/gzip"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// MinSize is the smallest body, in bytes, worth compressing
	MinSize int
	// Level is the gzip compression level
	Level int
	// Types lists the media types that are compressed. PNG thumbnails are
	// already deflated and are never in this list.
	Types []string
}

// DefaultCompressionConfig returns sensible defaults for compression
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize: 1024,
		Level:   gzip.DefaultCompression,
		Types:   []string{"application/json", "text/plain", "image/svg+xml"},
	}
}

// Compression gzips eligible responses for clients that accept it.
func Compression(config CompressionConfig) func(http.Handler) http.Handler {
	pool := &sync.Pool{
		New: func() interface{} {
			zw, err := gzip.NewWriterLevel(io.Discard, config.Level)
			if err != nil {
				zw = gzip.NewWriter(io.Discard)
			}
			return zw
		},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !acceptsGzip(r) || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			gw := &gzipWriter{ResponseWriter: w, config: config, pool: pool, status: http.StatusOK}
			defer gw.Close()
			next.ServeHTTP(gw, r)
		})
	}
}

func acceptsGzip(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(enc, "gzip") {
			return true
		}
	}
	return false
}

// gzipWriter buffers up to MinSize bytes, then decides once whether the
// response is compressed.
type gzipWriter struct {
	http.ResponseWriter
	config  CompressionConfig
	pool    *sync.Pool
	zw      *gzip.Writer
	buf     []byte
	status  int
	decided bool
}

func (g *gzipWriter) WriteHeader(code int) {
	if g.decided {
		return
	}
	g.status = code
}

func (g *gzipWriter) Write(p []byte) (int, error) {
	if !g.decided {
		g.buf = append(g.buf, p...)
		if len(g.buf) < g.config.MinSize {
			return len(p), nil
		}
		if err := g.decide(); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	if g.zw != nil {
		return g.zw.Write(p)
	}
	return g.ResponseWriter.Write(p)
}

func (g *gzipWriter) compressible() bool {
	h := g.Header()
	if h.Get("Content-Encoding") != "" || len(g.buf) < g.config.MinSize {
		return false
	}
	switch g.status {
	case http.StatusNoContent, http.StatusNotModified, http.StatusPartialContent:
		return false
	}
	mediaType, _, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		return false
	}
	for _, t := range g.config.Types {
		if mediaType == t {
			return true
		}
	}
	return false
}

// decide commits the headers and flushes the buffer through the chosen path.
func (g *gzipWriter) decide() error {
	g.decided = true
	buf := g.buf
	g.buf = nil

	if g.compressible() {
		h := g.Header()
		h.Del("Content-Length")
		h.Set("Content-Encoding", "gzip")
		h.Add("Vary", "Accept-Encoding")
		g.zw = g.pool.Get().(*gzip.Writer)
		g.zw.Reset(g.ResponseWriter)
		g.ResponseWriter.WriteHeader(g.status)
		_, err := g.zw.Write(buf)
		return err
	}

	g.ResponseWriter.WriteHeader(g.status)
	if len(buf) == 0 {
		return nil
	}
	_, err := g.ResponseWriter.Write(buf)
	return err
}

// Close flushes anything still buffered and returns the gzip writer to the
// pool.
func (g *gzipWriter) Close() error {
	var err error
	if !g.decided {
		err = g.decide()
	}
	if g.zw != nil {
		if cerr := g.zw.Close(); err == nil {
			err = cerr
		}
		g.pool.Put(g.zw)
		g.zw = nil
	}
	return err
}

func (g *gzipWriter) Flush() {
	if !g.decided {
		_ = g.decide()
	}
	if g.zw != nil {
		_ = g.zw.Flush()
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
