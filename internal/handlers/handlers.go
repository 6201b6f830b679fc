package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"thumbcache/internal/database"
	"thumbcache/internal/filesystem"
	"thumbcache/internal/indexer"
	"thumbcache/internal/logging"
	"thumbcache/internal/thumbnail"

	"github.com/gorilla/mux"
)

// ImageIndex is the part of the image database the handlers read.
type ImageIndex interface {
	ListImages(ctx context.Context, parent string) ([]database.Image, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// IndexController exposes the background indexer. *indexer.Indexer
// satisfies it.
type IndexController interface {
	Status() indexer.Status
	TriggerIndex(ctx context.Context) bool
}

// Handlers holds the dependencies shared by every endpoint.
type Handlers struct {
	thumbs    *thumbnail.Service
	index     ImageIndex
	indexer   IndexController
	mediaDir  string
	retry     filesystem.RetryConfig
	startedAt time.Time

	// background population
	baseCtx  context.Context
	workers  int
	throttle thumbnail.Throttle
	batches  sync.WaitGroup
}

// Option configures Handlers.
type Option func(*Handlers)

// WithBatchWorkers bounds concurrent generations started by Populate.
func WithBatchWorkers(n int) Option {
	return func(h *Handlers) {
		h.workers = n
	}
}

// WithThrottle pauses background population while t reports pressure.
func WithThrottle(t thumbnail.Throttle) Option {
	return func(h *Handlers) {
		h.throttle = t
	}
}

// WithBaseContext sets the context background work runs under. Cancelling
// it stops dispatching new generations.
func WithBaseContext(ctx context.Context) Option {
	return func(h *Handlers) {
		h.baseCtx = ctx
	}
}

// WithIndexer enables the index endpoints and reports indexer state in
// health checks.
func WithIndexer(ic IndexController) Option {
	return func(h *Handlers) {
		h.indexer = ic
	}
}

// New creates the handler set. mediaDir must be absolute; index may be nil,
// in which case listings scan the filesystem.
func New(thumbs *thumbnail.Service, index ImageIndex, mediaDir string, opts ...Option) *Handlers {
	h := &Handlers{
		thumbs:    thumbs,
		index:     index,
		mediaDir:  filepath.Clean(mediaDir),
		retry:     filesystem.DefaultRetryConfig(),
		startedAt: time.Now(),
		baseCtx:   context.Background(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Wait blocks until every background population started by Populate has
// delivered all of its results.
func (h *Handlers) Wait() {
	h.batches.Wait()
}

var errOutsideMediaDir = errors.New("path outside media directory")

// resolvePath maps a request path onto the media directory.
func (h *Handlers) resolvePath(rel string) (string, error) {
	full := filepath.Join(h.mediaDir, filepath.FromSlash(rel))
	if !isSubPath(h.mediaDir, full) {
		return "", errOutsideMediaDir
	}
	return full, nil
}

func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func muxPath(r *http.Request) string {
	return mux.Vars(r)["path"]
}

// sourceFile resolves the {path} route variable to an existing regular
// file, writing the error response itself when that fails.
func (h *Handlers) sourceFile(w http.ResponseWriter, r *http.Request) (string, bool) {
	rel := muxPath(r)
	if rel == "" {
		http.Error(w, "Path is required", http.StatusBadRequest)
		return "", false
	}

	full, err := h.resolvePath(rel)
	if err != nil {
		logging.Warn("Rejected path %q: %v", rel, err)
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return "", false
	}

	info, err := filesystem.StatWithRetry(full, h.retry)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			logging.Error("Failed to stat %s: %v", full, err)
			http.Error(w, "Failed to access file", http.StatusInternalServerError)
		}
		return "", false
	}
	if info.IsDir() {
		http.Error(w, "Path is a directory", http.StatusBadRequest)
		return "", false
	}
	return full, true
}
