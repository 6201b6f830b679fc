package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"thumbcache/internal/database"
	"thumbcache/internal/filesystem"
	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/metrics"
	"thumbcache/internal/thumbnail"
)

const (
	// Number of rows written per transaction
	batchSize = 500

	// Delay between batches to allow other operations
	batchDelay = 10 * time.Millisecond
)

// ErrInProgress is returned by Index when another run has not finished.
var ErrInProgress = errors.New("index already in progress")

// Store persists index rows. *database.Database satisfies it.
type Store interface {
	UpsertImages(ctx context.Context, images []database.Image) (time.Time, error)
	DeleteStale(ctx context.Context, parent string, cutoff time.Time) (int64, error)
}

// Lister enumerates readable images. *thumbnail.Service satisfies it.
type Lister interface {
	ListImages(dir string, recursive bool) ([]thumbnail.ImageInfo, error)
}

// Result summarises one index run.
type Result struct {
	Images   int           `json:"images"`
	Removed  int64         `json:"removed"`
	Duration time.Duration `json:"duration"`
}

// Status is a snapshot of the indexer for health reporting.
type Status struct {
	Indexing    bool      `json:"indexing"`
	LastIndexed time.Time `json:"lastIndexed,omitempty"`
	LastResult  *Result   `json:"lastResult,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// Indexer keeps the image index in step with the images under root.
type Indexer struct {
	store         Store
	lister        Lister
	root          string
	indexInterval time.Duration
	pollInterval  time.Duration
	retry         filesystem.RetryConfig

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.Mutex
	isIndexing    bool
	lastIndexTime time.Time
	lastResult    *Result
	lastErr       error

	// Last known state for lightweight change detection
	stateMu            sync.RWMutex
	lastRootModTime    time.Time
	lastSubdirModTimes map[string]time.Time
}

// New creates an Indexer over root. Periodic runs are off until
// SetIntervals is called.
func New(store Store, lister Lister, root string) *Indexer {
	return &Indexer{
		store:              store,
		lister:             lister,
		root:               root,
		retry:              filesystem.DefaultRetryConfig(),
		stopChan:           make(chan struct{}),
		lastSubdirModTimes: make(map[string]time.Time),
	}
}

// SetIntervals sets the full re-index and change-detection periods.
// Zero disables either.
func (idx *Indexer) SetIntervals(index, poll time.Duration) {
	idx.indexInterval = index
	idx.pollInterval = poll
}

// Root returns the indexed directory.
func (idx *Indexer) Root() string {
	return idx.root
}

// Start runs an initial index in the background, then re-indexes on the
// configured intervals until Stop is called or ctx is cancelled.
func (idx *Indexer) Start(ctx context.Context) {
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()

		logging.Info("Starting initial index of %s", idx.root)
		if _, err := idx.Index(ctx); err != nil {
			logging.Error("Initial index error: %v", err)
		}
		idx.loop(ctx)
	}()
}

// Stop ends periodic indexing and waits for a run in progress.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() { close(idx.stopChan) })
	idx.wg.Wait()
}

func (idx *Indexer) loop(ctx context.Context) {
	var periodic, poll <-chan time.Time
	if idx.indexInterval > 0 {
		t := time.NewTicker(idx.indexInterval)
		defer t.Stop()
		periodic = t.C
	}
	if idx.pollInterval > 0 {
		t := time.NewTicker(idx.pollInterval)
		defer t.Stop()
		poll = t.C
	}

	for {
		select {
		case <-periodic:
			logging.Debug("Periodic re-index triggered")
			if _, err := idx.Index(ctx); err != nil && !errors.Is(err, ErrInProgress) {
				logging.Error("Periodic re-index failed: %v", err)
			}
		case <-poll:
			changed, err := idx.detectChanges()
			if err != nil {
				logging.Warn("Error detecting changes: %v", err)
				continue
			}
			if changed {
				metrics.IndexerPollChangesDetected.Inc()
				logging.Info("Changes detected under %s, re-indexing", idx.root)
				if _, err := idx.Index(ctx); err != nil && !errors.Is(err, ErrInProgress) {
					logging.Error("Re-index after change detection failed: %v", err)
				}
			}
		case <-ctx.Done():
			return
		case <-idx.stopChan:
			return
		}
	}
}

// TriggerIndex starts a run in the background. It reports false if a run
// is already in progress.
func (idx *Indexer) TriggerIndex(ctx context.Context) bool {
	if idx.IsIndexing() {
		return false
	}
	idx.wg.Add(1)
	go func() {
		defer idx.wg.Done()
		if _, err := idx.Index(ctx); err != nil && !errors.Is(err, ErrInProgress) {
			logging.Error("Manually triggered re-index failed: %v", err)
		}
	}()
	return true
}

// Index walks root, writes a row for every readable image and removes rows
// for files that are gone. Rows are only pruned after every batch has been
// written, so a failed run never shrinks the index.
func (idx *Indexer) Index(ctx context.Context) (Result, error) {
	if !idx.tryStartIndexing() {
		return Result{}, ErrInProgress
	}

	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.Inc()

	start := time.Now()
	result, err := idx.run(ctx, start)
	result.Duration = time.Since(start)
	idx.finishIndexing(result, err)

	if err != nil {
		metrics.IndexerErrors.Inc()
		return result, err
	}

	idx.updateLastKnownState()

	metrics.IndexerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.IndexerLastRunDuration.Set(result.Duration.Seconds())
	metrics.IndexerImagesProcessed.Add(float64(result.Images))
	metrics.IndexerImagesRemoved.Add(float64(result.Removed))

	logging.Info("Index complete: %d images, %d removed in %v", result.Images, result.Removed, result.Duration)
	return result, nil
}

func (idx *Indexer) run(ctx context.Context, start time.Time) (Result, error) {
	infos, err := idx.lister.ListImages(idx.root, true)
	if err != nil {
		return Result{}, fmt.Errorf("list %s: %w", idx.root, err)
	}

	images := make([]database.Image, 0, len(infos))
	for _, info := range infos {
		images = append(images, idx.imageFor(info))
	}

	for i := 0; i < len(images); i += batchSize {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		end := min(i+batchSize, len(images))
		if _, err := idx.store.UpsertImages(ctx, images[i:end]); err != nil {
			return Result{}, fmt.Errorf("write batch: %w", err)
		}
		if end < len(images) {
			time.Sleep(batchDelay)
		}
	}

	removed, err := idx.store.DeleteStale(ctx, idx.root, start)
	if err != nil {
		return Result{Images: len(images)}, fmt.Errorf("remove missing images: %w", err)
	}
	return Result{Images: len(images), Removed: removed}, nil
}

func (idx *Indexer) imageFor(info thumbnail.ImageInfo) database.Image {
	img := database.Image{
		Name:       info.Name,
		Path:       info.Path,
		ParentPath: info.Parent,
		ModTime:    info.ModTime,
		Size:       info.Size,
		MimeType:   mediatypes.GetMimeType(mediatypes.Ext(info.Path)),
	}
	if !mediatypes.IsVector(info.Path) {
		if t, ok := thumbnail.ReadCaptureTime(info.Path, idx.retry); ok {
			img.TakenAt = t
		}
	}
	return img
}

// tryStartIndexing attempts to start indexing, returns false if already in progress.
func (idx *Indexer) tryStartIndexing() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.isIndexing {
		return false
	}
	idx.isIndexing = true
	return true
}

func (idx *Indexer) finishIndexing(result Result, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.isIndexing = false
	idx.lastErr = err
	if err == nil {
		idx.lastIndexTime = time.Now()
		idx.lastResult = &result
	}
}

// IsIndexing returns whether an index operation is currently in progress.
func (idx *Indexer) IsIndexing() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.isIndexing
}

// Status returns a snapshot for health reporting.
func (idx *Indexer) Status() Status {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	s := Status{
		Indexing:    idx.isIndexing,
		LastIndexed: idx.lastIndexTime,
	}
	if idx.lastResult != nil {
		r := *idx.lastResult
		s.LastResult = &r
	}
	if idx.lastErr != nil {
		s.LastError = idx.lastErr.Error()
	}
	return s
}

// detectChanges checks the modification times of root and its immediate
// subdirectories, avoiding a recursive walk on slow network mounts.
func (idx *Indexer) detectChanges() (bool, error) {
	rootInfo, err := os.Stat(idx.root)
	if err != nil {
		return false, fmt.Errorf("failed to stat %s: %w", idx.root, err)
	}

	idx.stateMu.RLock()
	lastRootModTime := idx.lastRootModTime
	lastSubdirModTimes := idx.lastSubdirModTimes
	idx.stateMu.RUnlock()

	if rootInfo.ModTime().After(lastRootModTime) {
		logging.Debug("Root directory modified: %v > %v", rootInfo.ModTime(), lastRootModTime)
		return true, nil
	}

	subdirs, err := idx.subdirModTimes()
	if err != nil {
		return false, err
	}
	for name, mod := range subdirs {
		last, ok := lastSubdirModTimes[name]
		if !ok || mod.After(last) {
			logging.Debug("Subdirectory %s changed", name)
			return true, nil
		}
	}
	return false, nil
}

// updateLastKnownState records the modification times seen after a run.
func (idx *Indexer) updateLastKnownState() {
	rootInfo, err := os.Stat(idx.root)
	if err != nil {
		logging.Warn("Failed to stat %s for state update: %v", idx.root, err)
		return
	}
	subdirs, err := idx.subdirModTimes()
	if err != nil {
		logging.Warn("Failed to read %s for state update: %v", idx.root, err)
		return
	}

	idx.stateMu.Lock()
	idx.lastRootModTime = rootInfo.ModTime()
	idx.lastSubdirModTimes = subdirs
	idx.stateMu.Unlock()
}

func (idx *Indexer) subdirModTimes() (map[string]time.Time, error) {
	entries, err := os.ReadDir(idx.root)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if info, err := os.Stat(filepath.Join(idx.root, entry.Name())); err == nil {
			out[entry.Name()] = info.ModTime()
		}
	}
	return out, nil
}
