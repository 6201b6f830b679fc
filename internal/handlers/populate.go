package handlers

import (
	"net/http"
	"os"
	"strconv"
	"time"

	"thumbcache/internal/logging"
	"thumbcache/internal/thumbnail"
)

// PopulateResponse summarises what a populate request found and queued.
type PopulateResponse struct {
	Images int `json:"images"`
	Cached int `json:"cached"`
	Failed int `json:"failed"`
	Queued int `json:"queued"`
}

// Populate warms the cache for every readable image in ?path= (optionally
// recursive). Entries already settled are counted and the rest are
// generated in the background; the response does not wait for them.
func (h *Handlers) Populate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir, err := h.resolvePath(q.Get("path"))
	if err != nil {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	recursive := false
	if v := q.Get("recursive"); v != "" {
		if recursive, err = strconv.ParseBool(v); err != nil {
			http.Error(w, "recursive must be a boolean", http.StatusBadRequest)
			return
		}
	}

	infos, err := h.thumbs.ListImages(dir, recursive)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Directory not found", http.StatusNotFound)
			return
		}
		logging.Error("Populate: failed to list %s: %v", dir, err)
		http.Error(w, "Failed to list directory", http.StatusInternalServerError)
		return
	}

	paths := make([]string, len(infos))
	for i, info := range infos {
		paths[i] = info.Path
	}

	batch := h.thumbs.NewBatch(
		thumbnail.WithWorkers(h.workers),
		thumbnail.WithThrottle(h.throttle),
		thumbnail.WithoutImages(),
	)
	hits, pending := batch.Populate(h.baseCtx, paths)

	resp := PopulateResponse{Images: len(paths), Queued: len(paths) - len(hits)}
	for _, hit := range hits {
		if hit.OK {
			resp.Cached++
		} else {
			resp.Failed++
		}
	}

	h.batches.Add(1)
	go func() {
		defer h.batches.Done()
		start := time.Now()
		generated, failed := 0, 0
		for res := range pending {
			if res.OK {
				generated++
			} else {
				failed++
			}
		}
		if generated+failed > 0 {
			logging.Info("Populated %s: %d generated, %d failed in %v",
				dir, generated, failed, time.Since(start).Round(time.Millisecond))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, resp)
}
