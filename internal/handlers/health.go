package handlers

import (
	"net/http"
	"runtime"
	"time"

	"thumbcache/internal/indexer"
	"thumbcache/internal/startup"
	"thumbcache/internal/thumbnail"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

// HealthResponse contains the health check response
type HealthResponse struct {
	Status        string          `json:"status"`
	Version       string          `json:"version"`
	Uptime        string          `json:"uptime"`
	Database      string          `json:"database"`
	CacheRoot     string          `json:"cacheRoot"`
	VipsAvailable bool            `json:"vipsAvailable"`
	Codecs        []string        `json:"codecs,omitempty"`
	Index         *indexer.Status `json:"index,omitempty"`

	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// codecLister is satisfied by *thumbnail.Decoder.
type codecLister interface {
	Codecs() []string
}

// HealthCheck returns the health status of the service. A failing database
// degrades the status but thumbnails are still served.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:        statusHealthy,
		Version:       startup.Version,
		Uptime:        time.Since(h.startedAt).Round(time.Second).String(),
		Database:      "ok",
		CacheRoot:     h.thumbs.Store().Root(),
		VipsAvailable: thumbnail.IsVipsAvailable(),
		GoVersion:     runtime.Version(),
		NumCPU:        runtime.NumCPU(),
		NumGoroutine:  runtime.NumGoroutine(),
	}
	if cl, ok := h.thumbs.Decoder().(codecLister); ok {
		response.Codecs = cl.Codecs()
	}
	if h.indexer != nil {
		st := h.indexer.Status()
		response.Index = &st
	}

	switch {
	case h.index == nil:
		response.Database = "disabled"
	case h.index.Ping(r.Context()) != nil:
		response.Database = "unavailable"
		response.Status = statusDegraded
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	writeJSON(w, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{"status": "alive"})
	}
}

// ReadinessCheck returns 200 once the image index answers.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.index != nil && h.index.Ping(r.Context()) != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		writeJSON(w, map[string]string{"status": "not_ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	writeJSON(w, map[string]string{"status": "ready"})
}
