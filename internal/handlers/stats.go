package handlers

import (
	"net/http"

	"thumbcache/internal/logging"
	"thumbcache/internal/metrics"
)

// StatsResponse is returned by GetStats.
type StatsResponse struct {
	Tiers   map[string]metrics.TierStats `json:"tiers"`
	Images  int                          `json:"images"`
	Latency []metrics.LatencyStats       `json:"latency,omitempty"`
}

// GetStats reports cache size per tier, the number of indexed images and
// generation latency quantiles.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.thumbs.CollectStats()
	if err != nil {
		logging.Error("Failed to collect cache stats: %v", err)
		http.Error(w, "Failed to collect stats", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		Tiers:   stats.Tiers,
		Latency: h.thumbs.Latency().All(),
	}

	if h.index != nil {
		if n, err := h.index.Count(r.Context()); err == nil {
			resp.Images = n
		} else {
			logging.Warn("Failed to count indexed images: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}
