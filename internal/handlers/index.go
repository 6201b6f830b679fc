package handlers

import (
	"net/http"
)

// GetIndexStatus reports the state of the background indexer.
func (h *Handlers) GetIndexStatus(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeJSONError(w, "Indexing is disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, h.indexer.Status())
}

// TriggerIndex starts a re-index of the media directory. It answers 202
// when a run was started and 409 when one is already in progress.
func (h *Handlers) TriggerIndex(w http.ResponseWriter, r *http.Request) {
	if h.indexer == nil {
		writeJSONError(w, "Indexing is disabled", http.StatusNotFound)
		return
	}
	if !h.indexer.TriggerIndex(h.baseCtx) {
		writeJSONError(w, "Index already in progress", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]string{"status": "started"})
}
