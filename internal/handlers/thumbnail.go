package handlers

import (
	"net/http"
	"os"
	"strconv"

	"thumbcache/internal/logging"
	"thumbcache/internal/mediatypes"
	"thumbcache/internal/thumbnail"
)

// GetThumbnail serves the cached PNG for the source at {path}, generating
// it first unless cacheOnly=true. size selects the tier (large by default).
func (h *Handlers) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	full, ok := h.sourceFile(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	tier, ok := thumbnail.ParseTier(q.Get("size"))
	if !ok || tier == thumbnail.TierFail {
		http.Error(w, "size must be large or normal", http.StatusBadRequest)
		return
	}

	cacheOnly := false
	if v := q.Get("cacheOnly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "cacheOnly must be a boolean", http.StatusBadRequest)
			return
		}
		cacheOnly = b
	}

	p, ok := h.thumbs.ThumbnailPath(full, tier, cacheOnly)
	if !ok {
		http.Error(w, "No thumbnail available", http.StatusNotFound)
		return
	}

	f, err := os.Open(p)
	if err != nil {
		// Invalidated between lookup and open.
		logging.Debug("Thumbnail %s vanished before serving: %v", p, err)
		http.Error(w, "No thumbnail available", http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		http.Error(w, "Failed to read thumbnail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "", info.ModTime(), f)
}

// InvalidateThumbnail drops every cached tier for {path}. The source does
// not need to exist any more.
func (h *Handlers) InvalidateThumbnail(w http.ResponseWriter, r *http.Request) {
	full, err := h.resolvePath(muxPath(r))
	if err != nil || muxPath(r) == "" {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	if err := h.thumbs.Invalidate(full); err != nil {
		writeJSONError(w, "Failed to invalidate thumbnail", http.StatusInternalServerError)
		return
	}
	writeJSONStatus(w, "invalidated")
}

// RotateResponse is returned by RotateImage.
type RotateResponse struct {
	Status  string `json:"status"`
	Degrees int    `json:"degrees"`
}

// RotateImage rewrites the source at {path} rotated by degrees (a multiple
// of 90, positive clockwise) and drops its cached thumbnails.
func (h *Handlers) RotateImage(w http.ResponseWriter, r *http.Request) {
	full, ok := h.sourceFile(w, r)
	if !ok {
		return
	}

	degrees, err := strconv.Atoi(r.URL.Query().Get("degrees"))
	if err != nil {
		writeJSONError(w, "degrees must be an integer", http.StatusBadRequest)
		return
	}
	normalized, err := thumbnail.NormalizeRotation(degrees)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if mediatypes.IsRaw(full) {
		writeJSONError(w, "camera RAW files cannot be rewritten", http.StatusUnprocessableEntity)
		return
	}

	if !h.thumbs.Rotate(full, degrees) {
		writeJSONError(w, "Failed to rotate image", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, RotateResponse{Status: "rotated", Degrees: normalized})
}

// MetadataResponse describes a source image and its cache entry.
type MetadataResponse struct {
	Path       string            `json:"path"`
	URI        string            `json:"uri"`
	Key        string            `json:"key"`
	MimeType   string            `json:"mimeType"`
	Exif       map[string]string `json:"exif,omitempty"`
	Cached     bool              `json:"cached"`
	Tier       string            `json:"tier,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// GetMetadata returns the EXIF fields of {path} along with the attributes
// stored in its cache entry, if any.
func (h *Handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	full, ok := h.sourceFile(w, r)
	if !ok {
		return
	}

	resp := MetadataResponse{
		Path:     muxPath(r),
		URI:      thumbnail.URIFor(full),
		Key:      thumbnail.KeyFor(full).String(),
		MimeType: mediatypes.GetMimeType(mediatypes.Ext(full)),
	}

	if fields, err := thumbnail.ReadMetadata(full, h.retry); err == nil {
		resp.Exif = fields
	} else {
		logging.Debug("No EXIF for %s: %v", full, err)
	}

	if attrs, tier, err := h.thumbs.Attributes(full); err == nil {
		resp.Cached = true
		resp.Tier = tier.String()
		resp.Attributes = attrs
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}
