package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"thumbcache/internal/logging"
	"thumbcache/internal/thumbnail"
)

// ImageEntry is one row of a directory listing.
type ImageEntry struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	ModTime      time.Time `json:"modTime"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mimeType,omitempty"`
	TakenAt      time.Time `json:"takenAt,omitempty"`
	HasThumbnail bool      `json:"hasThumbnail"`
	ThumbnailURL string    `json:"thumbnailUrl"`
}

// ListImages lists the images in ?path= (relative to the media directory).
// Rows come from the image index; live=true scans the directory instead.
func (h *Handlers) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir, err := h.resolvePath(q.Get("path"))
	if err != nil {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	live := h.index == nil
	if v := q.Get("live"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "live must be a boolean", http.StatusBadRequest)
			return
		}
		live = live || b
	}

	var entries []ImageEntry
	if live {
		entries, err = h.scanDirectory(dir)
	} else {
		entries, err = h.indexedDirectory(r, dir)
	}
	if err != nil {
		logging.Error("Failed to list %s: %v", dir, err)
		http.Error(w, "Failed to list directory", http.StatusInternalServerError)
		return
	}

	for i := range entries {
		entries[i].HasThumbnail = h.hasLargeThumbnail(filepath.Join(dir, entries[i].Name))
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, entries)
}

func (h *Handlers) indexedDirectory(r *http.Request, dir string) ([]ImageEntry, error) {
	rows, err := h.index.ListImages(r.Context(), dir)
	if err != nil {
		return nil, err
	}
	entries := make([]ImageEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, ImageEntry{
			Name:         row.Name,
			Path:         h.relative(row.Path),
			ModTime:      row.ModTime,
			Size:         row.Size,
			MimeType:     row.MimeType,
			TakenAt:      row.TakenAt,
			ThumbnailURL: h.thumbnailURL(row.Path),
		})
	}
	return entries, nil
}

func (h *Handlers) scanDirectory(dir string) ([]ImageEntry, error) {
	infos, err := h.thumbs.ListImages(dir, false)
	if err != nil {
		return nil, err
	}
	entries := make([]ImageEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, ImageEntry{
			Name:         info.Name,
			Path:         h.relative(info.Path),
			ModTime:      info.ModTime,
			Size:         info.Size,
			ThumbnailURL: h.thumbnailURL(info.Path),
		})
	}
	return entries, nil
}

func (h *Handlers) hasLargeThumbnail(path string) bool {
	_, ok := h.thumbs.Store().Locate(thumbnail.KeyFor(path), thumbnail.TierLarge)
	return ok
}

// relative returns path relative to the media directory with forward
// slashes, as used in URLs.
func (h *Handlers) relative(path string) string {
	rel, err := filepath.Rel(h.mediaDir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (h *Handlers) thumbnailURL(path string) string {
	return "/api/thumbnail/" + h.relative(path)
}
