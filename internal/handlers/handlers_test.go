package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"thumbcache/internal/database"
	"thumbcache/internal/filesystem"
	"thumbcache/internal/indexer"
	"thumbcache/internal/thumbnail"

	"github.com/gorilla/mux"
)

type fakeIndex struct {
	rows    map[string][]database.Image
	pingErr error
}

func (f *fakeIndex) ListImages(_ context.Context, parent string) ([]database.Image, error) {
	return f.rows[parent], nil
}

func (f *fakeIndex) Count(_ context.Context) (int, error) {
	n := 0
	for _, rows := range f.rows {
		n += len(rows)
	}
	return n, nil
}

func (f *fakeIndex) Ping(_ context.Context) error {
	return f.pingErr
}

type testEnv struct {
	handlers *Handlers
	router   *mux.Router
	mediaDir string
	index    *fakeIndex
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mediaDir := t.TempDir()
	retry := filesystem.DefaultRetryConfig()
	dec := thumbnail.NewDecoder(thumbnail.WithCodecs(thumbnail.NewRasterCodec(retry)))
	svc := thumbnail.New(thumbnail.NewStore(t.TempDir()), dec)
	idx := &fakeIndex{rows: map[string][]database.Image{}}
	h := New(svc, idx, mediaDir)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/thumbnail/{path:.*}", h.GetThumbnail).Methods("GET")
	api.HandleFunc("/thumbnail/{path:.*}", h.InvalidateThumbnail).Methods("DELETE")
	api.HandleFunc("/rotate/{path:.*}", h.RotateImage).Methods("POST")
	api.HandleFunc("/metadata/{path:.*}", h.GetMetadata).Methods("GET")
	api.HandleFunc("/images", h.ListImages).Methods("GET")
	api.HandleFunc("/populate", h.Populate).Methods("POST")
	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/index", h.GetIndexStatus).Methods("GET")
	api.HandleFunc("/index", h.TriggerIndex).Methods("POST")

	return &testEnv{handlers: h, router: r, mediaDir: mediaDir, index: idx}
}

func (e *testEnv) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x % 256), G: uint8(y % 256), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func decodedSize(t *testing.T, body []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode response image: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestGetThumbnail(t *testing.T) {
	env := newTestEnv(t)
	writeJPEG(t, filepath.Join(env.mediaDir, "trip", "wide.jpg"), 1000, 500)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantW      int
		wantH      int
	}{
		{"cache only before generation", "/api/thumbnail/trip/wide.jpg?cacheOnly=true", http.StatusNotFound, 0, 0},
		{"large", "/api/thumbnail/trip/wide.jpg", http.StatusOK, 256, 128},
		{"normal", "/api/thumbnail/trip/wide.jpg?size=normal", http.StatusOK, 128, 64},
		{"cache only after generation", "/api/thumbnail/trip/wide.jpg?cacheOnly=true", http.StatusOK, 256, 128},
		{"bad size", "/api/thumbnail/trip/wide.jpg?size=huge", http.StatusBadRequest, 0, 0},
		{"fail tier is not servable", "/api/thumbnail/trip/wide.jpg?size=fail", http.StatusBadRequest, 0, 0},
		{"bad cacheOnly", "/api/thumbnail/trip/wide.jpg?cacheOnly=perhaps", http.StatusBadRequest, 0, 0},
		{"missing source", "/api/thumbnail/trip/none.jpg", http.StatusNotFound, 0, 0},
		{"directory", "/api/thumbnail/trip", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
				t.Errorf("Content-Type = %q, want image/png", ct)
			}
			w, h := decodedSize(t, rec.Body.Bytes())
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("thumbnail size = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestGetThumbnailUnreadableSource(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.mediaDir, "empty.jpg")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if rec := env.do(t, http.MethodGet, "/api/thumbnail/empty.jpg"); rec.Code != http.StatusNotFound {
			t.Fatalf("attempt %d: status = %d, want 404", i, rec.Code)
		}
	}

	key := thumbnail.KeyFor(path)
	if _, ok := env.handlers.thumbs.Store().Locate(key, thumbnail.TierFail); !ok {
		t.Error("expected a fail sentinel for the zero-byte source")
	}
}

func TestInvalidateThumbnail(t *testing.T) {
	env := newTestEnv(t)
	writeJPEG(t, filepath.Join(env.mediaDir, "a.jpg"), 64, 64)

	if rec := env.do(t, http.MethodGet, "/api/thumbnail/a.jpg"); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodDelete, "/api/thumbnail/a.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "invalidated" {
		t.Errorf("status field = %q, want invalidated", body["status"])
	}

	if rec := env.do(t, http.MethodGet, "/api/thumbnail/a.jpg?cacheOnly=true"); rec.Code != http.StatusNotFound {
		t.Errorf("cache-only lookup after invalidate = %d, want 404", rec.Code)
	}
}

func TestRotateImage(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.mediaDir, "r.jpg")
	writeJPEG(t, path, 40, 20)
	if err := os.WriteFile(filepath.Join(env.mediaDir, "shot.cr2"), []byte("raw"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"not a number", "/api/rotate/r.jpg?degrees=abc", http.StatusBadRequest},
		{"not a right angle", "/api/rotate/r.jpg?degrees=45", http.StatusBadRequest},
		{"raw source", "/api/rotate/shot.cr2?degrees=90", http.StatusUnprocessableEntity},
		{"missing source", "/api/rotate/none.jpg?degrees=90", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, tt.target); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	rec := env.do(t, http.MethodPost, "/api/rotate/r.jpg?degrees=-270")
	if rec.Code != http.StatusOK {
		t.Fatalf("rotate status = %d (body %q)", rec.Code, rec.Body.String())
	}
	var resp RotateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Degrees != 90 {
		t.Errorf("normalized degrees = %d, want 90", resp.Degrees)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if w, h := decodedSize(t, data); w != 20 || h != 40 {
		t.Errorf("rotated source = %dx%d, want 20x40", w, h)
	}
}

func TestListImages(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.mediaDir, "album")
	a := filepath.Join(dir, "a.jpg")
	b := filepath.Join(dir, "b.jpg")
	writeJPEG(t, a, 32, 32)
	writeJPEG(t, b, 32, 32)

	env.index.rows[dir] = []database.Image{
		{Name: "a.jpg", Path: a, ParentPath: dir, ModTime: time.Unix(100, 0), Size: 10, MimeType: "image/jpeg"},
		{Name: "b.jpg", Path: b, ParentPath: dir, ModTime: time.Unix(200, 0), Size: 20, MimeType: "image/jpeg"},
	}

	if rec := env.do(t, http.MethodGet, "/api/thumbnail/album/b.jpg"); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rec.Code)
	}

	for _, target := range []string{"/api/images?path=album", "/api/images?path=album&live=true"} {
		t.Run(target, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, target)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var entries []ImageEntry
			if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if len(entries) != 2 {
				t.Fatalf("got %d entries, want 2", len(entries))
			}
			if entries[0].Path != "album/a.jpg" || entries[0].HasThumbnail {
				t.Errorf("entries[0] = %+v", entries[0])
			}
			if !entries[1].HasThumbnail || entries[1].ThumbnailURL != "/api/thumbnail/album/b.jpg" {
				t.Errorf("entries[1] = %+v", entries[1])
			}
		})
	}

	if rec := env.do(t, http.MethodGet, "/api/images?path=album&live=sometimes"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad live flag status = %d, want 400", rec.Code)
	}
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	writeJPEG(t, filepath.Join(env.mediaDir, "s.jpg"), 300, 300)
	env.index.rows["x"] = []database.Image{{Name: "s.jpg"}}

	if rec := env.do(t, http.MethodGet, "/api/thumbnail/s.jpg"); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Images != 1 {
		t.Errorf("Images = %d, want 1", resp.Images)
	}
	for _, tier := range []string{"large", "normal"} {
		if resp.Tiers[tier].Files != 1 {
			t.Errorf("tier %s files = %d, want 1", tier, resp.Tiers[tier].Files)
		}
	}
}

func TestGetMetadata(t *testing.T) {
	env := newTestEnv(t)
	writeJPEG(t, filepath.Join(env.mediaDir, "m.jpg"), 50, 30)

	rec := env.do(t, http.MethodGet, "/api/metadata/m.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp MetadataResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.MimeType != "image/jpeg" || resp.Cached {
		t.Errorf("before generation = %+v", resp)
	}
	source := filepath.Join(env.mediaDir, "m.jpg")
	if resp.URI != thumbnail.URIFor(source) || resp.Key != thumbnail.KeyFor(source).String() {
		t.Errorf("uri/key = %q/%q, want %q/%q", resp.URI, resp.Key, thumbnail.URIFor(source), thumbnail.KeyFor(source))
	}

	env.do(t, http.MethodGet, "/api/thumbnail/m.jpg")
	rec = env.do(t, http.MethodGet, "/api/metadata/m.jpg")
	resp = MetadataResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if !resp.Cached || resp.Tier != "large" {
		t.Fatalf("after generation = %+v", resp)
	}
	if resp.Attributes[thumbnail.AttrImageWidth] != "50" {
		t.Errorf("%s = %q, want 50", thumbnail.AttrImageWidth, resp.Attributes[thumbnail.AttrImageWidth])
	}
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz")
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if health.Status != statusHealthy || health.Database != "ok" {
		t.Errorf("health = %+v", health)
	}
	if len(health.Codecs) != 1 || health.Codecs[0] != "raster" {
		t.Errorf("codecs = %v, want [raster]", health.Codecs)
	}
	if rec := env.do(t, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}

	env.index.pingErr = errors.New("database is locked")
	rec = env.do(t, http.MethodGet, "/healthz")
	health = HealthResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if health.Status != statusDegraded {
		t.Errorf("status = %q, want %q", health.Status, statusDegraded)
	}
	if rec := env.do(t, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rec.Code)
	}
}

func TestGetVersion(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
}

func TestResolvePath(t *testing.T) {
	h := &Handlers{mediaDir: filepath.FromSlash("/srv/photos")}

	tests := []struct {
		rel     string
		wantErr bool
	}{
		{"a.jpg", false},
		{"nested/dir/b.png", false},
		{"", false},
		{"../etc/passwd", true},
		{"nested/../../escape.jpg", true},
		{"..", true},
		{"..hidden/file.jpg", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			_, err := h.resolvePath(tt.rel)
			if (err != nil) != tt.wantErr {
				t.Errorf("resolvePath(%q) error = %v, wantErr %v", tt.rel, err, tt.wantErr)
			}
		})
	}
}

func TestThumbnailPNGIsValid(t *testing.T) {
	env := newTestEnv(t)
	writeJPEG(t, filepath.Join(env.mediaDir, "v.jpg"), 20, 10)
	rec := env.do(t, http.MethodGet, "/api/thumbnail/v.jpg")
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("response is not a PNG: %v", err)
	}
}

func TestPopulate(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.mediaDir, "batch")
	writeJPEG(t, filepath.Join(dir, "one.jpg"), 300, 200)
	writeJPEG(t, filepath.Join(dir, "two.jpg"), 200, 300)
	writeJPEG(t, filepath.Join(dir, "sub", "three.jpg"), 64, 64)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	if rec := env.do(t, http.MethodGet, "/api/thumbnail/batch/one.jpg"); rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/populate?path=batch&recursive=true")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d (body %q)", rec.Code, rec.Body.String())
	}
	var resp PopulateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	want := PopulateResponse{Images: 3, Cached: 1, Failed: 0, Queued: 2}
	if resp != want {
		t.Errorf("response = %+v, want %+v", resp, want)
	}

	env.handlers.Wait()

	for _, name := range []string{"batch/two.jpg", "batch/sub/three.jpg"} {
		if rec := env.do(t, http.MethodGet, "/api/thumbnail/"+name+"?cacheOnly=true"); rec.Code != http.StatusOK {
			t.Errorf("%s not cached after populate: status %d", name, rec.Code)
		}
	}

	if rec := env.do(t, http.MethodPost, "/api/populate?path=missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing directory status = %d, want 404", rec.Code)
	}
}

type fakeIndexer struct {
	status   indexer.Status
	busy     bool
	triggers int
}

func (f *fakeIndexer) Status() indexer.Status {
	return f.status
}

func (f *fakeIndexer) TriggerIndex(_ context.Context) bool {
	if f.busy {
		return false
	}
	f.triggers++
	return true
}

func TestIndexEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/index"); rec.Code != http.StatusNotFound {
		t.Errorf("GET without indexer = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/index"); rec.Code != http.StatusNotFound {
		t.Errorf("POST without indexer = %d, want 404", rec.Code)
	}

	fi := &fakeIndexer{status: indexer.Status{LastResult: &indexer.Result{Images: 7}}}
	env.handlers.indexer = fi

	rec := env.do(t, http.MethodGet, "/api/index")
	var st indexer.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if st.LastResult == nil || st.LastResult.Images != 7 {
		t.Errorf("status = %+v", st)
	}

	if rec := env.do(t, http.MethodPost, "/api/index"); rec.Code != http.StatusAccepted {
		t.Errorf("POST = %d, want 202", rec.Code)
	}
	if fi.triggers != 1 {
		t.Errorf("triggers = %d, want 1", fi.triggers)
	}

	fi.busy = true
	if rec := env.do(t, http.MethodPost, "/api/index"); rec.Code != http.StatusConflict {
		t.Errorf("POST while busy = %d, want 409", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/healthz")
	var health HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if health.Index == nil || health.Index.LastResult == nil {
		t.Errorf("health index = %+v, want indexer status", health.Index)
	}
}
