package indexer

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"thumbcache/internal/database"
	"thumbcache/internal/filesystem"
	"thumbcache/internal/thumbnail"
)

func newLister() Lister {
	retry := filesystem.DefaultRetryConfig()
	dec := thumbnail.NewDecoder(thumbnail.WithCodecs(thumbnail.NewRasterCodec(retry)))
	return thumbnail.New(thumbnail.NewStore(os.TempDir()), dec)
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "images.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func writeImage(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img := image.NewNRGBA(image.Rect(0, 0, 16, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.NRGBA{R: 10, A: 255})
	if filepath.Ext(path) == ".png" {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, nil)
	}
	if err != nil {
		t.Fatal(err)
	}
}

func TestIndexWritesAndPrunes(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "a.jpg"))
	writeImage(t, filepath.Join(root, "trip", "b.png"))
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	db := newTestDB(t)
	idx := New(db, newLister(), root)
	ctx := context.Background()

	res, err := idx.Index(ctx)
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if res.Images != 2 || res.Removed != 0 {
		t.Errorf("Index() = %+v, want 2 images, 0 removed", res)
	}

	rows, err := db.ListImages(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Name != "a.jpg" {
		t.Fatalf("ListImages(root) = %+v, want only a.jpg", rows)
	}
	if rows[0].MimeType != "image/jpeg" {
		t.Errorf("MimeType = %q, want image/jpeg", rows[0].MimeType)
	}
	if rows[0].Size == 0 {
		t.Error("Size = 0, want file size")
	}

	sub, err := db.ListImages(ctx, filepath.Join(root, "trip"))
	if err != nil {
		t.Fatal(err)
	}
	if len(sub) != 1 || sub[0].MimeType != "image/png" {
		t.Errorf("ListImages(trip) = %+v, want b.png", sub)
	}

	if err := os.Remove(filepath.Join(root, "a.jpg")); err != nil {
		t.Fatal(err)
	}
	res, err = idx.Index(ctx)
	if err != nil {
		t.Fatalf("second Index() error = %v", err)
	}
	if res.Images != 1 || res.Removed != 1 {
		t.Errorf("second Index() = %+v, want 1 image, 1 removed", res)
	}
	if _, err := db.GetImage(ctx, filepath.Join(root, "a.jpg")); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("GetImage(removed) error = %v, want ErrNotFound", err)
	}

	st := idx.Status()
	if st.LastIndexed.IsZero() || st.LastResult == nil || st.LastResult.Images != 1 {
		t.Errorf("Status() = %+v", st)
	}
}

type fakeStore struct {
	upsertErr error
	block     chan struct{}
	entered   chan struct{}
	deletes   int
}

func (f *fakeStore) UpsertImages(_ context.Context, _ []database.Image) (time.Time, error) {
	if f.entered != nil {
		close(f.entered)
		f.entered = nil
	}
	if f.block != nil {
		<-f.block
	}
	return time.Now(), f.upsertErr
}

func (f *fakeStore) DeleteStale(_ context.Context, _ string, _ time.Time) (int64, error) {
	f.deletes++
	return 0, nil
}

func TestIndexFailedWriteDoesNotPrune(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "a.jpg"))

	store := &fakeStore{upsertErr: errors.New("disk full")}
	idx := New(store, newLister(), root)

	if _, err := idx.Index(context.Background()); err == nil {
		t.Fatal("Index() error = nil, want write failure")
	}
	if store.deletes != 0 {
		t.Errorf("DeleteStale called %d times after failed write", store.deletes)
	}
	if st := idx.Status(); st.LastError == "" || st.LastResult != nil {
		t.Errorf("Status() = %+v, want error and no result", st)
	}
}

func TestIndexMissingRoot(t *testing.T) {
	idx := New(&fakeStore{}, newLister(), filepath.Join(t.TempDir(), "missing"))
	if _, err := idx.Index(context.Background()); err == nil {
		t.Error("Index() error = nil for missing root")
	}
}

func TestIndexInProgress(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "a.jpg"))

	store := &fakeStore{block: make(chan struct{}), entered: make(chan struct{})}
	entered := store.entered
	idx := New(store, newLister(), root)

	done := make(chan error, 1)
	go func() {
		_, err := idx.Index(context.Background())
		done <- err
	}()
	<-entered

	if !idx.IsIndexing() {
		t.Error("IsIndexing() = false during a run")
	}
	if _, err := idx.Index(context.Background()); !errors.Is(err, ErrInProgress) {
		t.Errorf("concurrent Index() error = %v, want ErrInProgress", err)
	}
	if idx.TriggerIndex(context.Background()) {
		t.Error("TriggerIndex() = true during a run")
	}

	close(store.block)
	if err := <-done; err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if idx.IsIndexing() {
		t.Error("IsIndexing() = true after the run")
	}
}

func TestDetectChanges(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "trip", "a.jpg"))

	idx := New(newTestDB(t), newLister(), root)
	if _, err := idx.Index(context.Background()); err != nil {
		t.Fatal(err)
	}

	changed, err := idx.detectChanges()
	if err != nil {
		t.Fatal(err)
	}
	if changed {
		t.Error("detectChanges() = true right after an index")
	}

	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(filepath.Join(root, "trip"), later, later); err != nil {
		t.Fatal(err)
	}
	if changed, _ := idx.detectChanges(); !changed {
		t.Error("detectChanges() = false after a subdirectory changed")
	}
}

func TestStartStop(t *testing.T) {
	root := t.TempDir()
	writeImage(t, filepath.Join(root, "a.jpg"))

	idx := New(newTestDB(t), newLister(), root)
	idx.SetIntervals(0, 0)
	idx.Start(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for idx.Status().LastIndexed.IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("initial index did not complete")
		}
		time.Sleep(10 * time.Millisecond)
	}
	idx.Stop()
	idx.Stop()
}
