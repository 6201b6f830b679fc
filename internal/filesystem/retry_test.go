package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"
)

type recordingObserver struct {
	mu       sync.Mutex
	ops      []string
	attempts int
	success  int
	failures int
	stale    int
}

func (o *recordingObserver) ObserveOperation(volume, operation string, _ float64, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, volume+":"+operation)
}

func (o *recordingObserver) ObserveRetryAttempt(_, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *recordingObserver) ObserveRetrySuccess(_, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.success++
}

func (o *recordingObserver) ObserveRetryFailure(_, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures++
}

func (o *recordingObserver) ObserveRetryDuration(_, _ string, _ float64) {}

func (o *recordingObserver) ObserveStaleError(_, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stale++
}

func withObserver(t *testing.T) *recordingObserver {
	t.Helper()
	obs := &recordingObserver{}
	SetObserver(obs)
	origSleep := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() {
		SetObserver(nil)
		sleep = origSleep
	})
	return obs
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", config.MaxRetries)
	}
	if config.InitialBackoff != 50*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 50ms", config.InitialBackoff)
	}
	if config.MaxBackoff != 500*time.Millisecond {
		t.Errorf("MaxBackoff = %v, want 500ms", config.MaxBackoff)
	}
	if config.VolumeResolver != nil {
		t.Error("VolumeResolver should be nil by default")
	}
}

func TestIsNFSStaleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "ESTALE error", err: syscall.ESTALE, want: true},
		{name: "wrapped ESTALE", err: &os.PathError{Op: "open", Path: "/x", Err: syscall.ESTALE}, want: true},
		{name: "ENOENT error", err: syscall.ENOENT, want: false},
		{name: "generic error", err: os.ErrNotExist, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNFSStaleError(tt.err); got != tt.want {
				t.Errorf("isNFSStaleError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVolumeResolver(t *testing.T) {
	vr := NewVolumeResolver(map[string]string{
		"photos": "/data/photos",
		"raw":    "/data/photos/raw",
		"cache":  "/home/me/.cache",
	})

	tests := []struct {
		path string
		want string
	}{
		{path: "/data/photos/a.jpg", want: "photos"},
		{path: "/data/photos/raw/b.cr2", want: "raw"},
		{path: "/data/photos", want: "photos"},
		{path: "/home/me/.cache/thumbnails/large/x.png", want: "cache"},
		{path: "/data/photosets/c.jpg", want: "unknown"},
		{path: "/elsewhere", want: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := vr.Resolve(tt.path); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}

	var nilResolver *VolumeResolver
	if got := nilResolver.Resolve("/data/photos/a.jpg"); got != "unknown" {
		t.Errorf("nil resolver Resolve() = %q, want unknown", got)
	}
}

func TestStatWithRetry(t *testing.T) {
	obs := withObserver(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	info, err := StatWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() error: %v", err)
	}
	if info.Size() != 4 {
		t.Errorf("Size() = %d, want 4", info.Size())
	}

	if _, err := StatWithRetry(filepath.Join(dir, "missing.jpg"), DefaultRetryConfig()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("StatWithRetry(missing) error = %v, want ErrNotExist", err)
	}
	if obs.attempts != 0 {
		t.Errorf("retry attempts = %d, want 0 for non-stale errors", obs.attempts)
	}
	if len(obs.ops) != 2 {
		t.Errorf("observed %d operations, want 2", len(obs.ops))
	}
}

func TestWithRetryStaleThenSuccess(t *testing.T) {
	obs := withObserver(t)

	calls := 0
	v, err := withRetry("open", "/data/a.jpg", DefaultRetryConfig(), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, syscall.ESTALE
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("withRetry() error: %v", err)
	}
	if v != 42 {
		t.Errorf("withRetry() = %d, want 42", v)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if obs.stale != 2 || obs.attempts != 2 || obs.success != 1 {
		t.Errorf("observer stale=%d attempts=%d success=%d, want 2/2/1", obs.stale, obs.attempts, obs.success)
	}
}

func TestWithRetryExhausted(t *testing.T) {
	obs := withObserver(t)

	var slept []time.Duration
	sleep = func(d time.Duration) { slept = append(slept, d) }

	config := RetryConfig{MaxRetries: 4, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond}
	calls := 0
	_, err := withRetry("stat", "/data/a.jpg", config, func() (struct{}, error) {
		calls++
		return struct{}{}, syscall.ESTALE
	})
	if !errors.Is(err, syscall.ESTALE) {
		t.Fatalf("withRetry() error = %v, want ESTALE", err)
	}
	if calls != 5 {
		t.Errorf("calls = %d, want 5", calls)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	if len(slept) != len(want) {
		t.Fatalf("slept %v, want %v", slept, want)
	}
	for i := range want {
		if slept[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, slept[i], want[i])
		}
	}
	if obs.failures != 1 {
		t.Errorf("failures = %d, want 1", obs.failures)
	}
}

func TestOpenAndReadFileWithRetry(t *testing.T) {
	withObserver(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "b.png")
	if err := os.WriteFile(path, []byte("pixels"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := OpenWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("OpenWithRetry() error: %v", err)
	}
	f.Close()

	data, err := ReadFileWithRetry(path, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadFileWithRetry() error: %v", err)
	}
	if string(data) != "pixels" {
		t.Errorf("ReadFileWithRetry() = %q, want pixels", data)
	}
}
