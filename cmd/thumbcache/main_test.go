package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setupEnv points every configured location into temp directories and
// returns the media directory.
func setupEnv(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	media := filepath.Join(base, "media")
	if err := os.MkdirAll(media, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("THUMBCACHE_CONFIG", "")
	t.Setenv("XDG_CACHE_HOME", filepath.Join(base, "cache"))
	t.Setenv("MEDIA_DIR", media)
	t.Setenv("DATABASE_PATH", filepath.Join(base, "db", "images.db"))
	t.Setenv("THUMBCACHE_LOCK_DIR", filepath.Join(base, "locks"))
	t.Setenv("CROSS_PROCESS_LOCKING", "true")
	t.Setenv("MAX_SOURCE_SIZE", "")
	t.Setenv("THUMBNAIL_WORKERS", "2")
	return media
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func imageSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	return cfg.Width, cfg.Height
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	setupEnv(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantErr  string
	}{
		{name: "no command", args: nil, wantCode: exitUsage, wantErr: "Usage:"},
		{name: "unknown command", args: []string{"frobnicate"}, wantCode: exitUsage, wantErr: "Unknown command: frobnicate"},
		{name: "bad global flag", args: []string{"-nope"}, wantCode: exitUsage},
		{name: "generate without paths", args: []string{"generate"}, wantCode: exitUsage, wantErr: "Usage: thumbcache generate"},
		{name: "bad size", args: []string{"generate", "-size", "fail", "."}, wantCode: exitUsage, wantErr: "Invalid size"},
		{name: "bad rotation", args: []string{"rotate", "-degrees", "45", "x.png"}, wantCode: exitUsage, wantErr: "Invalid rotation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := runCLI(t, tt.args...)
			if code != tt.wantCode {
				t.Errorf("exit code = %d, want %d", code, tt.wantCode)
			}
			if tt.wantErr != "" && !strings.Contains(stderr, tt.wantErr) {
				t.Errorf("stderr = %q, want it to contain %q", stderr, tt.wantErr)
			}
		})
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := map[string]string{
		"generate":      "generate",
		"re-index_2":    "re-index_2",
		"bad;rm -rf /":  "bad_rm_-rf__",
		"\x1b[31mred":   "__31mred",
		"unicode-é":     "unicode-_",
		"":              "",
		"with space\nx": "with_space_x",
	}
	for in, want := range tests {
		if got := sanitizeCommand(in); got != want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGenerateLocateInvalidate(t *testing.T) {
	media := setupEnv(t)
	photo := filepath.Join(media, "trip", "beach.png")
	writePNG(t, photo, 600, 300)

	code, out, stderr := runCLI(t, "generate", "-r", media)
	if code != exitOK {
		t.Fatalf("generate exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(out, "created  "+photo) {
		t.Errorf("generate output = %q, want created line", out)
	}
	if !strings.Contains(out, "1 images: 0 cached, 1 generated, 0 failed") {
		t.Errorf("generate summary missing: %q", out)
	}

	code, out, _ = runCLI(t, "generate", "-cache-only", "-size", "normal", photo)
	if code != exitOK || !strings.Contains(out, "cached   "+photo) {
		t.Fatalf("cache-only exit = %d, output %q", code, out)
	}
	thumb := strings.TrimSpace(out[strings.Index(out, "-> ")+3 : strings.Index(out, "\n")])
	if w, h := imageSize(t, thumb); w != 128 || h != 64 {
		t.Errorf("normal thumbnail = %dx%d, want 128x64", w, h)
	}

	code, out, _ = runCLI(t, "locate", photo)
	if code != exitOK {
		t.Fatalf("locate exit = %d", code)
	}
	for _, want := range []string{"uri:    file://", "large:", "normal:", "Thumb::URI = file://", "Software = thumbcache"} {
		if !strings.Contains(out, want) {
			t.Errorf("locate output missing %q:\n%s", want, out)
		}
	}

	if code, _, _ := runCLI(t, "invalidate", photo); code != exitOK {
		t.Fatalf("invalidate exit = %d", code)
	}
	code, out, _ = runCLI(t, "locate", photo)
	if code != exitFailure || !strings.Contains(out, "not cached") {
		t.Errorf("locate after invalidate exit = %d, output %q", code, out)
	}
}

func TestGenerateUnreadableFile(t *testing.T) {
	media := setupEnv(t)
	broken := filepath.Join(media, "broken.png")
	if err := os.WriteFile(broken, []byte("definitely not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, _ := runCLI(t, "generate", broken)
	if code != exitFailure {
		t.Errorf("exit = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(out, "failed   "+broken) {
		t.Errorf("output = %q, want failed line", out)
	}

	// The fail entry is settled and reported straight from the cache.
	code, out, _ = runCLI(t, "generate", "-cache-only", broken)
	if code != exitOK || !strings.Contains(out, "failed   "+broken) {
		t.Errorf("cache-only exit = %d, output %q", code, out)
	}
}

func TestRotateCommand(t *testing.T) {
	media := setupEnv(t)
	photo := filepath.Join(media, "tall.png")
	writePNG(t, photo, 40, 20)

	code, out, stderr := runCLI(t, "rotate", "-degrees", "-270", photo)
	if code != exitOK {
		t.Fatalf("rotate exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(out, "by 90 degrees") {
		t.Errorf("output = %q, want normalised angle", out)
	}
	if w, h := imageSize(t, photo); w != 20 || h != 40 {
		t.Errorf("rotated image = %dx%d, want 20x40", w, h)
	}

	missing := filepath.Join(media, "missing.png")
	if code, _, _ := runCLI(t, "rotate", missing); code != exitFailure {
		t.Errorf("rotate missing exit = %d, want %d", code, exitFailure)
	}
}

func TestIndexAndStats(t *testing.T) {
	media := setupEnv(t)
	writePNG(t, filepath.Join(media, "a.png"), 30, 30)
	writePNG(t, filepath.Join(media, "sub", "b.png"), 30, 30)

	code, out, _ := runCLI(t, "stats")
	if code != exitOK || !strings.Contains(out, "Index: not created") {
		t.Errorf("stats before index exit = %d, output %q", code, out)
	}

	code, out, stderr := runCLI(t, "index")
	if code != exitOK {
		t.Fatalf("index exit = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(out, "indexed 2 images") {
		t.Errorf("index output = %q", out)
	}

	if code, _, _ := runCLI(t, "generate", filepath.Join(media, "a.png")); code != exitOK {
		t.Fatalf("generate exit = %d", code)
	}

	code, out, _ = runCLI(t, "stats")
	if code != exitOK {
		t.Fatalf("stats exit = %d", code)
	}
	for _, want := range []string{"large:       1 files", "normal:      1 files", "fail:        0 files", "Index: 2 images"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}
}

func TestVersion(t *testing.T) {
	setupEnv(t)
	code, out, _ := runCLI(t, "version")
	if code != exitOK || !strings.HasPrefix(out, "thumbcache dev") {
		t.Errorf("version exit = %d, output %q", code, out)
	}
}
