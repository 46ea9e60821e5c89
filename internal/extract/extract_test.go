package extract

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTestPNG writes a small PNG and returns its path.
func writeTestPNG(t *testing.T, dir string, width, height int) string {
	t.Helper()
	path := filepath.Join(dir, "test.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test image: %v", err)
	}
	defer func() { _ = f.Close() }()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return path
}

func TestImageExtractorDimensions(t *testing.T) {
	path := writeTestPNG(t, t.TempDir(), 320, 240)

	blob, err := NewImageExtractor().Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	var meta ImageMetadata
	if err := json.Unmarshal(blob, &meta); err != nil {
		t.Fatalf("blob is not valid JSON: %v", err)
	}
	if meta.Width != 320 || meta.Height != 240 {
		t.Errorf("dimensions = %dx%d, want 320x240", meta.Width, meta.Height)
	}
	if meta.Format != "png" {
		t.Errorf("format = %q, want png", meta.Format)
	}
	// A synthetic PNG carries no EXIF.
	if meta.CaptureTime != nil || meta.CameraMake != "" {
		t.Errorf("unexpected EXIF fields in %+v", meta)
	}
}

func TestImageExtractorRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	if err := os.WriteFile(path, []byte("not an image"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := NewImageExtractor().Extract(context.Background(), path); err == nil {
		t.Fatal("Extract of a non-image should fail")
	}
}

func TestImageExtractorMissingFile(t *testing.T) {
	_, err := NewImageExtractor().Extract(context.Background(), filepath.Join(t.TempDir(), "absent.png"))
	if err == nil {
		t.Fatal("Extract of a missing file should fail")
	}
}

func TestCommandExtractorCapturesStdout(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	path := filepath.Join(t.TempDir(), "payload.txt")
	if err := os.WriteFile(path, []byte("tool output"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	e, err := NewCommandExtractor("cat", 5*time.Second)
	if err != nil {
		t.Fatalf("NewCommandExtractor failed: %v", err)
	}
	blob, err := e.Extract(context.Background(), path)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if string(blob) != "tool output" {
		t.Errorf("blob = %q, want tool stdout", blob)
	}
}

func TestCommandExtractorTimeout(t *testing.T) {
	if _, err := exec.LookPath("tail"); err != nil {
		t.Skip("tail not available")
	}

	// tail -f follows the file forever, so only the timeout ends it.
	path := filepath.Join(t.TempDir(), "endless.log")
	if err := os.WriteFile(path, []byte("line\n"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	e, err := NewCommandExtractor("tail -f", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCommandExtractor failed: %v", err)
	}
	start := time.Now()
	_, err = e.Extract(context.Background(), path)
	if err == nil {
		t.Fatal("Extract should fail on timeout")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout took far longer than configured")
	}
}

func TestCommandExtractorUnknownTool(t *testing.T) {
	if _, err := NewCommandExtractor("no-such-extract-tool-xyz", time.Second); err == nil {
		t.Fatal("NewCommandExtractor should fail for a missing tool")
	}
	if _, err := NewCommandExtractor("", time.Second); err == nil {
		t.Fatal("NewCommandExtractor should fail for an empty command")
	}
}

func TestRouterDispatch(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, 8, 8)

	r := NewRouter(NewImageExtractor(), nil)

	if _, err := r.Extract(context.Background(), path); err != nil {
		t.Errorf("image dispatch failed: %v", err)
	}

	// No video extractor registered.
	if _, err := r.Extract(context.Background(), "clip.mp4"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("video without extractor = %v, want ErrUnsupported", err)
	}
	// Sidecars and unknown types are never extractable.
	if _, err := r.Extract(context.Background(), "pic.xmp"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("sidecar = %v, want ErrUnsupported", err)
	}
	if _, err := r.Extract(context.Background(), "notes.txt"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("other = %v, want ErrUnsupported", err)
	}
}
