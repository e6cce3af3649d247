package predictor

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOptimiseImagesWebpPassthrough(t *testing.T) {
	files := []string{"/tmp/outputs/a.webp", "/tmp/outputs/b.png"}
	out, err := optimiseImages("webp", 80, files)
	if err != nil {
		t.Fatalf("optimise: %v", err)
	}
	if len(out) != 2 || out[0] != files[0] || out[1] != files[1] {
		t.Fatalf("webp must pass files through, got %v", out)
	}
}

func TestOptimiseImagesSameFormatKeepsPath(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "a.png")
	if err := os.WriteFile(p, pngBytes(t), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := optimiseImages("png", 80, []string{p})
	if err != nil {
		t.Fatalf("optimise: %v", err)
	}
	if len(out) != 1 || out[0] != p {
		t.Fatalf("same-format file should keep its path, got %v", out)
	}
}

func TestOptimiseImagesJPEG(t *testing.T) {
	d := t.TempDir()
	p := filepath.Join(d, "a.png")
	if err := os.WriteFile(p, pngBytes(t), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := optimiseImages("jpg", 95, []string{p})
	if err != nil {
		t.Fatalf("optimise: %v", err)
	}
	want := filepath.Join(d, "a.jpg")
	if len(out) != 1 || out[0] != want {
		t.Fatalf("got %v, want %q", out, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("converted file missing: %v", err)
	}
}
