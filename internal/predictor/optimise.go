package predictor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// optimiseImages re-encodes the produced files into the requested format.
// Files already in the requested format keep their path; webp and other
// formats this side cannot encode pass through unconverted.
func optimiseImages(format string, quality int, files []string) ([]string, error) {
	format = strings.ToLower(format)
	if format == "" || format == "webp" {
		return files, nil
	}
	if quality <= 0 || quality > 100 {
		quality = 80
	}

	out := make([]string, 0, len(files))
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f))
		target, opts := targetFor(format, quality)
		if ext == target {
			out = append(out, f)
			continue
		}
		if ext == ".webp" {
			// no webp decoder on this side; pass through
			out = append(out, f)
			continue
		}
		img, err := imaging.Open(f)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f, err)
		}
		converted := strings.TrimSuffix(f, filepath.Ext(f)) + target
		if err := imaging.Save(img, converted, opts...); err != nil {
			return nil, fmt.Errorf("save %s: %w", converted, err)
		}
		out = append(out, converted)
	}
	return out, nil
}

func targetFor(format string, quality int) (string, []imaging.EncodeOption) {
	switch format {
	case "jpg":
		return ".jpg", []imaging.EncodeOption{imaging.JPEGQuality(quality)}
	default:
		return ".png", nil
	}
}
