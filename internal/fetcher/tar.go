package fetcher

import (
	"archive/tar"
	"errors"
	"io"
	"os"
)

// extractTarEntry copies the named entry of the tar archive at archivePath
// to destPath. Returns an archive-entry-missing error if the entry is absent.
func extractTarEntry(archivePath, entry, destPath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return ErrArchiveEntryMissing(entry)
		}
		if err != nil {
			return err
		}
		if hdr.Name != entry {
			continue
		}
		out, err := os.Create(destPath)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	}
}
