package fetcher

import (
	"context"
	"errors"
	"os"
	"os/exec"
)

// FastFetcher downloads a URL straight to a destination path. The production
// implementation shells out to pget; tests substitute their own.
type FastFetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// pgetFetcher invokes the pget binary with forced overwrite. The caller
// bounds the run with a context deadline; exceeding it surfaces as a
// download timeout, any other non-zero exit as a download failure.
type pgetFetcher struct {
	bin string
}

// NewPgetFetcher returns a FastFetcher backed by the pget binary at bin
// ("pget" resolves via PATH).
func NewPgetFetcher(bin string) FastFetcher {
	if bin == "" {
		bin = "pget"
	}
	return pgetFetcher{bin: bin}
}

func (p pgetFetcher) Fetch(ctx context.Context, url, dest string) error {
	cmd := exec.CommandContext(ctx, p.bin, "-f", url, dest)
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrDownloadTimeout(url)
	}
	return ErrDownloadFailed(url, err)
}
