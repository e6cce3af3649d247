// Package fetcher downloads LoRA weight files from a fixed set of hosting
// providers into a shared loras directory. Filenames are derived
// deterministically from the source URL, and a file already present under
// the derived name is treated as a completed download.
package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lorad/internal/common/fsutil"
)

// replicateTarEntry is the fixed path of the weight file inside a
// replicate.delivery training archive.
const replicateTarEntry = "output/flux_train_replicate/lora.safetensors"

// DefaultTimeout bounds a single fast-fetch download.
const DefaultTimeout = 600 * time.Second

// Options configures a Fetcher.
type Options struct {
	// LorasDir is the destination directory for fetched weight files.
	LorasDir string
	// StagingDir holds in-flight downloads before the final move.
	StagingDir string
	// Timeout bounds each fast-fetch download. Zero means DefaultTimeout.
	Timeout time.Duration
	// Fast performs direct HTTP downloads (pget). Required.
	Fast FastFetcher
	// Hub downloads files from HuggingFace repositories. Required for
	// huggingface.co URLs.
	Hub HubClient
	// Logger for fetch progress. Defaults to a disabled logger.
	Logger zerolog.Logger
}

// Fetcher resolves LoRA URLs to local files. Safe for concurrent use;
// concurrent fetches of the same URL serialize on a per-filename lock so
// they do not race the destination file.
type Fetcher struct {
	lorasDir   string
	stagingDir string
	timeout    time.Duration
	fast       FastFetcher
	hub        HubClient
	log        zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Fetcher.
func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Fetcher{
		lorasDir:   opts.LorasDir,
		stagingDir: opts.StagingDir,
		timeout:    opts.Timeout,
		fast:       opts.Fast,
		hub:        opts.Hub,
		log:        opts.Logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

// Fetch downloads the artifact behind rawURL into the loras directory and
// returns its local filename (not the full path). If a file of the derived
// name already exists, no download is attempted.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	src := Classify(rawURL)
	filename, err := DeriveFilename(rawURL)
	if err != nil {
		observeFetch(src, outcomeError)
		return "", err
	}

	unlock := f.lockFilename(filename)
	defer unlock()

	destPath := filepath.Join(f.lorasDir, filename)
	if fsutil.PathExists(destPath) {
		f.log.Info().Str("filename", filename).Msg("file already exists, skipping download")
		observeFetch(src, outcomeCached)
		return filename, nil
	}

	start := time.Now()
	switch src {
	case SourceHuggingFace:
		err = f.fetchHuggingFace(ctx, rawURL, destPath)
	case SourceCivitai:
		err = f.fetchCivitai(ctx, rawURL, destPath)
	case SourceReplicate:
		err = f.fetchReplicate(ctx, rawURL, filename, destPath)
	}
	if err != nil {
		if IsDownloadTimeout(err) {
			observeFetch(src, outcomeTimeout)
		} else {
			observeFetch(src, outcomeError)
		}
		return "", err
	}

	elapsed := time.Since(start)
	fetchDuration.WithLabelValues(src.String()).Observe(elapsed.Seconds())
	observeFetch(src, outcomeOK)
	f.log.Info().
		Str("source", src.String()).
		Str("filename", filename).
		Dur("elapsed", elapsed).
		Msg("downloaded lora")
	return filename, nil
}

// lockFilename takes the per-filename mutex, creating it on first use.
func (f *Fetcher) lockFilename(filename string) func() {
	f.mu.Lock()
	l, ok := f.locks[filename]
	if !ok {
		l = &sync.Mutex{}
		f.locks[filename] = l
	}
	f.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (f *Fetcher) fetchHuggingFace(ctx context.Context, rawURL, destPath string) error {
	ref, err := parseHuggingFaceURL(rawURL)
	if err != nil {
		return err
	}
	f.log.Info().
		Str("url", rawURL).
		Str("repo_id", ref.RepoID).
		Str("revision", ref.Revision).
		Msg("downloading lora from huggingface")

	staged, err := f.hub.Download(ctx, ref.RepoID, ref.Revision, ref.RemoteFile())
	if err != nil {
		return ErrDownloadFailed(rawURL, err)
	}
	if err := fsutil.EnsureDir(f.lorasDir); err != nil {
		return err
	}
	return fsutil.MoveFile(staged, destPath)
}

func (f *Fetcher) fetchCivitai(ctx context.Context, rawURL, destPath string) error {
	f.log.Info().Str("url", rawURL).Msg("downloading lora from civitai")
	if err := fsutil.EnsureDir(f.lorasDir); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.fast.Fetch(ctx, rawURL, destPath)
}

func (f *Fetcher) fetchReplicate(ctx context.Context, rawURL, filename, destPath string) error {
	f.log.Info().Str("url", rawURL).Msg("downloading lora from replicate")
	if err := fsutil.EnsureDir(f.stagingDir); err != nil {
		return err
	}
	tarPath := filepath.Join(f.stagingDir, filename)

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	if err := f.fast.Fetch(fetchCtx, rawURL, tarPath); err != nil {
		return err
	}

	if err := fsutil.EnsureDir(f.lorasDir); err != nil {
		return err
	}
	if err := extractTarEntry(tarPath, replicateTarEntry, destPath); err != nil {
		return err
	}
	return os.Remove(tarPath)
}
