package fetcher

import (
	"context"
	"fmt"

	"github.com/cozy-creator/hf-hub/hub"
)

// HubClient downloads a single file from a HuggingFace repository into a
// local staging directory and returns the local path of the downloaded file.
type HubClient interface {
	Download(ctx context.Context, repoID, revision, remoteFile string) (string, error)
}

// HubOptions configures the hub client explicitly instead of mutating
// process-wide environment variables, so independent fetchers can coexist
// in one process.
type HubOptions struct {
	// CacheDir is the staging directory for in-flight downloads.
	CacheDir string
	// Offline restricts the client to files already present in CacheDir.
	Offline bool
}

type hubClient struct {
	client  *hub.Client
	offline bool
}

// NewHubClient builds a HubClient over github.com/cozy-creator/hf-hub.
func NewHubClient(opts HubOptions) HubClient {
	c := hub.DefaultClient()
	if opts.CacheDir != "" {
		c.CacheDir = opts.CacheDir
	}
	return hubClient{client: c, offline: opts.Offline}
}

func (h hubClient) Download(ctx context.Context, repoID, revision, remoteFile string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &hub.DownloadParams{
		Repo: &hub.Repo{
			Id:       repoID,
			Type:     hub.ModelRepoType,
			Revision: revision,
		},
		FileName:       remoteFile,
		LocalFilesOnly: h.offline,
	}
	path, err := h.client.Download(params)
	if err != nil {
		return "", fmt.Errorf("hub download %s@%s %s: %w", repoID, revision, remoteFile, err)
	}
	return path, nil
}
