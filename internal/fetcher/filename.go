package fetcher

import (
	"fmt"
	"net/url"
	"strings"
)

// huggingFaceRef is the remote location of a file inside a HuggingFace repo,
// parsed positionally from a resolve-style URL.
type huggingFaceRef struct {
	RepoID     string
	Revision   string
	RemotePath []string
}

// RemoteFile returns the slash-joined path of the file inside the repo.
func (r huggingFaceRef) RemoteFile() string { return strings.Join(r.RemotePath, "/") }

// Filename derives the local filename: repo id with '/' flattened to '_',
// followed by the original file name.
func (r huggingFaceRef) Filename() string {
	name := r.RemotePath[len(r.RemotePath)-1]
	return strings.ReplaceAll(r.RepoID, "/", "_") + "_" + name
}

// parseHuggingFaceURL splits a URL like
// https://huggingface.co/org/model/resolve/main/sub/weights.safetensors
// into {org/model, main, [sub, weights.safetensors]}. URLs with fewer than
// five path segments cannot name a file and fail with a malformed-url error.
func parseHuggingFaceURL(rawURL string) (huggingFaceRef, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return huggingFaceRef{}, ErrMalformedURL(err.Error())
	}
	segs := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
	if len(segs) < 5 {
		return huggingFaceRef{}, ErrMalformedURL(fmt.Sprintf("HuggingFace URL does not contain enough parts: %s", rawURL))
	}
	return huggingFaceRef{
		RepoID:     segs[0] + "/" + segs[1],
		Revision:   segs[3],
		RemotePath: segs[4:],
	}, nil
}

// civitaiQueryParams participate in the derived filename, in this order.
var civitaiQueryParams = []string{"type", "format", "size", "fp"}

// civitaiFilename derives civitai_<model_id> plus the lowercased value of
// each recognized query param that is present, joined by underscores.
func civitaiFilename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrMalformedURL(err.Error())
	}
	segs := strings.Split(u.Path, "/")
	modelID := segs[len(segs)-1]
	query := u.Query()

	parts := []string{"civitai_" + modelID}
	for _, param := range civitaiQueryParams {
		if v := query.Get(param); v != "" {
			parts = append(parts, strings.ToLower(v))
		}
	}
	return strings.Join(parts, "_") + ".safetensors", nil
}

// replicateFilename derives replicate_lora_<unique_id> from the
// second-to-last path segment of a replicate.delivery URL.
func replicateFilename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ErrMalformedURL(err.Error())
	}
	segs := strings.Split(u.Path, "/")
	if len(segs) < 2 {
		return "", ErrMalformedURL(fmt.Sprintf("Replicate URL does not contain enough parts: %s", rawURL))
	}
	uniqueID := segs[len(segs)-2]
	return "replicate_lora_" + uniqueID + ".safetensors", nil
}

// DeriveFilename computes the local filename a fetch of rawURL would produce.
// It is a pure function of the URL: equal URLs always derive equal names, and
// distinct URLs derive distinct names under the providers' normal URL shapes
// (not formally guaranteed; a Civitai URL differing only in an untracked
// query parameter collides).
func DeriveFilename(rawURL string) (string, error) {
	switch Classify(rawURL) {
	case SourceHuggingFace:
		ref, err := parseHuggingFaceURL(rawURL)
		if err != nil {
			return "", err
		}
		return ref.Filename(), nil
	case SourceCivitai:
		return civitaiFilename(rawURL)
	case SourceReplicate:
		return replicateFilename(rawURL)
	default:
		return "", ErrUnsupportedSource(rawURL)
	}
}
