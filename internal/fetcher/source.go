package fetcher

import "strings"

// Source identifies the hosting provider of a LoRA weight URL.
type Source int

const (
	SourceUnknown Source = iota
	SourceHuggingFace
	SourceCivitai
	SourceReplicate
)

func (s Source) String() string {
	switch s {
	case SourceHuggingFace:
		return "huggingface"
	case SourceCivitai:
		return "civitai"
	case SourceReplicate:
		return "replicate"
	default:
		return "unknown"
	}
}

const (
	prefixHuggingFace = "https://huggingface.co"
	prefixCivitai     = "https://civitai.com"
	prefixReplicate   = "https://replicate.delivery"
)

// Classify maps a URL to its provider by prefix match, first match wins.
// Unrecognized URLs classify as SourceUnknown.
func Classify(rawURL string) Source {
	switch {
	case strings.HasPrefix(rawURL, prefixHuggingFace):
		return SourceHuggingFace
	case strings.HasPrefix(rawURL, prefixCivitai):
		return SourceCivitai
	case strings.HasPrefix(rawURL, prefixReplicate):
		return SourceReplicate
	default:
		return SourceUnknown
	}
}
