package fetcher

import "errors"

// unsupportedSourceError signals a URL whose host matches no known provider.
type unsupportedSourceError struct{ url string }

func (e unsupportedSourceError) Error() string {
	return "unsupported source: URL must be from 'huggingface.co', 'civitai.com', or 'replicate.delivery': " + e.url
}

// ErrUnsupportedSource constructs an unsupportedSourceError.
func ErrUnsupportedSource(url string) error { return unsupportedSourceError{url: url} }

// IsUnsupportedSource reports whether err indicates an unrecognized provider.
func IsUnsupportedSource(err error) bool {
	var e unsupportedSourceError
	return errors.As(err, &e)
}

// malformedURLError signals a URL that is structurally insufficient for
// parsing the fields the provider path needs.
type malformedURLError struct{ msg string }

func (e malformedURLError) Error() string { return "malformed url: " + e.msg }

// ErrMalformedURL constructs a malformedURLError.
func ErrMalformedURL(msg string) error { return malformedURLError{msg: msg} }

// IsMalformedURL reports whether err indicates an unparsable URL.
func IsMalformedURL(err error) bool {
	var e malformedURLError
	return errors.As(err, &e)
}

// downloadFailedError signals a non-zero exit from the fast-fetch step or an
// underlying hub client error.
type downloadFailedError struct {
	msg   string
	cause error
}

func (e downloadFailedError) Error() string {
	if e.cause != nil {
		return "download failed: " + e.msg + ": " + e.cause.Error()
	}
	return "download failed: " + e.msg
}

func (e downloadFailedError) Unwrap() error { return e.cause }

// ErrDownloadFailed constructs a downloadFailedError wrapping cause.
func ErrDownloadFailed(msg string, cause error) error {
	return downloadFailedError{msg: msg, cause: cause}
}

// IsDownloadFailed reports whether err indicates a failed download.
func IsDownloadFailed(err error) bool {
	var e downloadFailedError
	return errors.As(err, &e)
}

// downloadTimeoutError signals that the fast-fetch step exceeded its deadline.
type downloadTimeoutError struct{ url string }

func (e downloadTimeoutError) Error() string { return "download timed out: " + e.url }

// ErrDownloadTimeout constructs a downloadTimeoutError.
func ErrDownloadTimeout(url string) error { return downloadTimeoutError{url: url} }

// IsDownloadTimeout reports whether err indicates a timed-out download.
func IsDownloadTimeout(err error) bool {
	var e downloadTimeoutError
	return errors.As(err, &e)
}

// archiveEntryMissingError signals that a downloaded archive does not contain
// the expected weight file.
type archiveEntryMissingError struct{ entry string }

func (e archiveEntryMissingError) Error() string {
	return "archive entry missing: " + e.entry
}

// ErrArchiveEntryMissing constructs an archiveEntryMissingError.
func ErrArchiveEntryMissing(entry string) error { return archiveEntryMissingError{entry: entry} }

// IsArchiveEntryMissing reports whether err indicates a missing archive entry.
func IsArchiveEntryMissing(err error) bool {
	var e archiveEntryMissingError
	return errors.As(err, &e)
}
