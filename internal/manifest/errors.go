package manifest

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy for manifest resolution.
var (
	// ErrMalformedManifest is returned when decoded input is not a JSON object.
	ErrMalformedManifest = errors.New("manifest should be an object")
	// ErrManifestNotFound means no manifest could be discovered or derived.
	ErrManifestNotFound = errors.New("manifest not found")
	// ErrFetchFailed wraps transport errors and non-success HTTP statuses.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrUnexpectedContentType marks content that is neither JSON nor HTML.
	// Resolution still succeeds with an unparsed result; callers that need a
	// hard failure can check Manifest.Unparsed and return this error.
	ErrUnexpectedContentType = errors.New("unexpected content type")
	// ErrHostBlocked marks a fetch refused because a request or redirect
	// target named a blocked host.
	ErrHostBlocked = errors.New("host is blocked")
	// ErrResponseTooLarge marks a body that exceeded the configured size
	// limit. Truncated bodies are never handed to the resolver.
	ErrResponseTooLarge = errors.New("response body exceeds size limit")
)

// FetchError describes a failed fetch of a single URL.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode > 0:
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetch %s: failed", e.URL)
	}
}

// Unwrap exposes both ErrFetchFailed and the underlying cause.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetchFailed}
	}
	return []error{ErrFetchFailed, e.Err}
}

// IsNotFound reports whether err is a fetch failure with a 404 status.
func IsNotFound(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr) && fetchErr.StatusCode == http.StatusNotFound
}

// StatusCode extracts the upstream HTTP status from err, or 0.
func StatusCode(err error) int {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.StatusCode
	}
	return 0
}
