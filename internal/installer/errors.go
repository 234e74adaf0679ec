package installer

import (
	"errors"
	"fmt"

	"wrtools/internal/components"
)

var (
	// ErrUnsupportedPlatform aliases the components sentinel so callers only
	// need this package for errors.Is checks.
	ErrUnsupportedPlatform = components.ErrUnsupportedPlatform
	// ErrRegistryUnreachable covers transport failures, non-2xx responses and
	// undecodable release metadata.
	ErrRegistryUnreachable = errors.New("release registry unreachable")
	// ErrNoMatchingAsset means the latest release has no archive named for
	// this platform.
	ErrNoMatchingAsset = errors.New("no matching release asset")
	ErrDownloadFailed  = errors.New("download failed")
	// ErrExtractionFailed leaves the downloaded archive in place.
	ErrExtractionFailed = errors.New("extraction failed")
	ErrCommitFailed     = errors.New("commit failed")
	ErrUnknownComponent = errors.New("unknown component")
)

// StatusError records a non-2xx HTTP response. It unwraps to the sentinel it
// was created for.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	sentinel   error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: %s returned %s", e.sentinel, e.URL, e.Status)
}

func (e *StatusError) Unwrap() error {
	return e.sentinel
}
