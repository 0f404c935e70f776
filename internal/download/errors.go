package download

import (
	"errors"
	"fmt"
	"net/http"
)

// ResolveError is returned when the manifest link could not be exchanged
// for a direct asset URL.
type ResolveError struct {
	Link       string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *ResolveError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download: resolve link: status %d", e.StatusCode)
	}
	return fmt.Sprintf("download: resolve link: %v", e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Expired reports whether the link was rejected as expired or gone.
func (e *ResolveError) Expired() bool {
	switch e.StatusCode {
	case http.StatusGone, http.StatusForbidden, http.StatusNotFound, http.StatusUnauthorized:
		return true
	}
	return false
}

// FetchError is returned when the asset bytes could not be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download: fetch asset: status %d", e.StatusCode)
	}
	return fmt.Sprintf("download: fetch asset: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// failureMessage renders err for the failure list. Expired links are
// marked so they stand out from transient errors.
func failureMessage(err error) string {
	var re *ResolveError
	if errors.As(err, &re) && re.Expired() {
		return err.Error() + " (link expired)"
	}
	return err.Error()
}
