package ghclient

import (
	"fmt"
	"net/http"
)

// Result is the outcome of a single API call. Callers branch on OK and
// NotFound instead of handling errors for non-2xx responses; Err is only
// set when no usable response came back at all.
type Result struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Result) NotFound() bool {
	return r.Err == nil && r.StatusCode == http.StatusNotFound
}

// Failure describes an unsuccessful call, or returns nil when OK.
func (r Result) Failure() error {
	if r.OK() {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("%s %s: %w", r.Method, r.Path, r.Err)
	}
	return fmt.Errorf("%s %s: unexpected status %d", r.Method, r.Path, r.StatusCode)
}
