// Package errors defines the domain error taxonomy for diskview.
// Handlers match on these to produce user-facing messages; nothing
// outside this taxonomy should reach the presentation layer.
package errors

import (
	"errors"
	"fmt"
)

// Share URL errors.
var (
	ErrInvalidShareURL = errors.New("not a valid Yandex Disk share link")
)

// OAuth flow errors.
var (
	ErrMissingCode   = errors.New("authorization callback carried no code")
	ErrStateMismatch = errors.New("authorization state mismatch")
	ErrTokenExchange = errors.New("token exchange failed")
	ErrProfileFetch  = errors.New("fetching user profile failed")
)

// Resource API errors.
var (
	// ErrResourceNotFound carries the hint about explicit publication:
	// a folder that is merely shared with specific accounts is not
	// reachable through the public API.
	ErrResourceNotFound = errors.New("resource not found: make sure the link is correct and the folder is explicitly published, not merely shared")

	ErrMalformedResponse = errors.New("unexpected API response shape")
)

// RemoteAPIError is a non-404 API failure with the status code and the
// message extracted from the response body, if any.
type RemoteAPIError struct {
	Status  int
	Message string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// AsRemoteAPI returns the RemoteAPIError in err's chain, or nil.
func AsRemoteAPI(err error) *RemoteAPIError {
	var ae *RemoteAPIError
	if errors.As(err, &ae) {
		return ae
	}

	return nil
}

// TransportError wraps a network-level failure (timeout, connection
// refused, DNS). A single attempt is made per user action; neither the
// client nor its callers retry.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err (or any error in its chain) is a
// TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
