// Package apierror defines the typed error taxonomy shared by the Gemini
// streaming client, the fallback controller, and the three API handlers
// (spec.md §7). Each dialect renders the same underlying error differently,
// so the type carries enough structure for each renderer to produce its own
// wire shape instead of forwarding an opaque string.
package apierror

import "fmt"

// Kind classifies an error for dialect-specific rendering and for the
// fallback controller's retry/cooldown decisions.
type Kind string

const (
	InvalidRequest Kind = "invalid_request"
	RateLimit      Kind = "rate_limit"
	UpstreamError  Kind = "upstream_error"
	StreamAborted  Kind = "stream_aborted"
)

// Error is the normalized error type every component above the Gemini wire
// layer works with.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	// RetryAfter is the upstream's suggested cooldown, if any (spec.md §4.4
	// 429 handling). Zero means "unspecified".
	RetryAfter int64
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind with an HTTP status implied by
// the kind unless overridden by the caller via WithStatus.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, StatusCode: defaultStatus(kind), Message: message}
}

// Wrap attaches an underlying cause to a new Error of the given kind.
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	return e
}

// WithStatus overrides the HTTP status code carried by the error.
func (e *Error) WithStatus(code int) *Error {
	e.StatusCode = code
	return e
}

// WithRetryAfter records the upstream-suggested cooldown in seconds.
func (e *Error) WithRetryAfter(seconds int64) *Error {
	e.RetryAfter = seconds
	return e
}

func defaultStatus(kind Kind) int {
	switch kind {
	case InvalidRequest:
		return 400
	case RateLimit:
		return 429
	case StreamAborted:
		return 499
	default:
		return 502
	}
}

// As reports whether err is an *Error and returns it.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	return ae, ok
}
