package overpass

import (
	"errors"
	"fmt"
)

// InvalidQueryError reports a query the builder refused to construct: a
// malformed bounding box or a filter key outside the attached vocabulary.
// Caller error; never retryable.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "overpass: invalid query: " + e.Reason
}

// TransportError wraps a network-level failure or an overloaded-server
// response (429/5xx). Queries are read-only and idempotent, so these are safe
// to retry with backoff.
type TransportError struct {
	Err        error
	StatusCode int
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("overpass: transport error (status %d): %v", e.StatusCode, e.Err)
	}
	return "overpass: transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ServiceError reports a query the service rejected (syntax error, bad
// request, runtime remark). Retrying without changing the query is pointless,
// so it is never classified as transient.
type ServiceError struct {
	StatusCode int
	Remark     string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("overpass: service rejected query (status %d): %s", e.StatusCode, e.Remark)
}

// ParseError reports a response body that could not be decoded into the
// expected shape. Indicates a schema mismatch; not retryable. Snippet holds
// the start of the raw body for diagnosis.
type ParseError struct {
	Err     error
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("overpass: parse response: %v (body: %q)", e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error chain contains a TransportError.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// snippet truncates a raw body for inclusion in a ParseError.
func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
