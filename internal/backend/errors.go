package backend

import "fmt"

// TransportError indicates the backend was unreachable: connection refused,
// DNS failure, timeout.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("backend unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError indicates the backend answered with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Status     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned %s", e.Status)
}

// ParseError indicates the backend answered 2xx with a body that did not
// decode into the expected shape.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed backend response: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
