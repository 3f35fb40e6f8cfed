package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotConnected is returned when an operation runs before a store
	// handle has been established.
	ErrNotConnected = errors.New("store: not connected")
	// ErrNotFound is returned when the requested identifier is absent.
	ErrNotFound = errors.New("store: record not found")
	// ErrConfigurationMissing is returned when the store endpoint is not
	// configured.
	ErrConfigurationMissing = errors.New("store: endpoint not configured")
)

// ErrorKind classifies a failure for callers that surface it to users.
type ErrorKind string

const (
	ErrorKindNone                 ErrorKind = ""
	ErrorKindNotConnected         ErrorKind = "not_connected"
	ErrorKindNotFound             ErrorKind = "not_found"
	ErrorKindRemoteFailure        ErrorKind = "remote_failure"
	ErrorKindConfigurationMissing ErrorKind = "configuration_missing"
	ErrorKindValidation           ErrorKind = "validation"
	ErrorKindConflict             ErrorKind = "conflict"
)

// RemoteError wraps any failure reported by a backend or the network.
type RemoteError struct {
	Op     string
	Kind   Kind
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("store %s %s: status %d: %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Remote wraps err as a RemoteError unless it already carries a store
// classification.
func Remote(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotConnected) {
		return err
	}
	return &RemoteError{Op: op, Kind: kind, Err: err}
}

// kinded is implemented by errors that know their own classification.
type kinded interface {
	ErrorKind() ErrorKind
}

// Classify maps err onto the failure taxonomy. Timeouts and cancellations are
// ordinary remote failures.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return ErrorKindNotFound
	case errors.Is(err, ErrNotConnected):
		return ErrorKindNotConnected
	case errors.Is(err, ErrConfigurationMissing):
		return ErrorKindConfigurationMissing
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorKindRemoteFailure
	}
	// A remote 404 is only a missing record once the client has turned it
	// into ErrNotFound.
	var re *RemoteError
	if errors.As(err, &re) && re.Status == http.StatusConflict {
		return ErrorKindConflict
	}
	return ErrorKindRemoteFailure
}

// HTTPStatus maps an error kind onto the status a JSON API should answer
// with.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case ErrorKindNone:
		return http.StatusOK
	case ErrorKindNotFound:
		return http.StatusNotFound
	case ErrorKindValidation:
		return http.StatusBadRequest
	case ErrorKindConflict:
		return http.StatusConflict
	case ErrorKindNotConnected, ErrorKindConfigurationMissing:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
