package services

import (
	"errors"
	"net/http"

	"github.com/dnastack/ddap-admin/internal/infrastructure/dam"
)

// LoadError is a failed read of DAM configuration. The cache entry that
// caused it stays retryable.
type LoadError struct {
	DamID   string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + " " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

// WriteError is a rejected or failed configuration write. The cache is
// never updated for it.
type WriteError struct {
	Name    string
	Message string
	Err     error
}

func (e *WriteError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + " " + e.Err.Error()
}

func (e *WriteError) Unwrap() error { return e.Err }

// BackendMessage is the DAM's own explanation of the failure, if it gave one.
func BackendMessage(err error) string {
	var statusErr *dam.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message
	}
	return ""
}

// BackendStatus is the HTTP status the DAM answered with, or 0.
func BackendStatus(err error) int {
	var statusErr *dam.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether the DAM answered 404.
func IsNotFound(err error) bool {
	return BackendStatus(err) == http.StatusNotFound
}
