// Package apperr defines the error kinds shared across mdnorm.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrConfigLoad    = errors.New("config load")
	ErrDocumentParse = errors.New("document parse")
	ErrDocumentRead  = errors.New("document read")
	ErrDocumentWrite = errors.New("document write")
)

// DocumentError reports a failure isolated to a single document.
// Kind is one of the ErrDocument* sentinels.
type DocumentError struct {
	Path string
	Kind error
	Err  error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *DocumentError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// NewDocumentError wraps err as a document failure of the given kind.
func NewDocumentError(kind error, path string, err error) *DocumentError {
	return &DocumentError{Path: path, Kind: kind, Err: err}
}

// ConfigError wraps err as a fatal configuration failure.
func ConfigError(what string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConfigLoad, what, err)
}

// KindName returns a short label for a document error kind, used in reports.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrDocumentParse):
		return "parse"
	case errors.Is(err, ErrDocumentRead):
		return "read"
	case errors.Is(err, ErrDocumentWrite):
		return "write"
	default:
		return "unknown"
	}
}
