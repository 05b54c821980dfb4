// Package errors implements the error-kind taxonomy from the system design:
// DROP, PARSE, IO, CATALOG, TREE and CONFIG errors, each carrying enough
// context to decide whether the failure is locally recoverable.
package errors

import (
	"fmt"
	"time"
)

// Kind classifies an error the way the pipeline's recovery policy does.
type Kind string

const (
	KindDrop    Kind = "drop"
	KindParse   Kind = "parse"
	KindIO      Kind = "io"
	KindCatalog Kind = "catalog"
	KindTree    Kind = "tree"
	KindConfig  Kind = "config"
)

// DropError records a packet discarded because no bucket was available.
// It is never fatal: the caller increments a counter and continues.
type DropError struct {
	Interface  string
	Underlying error
	Timestamp  time.Time
}

func NewDropError(iface string, err error) *DropError {
	return &DropError{Interface: iface, Underlying: err, Timestamp: time.Now()}
}

func (e *DropError) Error() string {
	return fmt.Sprintf("drop on %s: %v", e.Interface, e.Underlying)
}

func (e *DropError) Unwrap() error { return e.Underlying }

// ParseError records a truncated or unhandled packet header. The packet is
// still stored; only the five-tuple is partial.
type ParseError struct {
	Operation  string
	Offset     int
	Underlying error
	Timestamp  time.Time
}

func NewParseError(op string, offset int, err error) *ParseError {
	return &ParseError{Operation: op, Offset: offset, Underlying: err, Timestamp: time.Now()}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s at offset %d: %v", e.Operation, e.Offset, e.Underlying)
}

func (e *ParseError) Unwrap() error { return e.Underlying }

// IOError wraps a failed read/write against an FCAP, FIDX or search result
// file. Fatal to the operation in progress; the chain's write is abandoned.
type IOError struct {
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

func NewIOError(op, path string, err error) *IOError {
	return &IOError{Operation: op, Path: path, Underlying: err, Timestamp: time.Now()}
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
}

func (e *IOError) Unwrap() error { return e.Underlying }

// CatalogError records a failed catalog transaction. The writer retries the
// whole chain until it succeeds or the process shuts down, so Recoverable
// defaults to true.
type CatalogError struct {
	Operation   string
	Underlying  error
	Timestamp   time.Time
	Recoverable bool
}

func NewCatalogError(op string, err error) *CatalogError {
	return &CatalogError{Operation: op, Underlying: err, Timestamp: time.Now(), Recoverable: true}
}

func (e *CatalogError) WithRecoverable(r bool) *CatalogError {
	e.Recoverable = r
	return e
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("catalog %s failed: %v", e.Operation, e.Underlying)
}

func (e *CatalogError) Unwrap() error { return e.Underlying }

// TreeError marks a violated splay-tree or traversal invariant. Always
// fatal: the process logs and exits rather than continuing on corrupted
// index state.
type TreeError struct {
	Invariant string
	Timestamp time.Time
}

func NewTreeError(invariant string) *TreeError {
	return &TreeError{Invariant: invariant, Timestamp: time.Now()}
}

func (e *TreeError) Error() string {
	return fmt.Sprintf("tree invariant violated: %s", e.Invariant)
}

// ConfigError records an invalid CLI flag or descriptor. Pre-flight only;
// aborts before the pipeline starts.
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Underlying: err, Timestamp: time.Now()}
}

func (e *ConfigError) Error() string {
	if e.Underlying == nil {
		return fmt.Sprintf("config error for field %s (value %q)", e.Field, e.Value)
	}
	return fmt.Sprintf("config error for field %s (value %q): %v", e.Field, e.Value, e.Underlying)
}

func (e *ConfigError) Unwrap() error { return e.Underlying }

// MultiError aggregates independent validation failures, e.g. from
// Config.Validate.
type MultiError struct {
	Errors []error
}

func NewMultiError(errs []error) *MultiError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	return &MultiError{Errors: filtered}
}

func (e *MultiError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "no errors"
	case 1:
		return e.Errors[0].Error()
	default:
		return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
	}
}

func (e *MultiError) Unwrap() []error { return e.Errors }

// HasErrors reports whether any errors were collected.
func (e *MultiError) HasErrors() bool { return len(e.Errors) > 0 }
