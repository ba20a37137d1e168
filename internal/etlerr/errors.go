// Package etlerr defines the error taxonomy shared by both pipelines.
//
// Components return *Error values tagged with a Kind. Callers classify them
// with errors.Is against the sentinel values below, e.g.
//
//	if errors.Is(err, etlerr.ErrStorageUnavailable) { ... }
//
// No component retries or recovers: an *Error always aborts the run.
package etlerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindFetch: the remote file or object could not be retrieved.
	KindFetch
	// KindStorageUnavailable: storage block, bucket or object is missing.
	KindStorageUnavailable
	// KindIO: local disk or permission failure.
	KindIO
	// KindAuth: a credentials block could not be loaded.
	KindAuth
	// KindLoad: the warehouse rejected the data.
	KindLoad
	// KindTransform: a value could not be normalized.
	KindTransform
)

// String returns the taxonomy name of k.
func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "FetchError"
	case KindStorageUnavailable:
		return "StorageUnavailableError"
	case KindIO:
		return "IOError"
	case KindAuth:
		return "AuthError"
	case KindLoad:
		return "LoadError"
	case KindTransform:
		return "TransformError"
	default:
		return "UnknownError"
	}
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrFetch              = &Error{Kind: KindFetch}
	ErrStorageUnavailable = &Error{Kind: KindStorageUnavailable}
	ErrIO                 = &Error{Kind: KindIO}
	ErrAuth               = &Error{Kind: KindAuth}
	ErrLoad               = &Error{Kind: KindLoad}
	ErrTransform          = &Error{Kind: KindTransform}
)

// Error is a classified failure. Op names the operation that failed
// (e.g. "objectstore.download").
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New wraps err with kind and op. If err is already classified it is returned
// unchanged so the innermost classification wins.
func New(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
