package asset

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingContent means an id no longer resolves to a path.
	ErrMissingContent = errors.New("missing content")
	// ErrUnreadableContent means the content exists but cannot be opened or parsed.
	ErrUnreadableContent = errors.New("unreadable content")
	// ErrStreamError is an I/O failure while comparing duplicate candidates.
	ErrStreamError = errors.New("stream error")
	// ErrStaleCacheVersion means a persisted snapshot has a different format version.
	// It is never migrated; the caller decides whether to rebuild.
	ErrStaleCacheVersion = errors.New("stale cache version")
	// ErrMalformedIgnoreRule is returned for ignore rules that would exclude a root.
	ErrMalformedIgnoreRule = errors.New("malformed ignore rule")
)

// Error carries the context of a failed operation on one record.
type Error struct {
	Kind       error
	Op         string
	ID         ID
	Path       string
	Underlying error
	Timestamp  time.Time
}

// NewError creates an Error of the given kind.
func NewError(kind error, op string, err error) *Error {
	return &Error{
		Kind:       kind,
		Op:         op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithRecord attaches the record identity.
func (e *Error) WithRecord(id ID, path string) *Error {
	e.ID = id
	e.Path = path
	return e
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Path)
	}
	if e.Underlying != nil {
		msg += ": " + e.Underlying.Error()
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches the error kind so errors.Is(err, ErrStreamError) works on wrapped errors.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}
