// Package errz defines the structured error type shared by the container
// reader, the location table decoder, and the lazy constant engine.
package errz

import "fmt"

// ErrorKind represents the category of a container error.
type ErrorKind int

const (
	// ErrTruncated indicates the declared file size exceeds the available bytes.
	ErrTruncated ErrorKind = iota
	// ErrVersion indicates an unrecognized format or instruction-set version.
	ErrVersion
	// ErrCorruptOffset indicates an offset or index that resolves outside the
	// bounds of its target section.
	ErrCorruptOffset
	// ErrMalformedVarint indicates a varint that runs past its stream or
	// overflows the target integer width.
	ErrMalformedVarint
	// ErrCyclicConstant indicates a maker program that references its own slot
	// while that slot is being built.
	ErrCyclicConstant
	// ErrUnknownInstruction indicates an instruction word outside the
	// recognized set.
	ErrUnknownInstruction
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrTruncated:
		return "truncated file"
	case ErrVersion:
		return "unsupported version"
	case ErrCorruptOffset:
		return "corrupt offset"
	case ErrMalformedVarint:
		return "malformed varint"
	case ErrCyclicConstant:
		return "cyclic constant dependency"
	case ErrUnknownInstruction:
		return "unknown instruction"
	default:
		return "error"
	}
}

// Error is a structured container error with a kind, a message, and optional
// byte-offset context identifying where in the file the problem was detected.
type Error struct {
	Kind      ErrorKind
	Message   string
	Offset    uint64 // Byte offset within the file, if known
	HasOffset bool
	Cause     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.HasOffset {
		return fmt.Sprintf("%s: %s (offset 0x%x)", e.Kind.String(), e.Message, e.Offset)
	}
	return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given kind and message.
func New(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithOffset annotates the error with the byte offset where it was detected.
func (e *Error) WithOffset(offset uint64) *Error {
	e.Offset = offset
	e.HasOffset = true
	return e
}

// WithCause wraps the error with a cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// IsKind reports whether err is an *Error of the given kind, possibly wrapped.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
