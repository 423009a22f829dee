// Package errs defines the IDX2 error taxonomy (spec.md §7). Algorithmic
// routines never return these; only I/O, parsing, and validation do. E
// builds its message with golang.org/x/xerrors so the chain carries a frame,
// matching the style internal/squashfs uses for its own reads; Wrap keeps
// the error it is given as is.
package errs

import (
	"errors"

	"golang.org/x/xerrors"
)

// Kind is the closed set of error kinds from spec.md §7. Kind itself
// implements error so a bare Kind can be used as an errors.Is target:
// errors.Is(err, errs.FileNotFound).
type Kind int

const (
	NoError Kind = iota
	FileOpenFailed
	FileReadFailed
	FileWriteFailed
	FileNotFound
	ParseFailed
	SyntaxError
	DimensionsTooMany
	DimensionsRepeated
	InvalidBrickDimensions
	TruncatedStream
	ChecksumMismatch
	IncompatibleMetadata
	UnsupportedDataType
	AllocationFailed
)

func (k Kind) Error() string {
	switch k {
	case NoError:
		return "no error"
	case FileOpenFailed:
		return "file open failed"
	case FileReadFailed:
		return "file read failed"
	case FileWriteFailed:
		return "file write failed"
	case FileNotFound:
		return "file not found"
	case ParseFailed:
		return "parse failed"
	case SyntaxError:
		return "syntax error"
	case DimensionsTooMany:
		return "too many dimensions"
	case DimensionsRepeated:
		return "repeated dimensions"
	case InvalidBrickDimensions:
		return "invalid brick dimensions"
	case TruncatedStream:
		return "truncated stream"
	case ChecksumMismatch:
		return "checksum mismatch"
	case IncompatibleMetadata:
		return "incompatible metadata"
	case UnsupportedDataType:
		return "unsupported data type"
	case AllocationFailed:
		return "allocation failed"
	default:
		return "unknown error"
	}
}

// E builds an error of the given kind, wrapping msg/args with xerrors so a
// %w further up the chain still satisfies errors.Is(..., kind).
func E(kind Kind, format string, args ...interface{}) error {
	inner := xerrors.Errorf(format, args...)
	return &kindErrWrap{kind: kind, err: inner}
}

// Wrap attaches a Kind to an existing error without discarding its message,
// so intermediate layers propagate the first error unmodified.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindErrWrap{kind: kind, err: err}
}

type kindErrWrap struct {
	kind Kind
	err  error
}

func (w *kindErrWrap) Error() string { return w.kind.Error() + ": " + w.err.Error() }
func (w *kindErrWrap) Unwrap() error { return w.err }
func (w *kindErrWrap) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == w.kind
}

// KindOf extracts the Kind from an error built by E/Wrap, or false if the
// error did not originate in this package.
func KindOf(err error) (Kind, bool) {
	var w *kindErrWrap
	if errors.As(err, &w) {
		return w.kind, true
	}
	return NoError, false
}
