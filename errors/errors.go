// Package errors defines the error taxonomy shared by the fat engine and its
// command-line front end.
//
// Every sentinel below corresponds to one of the error kinds from the design:
// IoError, BadImage, BadArgument, NameError, NoSpace, AlreadyExists, Conflict,
// and OutOfMemory. Callers compare against a sentinel with errors.Is and, where
// useful, attach context with WithMessage or Wrap.
package errors

import (
	"errors"
	"fmt"
)

// Kind is a sentinel error value usable as a comparison target for errors.Is.
type Kind string

func (k Kind) Error() string { return string(k) }

// WithMessage decorates the sentinel with additional context. The sentinel
// remains discoverable through errors.Is.
func (k Kind) WithMessage(message string) DriverError {
	return driverError{kind: k, message: message}
}

// Wrap decorates the sentinel with an underlying error. Both the sentinel and
// the wrapped error remain discoverable through errors.Is/errors.As.
func (k Kind) Wrap(err error) DriverError {
	return driverError{kind: k, message: fmt.Sprintf("%s: %s", k, err.Error()), wrapped: err}
}

const (
	// IoError covers any failure of read, write, seek, or open against the
	// host or image file. It is never retried by the engine.
	IoError = Kind("i/o operation failed")

	// BadImage means boot-sector validation failed: bad jump signature, a
	// required field was zero, or the detected FAT flavor falls in the
	// unallocatable cluster-count gap (4085-4086).
	BadImage = Kind("image is not a valid FAT volume")

	// BadArgument covers bad CLI input: unrecognized option, missing option
	// argument, out-of-range numeric, invalid label character, oversized
	// path, duplicate output target.
	BadArgument = Kind("invalid argument")

	// NameError means an 8.3 short-name conversion failed: empty name,
	// more than one dot, a component too long, or an illegal character.
	NameError = Kind("invalid 8.3 file name")

	// NoSpace means a free cluster or free directory slot could not be
	// found, or a FAT12/16 root directory could not be extended.
	NoSpace = Kind("no space left on device")

	// AlreadyExists means the mkdir target name is already present as a
	// live (non-deleted) directory entry.
	AlreadyExists = Kind("file already exists")

	// Conflict means a copy target names a directory where the source
	// names a file, or vice versa.
	Conflict = Kind("file type conflict")

	// OutOfMemory means a scratch buffer allocation failed.
	OutOfMemory = Kind("out of memory")
)

// DriverError is a decorated sentinel: it satisfies error and errors.Is
// against the Kind it was built from, plus errors.Unwrap for any wrapped
// cause.
type DriverError interface {
	error
	Kind() Kind
}

type driverError struct {
	kind    Kind
	message string
	wrapped error
}

func (e driverError) Error() string {
	if e.message == "" {
		return string(e.kind)
	}
	return e.message
}

func (e driverError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.kind
}

func (e driverError) Unwrap() error {
	if e.wrapped != nil {
		return e.wrapped
	}
	return e.kind
}

func (e driverError) Kind() Kind { return e.kind }

// Is reports whether err (or anything it wraps) matches one of the given
// kinds.
func Is(err error, kinds ...Kind) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
