// Package errors defines the error taxonomy shared by every vfscore driver.
//
// Kind is a closed set of error categories matching spec section 7. A bare
// Kind satisfies the error interface so callers can compare with errors.Is
// without constructing a DriverError first; WithMessage and Wrap attach
// context while preserving that identity through Unwrap.
package errors

import (
	"fmt"
	"syscall"
)

// Kind is one error category from the VFS error taxonomy.
type Kind string

const (
	NotFound          = Kind("not found")
	AlreadyExists      = Kind("already exists")
	FileExists         = Kind("file exists")
	NotADirectory      = Kind("not a directory")
	IsADirectory       = Kind("is a directory")
	DirectoryNotEmpty  = Kind("directory not empty")
	ReadOnly           = Kind("read-only file system")
	PermissionDenied   = Kind("permission denied")
	NoSpace            = Kind("no space left")
	CrossDevice        = Kind("cross-device link")
	InvalidOperation   = Kind("invalid operation")
	InvalidPath        = Kind("invalid path")
	InvalidArgument    = Kind("invalid argument")
	IoError            = Kind("I/O error")
	DeviceError        = Kind("device error")
	NotSupported       = Kind("not supported")
)

// Error implements the error interface so a bare Kind can be returned,
// compared with errors.Is, and wrapped.
func (k Kind) Error() string {
	return string(k)
}

// Errno maps a Kind to a conventional errno-like value. The mapping exists
// for an external ABI shim to consume; the VFS core itself never inspects
// or depends on these numbers.
func (k Kind) Errno() syscall.Errno {
	switch k {
	case NotFound:
		return syscall.ENOENT
	case AlreadyExists, FileExists:
		return syscall.EEXIST
	case NotADirectory:
		return syscall.ENOTDIR
	case IsADirectory:
		return syscall.EISDIR
	case DirectoryNotEmpty:
		return syscall.ENOTEMPTY
	case ReadOnly:
		return syscall.EROFS
	case PermissionDenied:
		return syscall.EACCES
	case NoSpace:
		return syscall.ENOSPC
	case CrossDevice:
		return syscall.EXDEV
	case InvalidOperation, InvalidArgument:
		return syscall.EINVAL
	case InvalidPath:
		return syscall.ENAMETOOLONG
	case IoError, DeviceError:
		return syscall.EIO
	case NotSupported:
		return syscall.ENOTSUP
	default:
		return syscall.EIO
	}
}

// DriverError decorates a Kind with a human-readable message while
// remaining comparable to the original Kind via errors.Is/Unwrap.
type DriverError interface {
	error
	Kind() Kind
	WithMessage(message string) DriverError
	Wrap(cause error) DriverError
	Unwrap() error
}

type driverError struct {
	kind    Kind
	message string
	cause   error
}

// New creates a DriverError carrying only the Kind's default message.
func New(kind Kind) DriverError {
	return driverError{kind: kind, message: kind.Error()}
}

// Newf creates a DriverError with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) DriverError {
	return driverError{kind: kind, message: fmt.Sprintf("%s: %s", kind.Error(), fmt.Sprintf(format, args...))}
}

func (e driverError) Error() string {
	return e.message
}

func (e driverError) Kind() Kind {
	return e.kind
}

func (e driverError) WithMessage(message string) DriverError {
	return driverError{
		kind:    e.kind,
		message: fmt.Sprintf("%s: %s", e.message, message),
		cause:   e,
	}
}

func (e driverError) Wrap(cause error) DriverError {
	return driverError{
		kind:    e.kind,
		message: fmt.Sprintf("%s: %s", e.message, cause.Error()),
		cause:   cause,
	}
}

func (e driverError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	return e.kind
}

// WithMessage attaches a message to a bare Kind, returning a DriverError.
func (k Kind) WithMessage(message string) DriverError {
	return New(k).WithMessage(message)
}

// Wrap attaches an underlying cause to a bare Kind, returning a DriverError.
func (k Kind) Wrap(cause error) DriverError {
	return New(k).Wrap(cause)
}
