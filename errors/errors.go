package errors

import (
	"fmt"
	"strings"
)

// Code categorizes a kernel error, mirroring errno-style kernels.
type Code string

const (
	NotFound           Code = "not_found"
	PermissionDenied   Code = "permission_denied"
	BadDescriptor      Code = "bad_descriptor"
	InvalidArgument    Code = "invalid_argument"
	AlreadyExists      Code = "already_exists"
	IsADirectory       Code = "is_a_directory"
	NotADirectory      Code = "not_a_directory"
	ReadOnlyFilesystem Code = "read_only_filesystem"
	DeviceNotFound     Code = "device_not_found"
	NotSupported       Code = "not_supported"
	DirectoryNotEmpty  Code = "directory_not_empty"
	Busy               Code = "busy"
	EntityNotFound     Code = "entity_not_found"
	CapabilityNotFound Code = "capability_not_found"
	ValidationFailed   Code = "validation_failed"
	Timeout            Code = "timeout"
	QueueEmpty         Code = "queue_empty"
	QueueFull          Code = "queue_full"
	ShuttingDown       Code = "shutting_down"
	StorageFailed      Code = "storage_failed"
)

// Errno returns the errno-style number for a code. Codes without a
// classic errno counterpart get numbers above 1000.
func (c Code) Errno() int {
	if n, ok := errnos[c]; ok {
		return n
	}
	return 1999
}

var errnos = map[Code]int{
	PermissionDenied:   1,  // EPERM
	NotFound:           2,  // ENOENT
	BadDescriptor:      9,  // EBADF
	Busy:               16, // EBUSY
	AlreadyExists:      17, // EEXIST
	DeviceNotFound:     19, // ENODEV
	NotADirectory:      20, // ENOTDIR
	IsADirectory:       21, // EISDIR
	InvalidArgument:    22, // EINVAL
	NotSupported:       25, // ENOTTY
	ReadOnlyFilesystem: 30, // EROFS
	DirectoryNotEmpty:  39, // ENOTEMPTY
	Timeout:            110,
	QueueEmpty:         1001,
	QueueFull:          1002,
	ShuttingDown:       1003,
	EntityNotFound:     1004,
	CapabilityNotFound: 1005,
	ValidationFailed:   1006,
	StorageFailed:      1007,
}

// Error is the structured error type used throughout the kernel.
type Error struct {
	Value  any
	Cause  error
	Op     string
	Code   Code
	Path   string
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(e.Op)
	b.WriteString("] ")
	b.WriteString(string(e.Code))

	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Two kernel errors
// match when their codes match; Op and Path are context, not identity.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// CodeOf extracts the kernel code from err, walking the cause chain.
// Returns "" for nil or foreign errors.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(op string, code Code) *Builder {
	return &Builder{
		err: Error{
			Op:   op,
			Code: code,
		},
	}
}

// Path sets the namespace path the error refers to.
func (b *Builder) Path(path string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value.
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// NotFoundf creates a not-found error for a path.
func NotFoundf(op, path string) *Error {
	return &Error{Op: op, Code: NotFound, Path: path, Detail: "no such entry"}
}

// BadFd creates a bad-descriptor error.
func BadFd(op string, fd int) *Error {
	return &Error{
		Op:     op,
		Code:   BadDescriptor,
		Detail: fmt.Sprintf("descriptor %d is not open", fd),
		Value:  fd,
	}
}

// Denied creates a permission-denied error.
func Denied(op, path, detail string) *Error {
	return &Error{Op: op, Code: PermissionDenied, Path: path, Detail: detail}
}

// Invalid creates an invalid-argument error.
func Invalid(op, detail string) *Error {
	return &Error{Op: op, Code: InvalidArgument, Detail: detail}
}

// Exists creates an already-exists error for a path.
func Exists(op, path string) *Error {
	return &Error{Op: op, Code: AlreadyExists, Path: path}
}

// IsDir creates an is-a-directory error.
func IsDir(op, path string) *Error {
	return &Error{Op: op, Code: IsADirectory, Path: path}
}

// NotDir creates a not-a-directory error.
func NotDir(op, path string) *Error {
	return &Error{Op: op, Code: NotADirectory, Path: path}
}

// NotEmpty creates a directory-not-empty error.
func NotEmpty(op, path string) *Error {
	return &Error{Op: op, Code: DirectoryNotEmpty, Path: path}
}

// BusyPath creates a resource-busy error for a path still referenced
// by an open descriptor.
func BusyPath(op, path string, fd int) *Error {
	return &Error{
		Op:     op,
		Code:   Busy,
		Path:   path,
		Detail: fmt.Sprintf("still referenced by open descriptor %d", fd),
		Value:  fd,
	}
}

// NoDevice creates a device-not-found error.
func NoDevice(op, id string) *Error {
	return &Error{Op: op, Code: DeviceNotFound, Detail: fmt.Sprintf("device %q not registered", id)}
}

// Unsupported creates an operation-not-supported error, the
// "not a typewriter" class: the descriptor is fine, the operation is
// inappropriate for what it points at.
func Unsupported(op, what string) *Error {
	return &Error{Op: op, Code: NotSupported, Detail: what}
}

// TimedOut creates a timeout error.
func TimedOut(op string, ms int64) *Error {
	return &Error{Op: op, Code: Timeout, Detail: fmt.Sprintf("timed out after %dms", ms)}
}

// Empty creates a queue-empty error.
func Empty(op, queue string) *Error {
	return &Error{Op: op, Code: QueueEmpty, Path: queue, Detail: "no matching message"}
}

// Full creates a queue-full error.
func Full(op, queue string) *Error {
	return &Error{Op: op, Code: QueueFull, Path: queue}
}

// Down creates a shutting-down error.
func Down(op string) *Error {
	return &Error{Op: op, Code: ShuttingDown, Detail: "kernel is shutting down"}
}

// Wrap wraps an existing error with kernel context.
func Wrap(op string, code Code, cause error, detail string) *Error {
	return &Error{
		Op:     op,
		Code:   code,
		Detail: detail,
		Cause:  cause,
	}
}
