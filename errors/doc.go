// Package errors provides the structured error types for the virtual kernel.
//
// Errors are categorized by Op (which syscall-surface operation failed) and
// Code (the errno-style error class). The Error type includes the affected
// namespace path, a human-readable detail and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New("open", errors.NotFound).
//		Path("/home/entities/abc").
//		Detail("no such entry").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.BadFd("close", fd)
//	err := errors.NotEmpty("rmdir", "/var/cache")
//
// All errors implement the standard error interface and support
// errors.Is/As; two kernel errors match when their codes match, so
// callers branch on class with errors.Is or errors.CodeOf without
// caring which operation produced the error.
//
// Invariant violations are deliberately NOT expressible here: they are
// programmer errors and travel through the invariant package's
// fail-fast/log channel instead.
package errors
