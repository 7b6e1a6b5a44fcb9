// Package fd implements the kernel's file-descriptor table.
//
// Descriptors 0-2 are reserved for the console (standard input,
// output, error); user descriptors start at 3 and increase
// monotonically while any descriptor remains open. Numbers are only
// recycled once the table is fully drained, so a caller that leaks
// descriptors shows up as an ever-growing high-water mark, and the
// configured ceiling trips the invariant channel rather than an
// error return.
//
// The table is owned exclusively by the kernel facade. Closing an
// unknown or already-closed descriptor is a bad-descriptor error,
// never a no-op; that single contract is what makes descriptor-leak
// detection trustworthy.
package fd
