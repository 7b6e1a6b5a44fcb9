// Package device implements the kernel's pluggable capability modules
// and the registry that mounts them into the namespace.
//
// A device is identified by a stable id plus a semantic version and
// implements any subset of {OnMount, ReadDevice, WriteDevice, Ioctl,
// Shutdown}. The subset is discovered once at mount time and cached
// as a CapSet bitmask, so per-call dispatch is a mask test rather
// than repeated interface assertions.
//
// The registry enforces the mount contract: one device id is mounted
// at one path at most; mounting the same id elsewhere is a conflict
// error, never a silent overwrite, and the conflicting mount succeeds
// only after the first is unmounted. Devices receive a narrow Kernel
// handle at mount time and perform all their own I/O through it, so
// they cannot bypass the descriptor and permission layer.
package device
