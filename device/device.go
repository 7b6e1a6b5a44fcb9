package device

import (
	"strings"

	"github.com/loredeck/vkernel/fd"
)

// Device is a pluggable capability module. The interface is minimal
// on purpose: everything beyond identity is an optional capability
// discovered once at mount time (see CapsOf).
type Device interface {
	// ID is the stable device identifier. A device id is mounted at
	// most once at a time.
	ID() string
	// Version is the device's semantic version string. The registry
	// rejects malformed versions at mount.
	Version() string
}

// Kernel is the narrow facade surface handed to devices at mount
// time. Devices go through it - never through the raw tables - so
// they cannot bypass the descriptor and permission layer.
type Kernel interface {
	Open(path string, mode fd.Mode) (int, error)
	Read(fdnum int) ([]byte, error)
	Write(fdnum int, data []byte) error
	Close(fdnum int) error
	Emit(name, source string, payload any) int
}

// Optional device capabilities. A device implements any subset.

// Mounter is notified after its device node is recorded.
type Mounter interface {
	OnMount(k Kernel, path string) error
}

// Reader serves read calls dispatched from the descriptor layer.
type Reader interface {
	ReadDevice(d fd.Descriptor) ([]byte, error)
}

// Writer serves write calls dispatched from the descriptor layer.
type Writer interface {
	WriteDevice(d fd.Descriptor, data []byte) error
}

// Ioctler serves device-specific control requests.
type Ioctler interface {
	Ioctl(d fd.Descriptor, request int, arg any) error
}

// Shutdowner is invoked on unmount and at kernel shutdown.
type Shutdowner interface {
	Shutdown() error
}

// CapSet is the capability bitmask cached at mount time, so dispatch
// never repeats the interface assertions.
type CapSet uint8

const (
	CapMount CapSet = 1 << iota
	CapRead
	CapWrite
	CapIoctl
	CapShutdown
)

// Has reports whether every capability in want is present.
func (c CapSet) Has(want CapSet) bool { return c&want == want }

func (c CapSet) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	for _, p := range []struct {
		cap  CapSet
		name string
	}{
		{CapMount, "mount"},
		{CapRead, "read"},
		{CapWrite, "write"},
		{CapIoctl, "ioctl"},
		{CapShutdown, "shutdown"},
	} {
		if c.Has(p.cap) {
			parts = append(parts, p.name)
		}
	}
	return strings.Join(parts, "|")
}

// CapsOf discovers a device's capability set.
func CapsOf(dev Device) CapSet {
	var caps CapSet
	if _, ok := dev.(Mounter); ok {
		caps |= CapMount
	}
	if _, ok := dev.(Reader); ok {
		caps |= CapRead
	}
	if _, ok := dev.(Writer); ok {
		caps |= CapWrite
	}
	if _, ok := dev.(Ioctler); ok {
		caps |= CapIoctl
	}
	if _, ok := dev.(Shutdowner); ok {
		caps |= CapShutdown
	}
	return caps
}
