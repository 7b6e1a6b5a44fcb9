package fd

import (
	"sort"
	"sync"
	"time"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/invariant"
)

// Mode is the access mode a descriptor was opened with.
type Mode uint8

const (
	// Read grants read access.
	Read Mode = 1 << iota
	// Write grants write access.
	Write
	// Create makes open create the entry when it is absent. Only
	// meaningful combined with Write.
	Create
)

// ReadWrite grants both directions.
const ReadWrite = Read | Write

// CanRead reports whether the mode permits reading.
func (m Mode) CanRead() bool { return m&Read != 0 }

// CanWrite reports whether the mode permits writing.
func (m Mode) CanWrite() bool { return m&Write != 0 }

// Creates reports whether the mode permits creating a missing entry.
func (m Mode) Creates() bool { return m&Create != 0 && m.CanWrite() }

func (m Mode) String() string {
	switch {
	case m.CanRead() && m.CanWrite():
		return "rw"
	case m.CanWrite():
		return "w"
	case m.CanRead():
		return "r"
	default:
		return "none"
	}
}

// Reserved descriptor numbers, pre-populated at boot and never handed
// out or closed.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2

	// FirstUser is the first descriptor number Alloc hands out.
	FirstUser = 3
)

// DefaultCeiling is the open-descriptor ceiling when the kernel
// config does not override it. Crossing it is the leak signal.
const DefaultCeiling = 1024

// Descriptor is one open handle. Values are returned by copy; the
// table's own records are never exposed.
type Descriptor struct {
	Fd       int
	Path     string
	Mode     Mode
	OpenedAt time.Time
}

// Table allocates and tracks open descriptors. Descriptors are
// monotonic from FirstUser and are not reused while any higher
// descriptor remains open, which keeps leaked descriptors visible as
// an ever-growing number. The table is owned by the kernel facade;
// nothing else mutates it.
type Table struct {
	mu      sync.RWMutex
	open    map[int]Descriptor
	next    int
	ceiling int
}

// NewTable creates a table with the reserved 0-2 descriptors bound to
// consolePath. ceiling <= 0 selects DefaultCeiling.
func NewTable(consolePath string, ceiling int) *Table {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	t := &Table{
		open:    make(map[int]Descriptor),
		next:    FirstUser,
		ceiling: ceiling,
	}
	now := time.Now()
	t.open[Stdin] = Descriptor{Fd: Stdin, Path: consolePath, Mode: Read, OpenedAt: now}
	t.open[Stdout] = Descriptor{Fd: Stdout, Path: consolePath, Mode: Write, OpenedAt: now}
	t.open[Stderr] = Descriptor{Fd: Stderr, Path: consolePath, Mode: Write, OpenedAt: now}
	return t
}

// Ceiling returns the configured open-descriptor ceiling.
func (t *Table) Ceiling() int {
	return t.ceiling
}

// Alloc creates a new descriptor for path. The ceiling check runs
// after allocation: crossing the ceiling is reported to the invariant
// channel (a leak signal), not refused, so a production kernel keeps
// serving while the leak is diagnosed.
func (t *Table) Alloc(path string, mode Mode) Descriptor {
	t.mu.Lock()
	d := Descriptor{
		Fd:       t.next,
		Path:     path,
		Mode:     mode,
		OpenedAt: time.Now(),
	}
	t.next++
	t.open[d.Fd] = d
	userOpen := len(t.open) - FirstUser
	t.mu.Unlock()

	invariant.CheckDescriptor("fd.alloc", d.Fd)
	invariant.CheckFdCeiling("fd.alloc", userOpen, t.ceiling)
	return d
}

// Lookup returns the descriptor record for fd.
func (t *Table) Lookup(fd int) (Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.open[fd]
	return d, ok
}

// Close removes fd from the table. Closing an unknown or already
// closed descriptor is a bad-descriptor error, never a no-op: silent
// double closes would hide leaks. Reserved descriptors cannot be
// closed.
func (t *Table) Close(fd int) error {
	const op = "close"

	t.mu.Lock()
	defer t.mu.Unlock()

	if fd >= Stdin && fd < FirstUser {
		return errors.Invalid(op, "descriptor is reserved")
	}
	if _, ok := t.open[fd]; !ok {
		return errors.BadFd(op, fd)
	}
	delete(t.open, fd)

	// All user descriptors closed: the monotonic counter may restart.
	if len(t.open) == FirstUser {
		t.next = FirstUser
	}
	return nil
}

// CountOpen returns the number of open user descriptors.
func (t *Table) CountOpen() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.open) - FirstUser
}

// OpenFds returns the open user descriptor numbers in ascending order.
func (t *Table) OpenFds() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fds := make([]int, 0, len(t.open))
	for fd := range t.open {
		if fd >= FirstUser {
			fds = append(fds, fd)
		}
	}
	sort.Ints(fds)
	return fds
}

// Referencing returns the lowest open user descriptor bound to path,
// or (0, false). Unmount and unlink use it for resource-busy checks.
func (t *Table) Referencing(path string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	best, found := 0, false
	for fd, d := range t.open {
		if fd < FirstUser || d.Path != path {
			continue
		}
		if !found || fd < best {
			best, found = fd, true
		}
	}
	return best, found
}

// DrainUser removes and returns every open user descriptor, ascending.
// The shutdown barrier uses it to close outstanding handles.
func (t *Table) DrainUser() []Descriptor {
	t.mu.Lock()
	defer t.mu.Unlock()

	fds := make([]int, 0, len(t.open))
	for fd := range t.open {
		if fd >= FirstUser {
			fds = append(fds, fd)
		}
	}
	sort.Ints(fds)

	drained := make([]Descriptor, 0, len(fds))
	for _, fd := range fds {
		drained = append(drained, t.open[fd])
		delete(t.open, fd)
	}
	t.next = FirstUser
	return drained
}
