package invariant

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Mode controls how a detected violation is handled.
type Mode uint8

const (
	// Strict panics at the call site. Development builds run strict so
	// the bug surfaces where it happened.
	Strict Mode = iota
	// Observe records the violation to the ring buffer and logs it,
	// then lets execution continue. Production builds run observe.
	Observe
)

// DefaultRingSize is the number of recent violations retained in
// observe mode.
const DefaultRingSize = 64

// Violation is one recorded consistency breach.
type Violation struct {
	At      time.Time
	Source  string
	Message string
}

var (
	mu       sync.Mutex
	mode     = Strict
	ring     []Violation
	ringSize = DefaultRingSize
	next     int
	total    uint64
)

// SetMode switches between strict and observe handling.
func SetMode(m Mode) {
	mu.Lock()
	defer mu.Unlock()
	mode = m
}

// CurrentMode returns the active handling mode.
func CurrentMode() Mode {
	mu.Lock()
	defer mu.Unlock()
	return mode
}

// SetRingSize resizes the violation ring buffer and clears it.
func SetRingSize(n int) {
	mu.Lock()
	defer mu.Unlock()
	if n < 1 {
		n = 1
	}
	ringSize = n
	ring = nil
	next = 0
}

// Check asserts cond. On failure the violation is attributed to
// source (typically "package.operation") and handled per the active
// mode: panic in strict, record-and-log in observe.
func Check(source string, cond bool, format string, args ...any) {
	if cond {
		return
	}
	violate(source, fmt.Sprintf(format, args...))
}

// Violate records an unconditional violation. Used when the caller
// has already established the breach and only needs it handled.
func Violate(source, format string, args ...any) {
	violate(source, fmt.Sprintf(format, args...))
}

func violate(source, msg string) {
	mu.Lock()
	if mode == Strict {
		mu.Unlock()
		panic(fmt.Sprintf("invariant violation [%s]: %s", source, msg))
	}

	v := Violation{At: time.Now(), Source: source, Message: msg}
	if len(ring) < ringSize {
		ring = append(ring, v)
	} else {
		ring[next] = v
		next = (next + 1) % ringSize
	}
	total++
	mu.Unlock()

	Logger().Warn("invariant violation",
		zap.String("source", source),
		zap.String("message", msg),
	)
}

// Violations returns the retained window of recent violations,
// oldest first.
func Violations() []Violation {
	mu.Lock()
	defer mu.Unlock()

	out := make([]Violation, 0, len(ring))
	if len(ring) < ringSize {
		out = append(out, ring...)
		return out
	}
	out = append(out, ring[next:]...)
	out = append(out, ring[:next]...)
	return out
}

// Total returns the number of violations recorded since the last
// Reset, including ones already rotated out of the ring.
func Total() uint64 {
	mu.Lock()
	defer mu.Unlock()
	return total
}

// Reset clears the ring buffer and the total counter.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ring = nil
	next = 0
	total = 0
}

// Structural predicates shared by the kernel components. These are the
// checks every component runs before/after mutating its tables.

// CheckPath asserts that p is a well-formed absolute normalized path:
// starts with '/', no empty or dot segments, no trailing slash except
// for root itself.
func CheckPath(source, p string) {
	Check(source, PathWellFormed(p), "malformed path %q", p)
}

// PathWellFormed reports whether p is absolute and normalized.
func PathWellFormed(p string) bool {
	if p == "/" {
		return true
	}
	if p == "" || p[0] != '/' || strings.HasSuffix(p, "/") {
		return false
	}
	for _, seg := range strings.Split(p[1:], "/") {
		if seg == "" || seg == "." || seg == ".." {
			return false
		}
	}
	return true
}

// CheckDescriptor asserts that fd is in the user range (reserved
// descriptors 0-2 are never handed out).
func CheckDescriptor(source string, fd int) {
	Check(source, fd >= 3, "descriptor %d is in the reserved range", fd)
}

// CheckFdCeiling asserts that the number of open descriptors is at or
// below the configured ceiling. Crossing the ceiling is the leak
// signal: descriptors are monotonic, so a long-lived caller that never
// closes will trip this.
func CheckFdCeiling(source string, open, ceiling int) {
	Check(source, open <= ceiling,
		"%d descriptors open, ceiling is %d (descriptor leak?)", open, ceiling)
}

// CheckMountPath asserts the device-mount path convention: mounts live
// under the devices subtree.
func CheckMountPath(source, p string) {
	Check(source, strings.HasPrefix(p, "/dev/"),
		"mount path %q is outside the devices subtree", p)
}
