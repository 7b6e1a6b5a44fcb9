package device

import (
	"crypto/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/fd"
)

// Built-in devices mounted by the kernel at boot. They double as the
// reference implementations of the capability subsets.

// Null discards writes and reads empty. Caps: read|write.
type Null struct{}

func (Null) ID() string      { return "null" }
func (Null) Version() string { return "1.0.0" }

func (Null) ReadDevice(fd.Descriptor) ([]byte, error) { return nil, nil }

func (Null) WriteDevice(fd.Descriptor, []byte) error { return nil }

// Zero reads blocks of zero bytes. Caps: read.
type Zero struct {
	BlockSize int
}

func (Zero) ID() string      { return "zero" }
func (Zero) Version() string { return "1.0.0" }

func (z Zero) ReadDevice(fd.Descriptor) ([]byte, error) {
	n := z.BlockSize
	if n <= 0 {
		n = 512
	}
	return make([]byte, n), nil
}

// Random reads cryptographically random blocks. Caps: read.
type Random struct {
	BlockSize int
}

func (Random) ID() string      { return "random" }
func (Random) Version() string { return "1.0.0" }

func (r Random) ReadDevice(fd.Descriptor) ([]byte, error) {
	n := r.BlockSize
	if n <= 0 {
		n = 32
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.Wrap("read", errors.NotSupported, err, "entropy source failed")
	}
	return buf, nil
}

// Clock control requests.
const (
	// ClockModeRFC3339 switches reads back to RFC3339 (the default).
	ClockModeRFC3339 = 0
	// ClockModeUnix switches reads to unix seconds.
	ClockModeUnix = 1
)

// Clock reads the current time. Caps: read|ioctl.
type Clock struct {
	mu   sync.Mutex
	unix bool
	// Now is overridable for tests; nil means time.Now.
	Now func() time.Time
}

func (*Clock) ID() string      { return "clock" }
func (*Clock) Version() string { return "1.0.0" }

func (c *Clock) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Clock) ReadDevice(fd.Descriptor) ([]byte, error) {
	c.mu.Lock()
	unix := c.unix
	c.mu.Unlock()
	t := c.now()
	if unix {
		return []byte(strconv.FormatInt(t.Unix(), 10)), nil
	}
	return []byte(t.Format(time.RFC3339)), nil
}

func (c *Clock) Ioctl(_ fd.Descriptor, request int, _ any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch request {
	case ClockModeRFC3339:
		c.unix = false
	case ClockModeUnix:
		c.unix = true
	default:
		return errors.Unsupported("ioctl", "unknown clock request")
	}
	return nil
}

// ConsoleClear is the console's only control request: drop the backlog.
const ConsoleClear = 1

// Console is the line-buffered boot console backing the reserved
// descriptors. Writes append lines to a bounded backlog; reads return
// the backlog. Caps: read|write|ioctl|shutdown.
type Console struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
	closed   bool
}

// NewConsole creates a console retaining at most maxLines lines.
func NewConsole(maxLines int) *Console {
	if maxLines <= 0 {
		maxLines = 256
	}
	return &Console{maxLines: maxLines}
}

func (*Console) ID() string      { return "console" }
func (*Console) Version() string { return "1.0.0" }

func (c *Console) WriteDevice(_ fd.Descriptor, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.Unsupported("write", "console is shut down")
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		c.lines = append(c.lines, line)
	}
	if excess := len(c.lines) - c.maxLines; excess > 0 {
		c.lines = c.lines[excess:]
	}
	return nil
}

func (c *Console) ReadDevice(fd.Descriptor) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return nil, nil
	}
	return []byte(strings.Join(c.lines, "\n") + "\n"), nil
}

func (c *Console) Ioctl(_ fd.Descriptor, request int, _ any) error {
	if request != ConsoleClear {
		return errors.Unsupported("ioctl", "unknown console request")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
	return nil
}

func (c *Console) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.lines = nil
	return nil
}
