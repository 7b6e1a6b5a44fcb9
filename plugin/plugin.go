package plugin

import (
	"context"

	"github.com/loredeck/vkernel/device"
)

// Options carries caller-supplied execution options.
type Options map[string]any

// Kernel is the facade surface handed to executing plugins. Like
// devices, plugins do all their I/O through descriptors; the raw
// tables are never reachable from here.
type Kernel interface {
	device.Kernel
	Ioctl(fdnum int, request int, arg any) error
	Exists(path string) bool
}

// Plugin is one registered unit of executable behavior. Registration
// is stateless: the same plugin value may execute many times, against
// different target paths.
type Plugin interface {
	// ID is the stable plugin identifier.
	ID() string
	// RequiredDevices lists device ids that must be mounted before
	// the plugin may execute.
	RequiredDevices() []string
	// Execute runs the plugin against targetPath. A non-zero status
	// is a failure; err reports the plugin crashing rather than
	// completing with a status.
	Execute(ctx context.Context, k Kernel, targetPath string, opts Options) (status int, err error)
}

// Interruptible is implemented by plugins that want their own
// interrupt handler run when killed.
type Interruptible interface {
	Interrupt()
}

// SignalHandler is implemented by plugins that accept named signals
// while executing.
type SignalHandler interface {
	HandleSignal(name string)
}
