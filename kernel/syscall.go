package kernel

import (
	"go.uber.org/zap"

	"github.com/loredeck/vkernel/device"
	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/fd"
	"github.com/loredeck/vkernel/signal"
	"github.com/loredeck/vkernel/vfs"
)

// The syscall surface. Everything returns a structured error whose
// code is inspectable with errors.CodeOf; invariant breaches travel
// the invariant channel instead.

// Open allocates a descriptor for path. A missing path fails with
// not-found unless the mode creates, in which case an empty file is
// made first. Directories cannot be opened.
func (k *Kernel) Open(path string, mode fd.Mode) (int, error) {
	const op = "open"

	p, err := vfs.Normalize(path)
	if err != nil {
		return 0, err
	}
	if mode == 0 {
		return 0, errors.Invalid(op, "mode grants no access")
	}
	if k.isDown() {
		return 0, errors.Down(op)
	}

	st, ok := k.fs.Stat(p)
	switch {
	case ok && st.Type == vfs.TypeDirectory:
		return 0, errors.IsDir(op, p)
	case !ok:
		if !mode.Creates() {
			return 0, errors.NotFoundf(op, p)
		}
		if err := k.fs.Create(p, nil, false); err != nil {
			return 0, err
		}
	}

	d := k.fds.Alloc(p, mode)
	Logger().Debug("descriptor opened",
		zap.Int("fd", d.Fd),
		zap.String("path", p),
		zap.String("mode", mode.String()),
	)
	return d.Fd, nil
}

// Read returns the data behind fdnum. Reads on a mounted device
// dispatch to the device; anything else reads the file.
func (k *Kernel) Read(fdnum int) ([]byte, error) {
	const op = "read"

	d, ok := k.fds.Lookup(fdnum)
	if !ok {
		return nil, errors.BadFd(op, fdnum)
	}
	if !d.Mode.CanRead() {
		return nil, errors.Denied(op, d.Path, "descriptor opened "+d.Mode.String())
	}

	if dev, caps, mounted := k.devs.Lookup(d.Path); mounted {
		if !caps.Has(device.CapRead) {
			return nil, errors.Unsupported(op, "device does not read")
		}
		return dev.(device.Reader).ReadDevice(d)
	}
	return k.fs.Read(d.Path)
}

// Write replaces the data behind fdnum, or dispatches to the mounted
// device.
func (k *Kernel) Write(fdnum int, data []byte) error {
	const op = "write"

	d, ok := k.fds.Lookup(fdnum)
	if !ok {
		return errors.BadFd(op, fdnum)
	}
	if !d.Mode.CanWrite() {
		return errors.Denied(op, d.Path, "descriptor opened "+d.Mode.String())
	}

	if dev, caps, mounted := k.devs.Lookup(d.Path); mounted {
		if !caps.Has(device.CapWrite) {
			return errors.Unsupported(op, "device does not write")
		}
		return dev.(device.Writer).WriteDevice(d, data)
	}
	return k.fs.Write(d.Path, data)
}

// Close releases fdnum. Double closes are bad-descriptor errors, the
// contract descriptor-leak detection rests on.
func (k *Kernel) Close(fdnum int) error {
	return k.fds.Close(fdnum)
}

// Ioctl sends a control request to the device behind fdnum. On a
// descriptor not bound to a control-capable device it fails with the
// not-a-typewriter class.
func (k *Kernel) Ioctl(fdnum int, request int, arg any) error {
	const op = "ioctl"

	d, ok := k.fds.Lookup(fdnum)
	if !ok {
		return errors.BadFd(op, fdnum)
	}
	dev, caps, mounted := k.devs.Lookup(d.Path)
	if !mounted || !caps.Has(device.CapIoctl) {
		return errors.Unsupported(op, "descriptor is not bound to a control-capable device")
	}
	return dev.(device.Ioctler).Ioctl(d, request, arg)
}

// Mkdir creates a directory, idempotently. With recursive, missing
// ancestors are created first.
func (k *Kernel) Mkdir(path string, recursive bool) error {
	return k.fs.Mkdir(path, recursive)
}

// Create makes a new file holding data.
func (k *Kernel) Create(path string, data []byte, createParents bool) error {
	return k.fs.Create(path, data, createParents)
}

// Unlink removes a file or device node. A path still referenced by an
// open descriptor is busy.
func (k *Kernel) Unlink(path string) error {
	const op = "unlink"

	p, err := vfs.Normalize(path)
	if err != nil {
		return err
	}
	if fdnum, busy := k.fds.Referencing(p); busy {
		return errors.BusyPath(op, p, fdnum)
	}
	return k.fs.Unlink(p)
}

// Rmdir removes a directory; non-empty directories need the recursive
// flag.
func (k *Kernel) Rmdir(path string, recursive bool) error {
	return k.fs.Rmdir(path, recursive)
}

// Readdir lists a directory in entry order.
func (k *Kernel) Readdir(path string) ([]vfs.Dirent, error) {
	return k.fs.Readdir(path)
}

// Stat reports the entry behind path, or false when absent.
func (k *Kernel) Stat(path string) (vfs.Stats, bool) {
	return k.fs.Stat(path)
}

// Exists reports whether path resolves to an entry.
func (k *Kernel) Exists(path string) bool {
	return k.fs.Exists(path)
}

// Mount attaches dev at path, creating its device node (and parents)
// when absent. A node left behind by a previous boot is reused. On a
// registry refusal the freshly created node is rolled back.
func (k *Kernel) Mount(path string, dev device.Device) error {
	const op = "mount"

	p, err := vfs.Normalize(path)
	if err != nil {
		return err
	}
	if k.isDown() {
		return errors.Down(op)
	}

	created := false
	if st, ok := k.fs.Stat(p); ok {
		if st.Type != vfs.TypeDevice {
			return errors.New(op, errors.AlreadyExists).
				Path(p).
				Detail("path occupied by a %s", st.Type).
				Build()
		}
	} else {
		if err := k.fs.CreateDeviceNode(p); err != nil {
			return err
		}
		created = true
	}

	if err := k.devs.Mount(p, dev, k); err != nil {
		if created {
			_ = k.fs.Unlink(p)
		}
		return err
	}
	k.schedulePersist()
	return nil
}

// Unmount detaches the device at path and removes its node. A mount
// still referenced by an open descriptor is busy.
func (k *Kernel) Unmount(path string) error {
	const op = "unmount"

	p, err := vfs.Normalize(path)
	if err != nil {
		return err
	}
	if fdnum, busy := k.fds.Referencing(p); busy {
		return errors.BusyPath(op, p, fdnum)
	}
	if err := k.devs.Unmount(p); err != nil {
		return err
	}
	_ = k.fs.Unlink(p)
	k.schedulePersist()
	return nil
}

// Mounts returns the mount table sorted by path.
func (k *Kernel) Mounts() []device.MountPoint {
	return k.devs.Mounts()
}

// Emit broadcasts a named event, returning the listeners reached.
func (k *Kernel) Emit(name, source string, payload any) int {
	return k.signals.Emit(name, source, payload)
}

// Subscribe registers a handler for events named name.
func (k *Kernel) Subscribe(name string, h signal.Handler) signal.Subscription {
	return k.signals.Subscribe(name, h)
}

// Unsubscribe removes a previously registered handler.
func (k *Kernel) Unsubscribe(s signal.Subscription) {
	k.signals.Unsubscribe(s)
}

func (k *Kernel) schedulePersist() {
	if k.persist != nil {
		k.persist.schedule()
	}
}
