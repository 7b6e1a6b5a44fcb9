package device

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/coreos/go-semver/semver"
	"go.uber.org/zap"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/invariant"
)

// MountPoint is one entry of the mount table.
type MountPoint struct {
	Path    string `json:"path"`
	ID      string `json:"id"`
	Version string `json:"version"`
}

type mountEntry struct {
	dev     Device
	caps    CapSet
	version *semver.Version
	path    string
}

// Registry owns the mount table: which device is attached at which
// namespace path. A device id maps to at most one path at a time;
// mounting the same id elsewhere is a conflict, never a silent
// overwrite.
type Registry struct {
	mu      sync.RWMutex
	byPath  map[string]*mountEntry
	byID    map[string]*mountEntry
	drained bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byPath: make(map[string]*mountEntry),
		byID:   make(map[string]*mountEntry),
	}
}

// Mount records dev at path and invokes its mount hook with k. The
// path must already be normalized and carry a device node; the kernel
// facade orchestrates that before calling here.
func (r *Registry) Mount(path string, dev Device, k Kernel) error {
	const op = "mount"

	if dev == nil {
		return errors.Invalid(op, "nil device")
	}
	version, err := semver.NewVersion(dev.Version())
	if err != nil {
		return errors.New(op, errors.ValidationFailed).
			Detail("device %q has malformed version %q", dev.ID(), dev.Version()).
			Cause(err).
			Build()
	}
	invariant.CheckMountPath("device.mount", path)

	caps := CapsOf(dev)

	r.mu.Lock()
	if r.drained {
		r.mu.Unlock()
		return errors.Down(op)
	}
	if existing, ok := r.byPath[path]; ok {
		r.mu.Unlock()
		return errors.New(op, errors.AlreadyExists).
			Path(path).
			Detail("device %q already mounted here", existing.dev.ID()).
			Build()
	}
	if existing, ok := r.byID[dev.ID()]; ok {
		r.mu.Unlock()
		return errors.New(op, errors.Busy).
			Path(path).
			Detail("device %q already mounted at %s", dev.ID(), existing.path).
			Build()
	}
	entry := &mountEntry{dev: dev, caps: caps, version: version, path: path}
	r.byPath[path] = entry
	r.byID[dev.ID()] = entry
	r.mu.Unlock()

	if m, ok := dev.(Mounter); ok {
		if err := m.OnMount(k, path); err != nil {
			// Hook refused: roll the mount back.
			r.mu.Lock()
			delete(r.byPath, path)
			delete(r.byID, dev.ID())
			r.mu.Unlock()
			return errors.Wrap(op, errors.ValidationFailed, err, "device mount hook failed")
		}
	}

	Logger().Info("device mounted",
		zap.String("path", path),
		zap.String("id", dev.ID()),
		zap.String("version", version.String()),
		zap.String("caps", caps.String()),
	)
	return nil
}

// Unmount removes the mount at path and invokes the device's shutdown
// hook if it has one.
func (r *Registry) Unmount(path string) error {
	const op = "unmount"

	r.mu.Lock()
	entry, ok := r.byPath[path]
	if !ok {
		r.mu.Unlock()
		return errors.New(op, errors.DeviceNotFound).Path(path).Detail("nothing mounted here").Build()
	}
	delete(r.byPath, path)
	delete(r.byID, entry.dev.ID())
	r.mu.Unlock()

	if s, ok := entry.dev.(Shutdowner); ok {
		if err := s.Shutdown(); err != nil {
			Logger().Warn("device shutdown hook failed",
				zap.String("path", path),
				zap.String("id", entry.dev.ID()),
				zap.Error(err),
			)
		}
	}

	Logger().Info("device unmounted",
		zap.String("path", path),
		zap.String("id", entry.dev.ID()),
	)
	return nil
}

// Lookup returns the device mounted at path and its cached
// capability set.
func (r *Registry) Lookup(path string) (Device, CapSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byPath[path]
	if !ok {
		return nil, 0, false
	}
	return entry.dev, entry.caps, true
}

// MountedPath returns where a device id is currently mounted.
func (r *Registry) MountedPath(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byID[id]
	if !ok {
		return "", false
	}
	return entry.path, true
}

// Mounts returns the mount table sorted by path.
func (r *Registry) Mounts() []MountPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]MountPoint, 0, len(r.byPath))
	for path, entry := range r.byPath {
		out = append(out, MountPoint{Path: path, ID: entry.dev.ID(), Version: entry.version.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// SerializeMounts returns the mount table as the persisted
// mount-point blob.
func (r *Registry) SerializeMounts() ([]byte, error) {
	blob, err := json.Marshal(r.Mounts())
	if err != nil {
		return nil, errors.Wrap("snapshot", errors.StorageFailed, err, "marshal mount table")
	}
	return blob, nil
}

// ShutdownAll unmounts everything, running shutdown hooks, and
// refuses further mounts. Part of the kernel shutdown barrier.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	entries := make([]*mountEntry, 0, len(r.byPath))
	for _, entry := range r.byPath {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })
	r.byPath = make(map[string]*mountEntry)
	r.byID = make(map[string]*mountEntry)
	r.drained = true
	r.mu.Unlock()

	for _, entry := range entries {
		if s, ok := entry.dev.(Shutdowner); ok {
			if err := s.Shutdown(); err != nil {
				Logger().Warn("device shutdown hook failed",
					zap.String("path", entry.path),
					zap.String("id", entry.dev.ID()),
					zap.Error(err),
				)
			}
		}
	}
}
