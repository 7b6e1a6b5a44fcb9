package kernel

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/loredeck/vkernel/device"
	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/fd"
	"github.com/loredeck/vkernel/invariant"
	"github.com/loredeck/vkernel/mq"
	"github.com/loredeck/vkernel/plugin"
	"github.com/loredeck/vkernel/signal"
	"github.com/loredeck/vkernel/storage"
	"github.com/loredeck/vkernel/vfs"
)

// ConsolePath is where the boot console is mounted; the reserved
// descriptors 0-2 are bound to it.
const ConsolePath = "/dev/console"

// ProcLastExit is where the most recent plugin execution result is
// recorded.
const ProcLastExit = "/proc/last-exit"

// bootDirs is the standard namespace reserved at boot. Ensured
// idempotently, so a restored namespace keeps its contents.
var bootDirs = []string{
	"/dev",
	"/proc",
	"/home/entities",
	"/etc",
	"/var",
	"/var/cache",
	"/tmp",
	"/bin",
}

// Kernel is the syscall facade composing the namespace, descriptor
// table, device registry, message queues, signal dispatcher and plugin
// executor behind one entry point. The component tables are owned here
// and never handed out.
type Kernel struct {
	cfg     Config
	fs      *vfs.Manager
	fds     *fd.Table
	devs    *device.Registry
	queues  *mq.Manager
	signals *signal.Dispatcher
	execs   *plugin.Executor
	store   storage.Store
	persist *persister

	mu   sync.Mutex
	down bool
}

// New boots a kernel against the store named by cfg: the sqlite file
// at StorePath, or the in-memory store when StorePath is empty.
func New(cfg Config) (*Kernel, error) {
	var store storage.Store
	if cfg.StorePath == "" {
		store = storage.NewMemory()
	} else {
		var err error
		store, err = storage.OpenSQLite(cfg.StorePath)
		if err != nil {
			return nil, err
		}
	}
	return NewWithStore(cfg, store)
}

// NewWithStore boots a kernel against an existing store. The kernel
// takes ownership: Shutdown closes it.
func NewWithStore(cfg Config, store storage.Store) (*Kernel, error) {
	invariant.SetMode(cfg.invariantMode())

	k := &Kernel{
		cfg:     cfg,
		fs:      vfs.NewManager(),
		devs:    device.NewRegistry(),
		queues:  mq.NewManager(),
		signals: signal.NewDispatcher(),
		store:   store,
	}
	k.fds = fd.NewTable(ConsolePath, cfg.ceiling())
	k.execs = plugin.NewExecutor(k.devs.MountedPath, k.signals)

	if err := k.boot(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return k, nil
}

// boot restores any persisted namespace, ensures the standard
// subtrees, mounts the built-in devices and starts the persistence
// worker.
func (k *Kernel) boot() error {
	k.restore()

	for _, dir := range bootDirs {
		if err := k.fs.Mkdir(dir, true); err != nil {
			return err
		}
	}

	builtins := map[string]device.Device{
		"/dev/null":   device.Null{},
		"/dev/zero":   device.Zero{},
		"/dev/random": device.Random{},
		"/dev/clock":  &device.Clock{},
		ConsolePath:   device.NewConsole(k.cfg.ConsoleLines),
	}
	for path, dev := range builtins {
		if err := k.Mount(path, dev); err != nil {
			return err
		}
	}

	k.fs.RecordMount()

	k.persist = newPersister(k)
	k.fs.SetMutateHook(k.persist.schedule)
	go k.persist.run()
	k.persist.schedule()

	meta := k.fs.Metadata()
	Logger().Info("kernel booted",
		zap.String("mode", k.cfg.Mode),
		zap.Int("fd_ceiling", k.fds.Ceiling()),
		zap.Int("inodes", k.fs.Len()),
		zap.Int("mount_count", meta.MountCount),
	)
	return nil
}

// restore loads the persisted snapshot if the store holds a complete
// one. Anything short of all four keys boots cold; a snapshot that
// fails validation is logged and ignored, never partially applied.
// Mounts are code, not data: the persisted mount table is informative
// only, and the built-in devices are re-mounted over their restored
// nodes.
func (k *Kernel) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	blobs := make(map[string][]byte, len(storage.SnapshotKeys))
	for _, key := range storage.SnapshotKeys {
		value, ok, err := k.store.Get(ctx, key)
		if err != nil {
			Logger().Warn("snapshot read failed, booting cold",
				zap.String("key", key), zap.Error(err))
			return
		}
		if !ok {
			return
		}
		blobs[key] = value
	}

	snap := vfs.Snapshot{
		Inodes:      blobs[storage.KeyInodes],
		Directories: blobs[storage.KeyDirectories],
		Meta:        blobs[storage.KeyMeta],
	}
	if err := k.fs.Restore(snap); err != nil {
		Logger().Warn("snapshot rejected, booting cold", zap.Error(err))
		return
	}

	var mounts []device.MountPoint
	if err := json.Unmarshal(blobs[storage.KeyMounts], &mounts); err != nil {
		Logger().Warn("persisted mount table unreadable", zap.Error(err))
	}
	Logger().Info("namespace restored",
		zap.Int("inodes", k.fs.Len()),
		zap.Int("previous_mounts", len(mounts)),
	)
}

func (k *Kernel) isDown() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.down
}

// Shutdown is the teardown barrier: once begun, no new open or mount
// is accepted. Outstanding user descriptors are drained, device
// shutdown hooks run, queues and signal listeners are cleared, the
// final snapshot is flushed, and one last consistency sweep runs over
// the namespace tables.
func (k *Kernel) Shutdown() error {
	const op = "shutdown"

	k.mu.Lock()
	if k.down {
		k.mu.Unlock()
		return errors.Down(op)
	}
	k.down = true
	k.mu.Unlock()

	if drained := k.fds.DrainUser(); len(drained) > 0 {
		Logger().Warn("closed leaked descriptors at shutdown",
			zap.Int("count", len(drained)))
	}
	k.devs.ShutdownAll()
	k.queues.Clear()
	k.signals.Clear()

	if err := k.persist.Flush(); err != nil {
		Logger().Warn("final snapshot flush failed", zap.Error(err))
	}
	k.persist.Stop()
	err := k.store.Close()

	k.fs.VerifyConsistency("kernel.shutdown")
	Logger().Info("kernel shut down")
	return err
}

// Flush forces a snapshot write and waits for it. The in-memory
// namespace is the authority; the snapshot is durable only once a
// flush has returned.
func (k *Kernel) Flush() error {
	return k.persist.Flush()
}

// Metadata returns the namespace metadata.
func (k *Kernel) Metadata() vfs.Meta {
	return k.fs.Metadata()
}

// OpenDescriptors returns the open user descriptor numbers, ascending.
func (k *Kernel) OpenDescriptors() []int {
	return k.fds.OpenFds()
}
