package kernel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/storage"
)

// storeTimeout bounds a single snapshot read or write.
const storeTimeout = 5 * time.Second

// persister is the write-through cache worker: one goroutine, fed by
// a one-deep coalescing mailbox, serializes the namespace tables to
// the store after mutations. The in-memory namespace is the
// authority; a failed write is logged, never rolled back, and the
// snapshot is durable only once a Flush has returned.
type persister struct {
	k        *Kernel
	kick     chan struct{}
	flushReq chan chan error
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPersister(k *Kernel) *persister {
	return &persister{
		k:        k,
		kick:     make(chan struct{}, 1),
		flushReq: make(chan chan error),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// schedule requests a snapshot write. Never blocks: a pending request
// absorbs any number of further mutations.
func (p *persister) schedule() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Flush writes a snapshot now and reports its outcome.
func (p *persister) Flush() error {
	reply := make(chan error, 1)
	select {
	case p.flushReq <- reply:
		return <-reply
	case <-p.done:
		return errors.Down("flush")
	}
}

// Stop drains any pending request and stops the worker.
func (p *persister) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.kick:
			p.write()
		case reply := <-p.flushReq:
			reply <- p.write()
		case <-p.stop:
			select {
			case <-p.kick:
				p.write()
			default:
			}
			return
		}
	}
}

// write serializes the four persisted tables and stores them in one
// atomic PutAll, so a crash between writes can never leave dirents
// referencing inodes from a different snapshot.
func (p *persister) write() error {
	snap, err := p.k.fs.Snapshot()
	if err != nil {
		Logger().Warn("snapshot serialize failed", zap.Error(err))
		return err
	}
	mounts, err := p.k.devs.SerializeMounts()
	if err != nil {
		Logger().Warn("mount table serialize failed", zap.Error(err))
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	err = p.k.store.PutAll(ctx, map[string][]byte{
		storage.KeyInodes:      snap.Inodes,
		storage.KeyDirectories: snap.Directories,
		storage.KeyMeta:        snap.Meta,
		storage.KeyMounts:      mounts,
	})
	if err != nil {
		Logger().Warn("snapshot write failed", zap.Error(err))
		return err
	}
	Logger().Debug("snapshot written", zap.Int("inodes", p.k.fs.Len()))
	return nil
}
