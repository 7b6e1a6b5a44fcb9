package kernel

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/loredeck/vkernel/mq"
)

// Message queue surface. Queues are kernel objects addressed by path
// like everything else, but they are not namespace entries: delivery
// state never persists across a reboot.

// CreateQueue registers a new bounded queue at path.
func (k *Kernel) CreateQueue(path string, attrs mq.Attributes) error {
	return k.queues.CreateQueue(path, attrs)
}

// Send enqueues msg, returning its assigned id.
func (k *Kernel) Send(path string, msg mq.Message) (uuid.UUID, error) {
	return k.queues.Send(path, msg)
}

// Receive removes and returns the highest-priority oldest matching
// message.
func (k *Kernel) Receive(path string, sel *mq.Selector) (mq.Message, error) {
	return k.queues.Receive(path, sel)
}

// WaitForMessage blocks until a matching message arrives, the timeout
// elapses, or ctx is canceled.
func (k *Kernel) WaitForMessage(ctx context.Context, path string, sel *mq.Selector, timeout time.Duration) (mq.Message, error) {
	return k.queues.WaitForMessage(ctx, path, sel, timeout)
}

// Browse returns copies of the matching messages without consuming
// them.
func (k *Kernel) Browse(path string, sel *mq.Selector) ([]mq.Message, error) {
	return k.queues.Browse(path, sel)
}

// QueueDepth returns the number of enqueued messages at path.
func (k *Kernel) QueueDepth(path string) (int, error) {
	return k.queues.Depth(path)
}

// Queues returns the queue paths in sorted order.
func (k *Kernel) Queues() []string {
	return k.queues.Queues()
}

// RemoveQueue deletes a queue, failing its parked waiters.
func (k *Kernel) RemoveQueue(path string) error {
	return k.queues.RemoveQueue(path)
}
