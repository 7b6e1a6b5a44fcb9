package mq

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/invariant"
)

// DefaultMaxMessages bounds queues whose attributes do not say
// otherwise.
const DefaultMaxMessages = 64

// OverflowPolicy decides what happens when a send hits a full queue
// after expired messages have been purged.
type OverflowPolicy uint8

const (
	// OverflowReject fails the send with queue-full.
	OverflowReject OverflowPolicy = iota
	// OverflowEvict drops the oldest lowest-priority message to make
	// room for the new one.
	OverflowEvict
)

// Attributes configures a queue at creation.
type Attributes struct {
	MaxMessages int
	Policy      OverflowPolicy
}

// Message is one unit of inter-module communication. A message is
// owned by exactly one queue at a time and leaves it by being
// dequeued, expiring, or being evicted to make room.
type Message struct {
	ID         uuid.UUID
	Type       string
	Payload    []byte
	Priority   int
	EnqueuedAt time.Time
	Source     string
	Target     string
	// TTL of zero means the message never expires.
	TTL time.Duration

	seq uint64
}

// Expired reports whether the message's TTL has elapsed at now.
func (m *Message) Expired(now time.Time) bool {
	return m.TTL > 0 && now.Sub(m.EnqueuedAt) >= m.TTL
}

// Selector filters messages for receive, wait and browse. The zero
// selector matches everything.
type Selector struct {
	// Type matches messages with this exact type; empty matches all.
	Type string
	// MinPriority matches messages at or above this priority.
	MinPriority int
}

// Matches reports whether m passes the selector. A nil selector
// matches every message.
func (s *Selector) Matches(m *Message) bool {
	if s == nil {
		return true
	}
	if s.Type != "" && m.Type != s.Type {
		return false
	}
	return m.Priority >= s.MinPriority
}

type waiter struct {
	sel       *Selector
	ch        chan Message
	delivered bool
}

type queue struct {
	attrs Attributes
	// msgs is kept sorted: highest priority first, FIFO within a
	// priority tier.
	msgs    []*Message
	waiters []*waiter
}

// Manager maintains the named queues. Delivery is unicast: each
// message reaches exactly one receiver; broadcast lives in the signal
// dispatcher.
type Manager struct {
	mu     sync.Mutex
	queues map[string]*queue
	seq    uint64
	now    func() time.Time
}

// NewManager creates a manager with no queues.
func NewManager() *Manager {
	return &Manager{
		queues: make(map[string]*queue),
		now:    time.Now,
	}
}

// CreateQueue registers a new bounded queue at path.
func (m *Manager) CreateQueue(path string, attrs Attributes) error {
	const op = "createQueue"
	if !invariant.PathWellFormed(path) || path == "/" {
		return errors.Invalid(op, "queue path must be an absolute normalized path")
	}
	if attrs.MaxMessages <= 0 {
		attrs.MaxMessages = DefaultMaxMessages
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queues[path]; ok {
		return errors.Exists(op, path)
	}
	m.queues[path] = &queue{attrs: attrs}
	return nil
}

// Queues returns the queue paths in sorted order.
func (m *Manager) Queues() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.queues))
	for path := range m.queues {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// Depth returns the number of enqueued messages, expired included
// until the next purge.
func (m *Manager) Depth(path string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[path]
	if !ok {
		return 0, errors.NotFoundf("depth", path)
	}
	return len(q.msgs), nil
}

// purgeExpired drops expired messages. Caller holds the lock.
func (m *Manager) purgeExpired(q *queue) {
	now := m.now()
	kept := q.msgs[:0]
	for _, msg := range q.msgs {
		if !msg.Expired(now) {
			kept = append(kept, msg)
		}
	}
	q.msgs = kept
}

// insertSorted places msg by (priority desc, seq asc). Caller holds
// the lock.
func (q *queue) insertSorted(msg *Message) {
	i := sort.Search(len(q.msgs), func(i int) bool {
		if q.msgs[i].Priority != msg.Priority {
			return q.msgs[i].Priority < msg.Priority
		}
		return q.msgs[i].seq > msg.seq
	})
	q.msgs = append(q.msgs, nil)
	copy(q.msgs[i+1:], q.msgs[i:])
	q.msgs[i] = msg
}

// evictVictim returns the index of the oldest lowest-priority
// message: the first entry of the lowest tier, which occupies the
// tail of the sorted slice.
func (q *queue) evictVictim() int {
	last := len(q.msgs) - 1
	p := q.msgs[last].Priority
	i := last
	for i > 0 && q.msgs[i-1].Priority == p {
		i--
	}
	return i
}

// Send enqueues msg. Expired messages are purged first; a full queue
// then either rejects the send or evicts the oldest lowest-priority
// message, per the queue's policy. If a parked waiter matches, the
// message is handed to it directly and leaves the queue in the same
// critical section.
func (m *Manager) Send(path string, msg Message) (uuid.UUID, error) {
	const op = "send"

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[path]
	if !ok {
		return uuid.Nil, errors.NotFoundf(op, path)
	}

	m.purgeExpired(q)
	if len(q.msgs) >= q.attrs.MaxMessages {
		if q.attrs.Policy == OverflowReject {
			return uuid.Nil, errors.Full(op, path)
		}
		victim := q.evictVictim()
		dropped := q.msgs[victim]
		q.msgs = append(q.msgs[:victim], q.msgs[victim+1:]...)
		Logger().Debug("message evicted",
			zap.String("queue", path),
			zap.String("id", dropped.ID.String()),
			zap.Int("priority", dropped.Priority),
		)
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	msg.EnqueuedAt = m.now()
	m.seq++
	msg.seq = m.seq

	// A parked waiter takes delivery immediately: the waiter is
	// unparked and the message never becomes receivable by anyone
	// else. Removal from the wait list and the send happen under the
	// lock, so a concurrent timeout cannot double-claim.
	for i, w := range q.waiters {
		if w.sel.Matches(&msg) {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			w.delivered = true
			w.ch <- msg
			return msg.ID, nil
		}
	}

	q.insertSorted(&msg)
	return msg.ID, nil
}

// takeLocked removes and returns the first message matching sel.
// Caller holds the lock.
func (m *Manager) takeLocked(q *queue, sel *Selector) (Message, bool) {
	m.purgeExpired(q)
	for i, msg := range q.msgs {
		if sel.Matches(msg) {
			q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
			return *msg, true
		}
	}
	return Message{}, false
}

// Receive removes and returns the highest-priority oldest matching
// message, or queue-empty when nothing matches.
func (m *Manager) Receive(path string, sel *Selector) (Message, error) {
	const op = "receive"

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[path]
	if !ok {
		return Message{}, errors.NotFoundf(op, path)
	}
	if msg, ok := m.takeLocked(q, sel); ok {
		return msg, nil
	}
	return Message{}, errors.Empty(op, path)
}

// WaitForMessage behaves like Receive when a matching message exists;
// otherwise it parks until one is enqueued, the timeout elapses, or
// ctx is canceled. Delivery and timeout are arbitrated under the
// queue lock, so a timed-out waiter never strands a delivered message
// and never lingers on the wait list.
func (m *Manager) WaitForMessage(ctx context.Context, path string, sel *Selector, timeout time.Duration) (Message, error) {
	const op = "waitForMessage"

	m.mu.Lock()
	q, ok := m.queues[path]
	if !ok {
		m.mu.Unlock()
		return Message{}, errors.NotFoundf(op, path)
	}
	if msg, ok := m.takeLocked(q, sel); ok {
		m.mu.Unlock()
		return msg, nil
	}
	w := &waiter{sel: sel, ch: make(chan Message, 1)}
	q.waiters = append(q.waiters, w)
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-w.ch:
		if !ok {
			return Message{}, errors.Down(op)
		}
		return msg, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	// Timeout or cancellation. The sender may have delivered in the
	// meantime; settle it under the lock.
	m.mu.Lock()
	if w.delivered {
		m.mu.Unlock()
		return <-w.ch, nil
	}
	for i, cand := range q.waiters {
		if cand == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Message{}, errors.Wrap(op, errors.Timeout, err, "wait canceled")
	}
	return Message{}, errors.TimedOut(op, timeout.Milliseconds())
}

// Browse returns copies of the matching messages in delivery order
// without consuming them.
func (m *Manager) Browse(path string, sel *Selector) ([]Message, error) {
	const op = "browse"

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[path]
	if !ok {
		return nil, errors.NotFoundf(op, path)
	}
	m.purgeExpired(q)

	out := make([]Message, 0, len(q.msgs))
	for _, msg := range q.msgs {
		if sel.Matches(msg) {
			out = append(out, *msg)
		}
	}
	return out, nil
}

// RemoveQueue deletes a queue, failing parked waiters with
// shutting-down.
func (m *Manager) RemoveQueue(path string) error {
	const op = "removeQueue"

	m.mu.Lock()
	defer m.mu.Unlock()

	q, ok := m.queues[path]
	if !ok {
		return errors.NotFoundf(op, path)
	}
	for _, w := range q.waiters {
		close(w.ch)
	}
	delete(m.queues, path)
	return nil
}

// Clear drops every queue and fails every parked waiter. Part of the
// kernel shutdown barrier.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.queues {
		for _, w := range q.waiters {
			close(w.ch)
		}
	}
	m.queues = make(map[string]*queue)
}
