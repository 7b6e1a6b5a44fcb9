package signal

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one delivered notification.
type Event struct {
	Payload any
	Name    string
	Source  string
	At      time.Time
}

// Handler receives events for a subscribed signal name. Handlers run
// synchronously on the emitter's goroutine; a handler that blocks
// stalls the broadcast.
type Handler func(Event)

// Subscription identifies one registered handler for later removal.
type Subscription struct {
	name string
	id   uint64
}

// Dispatcher broadcasts named notifications to every registered
// listener. This is the broadcast counterpart to the message queue
// manager's unicast delivery: every listener sees every event, and
// nothing is retained for listeners that subscribe later.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners map[string]map[uint64]Handler
	nextID    uint64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[string]map[uint64]Handler)}
}

// Subscribe registers h for events named name.
func (d *Dispatcher) Subscribe(name string, h Handler) Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	if d.listeners[name] == nil {
		d.listeners[name] = make(map[uint64]Handler)
	}
	d.listeners[name][d.nextID] = h
	return Subscription{name: name, id: d.nextID}
}

// Unsubscribe removes a previously registered handler. Removing an
// already-removed subscription is a no-op.
func (d *Dispatcher) Unsubscribe(s Subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if hs, ok := d.listeners[s.name]; ok {
		delete(hs, s.id)
		if len(hs) == 0 {
			delete(d.listeners, s.name)
		}
	}
}

// Emit broadcasts an event to every listener of name and returns the
// number of listeners reached.
func (d *Dispatcher) Emit(name, source string, payload any) int {
	d.mu.RLock()
	hs := make([]Handler, 0, len(d.listeners[name]))
	for _, h := range d.listeners[name] {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	if len(hs) == 0 {
		return 0
	}
	ev := Event{Name: name, Source: source, Payload: payload, At: time.Now()}
	for _, h := range hs {
		h(ev)
	}

	Logger().Debug("signal delivered",
		zap.String("name", name),
		zap.String("source", source),
		zap.Int("listeners", len(hs)),
	)
	return len(hs)
}

// ListenerCount returns the number of listeners registered for name.
func (d *Dispatcher) ListenerCount(name string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.listeners[name])
}

// Clear drops every listener. The shutdown barrier calls this after
// device shutdown hooks have run.
func (d *Dispatcher) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = make(map[string]map[uint64]Handler)
}
