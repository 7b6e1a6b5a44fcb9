package signal

import "testing"

func TestEmit_Broadcast(t *testing.T) {
	d := NewDispatcher()

	var first, second []Event
	d.Subscribe("fs.changed", func(e Event) { first = append(first, e) })
	d.Subscribe("fs.changed", func(e Event) { second = append(second, e) })

	n := d.Emit("fs.changed", "vfs", "/etc/motd")
	if n != 2 {
		t.Fatalf("Emit reached %d listeners, want 2", n)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatal("broadcast did not reach every listener")
	}
	if first[0].Payload != "/etc/motd" || first[0].Source != "vfs" {
		t.Fatalf("event = %+v", first[0])
	}
	if first[0].At.IsZero() {
		t.Fatal("event not timestamped")
	}
}

func TestEmit_NoListeners(t *testing.T) {
	d := NewDispatcher()
	if n := d.Emit("nobody.home", "test", nil); n != 0 {
		t.Fatalf("Emit with no listeners = %d", n)
	}
}

func TestEmit_NameIsolation(t *testing.T) {
	d := NewDispatcher()

	var got []Event
	d.Subscribe("a", func(e Event) { got = append(got, e) })

	d.Emit("b", "test", nil)
	if len(got) != 0 {
		t.Fatal("listener received an event for a different name")
	}
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()

	var got int
	sub := d.Subscribe("tick", func(Event) { got++ })
	keep := d.Subscribe("tick", func(Event) {})

	d.Emit("tick", "test", nil)
	d.Unsubscribe(sub)
	d.Emit("tick", "test", nil)

	if got != 1 {
		t.Fatalf("handler ran %d times after unsubscribe, want 1", got)
	}
	if d.ListenerCount("tick") != 1 {
		t.Fatalf("ListenerCount = %d", d.ListenerCount("tick"))
	}

	// Double unsubscribe is a no-op
	d.Unsubscribe(sub)
	d.Unsubscribe(keep)
	if d.ListenerCount("tick") != 0 {
		t.Fatal("listeners remain after removing all")
	}
}

func TestClear(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe("a", func(Event) {})
	d.Subscribe("b", func(Event) {})

	d.Clear()
	if d.ListenerCount("a") != 0 || d.ListenerCount("b") != 0 {
		t.Fatal("Clear left listeners behind")
	}
	if n := d.Emit("a", "test", nil); n != 0 {
		t.Fatal("Emit after Clear still delivered")
	}
}

func TestSubscribeDuringEmit(t *testing.T) {
	d := NewDispatcher()

	var lateRan bool
	d.Subscribe("boot", func(Event) {
		// Subscribing from inside a handler must not deadlock and must
		// not receive the in-flight event.
		d.Subscribe("boot", func(Event) { lateRan = true })
	})

	d.Emit("boot", "test", nil)
	if lateRan {
		t.Fatal("late subscriber saw the in-flight event")
	}
	if d.ListenerCount("boot") != 2 {
		t.Fatalf("ListenerCount = %d", d.ListenerCount("boot"))
	}
}
