package plugin

import (
	"context"
	"testing"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/signal"
)

// Minimal guest programs, assembled by hand. Each exports
// run() -> i32 with a constant return value.
var (
	// (module (func (export "run") (result i32) i32.const 0))
	guestExitZero = []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x07, 0x01, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x00,
		0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x00, 0x0b,
	}
	// Same program returning 3.
	guestExitThree = []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x07, 0x01, 0x03, 0x72, 0x75, 0x6e, 0x00, 0x00,
		0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x03, 0x0b,
	}
	// Same program with the export section dropped.
	guestNoRun = []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x05, 0x01, 0x60, 0x00, 0x01, 0x7f,
		0x03, 0x02, 0x01, 0x00,
		0x0a, 0x06, 0x01, 0x04, 0x00, 0x41, 0x00, 0x0b,
	}
)

func TestWASMProgramRuns(t *testing.T) {
	k := newFakeKernel()
	k.files["/bin/ok"] = guestExitZero
	k.files["/tmp/target"] = []byte("payload")

	p := NewWASMProgram("ok", "/bin/ok")
	if p.ID() != "ok" {
		t.Fatalf("id: %q", p.ID())
	}
	status, err := p.Execute(context.Background(), k, "/tmp/target", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if status != 0 {
		t.Fatalf("status: got %d, want 0", status)
	}

	k.mu.Lock()
	open := len(k.opened)
	k.mu.Unlock()
	if open != 0 {
		t.Fatalf("descriptors leaked by guest run: %d", open)
	}
}

func TestWASMProgramNonZeroStatus(t *testing.T) {
	k := newFakeKernel()
	k.files["/bin/strict"] = guestExitThree
	k.files["/tmp/target"] = nil

	p := NewWASMProgram("strict", "/bin/strict")
	status, err := p.Execute(context.Background(), k, "/tmp/target", nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if status != 3 {
		t.Fatalf("status: got %d, want 3", status)
	}
}

func TestWASMProgramMissingBinary(t *testing.T) {
	k := newFakeKernel()
	k.files["/tmp/target"] = nil

	p := NewWASMProgram("ghost", "/bin/ghost")
	_, err := p.Execute(context.Background(), k, "/tmp/target", nil)
	if errors.CodeOf(err) != errors.NotFound {
		t.Fatalf("missing binary: got %v, want not_found", err)
	}
}

func TestWASMProgramWithoutRunExport(t *testing.T) {
	k := newFakeKernel()
	k.files["/bin/mute"] = guestNoRun
	k.files["/tmp/target"] = nil

	p := NewWASMProgram("mute", "/bin/mute")
	_, err := p.Execute(context.Background(), k, "/tmp/target", nil)
	if errors.CodeOf(err) != errors.ValidationFailed {
		t.Fatalf("no run export: got %v, want validation_failed", err)
	}
}

func TestWASMProgramRejectsGarbage(t *testing.T) {
	k := newFakeKernel()
	k.files["/bin/garbage"] = []byte("not a wasm module")
	k.files["/tmp/target"] = nil

	p := NewWASMProgram("garbage", "/bin/garbage")
	_, err := p.Execute(context.Background(), k, "/tmp/target", nil)
	if errors.CodeOf(err) != errors.ValidationFailed {
		t.Fatalf("garbage binary: got %v, want validation_failed", err)
	}
}

func TestWASMProgramThroughExecutor(t *testing.T) {
	k := newFakeKernel()
	k.files["/bin/ok"] = guestExitZero
	k.files["/tmp/target"] = []byte("payload")

	e := NewExecutor(allMounted, signal.NewDispatcher())
	if err := e.Register(NewWASMProgram("ok", "/bin/ok", "disk0")); err != nil {
		t.Fatalf("register: %v", err)
	}
	res, err := e.Exec(context.Background(), k, "ok", "/tmp/target", nil)
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if res.Failed() {
		t.Fatalf("result: %+v", res)
	}
}
