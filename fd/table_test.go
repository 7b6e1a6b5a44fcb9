package fd

import (
	"testing"

	kerrors "github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/invariant"
)

func TestAlloc_MonotonicFromThree(t *testing.T) {
	tbl := NewTable("/dev/console", 0)

	a := tbl.Alloc("/a", Read)
	b := tbl.Alloc("/b", Write)
	c := tbl.Alloc("/c", ReadWrite)

	if a.Fd != 3 || b.Fd != 4 || c.Fd != 5 {
		t.Fatalf("fds = %d, %d, %d, want 3, 4, 5", a.Fd, b.Fd, c.Fd)
	}
	if tbl.CountOpen() != 3 {
		t.Fatalf("CountOpen() = %d", tbl.CountOpen())
	}
}

func TestAlloc_NoReuseWhileHigherOpen(t *testing.T) {
	tbl := NewTable("/dev/console", 0)

	a := tbl.Alloc("/a", Read)
	b := tbl.Alloc("/b", Read)

	if err := tbl.Close(a.Fd); err != nil {
		t.Fatal(err)
	}
	c := tbl.Alloc("/c", Read)
	if c.Fd <= b.Fd {
		t.Fatalf("fd %d reused while %d still open", c.Fd, b.Fd)
	}

	// Full drain restarts the counter
	if err := tbl.Close(b.Fd); err != nil {
		t.Fatal(err)
	}
	if err := tbl.Close(c.Fd); err != nil {
		t.Fatal(err)
	}
	d := tbl.Alloc("/d", Read)
	if d.Fd != FirstUser {
		t.Fatalf("fd after full drain = %d, want %d", d.Fd, FirstUser)
	}
}

func TestClose_TwiceIsBadDescriptor(t *testing.T) {
	tbl := NewTable("/dev/console", 0)

	d := tbl.Alloc("/a", Read)
	if err := tbl.Close(d.Fd); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := tbl.Close(d.Fd); kerrors.CodeOf(err) != kerrors.BadDescriptor {
		t.Fatalf("second close = %v, want bad_descriptor", err)
	}
}

func TestClose_NeverOpened(t *testing.T) {
	tbl := NewTable("/dev/console", 0)
	if err := tbl.Close(42); kerrors.CodeOf(err) != kerrors.BadDescriptor {
		t.Fatalf("close(42) = %v, want bad_descriptor", err)
	}
}

func TestClose_ReservedRefused(t *testing.T) {
	tbl := NewTable("/dev/console", 0)
	for _, fd := range []int{Stdin, Stdout, Stderr} {
		if err := tbl.Close(fd); kerrors.CodeOf(err) != kerrors.InvalidArgument {
			t.Fatalf("close(%d) = %v, want invalid_argument", fd, err)
		}
	}
}

func TestReserved_Bound(t *testing.T) {
	tbl := NewTable("/dev/console", 0)

	in, ok := tbl.Lookup(Stdin)
	if !ok || in.Path != "/dev/console" || !in.Mode.CanRead() || in.Mode.CanWrite() {
		t.Fatalf("stdin = %+v", in)
	}
	out, ok := tbl.Lookup(Stdout)
	if !ok || !out.Mode.CanWrite() || out.Mode.CanRead() {
		t.Fatalf("stdout = %+v", out)
	}
}

func TestCeiling_LeakSignal(t *testing.T) {
	invariant.SetMode(invariant.Observe)
	defer invariant.SetMode(invariant.Strict)
	defer invariant.Reset()
	invariant.Reset()

	tbl := NewTable("/dev/console", 1024)
	for i := 0; i < 1050; i++ {
		tbl.Alloc("/leak", Read)
	}

	if tbl.CountOpen() != 1050 {
		t.Fatalf("CountOpen() = %d", tbl.CountOpen())
	}
	// 26 allocations crossed the 1024 ceiling
	if got := invariant.Total(); got != 26 {
		t.Fatalf("invariant.Total() = %d, want 26 leak reports", got)
	}
}

func TestReferencing(t *testing.T) {
	tbl := NewTable("/dev/console", 0)

	a := tbl.Alloc("/f", Read)
	tbl.Alloc("/f", Write)
	tbl.Alloc("/g", Read)

	fd, ok := tbl.Referencing("/f")
	if !ok || fd != a.Fd {
		t.Fatalf("Referencing(/f) = (%d, %v), want lowest fd %d", fd, ok, a.Fd)
	}
	if _, ok := tbl.Referencing("/absent"); ok {
		t.Fatal("Referencing reported a descriptor for an unopened path")
	}
}

func TestDrainUser(t *testing.T) {
	tbl := NewTable("/dev/console", 0)

	tbl.Alloc("/a", Read)
	tbl.Alloc("/b", Write)
	tbl.Alloc("/c", ReadWrite)

	drained := tbl.DrainUser()
	if len(drained) != 3 {
		t.Fatalf("drained %d descriptors, want 3", len(drained))
	}
	for i := 1; i < len(drained); i++ {
		if drained[i].Fd <= drained[i-1].Fd {
			t.Fatal("drain order not ascending")
		}
	}
	if tbl.CountOpen() != 0 {
		t.Fatal("user descriptors survived drain")
	}
	// Reserved descriptors survive
	if _, ok := tbl.Lookup(Stdout); !ok {
		t.Fatal("drain removed a reserved descriptor")
	}
	// Counter restarted
	if d := tbl.Alloc("/d", Read); d.Fd != FirstUser {
		t.Fatalf("fd after drain = %d, want %d", d.Fd, FirstUser)
	}
}

func TestMode(t *testing.T) {
	tests := []struct {
		mode    Mode
		r, w, c bool
		str     string
	}{
		{Read, true, false, false, "r"},
		{Write, false, true, false, "w"},
		{ReadWrite, true, true, false, "rw"},
		{Write | Create, false, true, true, "w"},
		{Read | Create, true, false, false, "r"}, // create without write is inert
	}
	for _, tt := range tests {
		if tt.mode.CanRead() != tt.r || tt.mode.CanWrite() != tt.w || tt.mode.Creates() != tt.c {
			t.Errorf("mode %v: got (%v, %v, %v)", tt.mode, tt.mode.CanRead(), tt.mode.CanWrite(), tt.mode.Creates())
		}
		if tt.mode.String() != tt.str {
			t.Errorf("mode %v String() = %q, want %q", tt.mode, tt.mode.String(), tt.str)
		}
	}
}
