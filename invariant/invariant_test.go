package invariant

import (
	"fmt"
	"strings"
	"testing"
)

func TestCheck_StrictPanics(t *testing.T) {
	SetMode(Strict)
	defer Reset()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic in strict mode")
		}
		msg := fmt.Sprint(r)
		if !strings.Contains(msg, "fd.alloc") || !strings.Contains(msg, "ceiling") {
			t.Fatalf("panic message %q missing context", msg)
		}
	}()

	Check("fd.alloc", false, "ceiling crossed")
}

func TestCheck_ObserveRecords(t *testing.T) {
	SetMode(Observe)
	defer SetMode(Strict)
	defer Reset()
	Reset()

	Check("vfs.mkdir", true, "should not record")
	Check("vfs.mkdir", false, "parent of %q missing", "/a/b")

	vs := Violations()
	if len(vs) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(vs))
	}
	if vs[0].Source != "vfs.mkdir" {
		t.Errorf("source = %q", vs[0].Source)
	}
	if vs[0].Message != `parent of "/a/b" missing` {
		t.Errorf("message = %q", vs[0].Message)
	}
	if Total() != 1 {
		t.Errorf("Total() = %d", Total())
	}
}

func TestRing_BoundedOldestFirst(t *testing.T) {
	SetMode(Observe)
	defer SetMode(Strict)
	defer func() { SetRingSize(DefaultRingSize); Reset() }()

	SetRingSize(4)
	for i := 0; i < 10; i++ {
		Violate("test", "violation %d", i)
	}

	vs := Violations()
	if len(vs) != 4 {
		t.Fatalf("expected ring of 4, got %d", len(vs))
	}
	for i, v := range vs {
		want := fmt.Sprintf("violation %d", 6+i)
		if v.Message != want {
			t.Errorf("ring[%d] = %q, want %q", i, v.Message, want)
		}
	}
	if Total() != 10 {
		t.Errorf("Total() = %d, want 10", Total())
	}
}

func TestPathWellFormed(t *testing.T) {
	valid := []string{"/", "/a", "/a/b/c", "/dev/null", "/home/entities/x.json"}
	for _, p := range valid {
		if !PathWellFormed(p) {
			t.Errorf("PathWellFormed(%q) = false, want true", p)
		}
	}

	invalid := []string{"", "a", "a/b", "/a/", "//", "/a//b", "/./a", "/a/..", "/a/./b"}
	for _, p := range invalid {
		if PathWellFormed(p) {
			t.Errorf("PathWellFormed(%q) = true, want false", p)
		}
	}
}

func TestCheckFdCeiling(t *testing.T) {
	SetMode(Observe)
	defer SetMode(Strict)
	defer Reset()
	Reset()

	CheckFdCeiling("fd.alloc", 1024, 1024)
	if Total() != 0 {
		t.Fatal("at-ceiling must not violate")
	}

	CheckFdCeiling("fd.alloc", 1025, 1024)
	if Total() != 1 {
		t.Fatal("over-ceiling must violate")
	}
}

func TestCheckMountPath(t *testing.T) {
	SetMode(Observe)
	defer SetMode(Strict)
	defer Reset()
	Reset()

	CheckMountPath("device.mount", "/dev/alpha")
	if Total() != 0 {
		t.Fatal("devices-subtree mount must not violate")
	}

	CheckMountPath("device.mount", "/tmp/alpha")
	if Total() != 1 {
		t.Fatal("out-of-subtree mount must violate")
	}
}
