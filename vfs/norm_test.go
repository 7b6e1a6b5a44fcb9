package vfs

import (
	"testing"

	kerrors "github.com/loredeck/vkernel/errors"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"/a", "/a"},
		{"/a/", "/a"},
		{"//a//b", "/a/b"},
		{"/a/./b", "/a/b"},
		{"/a/b/..", "/a"},
		{"/a/../..", "/"},
		{"/..", "/"},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, in := range []string{"", "a", "a/b", "./a"} {
		_, err := Normalize(in)
		if kerrors.CodeOf(err) != kerrors.InvalidArgument {
			t.Errorf("Normalize(%q) = %v, want invalid_argument", in, err)
		}
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		in     string
		parent string
		name   string
	}{
		{"/", "/", ""},
		{"/a", "/", "a"},
		{"/a/b", "/a", "b"},
		{"/a/b/c.txt", "/a/b", "c.txt"},
	}
	for _, tt := range tests {
		parent, name := Split(tt.in)
		if parent != tt.parent || name != tt.name {
			t.Errorf("Split(%q) = (%q, %q), want (%q, %q)", tt.in, parent, name, tt.parent, tt.name)
		}
	}
}

func TestJoinSegments(t *testing.T) {
	if got := Join("/", "a"); got != "/a" {
		t.Errorf("Join(/, a) = %q", got)
	}
	if got := Join("/a", "b"); got != "/a/b" {
		t.Errorf("Join(/a, b) = %q", got)
	}

	segs := Segments("/a/b/c")
	if len(segs) != 3 || segs[0] != "a" || segs[2] != "c" {
		t.Errorf("Segments(/a/b/c) = %v", segs)
	}
	if Segments("/") != nil {
		t.Error("Segments(/) should be nil")
	}
}
