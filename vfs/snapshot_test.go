package vfs

import (
	"encoding/json"
	"testing"

	kerrors "github.com/loredeck/vkernel/errors"
)

func buildSample(t *testing.T) *Manager {
	t.Helper()
	m := NewManager()
	if err := m.Mkdir("/etc", false); err != nil {
		t.Fatal(err)
	}
	if err := m.Mkdir("/home/entities", true); err != nil {
		t.Fatal(err)
	}
	if err := m.Write("/etc/motd", []byte("welcome")); err != nil {
		t.Fatal(err)
	}
	if err := m.Write("/home/entities/a.json", []byte(`{"name":"a"}`)); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSnapshot_RoundTrip(t *testing.T) {
	src := buildSample(t)
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	dst := NewManager()
	if err := dst.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	for _, p := range []string{"/etc", "/home/entities", "/etc/motd", "/home/entities/a.json"} {
		want, ok := src.Stat(p)
		if !ok {
			t.Fatalf("source lost %s", p)
		}
		got, ok := dst.Stat(p)
		if !ok {
			t.Fatalf("restored namespace missing %s", p)
		}
		if got.Ino != want.Ino || got.Type != want.Type || got.Size != want.Size {
			t.Fatalf("stat mismatch for %s: got %+v want %+v", p, got, want)
		}
	}

	data, err := dst.Read("/etc/motd")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "welcome" {
		t.Fatalf("restored data = %q", data)
	}

	dst.VerifyConsistency("vfs.snapshot_test")
}

func TestRestore_AllocatesAboveSnapshot(t *testing.T) {
	src := buildSample(t)
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	dst := NewManager()
	if err := dst.Restore(snap); err != nil {
		t.Fatal(err)
	}
	if err := dst.Create("/new", nil, false); err != nil {
		t.Fatal(err)
	}

	st, _ := dst.Stat("/new")
	max := Ino(0)
	for _, p := range []string{"/", "/etc", "/home", "/home/entities", "/etc/motd", "/home/entities/a.json"} {
		s, _ := dst.Stat(p)
		if s.Ino > max {
			max = s.Ino
		}
	}
	if st.Ino <= max {
		t.Fatalf("new inode %d not above restored maximum %d", st.Ino, max)
	}
}

func TestRestore_WrongFormatVersion(t *testing.T) {
	src := buildSample(t)
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	var meta Meta
	if err := json.Unmarshal(snap.Meta, &meta); err != nil {
		t.Fatal(err)
	}
	meta.FormatVersion = FormatVersion + 1
	snap.Meta, err = json.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}

	dst := NewManager()
	if err := dst.Restore(snap); kerrors.CodeOf(err) != kerrors.ValidationFailed {
		t.Fatalf("restore with wrong version = %v, want validation_failed", err)
	}
	// Live tables untouched
	if dst.Len() != 1 {
		t.Fatalf("failed restore mutated the namespace, Len() = %d", dst.Len())
	}
}

func TestRestore_DanglingDirent(t *testing.T) {
	src := buildSample(t)
	snap, err := src.Snapshot()
	if err != nil {
		t.Fatal(err)
	}

	var dirs []snapshotDir
	if err := json.Unmarshal(snap.Directories, &dirs); err != nil {
		t.Fatal(err)
	}
	dirs[0].Entries = append(dirs[0].Entries, Dirent{Name: "ghost", Type: TypeFile, Ino: 9999})
	snap.Directories, err = json.Marshal(dirs)
	if err != nil {
		t.Fatal(err)
	}

	dst := NewManager()
	if err := dst.Restore(snap); kerrors.CodeOf(err) != kerrors.ValidationFailed {
		t.Fatalf("restore with dangling dirent = %v, want validation_failed", err)
	}
}

func TestMetadata(t *testing.T) {
	m := NewManager()
	if m.Metadata().FormatVersion != FormatVersion {
		t.Fatal("fresh manager has wrong format version")
	}
	if m.Metadata().MountCount != 0 {
		t.Fatal("fresh manager already counts a mount")
	}
	m.RecordMount()
	m.RecordMount()
	meta := m.Metadata()
	if meta.MountCount != 2 {
		t.Fatalf("MountCount = %d, want 2", meta.MountCount)
	}
	if meta.LastMountedAt.IsZero() {
		t.Fatal("LastMountedAt not stamped")
	}
}
