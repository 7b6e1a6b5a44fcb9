package vfs

import "time"

// Ino is a stable inode number. Root is always 1; numbers are
// allocated monotonically and never reused within a manager lifetime.
type Ino int64

// RootIno is the inode number of the namespace root.
const RootIno Ino = 1

// NodeType identifies what a namespace entry is.
type NodeType uint8

const (
	TypeFile NodeType = iota
	TypeDirectory
	TypeDevice
	TypeSymlink
)

func (t NodeType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeDevice:
		return "device"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Inode is the metadata+data record for one namespace entry.
type Inode struct {
	Ino        Ino       `json:"ino"`
	Type       NodeType  `json:"type"`
	Path       string    `json:"path"`
	Data       []byte    `json:"data,omitempty"`
	Owner      string    `json:"owner"`
	Perm       uint32    `json:"perm"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	AccessedAt time.Time `json:"accessed_at"`
	Links      int       `json:"links"`
}

// Dirent is one ordered entry in a directory.
type Dirent struct {
	Name string   `json:"name"`
	Type NodeType `json:"type"`
	Ino  Ino      `json:"ino"`
}

// Stats is the caller-visible view of an inode, detached from the
// manager's tables.
type Stats struct {
	Ino        Ino
	Type       NodeType
	Path       string
	Owner      string
	Perm       uint32
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
	AccessedAt time.Time
	Links      int
}

// Meta is the namespace-level bookkeeping persisted alongside the
// inode and directory tables.
type Meta struct {
	FormatVersion int       `json:"format_version"`
	CreatedAt     time.Time `json:"created_at"`
	LastMountedAt time.Time `json:"last_mounted_at"`
	MountCount    int       `json:"mount_count"`
}

// FormatVersion is the snapshot layout version. Restore refuses
// snapshots written by a different version.
const FormatVersion = 1
