package vfs

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/loredeck/vkernel/errors"
)

// Snapshot is the serialized form of the manager's tables. The three
// blobs correspond to three of the four persisted keys (the fourth,
// the mount-point table, belongs to the device registry) and must be
// stored together: restoring from a partial set would leave dirents
// pointing at missing inodes.
type Snapshot struct {
	Inodes      []byte
	Directories []byte
	Meta        []byte
}

type snapshotDir struct {
	Ino     Ino      `json:"ino"`
	Entries []Dirent `json:"entries"`
}

// Snapshot serializes the inode table, directory table and metadata.
// The result is detached from the live tables.
func (m *Manager) Snapshot() (Snapshot, error) {
	const op = "snapshot"

	m.mu.RLock()
	defer m.mu.RUnlock()

	inodes := make([]*Inode, 0, len(m.nodes))
	for _, node := range m.nodes {
		inodes = append(inodes, node)
	}
	sort.Slice(inodes, func(i, j int) bool { return inodes[i].Ino < inodes[j].Ino })

	dirs := make([]snapshotDir, 0, len(m.dirs))
	for ino, ents := range m.dirs {
		dirs = append(dirs, snapshotDir{Ino: ino, Entries: ents})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Ino < dirs[j].Ino })

	inodeBlob, err := json.Marshal(inodes)
	if err != nil {
		return Snapshot{}, errors.Wrap(op, errors.StorageFailed, err, "marshal inode table")
	}
	dirBlob, err := json.Marshal(dirs)
	if err != nil {
		return Snapshot{}, errors.Wrap(op, errors.StorageFailed, err, "marshal directory table")
	}
	metaBlob, err := json.Marshal(m.meta)
	if err != nil {
		return Snapshot{}, errors.Wrap(op, errors.StorageFailed, err, "marshal metadata")
	}

	return Snapshot{Inodes: inodeBlob, Directories: dirBlob, Meta: metaBlob}, nil
}

// Restore replaces the manager's tables with the snapshot's contents.
// The snapshot must carry the current format version and a root
// directory; on any decode failure the live tables are left untouched.
func (m *Manager) Restore(s Snapshot) error {
	const op = "restore"

	var meta Meta
	if err := json.Unmarshal(s.Meta, &meta); err != nil {
		return errors.Wrap(op, errors.StorageFailed, err, "unmarshal metadata")
	}
	if meta.FormatVersion != FormatVersion {
		return errors.New(op, errors.ValidationFailed).
			Detail("snapshot format version %d, want %d", meta.FormatVersion, FormatVersion).
			Build()
	}

	var inodes []*Inode
	if err := json.Unmarshal(s.Inodes, &inodes); err != nil {
		return errors.Wrap(op, errors.StorageFailed, err, "unmarshal inode table")
	}
	var dirs []snapshotDir
	if err := json.Unmarshal(s.Directories, &dirs); err != nil {
		return errors.Wrap(op, errors.StorageFailed, err, "unmarshal directory table")
	}

	nodes := make(map[Ino]*Inode, len(inodes))
	next := RootIno
	for _, node := range inodes {
		nodes[node.Ino] = node
		if node.Ino >= next {
			next = node.Ino + 1
		}
	}
	root, ok := nodes[RootIno]
	if !ok || root.Type != TypeDirectory {
		return errors.New(op, errors.ValidationFailed).
			Detail("snapshot has no root directory").
			Build()
	}

	dirTable := make(map[Ino][]Dirent, len(dirs))
	parent := make(map[Ino]Ino, len(inodes))
	for _, d := range dirs {
		dirTable[d.Ino] = d.Entries
		for _, ent := range d.Entries {
			if _, ok := nodes[ent.Ino]; !ok {
				return errors.New(op, errors.ValidationFailed).
					Detail("dirent %q references missing inode %d", ent.Name, ent.Ino).
					Build()
			}
			parent[ent.Ino] = d.Ino
		}
	}
	if _, ok := dirTable[RootIno]; !ok {
		dirTable[RootIno] = nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes = nodes
	m.dirs = dirTable
	m.parent = parent
	m.next = next
	m.meta = meta
	m.meta.LastMountedAt = time.Now()
	return nil
}
