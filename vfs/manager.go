package vfs

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/invariant"
)

// DefaultOwner is recorded on inodes created without an explicit owner.
const DefaultOwner = "kernel"

// Manager owns the inode table and the directory table. All access
// goes through its methods; the tables are never handed out.
//
// Manager is safe for concurrent use. Operations take the single
// coarse lock for their whole duration, which makes every mutation
// atomic with respect to every other.
type Manager struct {
	mu     sync.RWMutex
	nodes  map[Ino]*Inode
	dirs   map[Ino][]Dirent
	parent map[Ino]Ino
	next   Ino
	meta   Meta

	onMutate func()
}

// NewManager creates a namespace containing only the root directory.
func NewManager() *Manager {
	m := &Manager{
		nodes:  make(map[Ino]*Inode),
		dirs:   make(map[Ino][]Dirent),
		parent: make(map[Ino]Ino),
		next:   RootIno,
		meta: Meta{
			FormatVersion: FormatVersion,
			CreatedAt:     time.Now(),
		},
	}
	now := time.Now()
	root := &Inode{
		Ino:        m.allocIno(),
		Type:       TypeDirectory,
		Path:       "/",
		Owner:      DefaultOwner,
		Perm:       0o755,
		CreatedAt:  now,
		ModifiedAt: now,
		AccessedAt: now,
		Links:      1,
	}
	m.nodes[root.Ino] = root
	m.dirs[root.Ino] = nil
	return m
}

// SetMutateHook registers a function invoked after every successful
// mutation. The kernel uses it to schedule best-effort persistence;
// the hook must not call back into the manager.
func (m *Manager) SetMutateHook(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMutate = fn
}

func (m *Manager) allocIno() Ino {
	ino := m.next
	m.next++
	return ino
}

func (m *Manager) mutated() {
	if m.onMutate != nil {
		m.onMutate()
	}
}

// resolve walks the directory table from root. Caller holds the lock.
func (m *Manager) resolve(p string) (*Inode, bool) {
	node := m.nodes[RootIno]
	for _, seg := range Segments(p) {
		if node.Type != TypeDirectory {
			return nil, false
		}
		var found *Inode
		for _, ent := range m.dirs[node.Ino] {
			if ent.Name == seg {
				found = m.nodes[ent.Ino]
				break
			}
		}
		if found == nil {
			return nil, false
		}
		node = found
	}
	return node, true
}

// addEntry links child into dir and records the back-pointer.
// Caller holds the lock.
func (m *Manager) addEntry(dir *Inode, child *Inode, name string) {
	m.dirs[dir.Ino] = append(m.dirs[dir.Ino], Dirent{Name: name, Type: child.Type, Ino: child.Ino})
	m.parent[child.Ino] = dir.Ino
	child.Links = 1
	now := time.Now()
	dir.ModifiedAt = now
	invariant.Check("vfs.addEntry", m.parent[child.Ino] == dir.Ino,
		"entry %q not back-linked to parent %d", name, dir.Ino)
}

// removeEntry unlinks child from its parent directory and drops the
// back-pointer. Caller holds the lock.
func (m *Manager) removeEntry(child *Inode) {
	parentIno, ok := m.parent[child.Ino]
	invariant.Check("vfs.removeEntry", ok, "inode %d has no parent entry", child.Ino)
	ents := m.dirs[parentIno]
	for i, ent := range ents {
		if ent.Ino == child.Ino {
			m.dirs[parentIno] = append(ents[:i], ents[i+1:]...)
			break
		}
	}
	delete(m.parent, child.Ino)
	if dir, ok := m.nodes[parentIno]; ok {
		dir.ModifiedAt = time.Now()
	}
}

// mkdirLocked creates one directory under an existing parent.
// Caller holds the lock and has normalized p.
func (m *Manager) mkdirLocked(op, p string) error {
	if p == "/" {
		return nil
	}
	if node, ok := m.resolve(p); ok {
		if node.Type != TypeDirectory {
			return errors.NotDir(op, p)
		}
		return nil
	}
	parentPath, name := Split(p)
	parent, ok := m.resolve(parentPath)
	if !ok {
		return errors.NotFoundf(op, parentPath)
	}
	if parent.Type != TypeDirectory {
		return errors.NotDir(op, parentPath)
	}

	now := time.Now()
	dir := &Inode{
		Ino:        m.allocIno(),
		Type:       TypeDirectory,
		Path:       p,
		Owner:      DefaultOwner,
		Perm:       0o755,
		CreatedAt:  now,
		ModifiedAt: now,
		AccessedAt: now,
	}
	m.nodes[dir.Ino] = dir
	m.dirs[dir.Ino] = nil
	m.addEntry(parent, dir, name)
	return nil
}

// Mkdir creates a directory. Creating an existing directory succeeds
// idempotently; an existing non-directory is a not-a-directory error.
// With recursive, missing ancestors are created first.
func (m *Manager) Mkdir(p string, recursive bool) error {
	const op = "mkdir"
	p, err := Normalize(p)
	if err != nil {
		return err
	}
	invariant.CheckPath("vfs.mkdir", p)

	m.mu.Lock()
	defer m.mu.Unlock()

	if recursive {
		prefix := "/"
		for _, seg := range Segments(p) {
			prefix = Join(prefix, seg)
			if err := m.mkdirLocked(op, prefix); err != nil {
				return err
			}
		}
	} else {
		if err := m.mkdirLocked(op, p); err != nil {
			return err
		}
	}
	m.mutated()
	return nil
}

// createLocked creates a file inode with data. Caller holds the lock.
func (m *Manager) createLocked(op, p string, data []byte, typ NodeType, createParents bool) error {
	if node, ok := m.resolve(p); ok {
		if node.Type == TypeDirectory {
			return errors.IsDir(op, p)
		}
		return errors.Exists(op, p)
	}
	parentPath, name := Split(p)
	if name == "" {
		return errors.Invalid(op, "cannot create root")
	}
	parent, ok := m.resolve(parentPath)
	if !ok {
		if !createParents {
			return errors.NotFoundf(op, parentPath)
		}
		prefix := "/"
		for _, seg := range Segments(parentPath) {
			prefix = Join(prefix, seg)
			if err := m.mkdirLocked(op, prefix); err != nil {
				return err
			}
		}
		parent, _ = m.resolve(parentPath)
	}
	if parent.Type != TypeDirectory {
		return errors.NotDir(op, parentPath)
	}

	now := time.Now()
	node := &Inode{
		Ino:        m.allocIno(),
		Type:       typ,
		Path:       p,
		Data:       append([]byte(nil), data...),
		Owner:      DefaultOwner,
		Perm:       0o644,
		Size:       int64(len(data)),
		CreatedAt:  now,
		ModifiedAt: now,
		AccessedAt: now,
	}
	m.nodes[node.Ino] = node
	m.addEntry(parent, node, name)
	return nil
}

// Create makes a new file holding data. An existing file is an
// already-exists error; an existing directory is is-a-directory. With
// createParents, missing ancestor directories are created first.
func (m *Manager) Create(p string, data []byte, createParents bool) error {
	const op = "create"
	p, err := Normalize(p)
	if err != nil {
		return err
	}
	invariant.CheckPath("vfs.create", p)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createLocked(op, p, data, TypeFile, createParents); err != nil {
		return err
	}
	m.mutated()
	return nil
}

// CreateDeviceNode makes a device-type entry at p, creating parents.
// The device registry calls this when mounting.
func (m *Manager) CreateDeviceNode(p string) error {
	const op = "mknod"
	p, err := Normalize(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.createLocked(op, p, nil, TypeDevice, true); err != nil {
		return err
	}
	m.mutated()
	return nil
}

// Read returns a copy of the file's data and refreshes its access
// time. Directories are is-a-directory errors.
func (m *Manager) Read(p string) ([]byte, error) {
	const op = "read"
	p, err := Normalize(p)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.resolve(p)
	if !ok {
		return nil, errors.NotFoundf(op, p)
	}
	if node.Type == TypeDirectory {
		return nil, errors.IsDir(op, p)
	}
	node.AccessedAt = time.Now()
	return append([]byte(nil), node.Data...), nil
}

// Write replaces the file's data, creating the file when absent. A
// missing parent is a not-found error; directories are is-a-directory.
func (m *Manager) Write(p string, data []byte) error {
	const op = "write"
	p, err := Normalize(p)
	if err != nil {
		return err
	}
	invariant.CheckPath("vfs.write", p)

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.resolve(p)
	if !ok {
		if err := m.createLocked(op, p, data, TypeFile, false); err != nil {
			return err
		}
		m.mutated()
		return nil
	}
	if node.Type == TypeDirectory {
		return errors.IsDir(op, p)
	}
	node.Data = append([]byte(nil), data...)
	node.Size = int64(len(data))
	node.ModifiedAt = time.Now()
	if parentIno, ok := m.parent[node.Ino]; ok {
		if dir, ok := m.nodes[parentIno]; ok {
			dir.ModifiedAt = node.ModifiedAt
		}
	}
	m.mutated()
	return nil
}

// Unlink removes a file or device node. Directories are refused with
// is-a-directory; use Rmdir.
func (m *Manager) Unlink(p string) error {
	const op = "unlink"
	p, err := Normalize(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.resolve(p)
	if !ok {
		return errors.NotFoundf(op, p)
	}
	if node.Type == TypeDirectory {
		return errors.IsDir(op, p)
	}
	m.removeEntry(node)
	delete(m.nodes, node.Ino)
	m.mutated()
	return nil
}

// rmTreeLocked deletes a directory subtree depth-first. Caller holds
// the lock. Fails on the first sub-failure; already-deleted children
// stay deleted (partial deletion is diagnosable via Stat).
func (m *Manager) rmTreeLocked(op string, node *Inode) error {
	ents := append([]Dirent(nil), m.dirs[node.Ino]...)
	for _, ent := range ents {
		child, ok := m.nodes[ent.Ino]
		if !ok {
			invariant.Violate("vfs.rmdir", "dirent %q points at missing inode %d", ent.Name, ent.Ino)
			continue
		}
		if child.Type == TypeDirectory {
			if err := m.rmTreeLocked(op, child); err != nil {
				return err
			}
		}
		m.removeEntry(child)
		delete(m.nodes, child.Ino)
		delete(m.dirs, child.Ino)
	}
	return nil
}

// Rmdir removes a directory. Non-empty directories are refused unless
// recursive, in which case children are deleted depth-first. Root
// cannot be removed.
func (m *Manager) Rmdir(p string, recursive bool) error {
	const op = "rmdir"
	p, err := Normalize(p)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p == "/" {
		return errors.Invalid(op, "cannot remove root")
	}
	node, ok := m.resolve(p)
	if !ok {
		return errors.NotFoundf(op, p)
	}
	if node.Type != TypeDirectory {
		return errors.NotDir(op, p)
	}
	if len(m.dirs[node.Ino]) > 0 {
		if !recursive {
			return errors.NotEmpty(op, p)
		}
		if err := m.rmTreeLocked(op, node); err != nil {
			return err
		}
	}
	m.removeEntry(node)
	delete(m.nodes, node.Ino)
	delete(m.dirs, node.Ino)
	m.mutated()
	return nil
}

// Readdir lists a directory in entry order.
func (m *Manager) Readdir(p string) ([]Dirent, error) {
	const op = "readdir"
	p, err := Normalize(p)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node, ok := m.resolve(p)
	if !ok {
		return nil, errors.NotFoundf(op, p)
	}
	if node.Type != TypeDirectory {
		return nil, errors.NotDir(op, p)
	}
	node.AccessedAt = time.Now()
	return append([]Dirent(nil), m.dirs[node.Ino]...), nil
}

// Stat reports the inode behind p, or false when absent.
func (m *Manager) Stat(p string) (Stats, bool) {
	p, err := Normalize(p)
	if err != nil {
		return Stats{}, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	node, ok := m.resolve(p)
	if !ok {
		return Stats{}, false
	}
	return Stats{
		Ino:        node.Ino,
		Type:       node.Type,
		Path:       node.Path,
		Owner:      node.Owner,
		Perm:       node.Perm,
		Size:       node.Size,
		CreatedAt:  node.CreatedAt,
		ModifiedAt: node.ModifiedAt,
		AccessedAt: node.AccessedAt,
		Links:      node.Links,
	}, true
}

// Exists reports whether p resolves to an entry.
func (m *Manager) Exists(p string) bool {
	_, ok := m.Stat(p)
	return ok
}

// Len returns the number of live inodes, root included.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}

// RecordMount stamps the metadata at kernel boot.
func (m *Manager) RecordMount() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta.LastMountedAt = time.Now()
	m.meta.MountCount++
}

// Metadata returns a copy of the namespace metadata.
func (m *Manager) Metadata() Meta {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.meta
}

// VerifyConsistency sweeps the tables and asserts bidirectional
// inode/directory-entry consistency: every inode except root has
// exactly one parent entry referencing it, every dirent points at a
// live inode, and the back-pointer map agrees with the entries.
func (m *Manager) VerifyConsistency(source string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	referenced := make(map[Ino]int, len(m.nodes))
	for dirIno, ents := range m.dirs {
		dir, ok := m.nodes[dirIno]
		invariant.Check(source, ok, "directory table holds unknown inode %d", dirIno)
		if ok {
			invariant.Check(source, dir.Type == TypeDirectory,
				"directory table holds non-directory inode %d (%s)", dirIno, dir.Type)
		}
		for _, ent := range ents {
			referenced[ent.Ino]++
			child, ok := m.nodes[ent.Ino]
			invariant.Check(source, ok, "dirent %q points at missing inode %d", ent.Name, ent.Ino)
			if ok {
				invariant.Check(source, child.Type == ent.Type,
					"dirent %q type %s disagrees with inode type %s", ent.Name, ent.Type, child.Type)
			}
			invariant.Check(source, m.parent[ent.Ino] == dirIno,
				"inode %d back-pointer disagrees with its dirent", ent.Ino)
		}
	}
	for ino := range m.nodes {
		if ino == RootIno {
			invariant.Check(source, referenced[ino] == 0, "root has a parent entry")
			continue
		}
		invariant.Check(source, referenced[ino] == 1,
			"inode %d referenced by %d parent entries, want exactly 1", ino, referenced[ino])
	}

	Logger().Debug("consistency sweep complete",
		zap.Int("inodes", len(m.nodes)),
		zap.Int("directories", len(m.dirs)),
	)
}
