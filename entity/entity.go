package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/fd"
	"github.com/loredeck/vkernel/vfs"
)

// DefaultRoot is the entity subtree reserved at kernel boot.
const DefaultRoot = "/home/entities"

// Record is one user-level entity, stored as a JSON file under the
// entity subtree. The kernel knows nothing about its shape; Attrs is
// opaque caller data.
type Record struct {
	ID        uuid.UUID      `json:"id"`
	Kind      string         `json:"kind"`
	Name      string         `json:"name"`
	Attrs     map[string]any `json:"attrs,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Syscalls is the slice of the kernel surface the store needs. All
// entity I/O is descriptor-mediated; the store never touches the
// namespace tables directly.
type Syscalls interface {
	Open(path string, mode fd.Mode) (int, error)
	Read(fdnum int) ([]byte, error)
	Write(fdnum int, data []byte) error
	Close(fdnum int) error
	Unlink(path string) error
	Readdir(path string) ([]vfs.Dirent, error)
	Exists(path string) bool
}

// Store manages entity records under one subtree.
type Store struct {
	k    Syscalls
	root string
}

// NewStore creates a store rooted at root; empty selects DefaultRoot.
// The root directory must already exist (the kernel reserves
// DefaultRoot at boot).
func NewStore(k Syscalls, root string) *Store {
	if root == "" {
		root = DefaultRoot
	}
	return &Store{k: k, root: root}
}

func (s *Store) path(id uuid.UUID) string {
	return vfs.Join(s.root, id.String())
}

// readRecord loads one record through the descriptor surface.
func (s *Store) readRecord(op string, id uuid.UUID) (Record, error) {
	fdnum, err := s.k.Open(s.path(id), fd.Read)
	if err != nil {
		if errors.CodeOf(err) == errors.NotFound {
			return Record{}, s.missing(op, id)
		}
		return Record{}, err
	}
	defer func() { _ = s.k.Close(fdnum) }()

	blob, err := s.k.Read(fdnum)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(blob, &rec); err != nil {
		return Record{}, errors.Wrap(op, errors.ValidationFailed, err, "entity record is not valid json")
	}
	return rec, nil
}

// writeRecord stores one record through the descriptor surface.
func (s *Store) writeRecord(id uuid.UUID, rec Record) error {
	blob, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap("write", errors.ValidationFailed, err, "marshal entity record")
	}
	fdnum, err := s.k.Open(s.path(id), fd.Write|fd.Create)
	if err != nil {
		return err
	}
	defer func() { _ = s.k.Close(fdnum) }()
	return s.k.Write(fdnum, blob)
}

func (s *Store) missing(op string, id uuid.UUID) *errors.Error {
	return errors.New(op, errors.EntityNotFound).
		Path(s.path(id)).
		Detail("no entity %s", id).
		Build()
}

// Create stores a new record. A zero ID is assigned; an existing ID
// is an already-exists error. The stored record is returned with its
// timestamps stamped.
func (s *Store) Create(rec Record) (Record, error) {
	const op = "createEntity"

	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if s.k.Exists(s.path(rec.ID)) {
		return Record{}, errors.Exists(op, s.path(rec.ID))
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := s.writeRecord(rec.ID, rec); err != nil {
		return Record{}, err
	}
	Logger().Debug("entity created",
		zap.String("id", rec.ID.String()),
		zap.String("kind", rec.Kind),
	)
	return rec, nil
}

// Get loads a record by id.
func (s *Store) Get(id uuid.UUID) (Record, error) {
	return s.readRecord("getEntity", id)
}

// Update loads the record, applies mutate in memory, stamps UpdatedAt
// and writes it back. The record's identity fields are protected:
// mutate cannot change ID or CreatedAt.
func (s *Store) Update(id uuid.UUID, mutate func(*Record) error) (Record, error) {
	const op = "updateEntity"

	rec, err := s.readRecord(op, id)
	if err != nil {
		return Record{}, err
	}
	origID, origCreated := rec.ID, rec.CreatedAt
	if err := mutate(&rec); err != nil {
		return Record{}, err
	}
	rec.ID, rec.CreatedAt = origID, origCreated
	rec.UpdatedAt = time.Now()

	if err := s.writeRecord(id, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Remove unlinks a record.
func (s *Store) Remove(id uuid.UUID) error {
	const op = "removeEntity"

	err := s.k.Unlink(s.path(id))
	if errors.CodeOf(err) == errors.NotFound {
		return s.missing(op, id)
	}
	return err
}

// List returns the ids of every stored record, in directory order.
// Entries that are not uuid-named are skipped.
func (s *Store) List() ([]uuid.UUID, error) {
	ents, err := s.k.Readdir(s.root)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(ents))
	for _, ent := range ents {
		if ent.Type != vfs.TypeFile {
			continue
		}
		id, err := uuid.Parse(ent.Name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
