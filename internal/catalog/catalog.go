// Package catalog is the server layer's append-only registry of named
// database handles: each entry binds a database id to a directory name
// and a lifecycle status, so a multi-database ustorekv server can list,
// open, and drop databases by name across restarts.
package catalog

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kartikbazzad/ustorekv/internal/logger"
)

var (
	ErrCatalogLoad  = errors.New("failed to load catalog")
	ErrCatalogWrite = errors.New("failed to write catalog")
	ErrDBExists     = errors.New("database already exists")
	ErrDBNotFound   = errors.New("database not found")
	ErrInvalidName  = errors.New("invalid database name")
)

// Status is a catalog entry's lifecycle state.
type Status byte

const (
	StatusActive Status = iota
	StatusDeleted
)

// Entry is one registered database.
type Entry struct {
	ID        uint64
	Name      string
	Directory string
	CreatedAt time.Time
	Status    Status
}

const (
	idSize     = 8
	nameLen    = 2
	dirLen     = 2
	statusSize = 1
	entryFixed = idSize + nameLen + dirLen + statusSize
)

// Catalog is an append-only binary log of (id, name, directory, status)
// entries, replayed in full on Load. Entries are never rewritten in
// place; a status change is appended as a new record for the same id.
type Catalog struct {
	mu      sync.RWMutex
	file    *os.File
	path    string
	entries map[uint64]*Entry
	names   map[string]uint64
	nextID  uint64
	logger  *logger.Logger
}

func New(path string, log *logger.Logger) *Catalog {
	return &Catalog{
		path:    path,
		entries: make(map[uint64]*Entry),
		names:   make(map[string]uint64),
		logger:  log,
	}
}

func (c *Catalog) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}

	file, err := os.OpenFile(c.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return ErrCatalogLoad
	}
	c.file = file
	c.nextID = 1

	data, err := os.ReadFile(c.path)
	if err != nil {
		return ErrCatalogLoad
	}

	offset := 0
	for offset < len(data) {
		if offset+entryFixed > len(data) {
			break
		}
		id := binary.LittleEndian.Uint64(data[offset:])
		offset += idSize
		nl := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += nameLen
		dl := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += dirLen
		status := Status(data[offset])
		offset += statusSize

		if offset+nl+dl > len(data) {
			break
		}
		name := string(data[offset : offset+nl])
		offset += nl
		dir := string(data[offset : offset+dl])
		offset += dl

		entry := &Entry{ID: id, Name: name, Directory: dir, CreatedAt: time.Now(), Status: status}
		c.entries[id] = entry
		if status == StatusActive {
			c.names[name] = id
		} else {
			delete(c.names, name)
		}
		if id >= c.nextID {
			c.nextID = id + 1
		}
	}

	if c.logger != nil {
		c.logger.Info("catalog loaded: %d databases", len(c.entries))
	}
	return nil
}

func validateName(name string) error {
	if name == "" || len(name) > 255 {
		return ErrInvalidName
	}
	return nil
}

// Create registers a new database name bound to a storage directory.
func (c *Catalog) Create(name, directory string) (uint64, error) {
	if err := validateName(name); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.names[name]; exists {
		return 0, ErrDBExists
	}

	id := c.nextID
	entry := &Entry{ID: id, Name: name, Directory: directory, CreatedAt: time.Now(), Status: StatusActive}
	if err := c.appendEntry(entry); err != nil {
		return 0, err
	}
	c.nextID++
	c.entries[id] = entry
	c.names[name] = id

	if c.logger != nil {
		c.logger.Info("registered database %q (id=%d)", name, id)
	}
	return id, nil
}

// Drop marks a database deleted. The directory itself is left untouched;
// deleting it is the caller's responsibility.
func (c *Catalog) Drop(id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[id]
	if !exists || entry.Status != StatusActive {
		return ErrDBNotFound
	}

	tombstone := &Entry{ID: id, Name: entry.Name, Directory: entry.Directory, CreatedAt: time.Now(), Status: StatusDeleted}
	if err := c.appendEntry(tombstone); err != nil {
		return err
	}
	c.entries[id] = tombstone
	delete(c.names, entry.Name)

	if c.logger != nil {
		c.logger.Info("dropped database %q (id=%d)", entry.Name, id)
	}
	return nil
}

func (c *Catalog) Get(id uint64) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, exists := c.entries[id]
	if !exists || entry.Status != StatusActive {
		return nil, ErrDBNotFound
	}
	return entry, nil
}

func (c *Catalog) GetByName(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, exists := c.names[name]
	if !exists {
		return nil, ErrDBNotFound
	}
	return c.entries[id], nil
}

func (c *Catalog) List() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		if e.Status == StatusActive {
			out = append(out, e)
		}
	}
	return out
}

func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file != nil {
		return c.file.Close()
	}
	return nil
}

func (c *Catalog) appendEntry(e *Entry) error {
	buf := make([]byte, entryFixed+len(e.Name)+len(e.Directory))
	offset := 0
	binary.LittleEndian.PutUint64(buf[offset:], e.ID)
	offset += idSize
	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(e.Name)))
	offset += nameLen
	binary.LittleEndian.PutUint16(buf[offset:], uint16(len(e.Directory)))
	offset += dirLen
	buf[offset] = byte(e.Status)
	offset += statusSize
	copy(buf[offset:], e.Name)
	offset += len(e.Name)
	copy(buf[offset:], e.Directory)

	if _, err := c.file.Write(buf); err != nil {
		return ErrCatalogWrite
	}
	return c.file.Sync()
}
