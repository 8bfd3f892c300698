// Package paths layers string keys over the kv
// engine, whose native key space is int64: a path is hashed down to a
// Key, with the original string stored alongside the value so
// collisions can be detected and listings can recover the real name.
package paths

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
	"github.com/kartikbazzad/ustorekv/internal/kv"
)

// ToKey deterministically maps a string path onto a kv.Key. Collisions
// across distinct paths are possible (the hash space is smaller than
// arbitrary strings); Put detects them by comparing the stored path.
func ToKey(path string) kv.Key {
	h := fnv.New64a()
	h.Write([]byte(path))
	sum := h.Sum64()
	// Fold into the signed range kv.Key (int64) occupies, keeping the
	// top bit clear so every ToKey output is a valid, non-negative Key.
	return kv.Key(sum &^ (1 << 63))
}

func encodeRecord(path string, value []byte) []byte {
	buf := make([]byte, 4+len(path)+len(value))
	binary.LittleEndian.PutUint32(buf, uint32(len(path)))
	copy(buf[4:], path)
	copy(buf[4+len(path):], value)
	return buf
}

func decodeRecord(data []byte) (path string, value []byte, err error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("%w: malformed path record", kverrors.ErrCorruption)
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) < 4+n {
		return "", nil, fmt.Errorf("%w: malformed path record", kverrors.ErrCorruption)
	}
	return string(data[4 : 4+n]), data[4+n:], nil
}

// Put writes value under path, hashed to its kv.Key.
func Put(db *kv.Database, col kv.CollectionID, path string, value []byte) error {
	key := ToKey(path)
	if existing, ok, err := lookupRaw(db, col, key); err == nil && ok {
		if existingPath, _, derr := decodeRecord(existing); derr == nil && existingPath != path {
			return fmt.Errorf("%w: path hash collision between %q and %q", kverrors.ErrConflict, path, existingPath)
		}
	}
	return db.Write(kv.One(col), kv.Many([]kv.Key{key}), kv.Many([][]byte{encodeRecord(path, value)}), 0)
}

// Get resolves path and returns its value, failing if a different path
// collided onto the same key.
func Get(db *kv.Database, col kv.CollectionID, path string) ([]byte, error) {
	key := ToKey(path)
	raw, ok, err := lookupRaw(db, col, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: path %q", kverrors.ErrNotFound, path)
	}
	storedPath, value, err := decodeRecord(raw)
	if err != nil {
		return nil, err
	}
	if storedPath != path {
		return nil, fmt.Errorf("%w: path %q", kverrors.ErrNotFound, path)
	}
	return value, nil
}

// Delete removes path's entry, if it resolves to one.
func Delete(db *kv.Database, col kv.CollectionID, path string) error {
	key := ToKey(path)
	raw, ok, err := lookupRaw(db, col, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if storedPath, _, derr := decodeRecord(raw); derr == nil && storedPath != path {
		return nil
	}
	return db.Write(kv.One(col), kv.Many([]kv.Key{key}), kv.Many([][]byte{nil}), 0)
}

func lookupRaw(db *kv.Database, col kv.CollectionID, key kv.Key) ([]byte, bool, error) {
	res, err := db.Read(kv.One(col), kv.Many([]kv.Key{key}), nil, 0)
	if err != nil {
		return nil, false, err
	}
	v, ok := res.Value(0)
	return v, ok, nil
}
