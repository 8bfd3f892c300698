// Package documents layers hierarchical JSON/MessagePack field-path
// access over the kv engine: a document is stored as one opaque value
// under its key, and Get/Set address a dotted field path inside it
// without the core engine ever parsing document structure itself.
package documents

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/ugorji/go/codec"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
	"github.com/kartikbazzad/ustorekv/internal/kv"
)

// Format selects the on-the-wire document encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatMessagePack
)

var mpHandle = func() codec.MsgpackHandle {
	var h codec.MsgpackHandle
	h.MapType = reflect.TypeOf(map[string]interface{}{})
	return h
}()

func decode(format Format, data []byte) (interface{}, error) {
	var v interface{}
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", kverrors.ErrInvalidArgument, err)
		}
	case FormatMessagePack:
		if err := codec.NewDecoderBytes(data, &mpHandle).Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", kverrors.ErrInvalidArgument, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown document format", kverrors.ErrInvalidArgument)
	}
	return v, nil
}

func encode(format Format, v interface{}) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.Marshal(v)
	case FormatMessagePack:
		var buf []byte
		if err := codec.NewEncoderBytes(&buf, &mpHandle).Encode(v); err != nil {
			return nil, err
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("%w: unknown document format", kverrors.ErrInvalidArgument)
	}
}

// Put writes a whole document at key as its own kv value.
func Put(db *kv.Database, col kv.CollectionID, key kv.Key, format Format, doc interface{}) error {
	payload, err := encode(format, doc)
	if err != nil {
		return err
	}
	return db.Write(kv.One(col), kv.Many([]kv.Key{key}), kv.Many([][]byte{payload}), 0)
}

// Get reads a whole document back, decoded per format.
func Get(db *kv.Database, col kv.CollectionID, key kv.Key, format Format) (interface{}, error) {
	res, err := db.Read(kv.One(col), kv.Many([]kv.Key{key}), nil, 0)
	if err != nil {
		return nil, err
	}
	v, ok := res.Value(0)
	if !ok {
		return nil, fmt.Errorf("%w: document key %d", kverrors.ErrNotFound, key)
	}
	return decode(format, v)
}

// GetField returns the value addressed by a dotted field path inside
// the document stored at key (e.g. "address.city" or "tags.0").
func GetField(db *kv.Database, col kv.CollectionID, key kv.Key, format Format, path string) (interface{}, error) {
	doc, err := Get(db, col, key, format)
	if err != nil {
		return nil, err
	}
	return navigate(doc, splitPath(path))
}

// SetField writes a value at a dotted field path inside the document
// stored at key, creating intermediate maps as needed, then
// re-persists the whole document.
func SetField(db *kv.Database, col kv.CollectionID, key kv.Key, format Format, path string, value interface{}) error {
	var doc interface{}
	res, err := db.Read(kv.One(col), kv.Many([]kv.Key{key}), nil, 0)
	if err != nil {
		return err
	}
	if v, ok := res.Value(0); ok {
		doc, err = decode(format, v)
		if err != nil {
			return err
		}
	} else {
		doc = map[string]interface{}{}
	}

	doc, err = assign(doc, splitPath(path), value)
	if err != nil {
		return err
	}
	return Put(db, col, key, format, doc)
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func navigate(v interface{}, path []string) (interface{}, error) {
	if len(path) == 0 {
		return v, nil
	}
	switch node := v.(type) {
	case map[string]interface{}:
		child, ok := node[path[0]]
		if !ok {
			return nil, fmt.Errorf("%w: field %q", kverrors.ErrNotFound, path[0])
		}
		return navigate(child, path[1:])
	case []interface{}:
		idx, err := strconv.Atoi(path[0])
		if err != nil || idx < 0 || idx >= len(node) {
			return nil, fmt.Errorf("%w: index %q", kverrors.ErrInvalidArgument, path[0])
		}
		return navigate(node[idx], path[1:])
	default:
		return nil, fmt.Errorf("%w: field %q is not traversable", kverrors.ErrInvalidArgument, path[0])
	}
}

func assign(v interface{}, path []string, value interface{}) (interface{}, error) {
	if len(path) == 0 {
		return value, nil
	}
	node, ok := v.(map[string]interface{})
	if !ok {
		node = map[string]interface{}{}
	}
	child := node[path[0]]
	updated, err := assign(child, path[1:], value)
	if err != nil {
		return nil, err
	}
	node[path[0]] = updated
	return node, nil
}
