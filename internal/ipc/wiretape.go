package ipc

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/kartikbazzad/ustorekv/internal/kv"
)

// The data sub-protocol (DataRead/DataWrite/DataScan/DataSize) carries
// one collection per frame — batching across multiple collections in a
// single strided call is a core-library feature (kv.Strided) that the
// wire protocol does not need to expose 1:1; a client that wants it
// issues one frame per collection. Everything else mirrors spec.md's
// tape/offsets contract directly.

const lengthMissingWire = 0xFFFFFFFF

// EncodeReadRequest builds a DataRead payload (sub-op already consumed
// by the caller): collection, snapshot id (0 = head), option bits, an
// optional transaction handle (the zero uuid means "none, read head
// or the given snapshot instead"), and the flattened key list.
func EncodeReadRequest(col kv.CollectionID, snapshotID uint64, opts kv.Options, txHandle uuid.UUID, keys []kv.Key) []byte {
	buf := make([]byte, 8+8+4+16+4+8*len(keys))
	o := 0
	binary.LittleEndian.PutUint64(buf[o:], uint64(col))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], snapshotID)
	o += 8
	binary.LittleEndian.PutUint32(buf[o:], uint32(opts))
	o += 4
	copy(buf[o:], txHandle[:])
	o += 16
	binary.LittleEndian.PutUint32(buf[o:], uint32(len(keys)))
	o += 4
	for _, k := range keys {
		binary.LittleEndian.PutUint64(buf[o:], uint64(k))
		o += 8
	}
	return buf
}

func DecodeReadRequest(data []byte) (col kv.CollectionID, snapshotID uint64, opts kv.Options, txHandle uuid.UUID, keys []kv.Key, err error) {
	if len(data) < 40 {
		return 0, 0, 0, uuid.UUID{}, nil, ErrInvalidFrame
	}
	o := 0
	col = kv.CollectionID(binary.LittleEndian.Uint64(data[o:]))
	o += 8
	snapshotID = binary.LittleEndian.Uint64(data[o:])
	o += 8
	opts = kv.Options(binary.LittleEndian.Uint32(data[o:]))
	o += 4
	copy(txHandle[:], data[o:o+16])
	o += 16
	n := int(binary.LittleEndian.Uint32(data[o:]))
	o += 4
	if len(data) < o+8*n {
		return 0, 0, 0, uuid.UUID{}, nil, ErrInvalidFrame
	}
	keys = make([]kv.Key, n)
	for i := 0; i < n; i++ {
		keys[i] = kv.Key(binary.LittleEndian.Uint64(data[o:]))
		o += 8
	}
	return col, snapshotID, opts, txHandle, keys, nil
}

// EncodeReadResponse flattens a kv.ReadResult into the tape/offsets/
// presence wire form.
func EncodeReadResponse(res *kv.ReadResult, n int) []byte {
	offs := res.Offsets()
	size := 4 + n + 4*(n+1)
	tape := make([]byte, 0, n*8)
	for i := 0; i < n; i++ {
		v, _ := res.Value(i)
		tape = append(tape, v...)
	}
	buf := make([]byte, size+len(tape))
	o := 0
	binary.LittleEndian.PutUint32(buf[o:], uint32(n))
	o += 4
	for i := 0; i < n; i++ {
		if res.Presence(i) {
			buf[o] = 1
		}
		o++
	}
	for _, off := range offs {
		binary.LittleEndian.PutUint32(buf[o:], off)
		o += 4
	}
	copy(buf[o:], tape)
	return buf
}

// EncodeWriteRequest builds a DataWrite payload; a nil entry in
// contents encodes as the LengthMissing wire sentinel (deletion). A
// non-zero txHandle routes the write into that transaction's overlay
// instead of the head collection.
func EncodeWriteRequest(col kv.CollectionID, opts kv.Options, txHandle uuid.UUID, keys []kv.Key, contents [][]byte) []byte {
	size := 8 + 4 + 16 + 4
	for _, c := range contents {
		size += 8 + 4 + len(c)
	}
	buf := make([]byte, size)
	o := 0
	binary.LittleEndian.PutUint64(buf[o:], uint64(col))
	o += 8
	binary.LittleEndian.PutUint32(buf[o:], uint32(opts))
	o += 4
	copy(buf[o:], txHandle[:])
	o += 16
	binary.LittleEndian.PutUint32(buf[o:], uint32(len(keys)))
	o += 4
	for i, k := range keys {
		binary.LittleEndian.PutUint64(buf[o:], uint64(k))
		o += 8
		c := contents[i]
		if c == nil {
			binary.LittleEndian.PutUint32(buf[o:], lengthMissingWire)
			o += 4
			continue
		}
		binary.LittleEndian.PutUint32(buf[o:], uint32(len(c)))
		o += 4
		copy(buf[o:], c)
		o += len(c)
	}
	return buf[:o]
}

func DecodeWriteRequest(data []byte) (col kv.CollectionID, opts kv.Options, txHandle uuid.UUID, keys []kv.Key, contents [][]byte, err error) {
	if len(data) < 32 {
		return 0, 0, uuid.UUID{}, nil, nil, ErrInvalidFrame
	}
	o := 0
	col = kv.CollectionID(binary.LittleEndian.Uint64(data[o:]))
	o += 8
	opts = kv.Options(binary.LittleEndian.Uint32(data[o:]))
	o += 4
	copy(txHandle[:], data[o:o+16])
	o += 16
	n := int(binary.LittleEndian.Uint32(data[o:]))
	o += 4

	keys = make([]kv.Key, n)
	contents = make([][]byte, n)
	for i := 0; i < n; i++ {
		if len(data) < o+12 {
			return 0, 0, uuid.UUID{}, nil, nil, ErrInvalidFrame
		}
		keys[i] = kv.Key(binary.LittleEndian.Uint64(data[o:]))
		o += 8
		l := binary.LittleEndian.Uint32(data[o:])
		o += 4
		if l == lengthMissingWire {
			contents[i] = nil
			continue
		}
		if len(data) < o+int(l) {
			return 0, 0, uuid.UUID{}, nil, nil, ErrInvalidFrame
		}
		contents[i] = make([]byte, l)
		copy(contents[i], data[o:o+int(l)])
		o += int(l)
	}
	return col, opts, txHandle, keys, contents, nil
}

// EncodeScanRequest builds a DataScan payload for one range. txHandle
// non-zero routes the scan through that transaction's overlay merge
// (Transaction.Scan) instead of the head/snapshot path.
func EncodeScanRequest(col kv.CollectionID, snapshotID uint64, opts kv.Options, txHandle uuid.UUID, start, end kv.Key, limit int) []byte {
	buf := make([]byte, 8+8+4+16+8+8+4)
	o := 0
	binary.LittleEndian.PutUint64(buf[o:], uint64(col))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], snapshotID)
	o += 8
	binary.LittleEndian.PutUint32(buf[o:], uint32(opts))
	o += 4
	copy(buf[o:], txHandle[:])
	o += 16
	binary.LittleEndian.PutUint64(buf[o:], uint64(start))
	o += 8
	binary.LittleEndian.PutUint64(buf[o:], uint64(end))
	o += 8
	binary.LittleEndian.PutUint32(buf[o:], uint32(limit))
	return buf
}

func DecodeScanRequest(data []byte) (col kv.CollectionID, snapshotID uint64, opts kv.Options, txHandle uuid.UUID, start, end kv.Key, limit int, err error) {
	if len(data) < 56 {
		return 0, 0, 0, uuid.UUID{}, 0, 0, 0, ErrInvalidFrame
	}
	o := 0
	col = kv.CollectionID(binary.LittleEndian.Uint64(data[o:]))
	o += 8
	snapshotID = binary.LittleEndian.Uint64(data[o:])
	o += 8
	opts = kv.Options(binary.LittleEndian.Uint32(data[o:]))
	o += 4
	copy(txHandle[:], data[o:o+16])
	o += 16
	start = kv.Key(binary.LittleEndian.Uint64(data[o:]))
	o += 8
	end = kv.Key(binary.LittleEndian.Uint64(data[o:]))
	o += 8
	limit = int(binary.LittleEndian.Uint32(data[o:]))
	return col, snapshotID, opts, txHandle, start, end, limit, nil
}

// EncodeScanResponse flattens one task's result keys.
func EncodeScanResponse(keys []kv.Key) []byte {
	buf := make([]byte, 4+8*len(keys))
	binary.LittleEndian.PutUint32(buf, uint32(len(keys)))
	o := 4
	for _, k := range keys {
		binary.LittleEndian.PutUint64(buf[o:], uint64(k))
		o += 8
	}
	return buf
}

func DecodeScanResponse(data []byte) ([]kv.Key, error) {
	if len(data) < 4 {
		return nil, ErrInvalidFrame
	}
	n := int(binary.LittleEndian.Uint32(data))
	if len(data) < 4+8*n {
		return nil, ErrInvalidFrame
	}
	out := make([]kv.Key, n)
	o := 4
	for i := 0; i < n; i++ {
		out[i] = kv.Key(binary.LittleEndian.Uint64(data[o:]))
		o += 8
	}
	return out, nil
}

// EncodeSizeResponse serializes a kv.SizeEstimate's six counters.
func EncodeSizeResponse(est kv.SizeEstimate) []byte {
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint64(buf[0:], est.MinCardinality)
	binary.LittleEndian.PutUint64(buf[8:], est.MaxCardinality)
	binary.LittleEndian.PutUint64(buf[16:], est.MinValueBytes)
	binary.LittleEndian.PutUint64(buf[24:], est.MaxValueBytes)
	binary.LittleEndian.PutUint64(buf[32:], est.MinSpaceUsage)
	binary.LittleEndian.PutUint64(buf[40:], est.MaxSpaceUsage)
	return buf
}
