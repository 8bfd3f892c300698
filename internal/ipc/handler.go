package ipc

import (
	"encoding/binary"

	"github.com/google/uuid"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
	"github.com/kartikbazzad/ustorekv/internal/kv"
	"github.com/kartikbazzad/ustorekv/internal/pool"
)

// Handler dispatches decoded RequestFrames against the pool, the way
// the teacher's Handler dispatches against its worker pool, but over
// the kv engine's command set instead of document CRUD.
type Handler struct {
	pool *pool.Pool
}

func NewHandler(p *pool.Pool) *Handler {
	return &Handler{pool: p}
}

func errResponse(requestID uuid.UUID, err error) *ResponseFrame {
	return &ResponseFrame{RequestID: requestID, Status: StatusFor(err), Data: []byte(err.Error())}
}

func (h *Handler) Handle(frame *RequestFrame) *ResponseFrame {
	resp := &ResponseFrame{RequestID: frame.RequestID, Status: StatusOK}

	switch frame.Command {
	case CmdDatabaseInit:
		if len(frame.Payload) == 0 {
			return errResponse(frame.RequestID, kverrors.ErrInvalidArgument)
		}
		id, err := h.pool.OpenOrCreateDB(string(frame.Payload))
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		resp.Data = make([]byte, 8)
		binary.LittleEndian.PutUint64(resp.Data, id)
		return resp

	case CmdDatabaseFree:
		if err := h.pool.CloseDB(frame.DBID); err != nil {
			return errResponse(frame.RequestID, err)
		}
		return resp

	case CmdDatabaseControl:
		db, err := h.pool.Database(frame.DBID)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		if len(frame.Payload) == 0 {
			return errResponse(frame.RequestID, kverrors.ErrInvalidArgument)
		}
		data, err := db.Control(string(frame.Payload), nil)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		resp.Data = data
		return resp

	case CmdCollectionList:
		db, err := h.pool.Database(frame.DBID)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		var snap *kv.Snapshot
		if len(frame.Payload) >= 8 {
			snap = resolveSnapshot(db, binary.LittleEndian.Uint64(frame.Payload))
		}
		ids, names := db.ListCollections(snap)
		resp.Data = encodeCollectionList(ids, names)
		return resp

	case CmdCollectionCreate:
		db, err := h.pool.Database(frame.DBID)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		name, cfg := splitNameConfig(frame.Payload)
		id, err := db.CreateCollection(name, cfg)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		resp.Data = make([]byte, 8)
		binary.LittleEndian.PutUint64(resp.Data, uint64(id))
		return resp

	case CmdCollectionDrop:
		db, err := h.pool.Database(frame.DBID)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		if len(frame.Payload) < 9 {
			return errResponse(frame.RequestID, kverrors.ErrInvalidArgument)
		}
		id := kv.CollectionID(binary.LittleEndian.Uint64(frame.Payload))
		mode := kv.DropMode(frame.Payload[8])
		if err := db.DropCollection(id, mode); err != nil {
			return errResponse(frame.RequestID, err)
		}
		return resp

	case CmdTransactionInit:
		handle, err := h.pool.BeginTransaction(frame.DBID)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		resp.Data = handle[:]
		return resp

	case CmdTransactionStage, CmdTransactionCommit, CmdTransactionFree:
		handle, err := decodeUUID(frame.Payload)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		tx, err := h.pool.Transaction(handle)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		switch frame.Command {
		case CmdTransactionStage:
			err = tx.Stage()
		case CmdTransactionCommit:
			err = tx.Commit(0)
		case CmdTransactionFree:
			tx.Abort()
		}
		if frame.Command != CmdTransactionStage {
			h.pool.EndTransaction(handle)
		}
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		return resp

	case CmdSnapshot:
		return h.handleSnapshot(frame)

	case CmdData:
		return h.handleData(frame)

	default:
		return errResponse(frame.RequestID, kverrors.ErrNotImplemented)
	}
}

func (h *Handler) handleSnapshot(frame *RequestFrame) *ResponseFrame {
	db, err := h.pool.Database(frame.DBID)
	if err != nil {
		return errResponse(frame.RequestID, err)
	}
	if len(frame.Payload) == 0 {
		return errResponse(frame.RequestID, kverrors.ErrInvalidArgument)
	}
	resp := &ResponseFrame{RequestID: frame.RequestID, Status: StatusOK}
	sub := frame.Payload[0]
	body := frame.Payload[1:]

	switch sub {
	case SnapshotCreate:
		snap := db.Snapshots().Create()
		resp.Data = make([]byte, 8)
		binary.LittleEndian.PutUint64(resp.Data, snap.ID())
		return resp
	case SnapshotList:
		ids := db.Snapshots().List()
		resp.Data = make([]byte, 4+8*len(ids))
		binary.LittleEndian.PutUint32(resp.Data, uint32(len(ids)))
		for i, id := range ids {
			binary.LittleEndian.PutUint64(resp.Data[4+8*i:], id)
		}
		return resp
	case SnapshotDrop:
		if len(body) < 8 {
			return errResponse(frame.RequestID, kverrors.ErrInvalidArgument)
		}
		id := binary.LittleEndian.Uint64(body)
		if err := db.Snapshots().Drop(id); err != nil {
			return errResponse(frame.RequestID, err)
		}
		return resp
	case SnapshotExport:
		if len(body) < 8 {
			return errResponse(frame.RequestID, kverrors.ErrInvalidArgument)
		}
		id := binary.LittleEndian.Uint64(body)
		snap, ok := db.Snapshots().Get(id)
		if !ok {
			return errResponse(frame.RequestID, kverrors.ErrNotFound)
		}
		targetDir := string(body[8:])
		if err := db.Snapshots().Export(snap, targetDir); err != nil {
			return errResponse(frame.RequestID, err)
		}
		return resp
	default:
		return errResponse(frame.RequestID, kverrors.ErrNotImplemented)
	}
}

func (h *Handler) handleData(frame *RequestFrame) *ResponseFrame {
	db, err := h.pool.Database(frame.DBID)
	if err != nil {
		return errResponse(frame.RequestID, err)
	}
	if len(frame.Payload) == 0 {
		return errResponse(frame.RequestID, kverrors.ErrInvalidArgument)
	}
	resp := &ResponseFrame{RequestID: frame.RequestID, Status: StatusOK}
	sub := frame.Payload[0]
	body := frame.Payload[1:]

	switch sub {
	case DataRead:
		col, snapID, opts, txHandle, keys, derr := DecodeReadRequest(body)
		if derr != nil {
			return errResponse(frame.RequestID, derr)
		}
		if tx, ok, err := h.resolveTransaction(txHandle); err != nil {
			return errResponse(frame.RequestID, err)
		} else if ok {
			res, err := tx.Read(kv.One(col), kv.Many(keys), opts)
			if err != nil {
				return errResponse(frame.RequestID, err)
			}
			resp.Data = EncodeReadResponse(res, len(keys))
			return resp
		}
		snap := resolveSnapshot(db, snapID)
		res, err := db.Read(kv.One(col), kv.Many(keys), snap, opts)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		resp.Data = EncodeReadResponse(res, len(keys))
		return resp

	case DataWrite:
		col, opts, txHandle, keys, contents, derr := DecodeWriteRequest(body)
		if derr != nil {
			return errResponse(frame.RequestID, derr)
		}
		if tx, ok, err := h.resolveTransaction(txHandle); err != nil {
			return errResponse(frame.RequestID, err)
		} else if ok {
			if err := tx.Write(kv.One(col), kv.Many(keys), kv.Many(contents)); err != nil {
				return errResponse(frame.RequestID, err)
			}
			return resp
		}
		if err := db.Write(kv.One(col), kv.Many(keys), kv.Many(contents), opts); err != nil {
			return errResponse(frame.RequestID, err)
		}
		return resp

	case DataScan:
		col, snapID, opts, txHandle, start, end, limit, derr := DecodeScanRequest(body)
		if derr != nil {
			return errResponse(frame.RequestID, derr)
		}
		task := kv.ScanTask{Collection: col, Start: start, End: end, Limit: limit}
		if tx, ok, err := h.resolveTransaction(txHandle); err != nil {
			return errResponse(frame.RequestID, err)
		} else if ok {
			res, err := tx.Scan([]kv.ScanTask{task})
			if err != nil {
				return errResponse(frame.RequestID, err)
			}
			resp.Data = EncodeScanResponse(res.Keys)
			return resp
		}
		snap := resolveSnapshot(db, snapID)
		res, err := db.Scan([]kv.ScanTask{task}, snap, opts)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		resp.Data = EncodeScanResponse(res.Keys)
		return resp

	case DataSize:
		col, _, _, txHandle, start, end, _, derr := DecodeScanRequest(body)
		if derr != nil {
			return errResponse(frame.RequestID, derr)
		}
		tx, _, err := h.resolveTransaction(txHandle)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		est, err := db.Size(kv.ScanTask{Collection: col, Start: start, End: end}, tx)
		if err != nil {
			return errResponse(frame.RequestID, err)
		}
		resp.Data = EncodeSizeResponse(est)
		return resp

	default:
		return errResponse(frame.RequestID, kverrors.ErrNotImplemented)
	}
}

// resolveTransaction looks up a Data frame's optional transaction
// handle. The zero uuid means "no transaction" (ok=false); any other
// value must resolve to a live handle via the pool or the frame is
// rejected, since a non-zero handle that doesn't resolve is a client
// bug (stale or forged handle), not "fall back to head".
func (h *Handler) resolveTransaction(handle uuid.UUID) (tx *kv.Transaction, ok bool, err error) {
	if handle == uuid.Nil {
		return nil, false, nil
	}
	tx, err = h.pool.Transaction(handle)
	if err != nil {
		return nil, false, err
	}
	return tx, true, nil
}

func resolveSnapshot(db *kv.Database, id uint64) *kv.Snapshot {
	if id == 0 {
		return nil
	}
	snap, ok := db.Snapshots().Get(id)
	if !ok {
		return nil
	}
	return snap
}

func decodeUUID(payload []byte) (uuid.UUID, error) {
	if len(payload) < 16 {
		return uuid.UUID{}, kverrors.ErrInvalidArgument
	}
	var u uuid.UUID
	copy(u[:], payload[:16])
	return u, nil
}

func encodeCollectionList(ids []kv.CollectionID, names []string) []byte {
	size := 4
	for _, n := range names {
		size += 8 + 2 + len(n)
	}
	buf := make([]byte, size)
	o := 0
	binary.LittleEndian.PutUint32(buf[o:], uint32(len(ids)))
	o += 4
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[o:], uint64(id))
		o += 8
		binary.LittleEndian.PutUint16(buf[o:], uint16(len(names[i])))
		o += 2
		copy(buf[o:], names[i])
		o += len(names[i])
	}
	return buf
}

func splitNameConfig(payload []byte) (string, []byte) {
	if len(payload) < 2 {
		return "", nil
	}
	nl := int(binary.LittleEndian.Uint16(payload))
	if len(payload) < 2+nl {
		return string(payload[2:]), nil
	}
	name := string(payload[2 : 2+nl])
	cfg := payload[2+nl:]
	if len(cfg) == 0 {
		cfg = nil
	}
	return name, cfg
}
