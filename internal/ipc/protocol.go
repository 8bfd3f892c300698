// Package ipc implements the engine's wire protocol: a length-prefixed
// binary frame carried over a Unix domain socket, adapted from the
// teacher's document-CRUD framing but re-targeted at the kv engine's
// command set (spec.md §6, SPEC_FULL.md §7).
package ipc

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"

	kverrors "github.com/kartikbazzad/ustorekv/internal/errors"
)

var (
	ErrInvalidFrame  = errors.New("invalid frame format")
	ErrFrameTooLarge = errors.New("frame too large")
)

const (
	requestIDSize = 16 // uuid
	commandSize   = 1
	payloadLen    = 4

	MaxFrameSize = 16 * 1024 * 1024
)

// Command bytes, per SPEC_FULL.md §7.
const (
	CmdDatabaseInit     byte = 1
	CmdDatabaseFree     byte = 2
	CmdDatabaseControl  byte = 3
	CmdCollectionList   byte = 4
	CmdCollectionCreate byte = 5
	CmdCollectionDrop   byte = 6
	CmdTransactionInit  byte = 7
	CmdTransactionStage byte = 8
	CmdTransactionCommit byte = 9
	CmdTransactionFree  byte = 10
	CmdSnapshot         byte = 11 // sub-op carried in Payload[0]
	CmdData             byte = 12 // sub-op carried in Payload[0]: Read/Write/Scan/Size
)

// Snapshot sub-operations, carried as Payload[0] under CmdSnapshot.
const (
	SnapshotCreate byte = 1
	SnapshotList   byte = 2
	SnapshotDrop   byte = 3
	SnapshotExport byte = 4
)

// Data sub-operations, carried as Payload[0] under CmdData.
const (
	DataRead  byte = 1
	DataWrite byte = 2
	DataScan  byte = 3
	DataSize  byte = 4
)

// Status byte values for ResponseFrame, mapped 1:1 onto the
// internal/errors sentinels by the handler.
const (
	StatusOK uint8 = iota
	StatusInvalidArgument
	StatusNotFound
	StatusAlreadyExists
	StatusConflict
	StatusRepeated
	StatusCorruption
	StatusOutOfMemory
	StatusNotImplemented
	StatusInUse
	StatusError // catch-all for anything not mapped above
)

// RequestFrame is one client request: a trace id, a command byte, and
// a command-specific payload blob.
type RequestFrame struct {
	RequestID uuid.UUID
	DBID      uint64
	Command   byte
	Payload   []byte
}

// ResponseFrame is the reply to one RequestFrame.
type ResponseFrame struct {
	RequestID uuid.UUID
	Status    uint8
	Data      []byte
}

func EncodeRequest(f *RequestFrame) ([]byte, error) {
	size := requestIDSize + 8 + commandSize + payloadLen + len(f.Payload)
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, size)
	offset := 0
	copy(buf[offset:], f.RequestID[:])
	offset += requestIDSize

	binary.LittleEndian.PutUint64(buf[offset:], f.DBID)
	offset += 8

	buf[offset] = f.Command
	offset += commandSize

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(f.Payload)))
	offset += payloadLen
	copy(buf[offset:], f.Payload)

	return buf, nil
}

func DecodeRequest(data []byte) (*RequestFrame, error) {
	const header = requestIDSize + 8 + commandSize + payloadLen
	if len(data) < header {
		return nil, ErrInvalidFrame
	}

	f := &RequestFrame{}
	offset := 0
	copy(f.RequestID[:], data[offset:offset+requestIDSize])
	offset += requestIDSize

	f.DBID = binary.LittleEndian.Uint64(data[offset:])
	offset += 8

	f.Command = data[offset]
	offset += commandSize

	n := binary.LittleEndian.Uint32(data[offset:])
	offset += payloadLen

	if offset+int(n) > len(data) {
		return nil, ErrInvalidFrame
	}
	f.Payload = make([]byte, n)
	copy(f.Payload, data[offset:offset+int(n)])

	return f, nil
}

func EncodeResponse(f *ResponseFrame) ([]byte, error) {
	size := requestIDSize + 1 + payloadLen + len(f.Data)
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	buf := make([]byte, size)
	offset := 0
	copy(buf[offset:], f.RequestID[:])
	offset += requestIDSize

	buf[offset] = f.Status
	offset += 1

	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(f.Data)))
	offset += payloadLen
	copy(buf[offset:], f.Data)

	return buf, nil
}

// StatusFor maps an engine error onto its wire status byte via
// errors.Is, so wrapped errors (fmt.Errorf("%w: ...", ...)) still
// classify correctly.
func StatusFor(err error) uint8 {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, kverrors.ErrInvalidArgument):
		return StatusInvalidArgument
	case errors.Is(err, kverrors.ErrNotFound):
		return StatusNotFound
	case errors.Is(err, kverrors.ErrAlreadyExists):
		return StatusAlreadyExists
	case errors.Is(err, kverrors.ErrConflict):
		return StatusConflict
	case errors.Is(err, kverrors.ErrRepeated):
		return StatusRepeated
	case errors.Is(err, kverrors.ErrCorruption):
		return StatusCorruption
	case errors.Is(err, kverrors.ErrOutOfMemory):
		return StatusOutOfMemory
	case errors.Is(err, kverrors.ErrNotImplemented):
		return StatusNotImplemented
	case errors.Is(err, kverrors.ErrInUse):
		return StatusInUse
	default:
		return StatusError
	}
}

func DecodeResponse(data []byte) (*ResponseFrame, error) {
	const header = requestIDSize + 1 + payloadLen
	if len(data) < header {
		return nil, ErrInvalidFrame
	}

	f := &ResponseFrame{}
	offset := 0
	copy(f.RequestID[:], data[offset:offset+requestIDSize])
	offset += requestIDSize

	f.Status = data[offset]
	offset += 1

	n := binary.LittleEndian.Uint32(data[offset:])
	offset += payloadLen
	if offset+int(n) > len(data) {
		return nil, ErrInvalidFrame
	}
	f.Data = make([]byte, n)
	copy(f.Data, data[offset:offset+int(n)])

	return f, nil
}
