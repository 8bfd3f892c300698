// Package client is the shell's connection to a running ustorekv
// server: it frames requests, assigns a uuid RequestID to each one
// (replacing the teacher's bare counter), and decodes responses,
// adapted from the teacher's cmd/docdbsh/client package.
package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/kartikbazzad/ustorekv/internal/ipc"
	"github.com/kartikbazzad/ustorekv/internal/kv"
)

var (
	ErrConnectionFailed = errors.New("failed to connect to server")
	ErrInvalidResponse  = errors.New("invalid response from server")
)

type Client struct {
	socketPath string
	conn       net.Conn
	mu         sync.Mutex
}

func New(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return ErrConnectionFailed
	}
	c.conn = conn
	return nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) call(dbID uint64, command byte, payload []byte) (*ipc.ResponseFrame, error) {
	if err := c.Connect(); err != nil {
		return nil, err
	}

	frame := &ipc.RequestFrame{RequestID: uuid.New(), DBID: dbID, Command: command, Payload: payload}
	data, err := ipc.EncodeRequest(frame)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeFrame(c.conn, data); err != nil {
		return nil, err
	}
	respData, err := readFrame(c.conn)
	if err != nil {
		return nil, err
	}
	return ipc.DecodeResponse(respData)
}

func statusErr(resp *ipc.ResponseFrame) error {
	if resp.Status == ipc.StatusOK {
		return nil
	}
	msg := string(resp.Data)
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.Status)
	}
	return errors.New(msg)
}

// OpenDB opens or creates a database by name and returns its handle.
func (c *Client) OpenDB(name string) (uint64, error) {
	resp, err := c.call(0, ipc.CmdDatabaseInit, []byte(name))
	if err != nil {
		return 0, err
	}
	if err := statusErr(resp); err != nil {
		return 0, err
	}
	if len(resp.Data) != 8 {
		return 0, ErrInvalidResponse
	}
	return binary.LittleEndian.Uint64(resp.Data), nil
}

func (c *Client) CloseDB(dbID uint64) error {
	resp, err := c.call(dbID, ipc.CmdDatabaseFree, nil)
	if err != nil {
		return err
	}
	return statusErr(resp)
}

func (c *Client) Control(dbID uint64, request string) ([]byte, error) {
	resp, err := c.call(dbID, ipc.CmdDatabaseControl, []byte(request))
	if err != nil {
		return nil, err
	}
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CollectionInfo is one entry of a ListCollections response.
type CollectionInfo struct {
	ID   kv.CollectionID
	Name string
}

// ListCollections lists the collections visible as of snapshotID (0
// for the current head), per spec.md §4.3's point-in-time qualifier.
func (c *Client) ListCollections(dbID uint64, snapshotID uint64) ([]CollectionInfo, error) {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, snapshotID)
	resp, err := c.call(dbID, ipc.CmdCollectionList, payload)
	if err != nil {
		return nil, err
	}
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	data := resp.Data
	if len(data) < 4 {
		return nil, ErrInvalidResponse
	}
	n := int(binary.LittleEndian.Uint32(data))
	o := 4
	out := make([]CollectionInfo, 0, n)
	for i := 0; i < n; i++ {
		if len(data) < o+10 {
			return nil, ErrInvalidResponse
		}
		id := kv.CollectionID(binary.LittleEndian.Uint64(data[o:]))
		o += 8
		nl := int(binary.LittleEndian.Uint16(data[o:]))
		o += 2
		if len(data) < o+nl {
			return nil, ErrInvalidResponse
		}
		name := string(data[o : o+nl])
		o += nl
		out = append(out, CollectionInfo{ID: id, Name: name})
	}
	return out, nil
}

func (c *Client) CreateCollection(dbID uint64, name string, configBlob []byte) (kv.CollectionID, error) {
	payload := make([]byte, 2+len(name)+len(configBlob))
	binary.LittleEndian.PutUint16(payload, uint16(len(name)))
	copy(payload[2:], name)
	copy(payload[2+len(name):], configBlob)

	resp, err := c.call(dbID, ipc.CmdCollectionCreate, payload)
	if err != nil {
		return 0, err
	}
	if err := statusErr(resp); err != nil {
		return 0, err
	}
	if len(resp.Data) != 8 {
		return 0, ErrInvalidResponse
	}
	return kv.CollectionID(binary.LittleEndian.Uint64(resp.Data)), nil
}

func (c *Client) DropCollection(dbID uint64, id kv.CollectionID, mode kv.DropMode) error {
	payload := make([]byte, 9)
	binary.LittleEndian.PutUint64(payload, uint64(id))
	payload[8] = byte(mode)
	resp, err := c.call(dbID, ipc.CmdCollectionDrop, payload)
	if err != nil {
		return err
	}
	return statusErr(resp)
}

// ReadValue is one logical result of Read: the value bytes (nil if
// absent) and whether the key was present.
type ReadValue struct {
	Value   []byte
	Present bool
}

func (c *Client) Read(dbID uint64, col kv.CollectionID, snapshotID uint64, keys []kv.Key) ([]ReadValue, error) {
	payload := append([]byte{ipc.DataRead}, ipc.EncodeReadRequest(col, snapshotID, 0, uuid.Nil, keys)...)
	resp, err := c.call(dbID, ipc.CmdData, payload)
	if err != nil {
		return nil, err
	}
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	return decodeReadResponse(resp.Data, len(keys))
}

func (c *Client) Write(dbID uint64, col kv.CollectionID, keys []kv.Key, contents [][]byte) error {
	payload := append([]byte{ipc.DataWrite}, ipc.EncodeWriteRequest(col, 0, uuid.Nil, keys, contents)...)
	resp, err := c.call(dbID, ipc.CmdData, payload)
	if err != nil {
		return err
	}
	return statusErr(resp)
}

func (c *Client) Scan(dbID uint64, col kv.CollectionID, snapshotID uint64, start, end kv.Key, limit int) ([]kv.Key, error) {
	payload := append([]byte{ipc.DataScan}, ipc.EncodeScanRequest(col, snapshotID, 0, uuid.Nil, start, end, limit)...)
	resp, err := c.call(dbID, ipc.CmdData, payload)
	if err != nil {
		return nil, err
	}
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	return ipc.DecodeScanResponse(resp.Data)
}

func (c *Client) Size(dbID uint64, col kv.CollectionID, start, end kv.Key) (kv.SizeEstimate, error) {
	payload := append([]byte{ipc.DataSize}, ipc.EncodeScanRequest(col, 0, 0, uuid.Nil, start, end, 0)...)
	resp, err := c.call(dbID, ipc.CmdData, payload)
	if err != nil {
		return kv.SizeEstimate{}, err
	}
	if err := statusErr(resp); err != nil {
		return kv.SizeEstimate{}, err
	}
	if len(resp.Data) != 48 {
		return kv.SizeEstimate{}, ErrInvalidResponse
	}
	d := resp.Data
	return kv.SizeEstimate{
		MinCardinality: binary.LittleEndian.Uint64(d[0:]),
		MaxCardinality: binary.LittleEndian.Uint64(d[8:]),
		MinValueBytes:  binary.LittleEndian.Uint64(d[16:]),
		MaxValueBytes:  binary.LittleEndian.Uint64(d[24:]),
		MinSpaceUsage:  binary.LittleEndian.Uint64(d[32:]),
		MaxSpaceUsage:  binary.LittleEndian.Uint64(d[40:]),
	}, nil
}

func (c *Client) BeginTx(dbID uint64) (uuid.UUID, error) {
	resp, err := c.call(dbID, ipc.CmdTransactionInit, nil)
	if err != nil {
		return uuid.UUID{}, err
	}
	if err := statusErr(resp); err != nil {
		return uuid.UUID{}, err
	}
	if len(resp.Data) != 16 {
		return uuid.UUID{}, ErrInvalidResponse
	}
	var h uuid.UUID
	copy(h[:], resp.Data)
	return h, nil
}

func (c *Client) txOp(dbID uint64, command byte, handle uuid.UUID) error {
	resp, err := c.call(dbID, command, handle[:])
	if err != nil {
		return err
	}
	return statusErr(resp)
}

func (c *Client) StageTx(dbID uint64, handle uuid.UUID) error  { return c.txOp(dbID, ipc.CmdTransactionStage, handle) }
func (c *Client) CommitTx(dbID uint64, handle uuid.UUID) error { return c.txOp(dbID, ipc.CmdTransactionCommit, handle) }
func (c *Client) AbortTx(dbID uint64, handle uuid.UUID) error  { return c.txOp(dbID, ipc.CmdTransactionFree, handle) }

func (c *Client) SnapshotCreate(dbID uint64) (uint64, error) {
	resp, err := c.call(dbID, ipc.CmdSnapshot, []byte{ipc.SnapshotCreate})
	if err != nil {
		return 0, err
	}
	if err := statusErr(resp); err != nil {
		return 0, err
	}
	if len(resp.Data) != 8 {
		return 0, ErrInvalidResponse
	}
	return binary.LittleEndian.Uint64(resp.Data), nil
}

func (c *Client) SnapshotList(dbID uint64) ([]uint64, error) {
	resp, err := c.call(dbID, ipc.CmdSnapshot, []byte{ipc.SnapshotList})
	if err != nil {
		return nil, err
	}
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	data := resp.Data
	if len(data) < 4 {
		return nil, ErrInvalidResponse
	}
	n := int(binary.LittleEndian.Uint32(data))
	ids := make([]uint64, n)
	for i := 0; i < n; i++ {
		ids[i] = binary.LittleEndian.Uint64(data[4+8*i:])
	}
	return ids, nil
}

func (c *Client) SnapshotDrop(dbID, snapID uint64) error {
	payload := make([]byte, 9)
	payload[0] = ipc.SnapshotDrop
	binary.LittleEndian.PutUint64(payload[1:], snapID)
	resp, err := c.call(dbID, ipc.CmdSnapshot, payload)
	if err != nil {
		return err
	}
	return statusErr(resp)
}

func (c *Client) SnapshotExport(dbID, snapID uint64, targetDir string) error {
	payload := make([]byte, 9+len(targetDir))
	payload[0] = ipc.SnapshotExport
	binary.LittleEndian.PutUint64(payload[1:], snapID)
	copy(payload[9:], targetDir)
	resp, err := c.call(dbID, ipc.CmdSnapshot, payload)
	if err != nil {
		return err
	}
	return statusErr(resp)
}

func decodeReadResponse(data []byte, n int) ([]ReadValue, error) {
	if len(data) < 4+n+4*(n+1) {
		return nil, ErrInvalidResponse
	}
	o := 4
	presence := make([]bool, n)
	for i := 0; i < n; i++ {
		presence[i] = data[o] == 1
		o++
	}
	offs := make([]uint32, n+1)
	for i := range offs {
		offs[i] = binary.LittleEndian.Uint32(data[o:])
		o += 4
	}
	tape := data[o:]

	out := make([]ReadValue, n)
	for i := 0; i < n; i++ {
		if !presence[i] {
			continue
		}
		out[i] = ReadValue{Value: tape[offs[i]:offs[i+1]], Present: true}
	}
	return out, nil
}

func writeFrame(conn net.Conn, data []byte) error {
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := conn.Write(lenBuf); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

func readFrame(conn net.Conn) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lenBuf); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf)
	if length > ipc.MaxFrameSize {
		return nil, errors.New("frame too large")
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
