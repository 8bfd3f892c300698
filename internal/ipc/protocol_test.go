package ipc

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/kartikbazzad/ustorekv/internal/kv"
)

func TestRequestResponseRoundTrip(t *testing.T) {
	req := &RequestFrame{RequestID: uuid.New(), DBID: 42, Command: CmdData, Payload: []byte{DataRead, 1, 2, 3}}
	encoded, err := EncodeRequest(req)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	decoded, err := DecodeRequest(encoded)
	if err != nil {
		t.Fatalf("DecodeRequest: %v", err)
	}
	if decoded.RequestID != req.RequestID || decoded.DBID != req.DBID || decoded.Command != req.Command {
		t.Fatalf("round trip mismatch: %+v vs %+v", decoded, req)
	}
	if !bytes.Equal(decoded.Payload, req.Payload) {
		t.Fatalf("payload mismatch: %v vs %v", decoded.Payload, req.Payload)
	}

	resp := &ResponseFrame{RequestID: req.RequestID, Status: StatusConflict, Data: []byte("conflict")}
	encodedResp, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}
	decodedResp, err := DecodeResponse(encodedResp)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if decodedResp.Status != StatusConflict || string(decodedResp.Data) != "conflict" {
		t.Fatalf("response round trip mismatch: %+v", decodedResp)
	}
}

func TestReadWriteTapeRoundTrip(t *testing.T) {
	keys := []kv.Key{1, 2, 3}
	payload := EncodeReadRequest(0, 0, 0, uuid.Nil, keys)
	col, snapID, opts, txHandle, gotKeys, err := DecodeReadRequest(payload)
	if err != nil {
		t.Fatalf("DecodeReadRequest: %v", err)
	}
	if col != 0 || snapID != 0 || opts != 0 || txHandle != uuid.Nil || len(gotKeys) != 3 || gotKeys[2] != 3 {
		t.Fatalf("got %v %v %v %v %v", col, snapID, opts, txHandle, gotKeys)
	}

	contents := [][]byte{[]byte("a"), nil, []byte("c")}
	wpayload := EncodeWriteRequest(0, 0, uuid.Nil, keys, contents)
	_, _, _, wkeys, wcontents, err := DecodeWriteRequest(wpayload)
	if err != nil {
		t.Fatalf("DecodeWriteRequest: %v", err)
	}
	if len(wkeys) != 3 || wcontents[1] != nil || string(wcontents[0]) != "a" {
		t.Fatalf("write round trip mismatch: %v %v", wkeys, wcontents)
	}
}

// TestDataFramesCarryTransactionHandle checks that a non-zero
// transaction handle survives the encode/decode round trip on all
// three Data sub-protocols, since handleData branches on exactly this
// value to route a frame through a transaction's overlay instead of
// head.
func TestDataFramesCarryTransactionHandle(t *testing.T) {
	handle := uuid.New()

	rpayload := EncodeReadRequest(3, 0, 0, handle, []kv.Key{7})
	_, _, _, gotHandle, _, err := DecodeReadRequest(rpayload)
	if err != nil {
		t.Fatalf("DecodeReadRequest: %v", err)
	}
	if gotHandle != handle {
		t.Fatalf("read tx handle = %v, want %v", gotHandle, handle)
	}

	wpayload := EncodeWriteRequest(3, 0, handle, []kv.Key{7}, [][]byte{[]byte("v")})
	_, _, gotHandle, _, _, err = DecodeWriteRequest(wpayload)
	if err != nil {
		t.Fatalf("DecodeWriteRequest: %v", err)
	}
	if gotHandle != handle {
		t.Fatalf("write tx handle = %v, want %v", gotHandle, handle)
	}

	spayload := EncodeScanRequest(3, 0, 0, handle, 0, 10, 5)
	_, _, _, gotHandle, _, _, _, err = DecodeScanRequest(spayload)
	if err != nil {
		t.Fatalf("DecodeScanRequest: %v", err)
	}
	if gotHandle != handle {
		t.Fatalf("scan tx handle = %v, want %v", gotHandle, handle)
	}
}

func TestScanTapeRoundTrip(t *testing.T) {
	payload := EncodeScanRequest(1, 0, 0, uuid.Nil, 10, 20, 5)
	col, snapID, opts, txHandle, start, end, limit, err := DecodeScanRequest(payload)
	if err != nil {
		t.Fatalf("DecodeScanRequest: %v", err)
	}
	if col != 1 || snapID != 0 || opts != 0 || txHandle != uuid.Nil || start != 10 || end != 20 || limit != 5 {
		t.Fatalf("got %v %v %v %v %v %v %v", col, snapID, opts, txHandle, start, end, limit)
	}

	keys := []kv.Key{10, 11, 12}
	resp := EncodeScanResponse(keys)
	got, err := DecodeScanResponse(resp)
	if err != nil {
		t.Fatalf("DecodeScanResponse: %v", err)
	}
	if len(got) != 3 || got[1] != 11 {
		t.Fatalf("scan response mismatch: %v", got)
	}
}
