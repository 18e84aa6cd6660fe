package casaJsonRpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

func TestReadRequestEnvelope(t *testing.T) {
	payload, err := json.Marshal(NewReadRequest([]casaStructs.ObjectId{"17", "111"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":0,"method":"read","params":{"objects":[` +
		`{"id":"17","properties":{"85":{}},"device":255},` +
		`{"id":"111","properties":{"85":{}},"device":255}]}}`
	if string(payload) != want {
		t.Errorf("read request\n got %s\nwant %s", payload, want)
	}
}

func TestWriteRequestEnvelope(t *testing.T) {
	payload, err := json.Marshal(NewWriteRequest("153", 0))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":0,"method":"write","params":{"objects":[` +
		`{"id":"153","properties":{"85":{"value":0}},"device":255}]}}`
	if string(payload) != want {
		t.Errorf("write request\n got %s\nwant %s", payload, want)
	}
}

func TestParseReadResult(t *testing.T) {
	body := `{"result":{"objects":[{"id":"17","properties":{"85":{"value":21.5}}},{"id":"111","properties":{"85":{"value":2}}}]}}`
	snap, err := ParseReadResult([]byte(body))
	if err != nil {
		t.Fatalf("ParseReadResult: %v", err)
	}
	if snap.Len() != 2 {
		t.Fatalf("snapshot has %d entries, want 2", snap.Len())
	}
	supply, _ := snap.Get(casaStructs.TemperatureSupply)
	if f, _ := supply.Float64(); f != 21.5 {
		t.Errorf("17 = %v, want 21.5", f)
	}
	mode, _ := snap.Get(casaStructs.ClimateMode)
	if i, _ := mode.Int(); i != 2 {
		t.Errorf("111 = %v, want 2", i)
	}
}

func TestParseReadResultKeepsFalsyDropsNull(t *testing.T) {
	body := `{"jsonrpc":"2.0","result":{"objects":[
		{"id":"31","properties":{"85":{"value":0}}},
		{"id":"153","properties":{"85":{"value":false}}},
		{"id":"200","properties":{"85":{"value":""}}},
		{"id":"19","properties":{"85":{"value":null}}},
		{"id":"22","properties":{"85":{}}},
		{"id":"23","properties":{}},
		{"id":28,"properties":{"85":{"value":"40"}}}
	]}}`
	snap, err := ParseReadResult([]byte(body))
	if err != nil {
		t.Fatalf("ParseReadResult: %v", err)
	}
	for _, id := range []casaStructs.ObjectId{"31", "153", "200", "28"} {
		if !snap.Has(id) {
			t.Errorf("object %s should be kept", id)
		}
	}
	for _, id := range []casaStructs.ObjectId{"19", "22", "23"} {
		if snap.Has(id) {
			t.Errorf("object %s should be dropped", id)
		}
	}
	zero, _ := snap.Get("31")
	if f, ok := zero.Float64(); !ok || f != 0 {
		t.Errorf("31 = %v, %v; want 0", f, ok)
	}
}

func TestParseReadResultErrors(t *testing.T) {
	if _, err := ParseReadResult([]byte(`<html>`)); err == nil {
		t.Error("expected decode error for non JSON body")
	}
	if _, err := ParseReadResult([]byte(`{"jsonrpc":"2.0"}`)); !errors.Is(err, ErrNoResult) {
		t.Errorf("missing result error = %v, want ErrNoResult", err)
	}
	_, err := ParseReadResult([]byte(`{"error":{"code":-32600,"message":"invalid"}}`))
	var rpcErr *JsonRpcError
	if !errors.As(err, &rpcErr) || rpcErr.Code != -32600 {
		t.Errorf("rpc error = %v", err)
	}
}
