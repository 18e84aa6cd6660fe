package casaJsonRpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

const (
	Version     = "2.0"
	MethodRead  = "read"
	MethodWrite = "write"
)

var (
	ErrNoResult = errors.New("response carries no result")
)

type JsonRpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *JsonRpcError) Error() string {
	return fmt.Sprintf("json-rpc error %d: %s", e.Code, e.Message)
}

type JsonRPC struct {
	Jsonrpc string `json:"jsonrpc"`
	Id      int    `json:"id"`
	Method  string `json:"method"`
	Params  Params `json:"params"`
}

type Params struct {
	Objects []ObjectRef `json:"objects"`
}

type ObjectRef struct {
	Id         casaStructs.ObjectId     `json:"id"`
	Properties map[string]PropertyValue `json:"properties"`
	Device     int                      `json:"device"`
}

// PropertyValue is empty for reads and carries the new value for writes.
type PropertyValue struct {
	Value *int `json:"value,omitempty"`
}

type ReadResult struct {
	Jsonrpc string         `json:"jsonrpc"`
	Result  *ObjectsResult `json:"result"`
	Error   *JsonRpcError  `json:"error,omitempty"`
}

type ObjectsResult struct {
	Objects []ObjectState `json:"objects"`
}

type ObjectState struct {
	Id         ObjectIdField            `json:"id"`
	Properties map[string]PropertyState `json:"properties"`
}

type PropertyState struct {
	Value json.RawMessage `json:"value"`
}

// ObjectIdField accepts ids sent either as JSON strings or numbers.
type ObjectIdField casaStructs.ObjectId

func (f *ObjectIdField) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = ObjectIdField(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = ObjectIdField(n.String())
	return nil
}

func NewReadRequest(ids []casaStructs.ObjectId) JsonRPC {
	objects := make([]ObjectRef, 0, len(ids))
	for _, id := range ids {
		objects = append(objects, ObjectRef{
			Id:         id,
			Properties: map[string]PropertyValue{casaStructs.ValueProperty: {}},
			Device:     casaStructs.DeviceAddress,
		})
	}
	return JsonRPC{Jsonrpc: Version, Id: 0, Method: MethodRead, Params: Params{Objects: objects}}
}

func NewWriteRequest(id casaStructs.ObjectId, value int) JsonRPC {
	return JsonRPC{
		Jsonrpc: Version,
		Id:      0,
		Method:  MethodWrite,
		Params: Params{Objects: []ObjectRef{{
			Id:         id,
			Properties: map[string]PropertyValue{casaStructs.ValueProperty: {Value: &value}},
			Device:     casaStructs.DeviceAddress,
		}}},
	}
}

// ParseReadResult extracts the value property of every returned object.
// Objects without the property or with a null value are left out; falsy
// values such as 0, false or "" are kept.
func ParseReadResult(body []byte) (casaStructs.Snapshot, error) {
	rpc := ReadResult{}
	if err := json.Unmarshal(body, &rpc); err != nil {
		return casaStructs.Snapshot{}, fmt.Errorf("decode read result: %w", err)
	}
	if rpc.Error != nil {
		return casaStructs.Snapshot{}, rpc.Error
	}
	if rpc.Result == nil {
		return casaStructs.Snapshot{}, ErrNoResult
	}

	values := make(map[casaStructs.ObjectId]casaStructs.Value, len(rpc.Result.Objects))
	for _, object := range rpc.Result.Objects {
		property, ok := object.Properties[casaStructs.ValueProperty]
		if !ok {
			continue
		}
		raw := bytes.TrimSpace(property.Value)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			continue
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return casaStructs.Snapshot{}, fmt.Errorf("decode value of object %s: %w", object.Id, err)
		}
		values[casaStructs.ObjectId(object.Id)] = casaStructs.NewValue(value)
	}
	return casaStructs.NewSnapshot(values), nil
}

// FormatValue renders a write value the way it is logged.
func FormatValue(id casaStructs.ObjectId, value int) string {
	return string(id) + "=" + strconv.Itoa(value)
}
