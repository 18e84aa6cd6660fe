package casaStructs

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Value is a raw property value as reported by the device. The wire format
// carries no type information, so numbers, numeric strings and booleans are
// all accepted.
type Value struct {
	raw any
}

func NewValue(raw any) Value {
	return Value{raw: raw}
}

func (v Value) Raw() any {
	return v.raw
}

func (v Value) Float64() (float64, bool) {
	switch t := v.raw.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Int truncates the value towards zero. NaN, infinities and values outside
// the int range are rejected.
func (v Value) Int() (int, bool) {
	f, ok := v.Float64()
	if !ok || math.IsNaN(f) || f < math.MinInt || f >= math.MaxInt {
		return 0, false
	}
	return int(f), true
}

func (v Value) String() string {
	switch t := v.raw.(type) {
	case string:
		return t
	case nil:
		return ""
	}
	if f, ok := v.Float64(); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v.raw)
}

// Snapshot is the result of one read cycle. It is never modified after
// construction and can be shared between consumers.
type Snapshot struct {
	values map[ObjectId]Value
}

func NewSnapshot(values map[ObjectId]Value) Snapshot {
	copied := make(map[ObjectId]Value, len(values))
	for id, v := range values {
		copied[id] = v
	}
	return Snapshot{values: copied}
}

func (s Snapshot) Get(id ObjectId) (Value, bool) {
	v, ok := s.values[id]
	return v, ok
}

func (s Snapshot) Has(id ObjectId) bool {
	_, ok := s.values[id]
	return ok
}

func (s Snapshot) Len() int {
	return len(s.values)
}

func (s Snapshot) IsEmpty() bool {
	return len(s.values) == 0
}

// IDs returns the contained object ids in ascending string order.
func (s Snapshot) IDs() []ObjectId {
	ids := make([]ObjectId, 0, len(s.values))
	for id := range s.values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Map returns a copy of the snapshot content.
func (s Snapshot) Map() map[ObjectId]Value {
	copied := make(map[ObjectId]Value, len(s.values))
	for id, v := range s.values {
		copied[id] = v
	}
	return copied
}
