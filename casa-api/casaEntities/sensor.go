package casaEntities

import (
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

// Sensor reports the last seen value of one object.
type Sensor struct {
	base
	info  casaStructs.ObjectInfo
	value casaStructs.Value
	seen  bool
}

func NewSensor(info casaStructs.ObjectInfo) *Sensor {
	return &Sensor{
		base: base{key: "sensor." + info.Key, name: info.Name},
		info: info,
	}
}

func (s *Sensor) Info() casaStructs.ObjectInfo {
	return s.info
}

func (s *Sensor) Attributes() map[string]any {
	attrs := map[string]any{"object_id": string(s.info.Id)}
	if s.info.Unit != "" {
		attrs["unit"] = s.info.Unit
	}
	if s.info.DeviceClass != "" {
		attrs["device_class"] = s.info.DeviceClass
	}
	return attrs
}

func (s *Sensor) HandleSnapshot(snapshot casaStructs.Snapshot) {
	v, ok := snapshot.Get(s.info.Id)
	if !ok {
		return
	}
	s.mu.Lock()
	s.value = v
	s.seen = true
	s.mu.Unlock()
	s.notify(s)
}

func (s *Sensor) Value() (casaStructs.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.seen
}

// State is empty until a value was seen. Mode objects are shown by name.
func (s *Sensor) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.seen {
		return ""
	}
	if table, ok := casaStructs.ModeTableFor(s.info.Id); ok {
		if code, ok := s.value.Int(); ok {
			return table.Describe(code)
		}
	}
	return s.value.String()
}
