package casaEntities

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

const (
	SetpointMin     = 15.0
	SetpointMax     = 30.0
	SetpointStep    = 0.5
	setpointInitial = 20.0
)

// Number is the supply temperature setpoint.
type Number struct {
	base
	id     casaStructs.ObjectId
	writer Writer
	value  float64
}

func NewSetpointNumber(writer Writer) *Number {
	return &Number{
		base:   base{key: "number.supply_temperature_setpoint", name: "FTX Supply Temperature Setpoint"},
		id:     casaStructs.SetpointSupplyTemperature,
		writer: writer,
		value:  setpointInitial,
	}
}

func (n *Number) Range() (float64, float64, float64) {
	return SetpointMin, SetpointMax, SetpointStep
}

func (n *Number) Attributes() map[string]any {
	lo, hi, step := n.Range()
	return map[string]any{"min": lo, "max": hi, "step": step, "unit": "°C"}
}

func (n *Number) Value() float64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.value
}

func (n *Number) State() string {
	return strconv.FormatFloat(n.Value(), 'f', -1, 64)
}

func (n *Number) HandleSnapshot(snapshot casaStructs.Snapshot) {
	v, ok := floatValue(snapshot, n.id)
	if !ok {
		return
	}
	n.mu.Lock()
	n.value = v
	n.mu.Unlock()
	n.notify(n)
}

// SetValue writes the setpoint truncated to whole degrees, the device API
// only takes integers.
func (n *Number) SetValue(ctx context.Context, value float64) error {
	if math.IsNaN(value) || value < SetpointMin || value > SetpointMax {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrOutOfRange, value, SetpointMin, SetpointMax)
	}
	err := n.writer.Write(ctx, n.id, int(value))
	n.mu.Lock()
	n.value = value
	n.mu.Unlock()
	n.notify(n)
	return err
}

func (n *Number) Command(ctx context.Context, payload string) error {
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return fmt.Errorf("%w: setpoint %q: %v", ErrInvalidValue, payload, err)
	}
	return n.SetValue(ctx, value)
}
