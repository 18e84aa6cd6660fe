// Package casaEntities turns polled snapshots into sensor, select, number and
// climate representations and sends user changes back to the controller.
package casaEntities

import (
	"context"
	"errors"
	"sync"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

var (
	ErrUnknownOption = errors.New("unknown option")
	ErrOutOfRange    = errors.New("value out of range")
	ErrInvalidValue  = errors.New("invalid value")
	ErrUnknownEntity = errors.New("unknown entity")
	ErrNotWritable   = errors.New("entity is read only")
)

// Writer sets a single object on the controller.
type Writer interface {
	Write(ctx context.Context, id casaStructs.ObjectId, value int) error
}

type Entity interface {
	Key() string
	Name() string
	State() string
	HandleSnapshot(snapshot casaStructs.Snapshot)
	OnChange(fn func(Entity))
}

// Commander is implemented by entities that accept changes as text, e.g.
// from an MQTT set topic.
type Commander interface {
	Command(ctx context.Context, payload string) error
}

// Attributer is implemented by entities that carry details beyond their
// state, such as a unit or the list of options.
type Attributer interface {
	Attributes() map[string]any
}

type base struct {
	key  string
	name string

	mu       sync.RWMutex
	onChange func(Entity)
}

func (b *base) Key() string {
	return b.key
}

func (b *base) Name() string {
	return b.name
}

func (b *base) OnChange(fn func(Entity)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// notify must be called without holding b.mu.
func (b *base) notify(e Entity) {
	b.mu.RLock()
	fn := b.onChange
	b.mu.RUnlock()
	if fn != nil {
		fn(e)
	}
}

func intValue(snapshot casaStructs.Snapshot, id casaStructs.ObjectId) (int, bool) {
	v, ok := snapshot.Get(id)
	if !ok {
		return 0, false
	}
	return v.Int()
}

func floatValue(snapshot casaStructs.Snapshot, id casaStructs.ObjectId) (float64, bool) {
	v, ok := snapshot.Get(id)
	if !ok {
		return 0, false
	}
	return v.Float64()
}
