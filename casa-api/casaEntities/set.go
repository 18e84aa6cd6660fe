package casaEntities

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaClient"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

// Subscriber is satisfied by *casaClient.Poller.
type Subscriber interface {
	Subscribe(name string, handler casaClient.SnapshotHandler) error
}

// Set holds every entity of one controller.
type Set struct {
	entities []Entity
	byKey    map[string]Entity
	logger   *zap.SugaredLogger
}

func NewSet(writer Writer, logger *zap.SugaredLogger) *Set {
	var entities []Entity
	for _, info := range casaStructs.Catalog {
		switch info.Id {
		case casaStructs.AutoHumidityControlMode, casaStructs.SummerNightCoolingMode:
			// only exposed as selects
		default:
			entities = append(entities, NewSensor(info))
		}
	}
	entities = append(entities,
		NewSelect("climate_mode", "FTX Climate Mode", casaStructs.ClimateModes, writer),
		NewSelect("fireplace_mode", "FTX Fireplace Mode", casaStructs.FireplaceModes, writer),
		NewTravelSelect(writer),
		NewSelect("auto_humidity_control_mode", "FTX Auto Humidity Control Mode", casaStructs.AutoHumidityControlModes, writer),
		NewSelect("summer_night_cooling_mode", "FTX Summer Night Cooling Mode", casaStructs.SummerNightCoolingModes, writer),
		NewSetpointNumber(writer),
		NewClimate(writer),
	)

	set := &Set{
		entities: entities,
		byKey:    make(map[string]Entity, len(entities)),
		logger:   logger,
	}
	for _, e := range entities {
		set.byKey[e.Key()] = e
	}
	return set
}

// Subscribe registers every entity as its own poller subscriber.
func (s *Set) Subscribe(sub Subscriber) error {
	for _, e := range s.entities {
		if err := sub.Subscribe(e.Key(), e.HandleSnapshot); err != nil {
			return fmt.Errorf("subscribing %s: %w", e.Key(), err)
		}
	}
	return nil
}

func (s *Set) Entities() []Entity {
	out := make([]Entity, len(s.entities))
	copy(out, s.entities)
	return out
}

func (s *Set) Get(key string) (Entity, bool) {
	e, ok := s.byKey[key]
	return e, ok
}

// OnChange installs fn on every entity.
func (s *Set) OnChange(fn func(Entity)) {
	for _, e := range s.entities {
		e.OnChange(fn)
	}
}

func (s *Set) Command(ctx context.Context, key string, payload string) error {
	e, ok := s.byKey[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntity, key)
	}
	cmd, ok := e.(Commander)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotWritable, key)
	}
	s.logger.Infof("Setting %s to %q", key, payload)
	if err := cmd.Command(ctx, payload); err != nil {
		s.logger.Errorf("Setting %s failed: %v", key, err)
		return err
	}
	return nil
}
