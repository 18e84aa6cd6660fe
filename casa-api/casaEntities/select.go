package casaEntities

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

// Select exposes a mode object as a list of named options.
type Select struct {
	base
	table   casaStructs.ModeTable
	writer  Writer
	current string
}

func NewSelect(key string, name string, table casaStructs.ModeTable, writer Writer) *Select {
	return &Select{
		base:    base{key: "select." + key, name: name},
		table:   table,
		writer:  writer,
		current: table.Fallback,
	}
}

func (s *Select) Options() []string {
	return s.table.Options()
}

func (s *Select) Attributes() map[string]any {
	return map[string]any{"options": s.Options()}
}

func (s *Select) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Select) HandleSnapshot(snapshot casaStructs.Snapshot) {
	code, ok := intValue(snapshot, s.table.Object)
	if !ok {
		return
	}
	s.mu.Lock()
	s.current = s.table.NameOrFallback(code)
	s.mu.Unlock()
	s.notify(s)
}

// SelectOption writes the option's code. The new option is shown right away
// and corrected by the next poll if the device did not take it.
func (s *Select) SelectOption(ctx context.Context, option string) error {
	code, ok := s.table.Code(option)
	if !ok {
		return fmt.Errorf("%w %q for %s", ErrUnknownOption, option, s.key)
	}
	err := s.writer.Write(ctx, s.table.Object, code)
	s.setOptimistic(option)
	return err
}

func (s *Select) Command(ctx context.Context, payload string) error {
	return s.SelectOption(ctx, strings.TrimSpace(payload))
}

func (s *Select) setOptimistic(option string) {
	s.mu.Lock()
	s.current = option
	s.mu.Unlock()
	s.notify(s)
}

// TravelSelect switches the climate mode to Travel before enabling travel
// mode, the controller ignores the flag otherwise.
type TravelSelect struct {
	*Select
	climateCode int
	climateSeen bool
}

func NewTravelSelect(writer Writer) *TravelSelect {
	return &TravelSelect{
		Select: NewSelect("travel_mode", "Travel Mode", casaStructs.TravelModes, writer),
	}
}

func (t *TravelSelect) HandleSnapshot(snapshot casaStructs.Snapshot) {
	if code, ok := intValue(snapshot, casaStructs.ClimateMode); ok {
		t.mu.Lock()
		t.climateCode = code
		t.climateSeen = true
		t.mu.Unlock()
	}
	code, ok := intValue(snapshot, t.table.Object)
	if !ok {
		return
	}
	t.mu.Lock()
	t.current = t.table.NameOrFallback(code)
	t.mu.Unlock()
	t.notify(t)
}

func (t *TravelSelect) SelectOption(ctx context.Context, option string) error {
	code, ok := t.table.Code(option)
	if !ok {
		return fmt.Errorf("%w %q for %s", ErrUnknownOption, option, t.key)
	}

	var climateErr error
	if option == casaStructs.ModeOn {
		t.mu.RLock()
		inTravel := t.climateSeen && t.climateCode == casaStructs.ClimateCodeTravel
		t.mu.RUnlock()
		if !inTravel {
			climateErr = t.writer.Write(ctx, casaStructs.ClimateMode, casaStructs.ClimateCodeTravel)
			if climateErr == nil {
				t.mu.Lock()
				t.climateCode = casaStructs.ClimateCodeTravel
				t.climateSeen = true
				t.mu.Unlock()
			}
		}
	}

	err := t.writer.Write(ctx, t.table.Object, code)
	t.mu.Lock()
	t.current = option
	t.mu.Unlock()
	t.notify(t)
	return errors.Join(climateErr, err)
}

func (t *TravelSelect) Command(ctx context.Context, payload string) error {
	return t.SelectOption(ctx, strings.TrimSpace(payload))
}
