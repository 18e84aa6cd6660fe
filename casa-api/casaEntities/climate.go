package casaEntities

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

type HvacMode string

const (
	HvacOff     HvacMode = "off"
	HvacAuto    HvacMode = "auto"
	HvacFanOnly HvacMode = "fan_only"
)

var HvacModes = []HvacMode{HvacOff, HvacAuto, HvacFanOnly}

// Climate combines temperatures and the climate mode into a thermostat view.
type Climate struct {
	base
	writer Writer

	currentTemp *float64
	targetTemp  *float64
	mode        string
	hvac        HvacMode
}

func NewClimate(writer Writer) *Climate {
	return &Climate{
		base:   base{key: "climate.ftx", name: "FTX"},
		writer: writer,
		mode:   casaStructs.ClimateHome,
		hvac:   HvacFanOnly,
	}
}

func (c *Climate) HandleSnapshot(snapshot casaStructs.Snapshot) {
	c.mu.Lock()
	if v, ok := floatValue(snapshot, casaStructs.TemperatureSupply); ok {
		c.currentTemp = &v
	}
	if v, ok := floatValue(snapshot, casaStructs.SetpointSupplyTemperature); ok {
		c.targetTemp = &v
	}
	if code, ok := intValue(snapshot, casaStructs.ClimateMode); ok {
		c.mode = casaStructs.ClimateModes.NameOrFallback(code)
		c.hvac = hvacFor(c.mode)
	}
	c.mu.Unlock()
	c.notify(c)
}

func hvacFor(mode string) HvacMode {
	if mode == casaStructs.ClimateOff {
		return HvacOff
	}
	return HvacFanOnly
}

func (c *Climate) State() string {
	return string(c.HvacMode())
}

func (c *Climate) HvacMode() HvacMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hvac
}

// ClimateMode returns the device climate mode name, e.g. Home or Off.
func (c *Climate) ClimateMode() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Climate) CurrentTemperature() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentTemp == nil {
		return 0, false
	}
	return *c.currentTemp, true
}

func (c *Climate) TargetTemperature() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.targetTemp == nil {
		return 0, false
	}
	return *c.targetTemp, true
}

func (c *Climate) Attributes() map[string]any {
	attrs := map[string]any{
		"hvac_modes":   HvacModes,
		"climate_mode": c.ClimateMode(),
	}
	if v, ok := c.CurrentTemperature(); ok {
		attrs["current_temperature"] = v
	}
	if v, ok := c.TargetTemperature(); ok {
		attrs["target_temperature"] = v
	}
	return attrs
}

// SetHvacMode writes Off for HvacOff and Home for every other mode.
func (c *Climate) SetHvacMode(ctx context.Context, mode HvacMode) error {
	if !slices.Contains(HvacModes, mode) {
		return fmt.Errorf("%w %q for %s", ErrUnknownOption, mode, c.key)
	}

	code := casaStructs.ClimateCodeHome
	if mode == HvacOff {
		code = casaStructs.ClimateCodeOff
	}
	err := c.writer.Write(ctx, casaStructs.ClimateMode, code)

	c.mu.Lock()
	c.mode = casaStructs.ClimateModes.NameOrFallback(code)
	c.hvac = hvacFor(c.mode)
	c.mu.Unlock()
	c.notify(c)
	return err
}

func (c *Climate) Command(ctx context.Context, payload string) error {
	return c.SetHvacMode(ctx, HvacMode(strings.ToLower(strings.TrimSpace(payload))))
}
