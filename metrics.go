package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

type metrics struct {
	temperature      *prometheus.GaugeVec
	humidity         *prometheus.GaugeVec
	absoluteHumidity *prometheus.GaugeVec
	fanSpeed         *prometheus.GaugeVec
	ventilationLevel *prometheus.GaugeVec
	boostCountdown   *prometheus.GaugeVec
	travelTempDrop   *prometheus.GaugeVec
	supplySetpoint   *prometheus.GaugeVec
	mode             *prometheus.GaugeVec
	logger           *zap.SugaredLogger
}

func NewMetrics(reg prometheus.Registerer, logger *zap.SugaredLogger) *metrics {
	m := &metrics{
		temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_temperature_celsius",
				Help: "Current temperature in degree celsius.",
			},
			[]string{"id", "sensor"}),
		humidity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_humidity_percent",
				Help: "Current relative humidity in percent.",
			},
			[]string{"id", "sensor"},
		),
		absoluteHumidity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_humidity_absolute_grams_per_cubic_meter",
				Help: "Current absolute humidity.",
			},
			[]string{"id", "sensor"},
		),
		fanSpeed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_fan_speed_rpm",
				Help: "Current fan speed.",
			},
			[]string{"id", "sensor"},
		),
		ventilationLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_ventilation_level_percent",
				Help: "Current ventilation level per direction.",
			},
			[]string{"id", "sensor"},
		),
		boostCountdown: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_boost_countdown_minutes",
				Help: "Remaining boost time.",
			},
			[]string{"id", "sensor"},
		),
		travelTempDrop: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_travel_temperature_drop_celsius",
				Help: "Temperature drop applied in travel mode.",
			},
			[]string{"id", "sensor"},
		),
		supplySetpoint: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_supply_temperature_setpoint_celsius",
				Help: "Supply temperature setpoint.",
			},
			[]string{"id", "sensor"},
		),
		mode: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "casa_mode",
				Help: "Raw code of a mode object.",
			},
			[]string{"id", "sensor"},
		),
		logger: logger,
	}
	reg.MustRegister(m.temperature)
	reg.MustRegister(m.humidity)
	reg.MustRegister(m.absoluteHumidity)
	reg.MustRegister(m.fanSpeed)
	reg.MustRegister(m.ventilationLevel)
	reg.MustRegister(m.boostCountdown)
	reg.MustRegister(m.travelTempDrop)
	reg.MustRegister(m.supplySetpoint)
	reg.MustRegister(m.mode)
	return m
}

func (m *metrics) gaugeFor(info casaStructs.ObjectInfo) *prometheus.GaugeVec {
	switch info.Id {
	case casaStructs.TemperatureSupply, casaStructs.TemperatureRoom, casaStructs.TemperatureOutside:
		return m.temperature
	case casaStructs.HumidityPercentage:
		return m.humidity
	case casaStructs.HumidityAbsolute:
		return m.absoluteHumidity
	case casaStructs.CurrentFanSpeed:
		return m.fanSpeed
	case casaStructs.VentilationLevelIn, casaStructs.VentilationLevelOut:
		return m.ventilationLevel
	case casaStructs.BoostCountdown:
		return m.boostCountdown
	case casaStructs.TravelModeTemperatureDrop:
		return m.travelTempDrop
	case casaStructs.SetpointSupplyTemperature:
		return m.supplySetpoint
	}
	if info.Kind == casaStructs.KindMode {
		return m.mode
	}
	return nil
}

// HandleSnapshot sets one gauge per numeric value in the snapshot.
func (m *metrics) HandleSnapshot(snapshot casaStructs.Snapshot) {
	for _, id := range snapshot.IDs() {
		info, ok := casaStructs.Lookup(id)
		if !ok {
			m.logger.Debugf("Ignoring unknown object %s", id)
			continue
		}
		gauge := m.gaugeFor(info)
		if gauge == nil {
			continue
		}
		v, _ := snapshot.Get(id)
		f, ok := v.Float64()
		if !ok {
			m.logger.Warnf("%s %s has non numeric value %v", info.Key, id, v.Raw())
			continue
		}
		m.logger.Debugf("%s %s: %v", info.Key, id, f)
		gauge.WithLabelValues(string(id), info.Key).Set(f)
	}
}
