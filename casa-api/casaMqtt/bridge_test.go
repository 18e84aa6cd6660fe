package casaMqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaEntities"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

type message struct {
	qos      byte
	retained bool
	payload  string
}

type fakeBroker struct {
	mu        sync.Mutex
	published map[string]message
	handlers  map[string]MessageHandler
	closed    bool
	subErr    error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		published: map[string]message{},
		handlers:  map[string]MessageHandler{},
	}
}

func (f *fakeBroker) Publish(topic string, qos byte, retained bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[topic] = message{qos: qos, retained: retained, payload: string(payload)}
	return nil
}

func (f *fakeBroker) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if f.subErr != nil {
		return f.subErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeBroker) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeBroker) deliver(subscription string, topic string, payload string) {
	f.mu.Lock()
	handler := f.handlers[subscription]
	f.mu.Unlock()
	handler(topic, []byte(payload))
}

func (f *fakeBroker) state(topic string) (message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.published[topic]
	return m, ok
}

type recordingWriter struct {
	mu     sync.Mutex
	writes []string
}

func (w *recordingWriter) Write(ctx context.Context, id casaStructs.ObjectId, value int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, fmt.Sprintf("%s=%d", id, value))
	return nil
}

func TestKeyFromSetTopic(t *testing.T) {
	tests := []struct {
		topic string
		key   string
		ok    bool
	}{
		{"casa/select.travel_mode/set", "select.travel_mode", true},
		{"casa/climate.ftx/set", "climate.ftx", true},
		{"casa/select.travel_mode/state", "", false},
		{"other/select.travel_mode/set", "", false},
		{"casa//set", "", false},
		{"casa/a/b/set", "", false},
	}
	for _, tt := range tests {
		key, ok := KeyFromSetTopic("casa", tt.topic)
		if key != tt.key || ok != tt.ok {
			t.Errorf("KeyFromSetTopic(%q) = %q, %v, want %q, %v", tt.topic, key, ok, tt.key, tt.ok)
		}
	}
}

func TestBridgePublishesStatesAndHandlesCommands(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	writer := &recordingWriter{}
	set := casaEntities.NewSet(writer, logger)
	broker := newFakeBroker()

	bridge := NewBridge(broker, set, Config{TopicPrefix: "ftx/", Qos: 1}, logger)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// entities with a default state are published right away
	m, ok := broker.state("ftx/select.climate_mode/state")
	if !ok || m.payload != "Home" || !m.retained || m.qos != 1 {
		t.Errorf("climate mode state = %+v, %v", m, ok)
	}
	if _, ok := broker.state("ftx/sensor.room_temperature/state"); ok {
		t.Error("sensor without a value was published")
	}

	room, _ := set.Get("sensor.room_temperature")
	room.HandleSnapshot(casaStructs.NewSnapshot(map[casaStructs.ObjectId]casaStructs.Value{
		casaStructs.TemperatureRoom: casaStructs.NewValue(21.5),
	}))
	if m, _ := broker.state("ftx/sensor.room_temperature/state"); m.payload != "21.5" {
		t.Errorf("room temperature state = %q, want 21.5", m.payload)
	}

	broker.deliver("ftx/+/set", "ftx/select.travel_mode/set", "On")
	broker.deliver("ftx/+/set", "ftx/number.supply_temperature_setpoint/set", "19.5")
	broker.deliver("ftx/+/set", "ftx/sensor.room_temperature/set", "30")
	broker.deliver("ftx/+/set", "ftx/garbage", "On")

	want := []string{"111=4", "154=1", "163=19"}
	if fmt.Sprint(writer.writes) != fmt.Sprint(want) {
		t.Errorf("writes = %v, want %v", writer.writes, want)
	}
	if m, _ := broker.state("ftx/select.travel_mode/state"); m.payload != "On" {
		t.Errorf("travel state = %q, want On", m.payload)
	}

	bridge.Close()
	if !broker.closed {
		t.Error("broker not closed")
	}
	room.HandleSnapshot(casaStructs.NewSnapshot(map[casaStructs.ObjectId]casaStructs.Value{
		casaStructs.TemperatureRoom: casaStructs.NewValue(22.0),
	}))
	if m, _ := broker.state("ftx/sensor.room_temperature/state"); m.payload != "21.5" {
		t.Errorf("state published after Close: %q", m.payload)
	}
}

func TestBridgePublishesAttributes(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	set := casaEntities.NewSet(&recordingWriter{}, logger)
	broker := newFakeBroker()

	bridge := NewBridge(broker, set, Config{TopicPrefix: "casa", Qos: 0}, logger)
	if err := bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer bridge.Close()

	attributes := func(key string) map[string]any {
		t.Helper()
		m, ok := broker.state(AttributesTopic("casa", key))
		if !ok {
			t.Fatalf("no attributes published for %s", key)
		}
		if !m.retained {
			t.Errorf("attributes of %s not retained", key)
		}
		var attrs map[string]any
		if err := json.Unmarshal([]byte(m.payload), &attrs); err != nil {
			t.Fatalf("attributes of %s: %v", key, err)
		}
		return attrs
	}

	options, _ := attributes("select.fireplace_mode")["options"].([]any)
	if fmt.Sprint(options) != "[Off On]" {
		t.Errorf("fireplace options = %v, want [Off On]", options)
	}
	number := attributes("number.supply_temperature_setpoint")
	if number["min"] != 15.0 || number["max"] != 30.0 || number["step"] != 0.5 {
		t.Errorf("setpoint attributes = %v", number)
	}

	climate, _ := set.Get("climate.ftx")
	climate.HandleSnapshot(casaStructs.NewSnapshot(map[casaStructs.ObjectId]casaStructs.Value{
		casaStructs.TemperatureSupply:         casaStructs.NewValue(19.5),
		casaStructs.SetpointSupplyTemperature: casaStructs.NewValue(18),
	}))
	attrs := attributes("climate.ftx")
	if attrs["current_temperature"] != 19.5 || attrs["target_temperature"] != 18.0 || attrs["climate_mode"] != "Home" {
		t.Errorf("climate attributes = %v", attrs)
	}

	room, _ := set.Get("sensor.room_temperature")
	room.HandleSnapshot(casaStructs.NewSnapshot(map[casaStructs.ObjectId]casaStructs.Value{
		casaStructs.TemperatureRoom: casaStructs.NewValue(21.5),
	}))
	if unit := attributes("sensor.room_temperature")["unit"]; unit != "°C" {
		t.Errorf("room temperature unit = %v, want °C", unit)
	}
}

func TestBridgeStartFailsWhenSubscribeFails(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	broker := newFakeBroker()
	broker.subErr = ErrSubscribeFailed

	bridge := NewBridge(broker, casaEntities.NewSet(&recordingWriter{}, logger), Config{}, logger)
	if err := bridge.Start(context.Background()); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Start = %v, want ErrSubscribeFailed", err)
	}
}

func TestTopicsUsePrefix(t *testing.T) {
	if got := StatusTopic("casa"); got != "casa/status" {
		t.Errorf("StatusTopic = %q", got)
	}
	if got := SetTopic("casa", "climate.ftx"); got != "casa/climate.ftx/set" {
		t.Errorf("SetTopic = %q", got)
	}
	if got := AttributesTopic("casa", "climate.ftx"); got != "casa/climate.ftx/attributes" {
		t.Errorf("AttributesTopic = %q", got)
	}
	if got := SetWildcard("casa"); got != "casa/+/set" {
		t.Errorf("SetWildcard = %q", got)
	}
}
