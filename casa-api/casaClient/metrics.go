package casaClient

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zabeloliver/casa-prometheus-exporter/casa-api/casaStructs"
)

// Metrics tracks client and poll loop health. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	requests         *prometheus.CounterVec
	retries          *prometheus.CounterVec
	writes           *prometheus.CounterVec
	pollCycles       *prometheus.CounterVec
	lastPollSuccess  prometheus.Gauge
	droppedSnapshots *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casa_client_requests_total",
				Help: "Requests sent to the Casa controller by path and http status (0 for transport errors).",
			},
			[]string{"path", "status"}),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casa_client_retries_total",
				Help: "Requests repeated after the controller closed the connection.",
			},
			[]string{"path"}),
		writes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casa_client_writes_total",
				Help: "Object writes by object id and result.",
			},
			[]string{"id", "result"}),
		pollCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casa_poll_cycles_total",
				Help: "Poll cycles by result (ok, empty, error).",
			},
			[]string{"result"}),
		lastPollSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "casa_poll_last_success_timestamp_seconds",
				Help: "Time of the last poll cycle that produced a snapshot.",
			}),
		droppedSnapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "casa_poll_dropped_snapshots_total",
				Help: "Snapshots not delivered because the subscriber was still busy.",
			},
			[]string{"subscriber"}),
	}
	reg.MustRegister(m.requests)
	reg.MustRegister(m.retries)
	reg.MustRegister(m.writes)
	reg.MustRegister(m.pollCycles)
	reg.MustRegister(m.lastPollSuccess)
	reg.MustRegister(m.droppedSnapshots)
	return m
}

func (m *Metrics) observeRequest(path string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeRetry(path string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(path).Inc()
}

func (m *Metrics) observeWrite(id casaStructs.ObjectId, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.writes.WithLabelValues(string(id), result).Inc()
}

func (m *Metrics) observeCycle(result string) {
	if m == nil {
		return
	}
	m.pollCycles.WithLabelValues(result).Inc()
	if result == "ok" {
		m.lastPollSuccess.Set(float64(time.Now().Unix()))
	}
}

func (m *Metrics) observeDrop(subscriber string) {
	if m == nil {
		return
	}
	m.droppedSnapshots.WithLabelValues(subscriber).Inc()
}
