// Package metrics provides Prometheus instrumentation for coordinatord,
// grounded on the teacher's internal/daemon/metrics.go: a private registry,
// namespaced counters/histograms, and a promhttp handler mounted only when
// a metrics listen address is configured.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wsfleet/coordinator/internal/models"
)

// Metrics collects Prometheus counters and histograms for the coordinator.
type Metrics struct {
	registry *prometheus.Registry

	reservationTransitionsTotal *prometheus.CounterVec
	workstationTransitionsTotal *prometheus.CounterVec
	setupDurationSeconds        *prometheus.HistogramVec
	cleanupDurationSeconds      *prometheus.HistogramVec
	bootDurationSeconds         prometheus.Histogram
	orphanSweepTotal            *prometheus.CounterVec
	rpcLatencySeconds           *prometheus.HistogramVec
}

// NewMetrics constructs a metrics registry and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	sloBuckets := []float64{1, 2, 5, 10, 20, 30, 60, 120, 300, 600}
	rpcBuckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

	reservationTransitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsfleet",
			Subsystem: "reservation",
			Name:      "transitions_total",
			Help:      "Total number of reservation state transitions.",
		},
		[]string{"from", "to"},
	)
	workstationTransitionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsfleet",
			Subsystem: "workstation",
			Name:      "transitions_total",
			Help:      "Total number of workstation state transitions.",
		},
		[]string{"from", "to"},
	)
	setupDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wsfleet",
			Subsystem: "engine_handler",
			Name:      "setup_duration_seconds",
			Help:      "Time spent provisioning a workstation, from clone request to agent-ready.",
			Buckets:   sloBuckets,
		},
		[]string{"result"},
	)
	cleanupDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wsfleet",
			Subsystem: "engine_handler",
			Name:      "cleanup_duration_seconds",
			Help:      "Time spent tearing down a workstation.",
			Buckets:   sloBuckets,
		},
		[]string{"result"},
	)
	bootDurationSeconds := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wsfleet",
			Subsystem: "workstation",
			Name:      "boot_duration_seconds",
			Help:      "Time from boot start to guest-agent ready, as observed by the engine handler.",
			Buckets:   sloBuckets,
		},
	)
	orphanSweepTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wsfleet",
			Subsystem: "engine_handler",
			Name:      "orphan_sweep_total",
			Help:      "Total number of orphaned engine-side VMs found and reaped per sweep.",
		},
		[]string{"engine_id"},
	)
	rpcLatencySeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wsfleet",
			Subsystem: "rpcclient",
			Name:      "call_duration_seconds",
			Help:      "Latency of JSON-RPC calls to engine adapters.",
			Buckets:   rpcBuckets,
		},
		[]string{"method", "result"},
	)

	registry.MustRegister(
		reservationTransitionsTotal,
		workstationTransitionsTotal,
		setupDurationSeconds,
		cleanupDurationSeconds,
		bootDurationSeconds,
		orphanSweepTotal,
		rpcLatencySeconds,
	)

	return &Metrics{
		registry:                    registry,
		reservationTransitionsTotal: reservationTransitionsTotal,
		workstationTransitionsTotal: workstationTransitionsTotal,
		setupDurationSeconds:        setupDurationSeconds,
		cleanupDurationSeconds:      cleanupDurationSeconds,
		bootDurationSeconds:         bootDurationSeconds,
		orphanSweepTotal:            orphanSweepTotal,
		rpcLatencySeconds:           rpcLatencySeconds,
	}
}

// Handler returns an http.Handler serving the registry in Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncReservationTransition records a reservation moving between statuses.
func (m *Metrics) IncReservationTransition(from, to models.ReservationStatus) {
	if m == nil {
		return
	}
	m.reservationTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// IncWorkstationTransition records a workstation moving between statuses.
func (m *Metrics) IncWorkstationTransition(from, to models.WorkstationStatus) {
	if m == nil {
		return
	}
	m.workstationTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

// ObserveSetup records how long a workstation setup worker took.
func (m *Metrics) ObserveSetup(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.setupDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveCleanup records how long a workstation cleanup worker took.
func (m *Metrics) ObserveCleanup(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cleanupDurationSeconds.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveBoot records the boot-to-ready duration for a workstation.
func (m *Metrics) ObserveBoot(d time.Duration) {
	if m == nil {
		return
	}
	m.bootDurationSeconds.Observe(d.Seconds())
}

// IncOrphansReaped adds n orphaned VMs found on engineID during a sweep.
func (m *Metrics) IncOrphansReaped(engineID string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.orphanSweepTotal.WithLabelValues(engineID).Add(float64(n))
}

// ObserveRPCCall records the latency of a single JSON-RPC call.
func (m *Metrics) ObserveRPCCall(method, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcLatencySeconds.WithLabelValues(method, result).Observe(d.Seconds())
}
