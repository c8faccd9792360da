//nolint:gochecknoglobals // prometheus metrics and global state
package metrics

import (
	"errors"
	"sync/atomic"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DiscoveredCamerasTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "camfleet_discovered_cameras_total",
			Help: "Distinct cameras seen across discovery runs (Counter).",
		},
		[]string{"service"},
	)
	ConnectedCameras = promauto.NewGaugeVec(
		prom.GaugeOpts{
			Name: "camfleet_connected_cameras",
			Help: "Cameras currently holding an open control channel (Gauge).",
		},
		[]string{"service"},
	)
	CommandsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "camfleet_commands_total",
			Help: "Camera commands issued by op and outcome (Counter). outcome=success|error|timeout.",
		},
		[]string{"service", "op", "outcome"},
	)
	TransferAttemptsTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "camfleet_transfer_attempts_total",
			Help: "Download attempts by outcome (Counter). outcome=success|error.",
		},
		[]string{"service", "outcome"},
	)
	ArtifactsAbandonedTotal = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "camfleet_artifacts_abandoned_total",
			Help: "Artifacts left on camera after exhausting download attempts (Counter).",
		},
		[]string{"service"},
	)
	ReadyGauge = promauto.NewGaugeVec(
		prom.GaugeOpts{
			Name: "camfleet_ready",
			Help: "Session readiness: 1=armed, 0=not armed (Gauge).",
		},
		[]string{"service"},
	)
	PhaseDuration = promauto.NewHistogramVec(prom.HistogramOpts{
		Name:    "camfleet_session_phase_duration_seconds",
		Help:    "Duration of session phases in seconds (Histogram). phase=arm|start|stop|collect.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	}, []string{"service", "phase"})
)

var serviceName atomic.Value //nolint:gochecknoglobals // service name // string

// SetService sets the service label value (default: camfleet).
func SetService(name string) { serviceName.Store(name) }

func Service() string {
	if v := serviceName.Load(); v != nil {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}

	return "camfleet"
}

// RegisterCollectors registers default Go and process collectors.
// Should be called once during program startup (e.g., in cmd).
func RegisterCollectors() {
	registerDefault(collectors.NewGoCollector())
	registerDefault(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

func registerDefault(c prom.Collector) {
	if err := prom.Register(c); err != nil {
		var are prom.AlreadyRegisteredError
		if errors.As(err, &are) {
			return
		}
		// best-effort: ignore unexpected errors to avoid panics in init
	}
}

var M struct { //nolint:gochecknoglobals // metrics cache
	DiscoveredCameras  prom.Counter
	ConnectedCameras   prom.Gauge
	TransferSuccess    prom.Counter
	TransferError      prom.Counter
	ArtifactsAbandoned prom.Counter
	Ready              prom.Gauge
}

func BindService() {
	s := Service()
	M.DiscoveredCameras = DiscoveredCamerasTotal.WithLabelValues(s)
	M.ConnectedCameras = ConnectedCameras.WithLabelValues(s)
	M.TransferSuccess = TransferAttemptsTotal.WithLabelValues(s, "success")
	M.TransferError = TransferAttemptsTotal.WithLabelValues(s, "error")
	M.ArtifactsAbandoned = ArtifactsAbandonedTotal.WithLabelValues(s)
	M.Ready = ReadyGauge.WithLabelValues(s)
}

// IncCommand increments the command counter for an op/outcome pair.
func IncCommand(op, outcome string) {
	if op == "" {
		op = "unknown"
	}

	CommandsTotal.WithLabelValues(Service(), op, outcome).Inc()
}

// ObservePhase records how long a session phase took.
func ObservePhase(phase string, sec float64) {
	PhaseDuration.WithLabelValues(Service(), phase).Observe(sec)
}
