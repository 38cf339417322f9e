package volume

import "github.com/prometheus/client_golang/prometheus"

var (
	actuationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autovolume_actuations_total",
			Help: "Set-volume calls issued, by result",
		},
		[]string{"result"},
	)
	actuationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "autovolume_actuation_duration_seconds",
			Help:    "Set-volume call latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)

// RegisterMetrics registers the control loop's collectors with the default
// Prometheus registry. Call it once at startup.
func RegisterMetrics() {
	prometheus.MustRegister(actuationsTotal, actuationDuration)
}

func newActuationTimer() *prometheus.Timer {
	return prometheus.NewTimer(actuationDuration)
}
