package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autovolume_frames_total",
			Help: "Inbound device frames, by type",
		},
		[]string{"type"},
	)
	devicesOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "autovolume_devices_online",
			Help: "Devices with a live websocket session",
		},
	)
	droppedReadings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "autovolume_readings_dropped_total",
			Help: "Sound-level readings not fed to the control loop, by reason",
		},
		[]string{"reason"},
	)
)

// RegisterMetrics registers the gateway's collectors with the default
// Prometheus registry. Call it once at startup.
func RegisterMetrics() {
	prometheus.MustRegister(framesTotal, devicesOnline, droppedReadings)
}
