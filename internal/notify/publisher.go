package notify

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/brightears/soundtrack-auto-volume/internal/device"
	"github.com/brightears/soundtrack-auto-volume/internal/gateway"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/influxdb"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/logging"
	"github.com/brightears/soundtrack-auto-volume/internal/infrastructure/mqtt"
)

const defaultQueueSize = 256

// Event channels on the operator socket.
const (
	ChannelDeviceOnline    = "device.online"
	ChannelDeviceOffline   = "device.offline"
	ChannelVolumeChanged   = "zone.volume_changed"
	ChannelActuationFailed = "zone.actuation_failed"
	ChannelZoneEvaluated   = "zone.evaluated"
)

const (
	eventKindPresence = "presence"
	eventKindZone     = "zone"
)

// MQTTPublisher is the part of the MQTT client the publisher needs.
type MQTTPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// HistoryWriter is the part of the InfluxDB client the publisher needs.
type HistoryWriter interface {
	WriteZoneSample(s influxdb.ZoneSample)
	WriteDevicePresence(identity string, online bool, at time.Time)
}

// Broadcaster pushes an event to operator sockets subscribed to channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Options configures a Publisher. Every sink is optional.
type Options struct {
	MQTT      MQTTPublisher
	History   HistoryWriter
	Events    Broadcaster
	Logger    *logging.Logger
	QueueSize int
}

// DeviceStatus is published retained on the device's status topic and
// broadcast on the presence channels.
type DeviceStatus struct {
	DeviceID  string `json:"device_id"`
	Online    bool   `json:"online"`
	Firmware  string `json:"firmware,omitempty"`
	Timestamp string `json:"timestamp"`
}

// VolumeChange describes one zone evaluation that reached the zone service.
type VolumeChange struct {
	ZoneID     string  `json:"zone_id"`
	DeviceID   string  `json:"device_id"`
	ConfigID   string  `json:"config_id"`
	Volume     int     `json:"volume"`
	Target     int     `json:"target"`
	ReadingDB  float64 `json:"reading_db"`
	SmoothedDB float64 `json:"smoothed_db"`
	Error      string  `json:"error,omitempty"`
	Timestamp  string  `json:"timestamp"`
}

type event struct {
	kind   string
	status DeviceStatus
	zone   gateway.ZoneEvent
	at     time.Time
}

var eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "autovolume_notify_events_dropped_total",
	Help: "Observer events dropped because the notify queue was full",
})

var publishFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "autovolume_notify_publish_failures_total",
		Help: "Failed deliveries to an event sink",
	},
	[]string{"sink"},
)

// RegisterMetrics registers the publisher's collectors with the default
// Prometheus registry.
func RegisterMetrics() {
	prometheus.MustRegister(eventsDropped, publishFailures)
}

// Publisher delivers gateway observations to the configured sinks.
type Publisher struct {
	mqtt    MQTTPublisher
	history HistoryWriter
	events  Broadcaster
	logger  *logging.Logger
	queue   chan event
	now     func() time.Time
}

var _ gateway.Observer = (*Publisher)(nil)

// New creates a Publisher. Call Run to start delivery.
func New(opts Options) *Publisher {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		mqtt:    opts.MQTT,
		history: opts.History,
		events:  opts.Events,
		logger:  logger.With("component", "notify"),
		queue:   make(chan event, size),
		now:     time.Now,
	}
}

// DeviceOnline implements gateway.Observer.
func (p *Publisher) DeviceOnline(d *device.Device) {
	at := p.now()
	p.enqueue(event{
		kind: eventKindPresence,
		at:   at,
		status: DeviceStatus{
			DeviceID:  d.DeviceID,
			Online:    true,
			Firmware:  d.Firmware,
			Timestamp: at.UTC().Format(time.RFC3339),
		},
	})
}

// DeviceOffline implements gateway.Observer.
func (p *Publisher) DeviceOffline(identity string) {
	at := p.now()
	p.enqueue(event{
		kind: eventKindPresence,
		at:   at,
		status: DeviceStatus{
			DeviceID:  identity,
			Timestamp: at.UTC().Format(time.RFC3339),
		},
	})
}

// ZoneEvaluated implements gateway.Observer.
func (p *Publisher) ZoneEvaluated(ev gateway.ZoneEvent) {
	at := ev.At
	if at.IsZero() {
		at = p.now()
	}
	p.enqueue(event{kind: eventKindZone, zone: ev, at: at})
}

func (p *Publisher) enqueue(ev event) {
	select {
	case p.queue <- ev:
	default:
		eventsDropped.Inc()
		p.logger.Warn("notify queue full, dropping event", "kind", ev.kind)
	}
}

// Run delivers queued events until ctx is cancelled, then drains whatever
// is still queued.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-p.queue:
			p.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-p.queue:
					p.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(ev event) {
	switch ev.kind {
	case eventKindPresence:
		p.deliverPresence(ev.status, ev.at)
	case eventKindZone:
		p.deliverZone(ev.zone, ev.at)
	}
}

func (p *Publisher) deliverPresence(status DeviceStatus, at time.Time) {
	if p.mqtt != nil {
		if err := p.mqtt.PublishJSON(mqtt.Topics{}.DeviceStatus(status.DeviceID), status, true); err != nil {
			publishFailures.WithLabelValues("mqtt").Inc()
			p.logger.Debug("device status publish failed", "device_id", status.DeviceID, "error", err)
		}
	}
	if p.history != nil {
		p.history.WriteDevicePresence(status.DeviceID, status.Online, at)
	}
	if p.events != nil {
		channel := ChannelDeviceOffline
		if status.Online {
			channel = ChannelDeviceOnline
		}
		p.events.Broadcast(channel, status)
	}
}

func (p *Publisher) deliverZone(ev gateway.ZoneEvent, at time.Time) {
	if p.history != nil {
		p.history.WriteZoneSample(influxdb.ZoneSample{
			DeviceID:   ev.DeviceID,
			ZoneID:     ev.ZoneID,
			ReadingDB:  ev.Reading,
			SmoothedDB: ev.Smoothed,
			Target:     ev.Target,
			Volume:     ev.Volume,
			Actuated:   ev.Actuated,
			Failed:     ev.Err != nil,
			At:         at,
		})
	}

	change := VolumeChange{
		ZoneID:     ev.ZoneID,
		DeviceID:   ev.DeviceID,
		ConfigID:   ev.ConfigID,
		Volume:     ev.Volume,
		Target:     ev.Target,
		ReadingDB:  ev.Reading,
		SmoothedDB: ev.Smoothed,
		Timestamp:  at.UTC().Format(time.RFC3339),
	}

	switch {
	case ev.Actuated:
		if p.mqtt != nil {
			if err := p.mqtt.PublishJSON(mqtt.Topics{}.ZoneVolume(ev.ZoneID), change, false); err != nil {
				publishFailures.WithLabelValues("mqtt").Inc()
				p.logger.Debug("zone volume publish failed", "zone_id", ev.ZoneID, "error", err)
			}
		}
		if p.events != nil {
			p.events.Broadcast(ChannelVolumeChanged, change)
		}
	case ev.Err != nil:
		if p.events != nil {
			change.Error = ev.Err.Error()
			p.events.Broadcast(ChannelActuationFailed, change)
		}
	default:
		if p.events != nil {
			p.events.Broadcast(ChannelZoneEvaluated, change)
		}
	}
}
