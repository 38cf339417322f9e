package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementZoneControl    = "zone_control"
	MeasurementDevicePresence = "device_presence"
)

// ZoneSample is one reading's pass through a zone's control loop.
type ZoneSample struct {
	DeviceID   string
	ZoneID     string
	ReadingDB  float64
	SmoothedDB float64
	Target     int
	Volume     int
	Actuated   bool
	Failed     bool
	At         time.Time
}

// WriteZoneSample records a control-loop evaluation, tagged by zone and
// device so per-venue dashboards can group on either.
func (c *Client) WriteZoneSample(s ZoneSample) {
	if !c.IsConnected() {
		return
	}

	at := s.At
	if at.IsZero() {
		at = time.Now()
	}

	point := write.NewPoint(
		MeasurementZoneControl,
		map[string]string{
			"zone_id":   s.ZoneID,
			"device_id": s.DeviceID,
		},
		map[string]any{
			"reading_db":  s.ReadingDB,
			"smoothed_db": s.SmoothedDB,
			"target":      s.Target,
			"volume":      s.Volume,
			"actuated":    s.Actuated,
			"failed":      s.Failed,
		},
		at,
	)
	c.writeAPI.WritePoint(point)
}

// WriteDevicePresence records a device going online or offline.
func (c *Client) WriteDevicePresence(identity string, online bool, at time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementDevicePresence,
		map[string]string{"device_id": identity},
		map[string]any{"online": online},
		at,
	)
	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
