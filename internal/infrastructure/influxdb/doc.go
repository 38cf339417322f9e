// Package influxdb writes control-loop history to InfluxDB v2.
//
// Two measurements are written:
//
//	zone_control     tags zone_id, device_id; one point per evaluated reading
//	device_presence  tag device_id; one point per online/offline transition
//
// Writes are non-blocking and batched according to the influxdb section of
// the config (batch_size, flush_interval). Batch failures are delivered to
// the SetOnError callback.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // history is optional
//	}
//	defer client.Close()
package influxdb
