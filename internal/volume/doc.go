// Package volume turns a stream of sound-level readings into rate-limited
// set-volume calls for audio zones.
//
// For every reading the Mapper:
//   - smooths it into the zone's running estimate with an exponential
//     moving average
//   - maps the smoothed dBFS linearly between the quiet and loud thresholds
//     onto the zone's [min, max] volume range
//   - requires the same new target on SustainCount consecutive readings
//     before acting
//   - calls the Actuator at most once per minimum interval per zone
//
// A failed call leaves the pending target in place so the next qualifying
// reading retries it. There is no background retry timer.
//
// Zone state is created on the first reading and lives only in memory.
// Readings for the same zone are processed one at a time even when they
// arrive from different devices.
package volume
