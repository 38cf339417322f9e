// Package zone stores the per-zone mapping configuration that links a
// sound-sensing device to a remote audio zone.
//
// A Config says how readings from one device drive one zone: the volume
// range, the quiet and loud dBFS thresholds, the smoothing factor and how
// many consecutive readings must agree before the volume changes. The
// control loop only reads configs; the single value written back during
// operation is the zone's current volume after a successful change.
package zone
