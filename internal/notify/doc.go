// Package notify fans gateway events out to the optional sinks: retained
// MQTT presence and volume topics, InfluxDB history and the operator
// event socket.
//
// Publisher implements gateway.Observer. Observer callbacks only enqueue;
// Run delivers to the sinks on its own goroutine so a slow broker never
// stalls a device's read loop. Events that arrive while the queue is full
// are dropped and counted.
package notify
