// Package api implements the operator HTTP API and event socket.
//
// This package provides:
//   - REST endpoints for device records and zone configurations
//   - Manual zone control through the remote zone service
//   - A WebSocket hub streaming presence and volume events
//   - Health, status and Prometheus metrics endpoints
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server also mounts the device gateway at the configured websocket
// path, so one listener carries both hardware and operator traffic. Config
// changes that alter the mapping reset the zone's control state; the next
// reading starts a fresh smoothing window.
//
// # Graceful Degradation
//
// Without zone service credentials the soundtrack routes answer 503 while
// every other route keeps working.
package api
