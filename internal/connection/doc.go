// Package connection tracks which sound-sensing device is live on which
// websocket session.
//
// The Registry maps a device identity (the ID the hardware assigns itself)
// to exactly one live Conn. A second registration for the same identity
// replaces the first; the caller closes the orphaned transport. Outbound
// pushes through Send are best-effort and never block: a message for an
// offline device, or for a session whose send buffer is full, is dropped.
//
// The registry is in-memory only. A process restart starts with an empty
// registry and devices repopulate it as they reconnect.
package connection
