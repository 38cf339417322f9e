// Package gateway terminates the websocket connections of sound-sensing
// devices and drives the auto-volume loop from their frames.
//
// Each connection gets a Session that moves through three states:
//
//	Unregistered --register--> Registered --close--> Closed
//	      |                                            ^
//	      +-------------------close--------------------+
//
// A register frame binds the session to a device identity in the
// connection registry, upserts the device record and replies with the
// device's zone configurations. A second register on the same session
// refreshes the registration. Every sound_level frame from a registered
// session is fed through the control loop once per active zone config.
//
// Frames are handled one at a time per connection, in arrival order.
// Malformed frames and unknown frame types are logged and ignored; they
// never close the connection.
//
// Outbound frames (registered, set_account, factory_reset) go through the
// registry's best-effort send, so a full or closed session drops them.
package gateway
