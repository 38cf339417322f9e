// Package device stores the durable record of every sound-sensing device
// the service has seen.
//
// A device is known by two keys. DeviceID is the identity the hardware
// reports about itself in its register frame. ID is the internal record key
// that zone configurations reference. The gateway resolves one to the other
// on every reading via Repository.GetByIdentity.
//
// Registration upserts the record and marks it online. Closing the socket
// marks it offline. Operators can rename, pause, re-associate or delete a
// device through the REST API; deleting a device removes its zone configs.
package device
