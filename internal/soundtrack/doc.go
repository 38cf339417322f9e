// Package soundtrack is a client for the Soundtrack Your Brand GraphQL API,
// the remote service that owns the audio zones.
//
// The auto-volume loop needs one operation from it, SetVolume. The operator
// API also uses SearchAccounts and ListZones to let an operator pick the
// zone a device should drive.
//
// Authentication uses either a pre-issued API token or the OAuth
// client-credentials flow through golang.org/x/oauth2. Tokens obtained
// through the flow are reused until shortly before they expire.
package soundtrack
