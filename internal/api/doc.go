// Package api provides the CVEHub REST client.
//
// REST endpoints:
//   - Production: https://cvehub.io/api
//
// The REST surface backs the realtime client: CVE resync after reconnect
// gaps, comment history, and session cleanup when the socket is down.
package api
