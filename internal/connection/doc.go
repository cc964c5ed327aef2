// Package connection implements the realtime session client.
//
// The Manager:
//   - Owns the single WebSocket transport and its state machine
//     (disconnected, connecting, connected, reconnecting, failed)
//   - Announces the logical session and waits for the server's ack
//   - Replays topic subscriptions after every reconnect
//   - Handles reconnection with exponential backoff and a retry ceiling
//   - Publishes decoded messages and state changes on the event bus
package connection
