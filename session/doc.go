// Package session owns the process's single live-update channel.
//
// The Manager handles connect/disconnect/error, exponential-backoff
// reconnection capped at a fixed attempt limit, a priority-ordered
// outbound request queue drained on (re)connect, and a typed
// publish/subscribe fan-out of inbound events to internal listeners. It
// republishes payloads verbatim under matching topic names and performs no
// business-logic transformation.
//
// The Channel interface isolates transport framing; production uses a
// websocket, tests substitute an in-process fake.
package session
