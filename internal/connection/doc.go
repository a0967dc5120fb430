// Package connection implements the Connection Registry and the server-side
// WebSocket transport.
//
// The Connection Registry:
//   - Owns connection identity (a generated UUID per accepted client)
//   - Holds the transport handle next to connect time, last activity and a sent-message counter
//   - Reports removal exactly once, which is what keeps disconnect cleanup single-shot
//
// WSConn gives every client its own bounded outbound queue and write goroutine, so a
// slow or dead client never stalls a broadcast to the others.
package connection
