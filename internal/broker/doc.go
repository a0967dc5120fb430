// Package broker implements the fan-out subscription broker.
//
// The Broker ties the Subscription Index to the Connection Registry:
//   - Connect / Disconnect own the connection lifecycle; Disconnect is the one cleanup
//     routine for every way a connection can be lost, and runs once per connection
//   - Subscribe / Unsubscribe mutate the index and confirm back to the client
//   - SendTo, BroadcastAll and BroadcastToSymbol deliver to snapshots and evict any
//     connection whose send fails, after the pass, without aborting it
//   - Heartbeat pushes a liveness message to everyone on a cron schedule
package broker
