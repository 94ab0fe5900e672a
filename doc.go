// Package playout is a live playout-state engine for broadcast graphics
// sequencers.
//
// A sequencer manages on-air graphic "shows": ordered carousels of elements
// dispatched to one or more output feeds. Playout connects to each configured
// sequencer over a persistent TCP socket, speaks its line-oriented,
// length-prefixed text protocol, and reconciles the resulting event stream
// into an authoritative answer to three questions per channel/show/feed:
// what graphic is on air right now, what is scheduled next, and which
// carousels are switched on.
//
// # Architecture
//
// Inbound data flows one way:
//
//	socket bytes -> wire (codec) -> event (classifier) -> state (reconciler) -> snapshot
//
// Outbound commands flow from callers through the sequencer package's command
// builders and back onto the socket.
//
// Packages:
//   - wire: protocol framing, {N} length-prefixed fields, chunked-reply reassembly
//   - event: classification of decoded messages into a closed set of typed events
//   - state: the reconciled model, batched flushes, snapshot reads
//   - sequencer: one connection per channel, reconnect, command/reply correlation
//   - engine: the public facade wiring the above together
//   - gateway: HTTP/WebSocket surface for UI subscribers
//   - notify: state-change fanout (in-process, WebSocket, NATS)
//
// Playout is a client and state cache for the sequencer. It does not render
// UI, it does not own show or media metadata, and it does not implement the
// sequencer itself.
package playout
