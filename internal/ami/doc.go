// Package ami implements the client side of the Asterisk Manager Interface.
//
// The manager interface is a line-oriented TCP protocol. Every message is a
// frame of "Key: Value" lines ended by a blank line:
//
//	Action: Ping            Response: Success         Event: Hangup
//	ActionID: ping_7        ActionID: ping_7          Channel: SIP/200-0001
//	                        Ping: Pong                Cause: 16
//	                                                  Uniqueid: 1700000000.1
//
// Architecture:
//
//	┌──────────────┐   Send(Request, cb)   ┌────────────┐
//	│ proxy engine │ ────────────────────► │   Client   │ ── Encode ──► TCP
//	└──────────────┘                       │            │
//	       ▲                               │ receive    │ ◄── Reader ── TCP
//	       │ OnEvent(Frame)                │ loop       │
//	       └────────────────────────────── │            │
//	                                       └─────┬──────┘
//	                                             │ ActionID
//	                                       ┌─────▼──────┐
//	                                       │ Correlator │ ── cb(Result)
//	                                       └────────────┘
//
// Every action gets a unique ActionID of the form "name_N". Frames that
// echo a pending ActionID are delivered to the Correlator, which resolves
// the action exactly once: on its completing frame, on an error response,
// on timeout, or with ErrConnectionLost when the connection drops. Frames
// with no ActionID are unsolicited events and reach the OnEvent handler in
// wire order.
//
// Thread Safety: Client and Correlator are safe for concurrent use.
// Handlers run on the read loop and must return quickly.
package ami
