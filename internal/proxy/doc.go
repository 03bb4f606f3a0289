// Package proxy is the state engine of the CTI proxy.
//
// The Engine owns the telephony graph: channels, conversations,
// extensions, queues, trunks, conferences and parking slots. Event
// handlers mutate it through the events.Proxy methods, always from the
// manager read loop, so there is a single writer. Every mutation takes
// the write lock, collects the domain events it caused, releases the lock
// and only then notifies subscribers, which may therefore call Snapshot.
//
// External callers never mutate state. They issue commands with
// DoCommand or Do, subscribe to domain events with On and OnAll, and read
// consistent deep copies with Snapshot.
//
// Conversation lifecycle:
//
//	dialing ──connect──▶ connected
//	   │                     │
//	   └──────hangup─────────┴──▶ terminated
package proxy
