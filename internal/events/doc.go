// Package events turns unsolicited manager events into proxy mutations.
//
// Each Handler owns one PBX event name. It checks that the frame carries
// the fields it needs, extracts extensions and identifiers using the
// channel-name grammar of the PBX, and calls exactly one mutation of the
// Proxy it was built with. Handlers hold no state of their own.
//
// The Dispatcher is the recovery boundary of the event path: a handler
// error or panic is logged and the event dropped, so one unexpected
// frame never stops the read loop.
//
//	AMI read loop
//	     │ ami.Frame
//	     ▼
//	┌────────────┐ name  ┌──────────┐ first Accepts ┌─────────┐
//	│ Dispatcher │──────▶│ Registry │──────────────▶│ Handler │──▶ Proxy
//	└────────────┘       └──────────┘               └─────────┘
package events
