// Package model holds the telephony entities maintained by the proxy
// engine, the domain events it emits, and the read-only Snapshot handed to
// outside callers.
//
// The types are plain data. Ownership lives with the engine; everything
// crossing the engine boundary is a deep copy.
package model
