// Package audit keeps a trail of the commands run against the PBX.
//
// Every command that arrives through the HTTP API or the MQTT command
// topic is recorded with the caller, its arguments, the outcome and how
// long the PBX took to answer. Entries live in the command_audit table of
// the proxy database and are pruned with the conversation history.
//
// Trail.Record never blocks; writes happen on the goroutine running
// Trail.Run, so recording from the manager read loop is safe.
package audit
