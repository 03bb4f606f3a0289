// Package api implements the HTTP REST API and WebSocket server of the CTI
// proxy.
//
// This package provides:
//   - Read endpoints for the telephony snapshot and conversation history
//   - Command execution against the PBX through the proxy engine, with
//     every execution recorded in the command audit trail
//   - A WebSocket hub pushing domain events to subscribed clients
//   - Bearer token authentication with viewer and operator roles
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Routes
//
//	GET  /api/v1/health                  no auth
//	GET  /api/v1/snapshot                state:read
//	GET  /api/v1/snapshot/{kind}         state:read
//	GET  /api/v1/system                  state:read
//	GET  /api/v1/commands                command:list
//	POST /api/v1/commands/{name}         command:execute
//	GET  /api/v1/history/conversations   history:read
//	GET  /api/v1/history/voicemail       history:read
//	GET  /api/v1/history/commands        history:read
//	GET  /api/v1/ws?token=...            events:stream
//	GET  /metrics                        no auth (when enabled)
//
// # WebSocket protocol
//
// Clients send {"type":"subscribe","payload":{"channels":["conversationConnected"]}}.
// The channel "*" receives every domain event. Events arrive as
// {"type":"event","event_type":"<name>","payload":{...}}.
//
// # Graceful Degradation
//
// History endpoints answer 503 when no history store is configured, and
// command execution answers 503 while the PBX session is down. Reads of the
// snapshot always work.
package api
