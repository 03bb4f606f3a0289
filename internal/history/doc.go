// Package history keeps a record of finished conversations and voicemail
// notifications in SQLite, so clients can ask who called whom after the
// live state has moved on.
//
// The Recorder listens to the proxy's domain events; the repository
// answers filtered, paginated queries for the REST API and prunes rows
// past the retention window.
package history
