package proxy

import "errors"

// Domain errors for the proxy package.
var (
	// ErrUnknownCommand is returned for a command name not in the registry.
	ErrUnknownCommand = errors.New("proxy: unknown command")

	// ErrUnknownEvent is returned when subscribing to a name that is not a
	// domain event.
	ErrUnknownEvent = errors.New("proxy: unknown domain event")
)

// Errors returned by operations that resolve channels from state.
var (
	// ErrNoConversation is returned when an extension has no conversation
	// with the given identifier.
	ErrNoConversation = errors.New("proxy: no such conversation")

	// ErrNoChannel is returned when an extension has no active channel.
	ErrNoChannel = errors.New("proxy: no active channel")

	// ErrNotParked is returned for a parking slot holding no call.
	ErrNotParked = errors.New("proxy: parking slot empty")
)
