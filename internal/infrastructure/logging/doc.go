// Package logging provides structured logging for the CTI proxy.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text during development, with service and version on
// every record.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	client.SetLogger(logger.Component("ami"))
//	logger.Info("proxy started", "pbx", cfg.AMIAddress())
//
// # Security
//
// Attributes named secret, password or token are replaced with "***".
// Manager login frames are rendered with their Secret masked.
package logging
