// Package logging provides structured logging for NetFleet Core.
//
// This package wraps Go's standard log/slog package. Every entry carries
// the service name and version; orchestration entries add correlation_id
// and device_id so one operation can be followed from the API request to
// the journal append.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Component("journal").Info("stream claimed", "stream", name)
//
// Never log secrets, tokens or passwords.
package logging
