// Package logging provides structured logging for the family-tree core.
//
// It wraps log/slog so every component logs key/value pairs with the same
// default fields (service, version).
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
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("login succeeded", "user_id", id)
//	logger.Error("store unavailable", "error", err)
//
// # Security
//
// Never log passwords, password digests, session tokens or signing secrets.
// Usernames and user ids are fine.
package logging
