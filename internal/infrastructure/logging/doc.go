// Package logging provides structured logging for the auto-volume service.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same handler, level filter and default fields (service, version).
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
//	logger.Info("device registered", "device_id", id)
//	logger.Error("set volume failed", "zone_id", zoneID, "error", err)
//
// Never log zone-control API tokens or client secrets.
package logging
