// Package pkg provides shared utilities for the ft60x driver.
//
// This package contains common functionality used across the driver and
// its transports, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for transport and streaming failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with driver-specific context:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentStream, "worker started", "buffer_bytes", n)
//
// # Errors
//
// Failure conditions are defined as sentinel values:
//
//	if errors.Is(err, pkg.ErrShortTransfer) {
//	    // The device under-delivered a chunk.
//	}
package pkg
