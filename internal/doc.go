// Package internal contains the core implementation packages for liveserve.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the liveserve CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Configuration management with validation
//   - errors: Structured error types and the dev-server error taxonomy
//   - logging: Structured logging over log/slog
//   - protocol: RFC 6455 framing, upgrade handshake, and the JSON envelope
//   - server: TCP listener, connection registry, and reload broadcasting
//   - watcher: File system monitoring with debouncing
//
// # Inter-Package Communication
//
//   - Watcher monitors the file system and hands debounced change batches
//     to the serve command, which runs the build and asks the server to
//     broadcast the outcome
//   - Server owns the connection registry and fans messages out through
//     the protocol package's codec
//   - All components receive their Logger at construction
//
// For detailed documentation, see the individual package documentation.
package internal
