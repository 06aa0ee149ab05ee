// Package logging provides a minimal logging interface and adapters for grantmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the dispatcher, transports and the reference evaluator use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - MeshLogger with component / agent context and action call helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh := grantmesh.New(func(o *grantmesh.Options) { o.Logger = logger })
package logging
