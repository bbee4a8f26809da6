// Package main is the entry point for the scriptbox MCP server.
//
// The server exposes the sandboxed script executor to MCP clients through the
// execute_script and call_function tools. Every request runs in a fresh
// session bounded by the configured operation, time, string, array and
// memory limits. The server supports both stdio and HTTP transports and
// serves liveness and readiness probes on a separate health port.
//
// The application uses Uber's fx framework for dependency injection and lifecycle
// management, with zap for structured logging and viper for configuration.
package main
