// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package exposes the script executor to MCP clients through
// the mark3labs/mcp-go library. It registers two tools: execute_script,
// which evaluates a whole script, and call_function, which loads a script
// and calls one of its functions with JSON arguments. Both return a JSON
// document describing the value or the classified failure.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, exec)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
