// Package main implements scriptctl, a command line front end for the
// scriptbox executor.
//
//	scriptctl run script.rhai
//	scriptctl run -c '40 + 2'
//	scriptctl call greet '"World"' -f greet.rhai
//	scriptctl repl
//
// Configuration is read the same way the server reads it; limit flags
// override the configured policy for the invocation.
package main
