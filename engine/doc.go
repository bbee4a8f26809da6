// Package engine defines the contract between the executor and a scripting
// backend, and the per-call Session every execution runs in.
//
// A backend compiles source into an immutable Unit and evaluates units
// inside a Session. The session carries the limits.Meter that the backend
// must consult at every step boundary, so runaway scripts are stopped from
// inside the interpreter loop rather than by an external timer.
//
// Backends live in subpackages:
//
//	engine/rhai  tree-walking interpreter for a Rhai-like language
//	engine/lua   Lua 5.2 on github.com/Shopify/go-lua
package engine
