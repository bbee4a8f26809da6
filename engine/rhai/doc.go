// Package rhai implements a sandboxed interpreter for a subset of the Rhai
// scripting language.
//
// Scripts are compiled in three passes: lexing, parsing and static
// resolution. Resolution binds every variable to a frame slot and rejects
// unknown names and disabled symbols, so a script that references eval or a
// file primitive fails before any statement runs.
//
// Evaluation is a tree walk that consults the session meter at every
// statement, loop iteration, function call and operator. Strings, arrays
// and maps are checked against the size ceilings as they are built, and
// their estimated size is charged to the heap budget. try/catch intercepts
// script errors but never limit violations or disabled capabilities.
//
// Supported:
//
//	let x = 1; const Y = 2;
//	fn add(a, b) { a + b }            // hoisted, overloaded by arity
//	if x > 0 { "pos" } else { "neg" } // if is an expression
//	while c { } loop { break 42; } for (v, i) in [1, 2] { }
//	for i in 0..10 { } for i in 0..=10 { }
//	try { throw "bad"; } catch (e) { e }
//	#{ name: "x", "key": [1, 2.5, true, ()] }
//	s.to_upper() == to_upper(s)
//
// Arrays and maps have reference semantics: assigning or passing one shares
// it rather than copying.
package rhai
