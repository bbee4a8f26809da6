// Package lua runs scripts on the Shopify go-lua virtual machine.
//
// Every session gets a fresh interpreter state with only the base, string,
// table, math and bit32 libraries opened. File, module and loader
// primitives are removed, and the global table refuses any access to them
// or to symbols disabled through Disable with a DisabledCapability error
// that pcall cannot swallow.
//
// A count hook charges every VM instruction to the session meter, which
// bounds operations and wall time. After each instruction the hook checks
// the strings and tables in the running function's registers against the
// size ceilings, so concatenation and indexed stores are caught where they
// happen. Periodically it walks everything reachable from the globals, the
// registers and the functions on the call stack, checks every table and
// replaces the heap estimate with the measured size. Library functions
// that grow data, the host function boundary and the final result are
// checked as well.
//
// Results convert to canonical values as follows: integral numbers become
// integers, tables with keys 1..n become arrays (an empty table is an empty
// array) and every other table becomes a map with string keys.
package lua
