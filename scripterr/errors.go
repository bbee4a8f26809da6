package scripterr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind uint8

const (
	// Runtime is an uncaught script-level error: type error, division by
	// zero, explicit throw. It is the zero value so unclassified errors
	// default to it.
	Runtime Kind = iota
	// Config is an invalid policy or configuration at construction time.
	Config
	// Compile is a syntax or name-resolution failure. Nothing was executed.
	Compile
	// DisabledCapability means the script referenced a forbidden built-in.
	DisabledCapability
	// FunctionNotFound means the requested entry point does not exist.
	FunctionNotFound
	// LimitExceeded means a sandbox ceiling was hit; see Limit.
	LimitExceeded
)

func (k Kind) String() string {
	switch k {
	case Runtime:
		return "RuntimeError"
	case Config:
		return "ConfigError"
	case Compile:
		return "CompileError"
	case DisabledCapability:
		return "DisabledCapability"
	case FunctionNotFound:
		return "FunctionNotFound"
	case LimitExceeded:
		return "LimitExceeded"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Limit names the ceiling behind a LimitExceeded failure. The declaration
// order is the tie-break order: when several ceilings are crossed in the
// same step, the first one in this order is reported.
type Limit uint8

const (
	NoLimit Limit = iota
	Operations
	Time
	StringLength
	ArraySize
	Memory
)

func (l Limit) String() string {
	switch l {
	case NoLimit:
		return ""
	case Operations:
		return "Operations"
	case Time:
		return "Time"
	case StringLength:
		return "StringLength"
	case ArraySize:
		return "ArraySize"
	case Memory:
		return "Memory"
	default:
		return fmt.Sprintf("Limit(%d)", uint8(l))
	}
}

// LimitOrder returns the limits in tie-break order.
func LimitOrder() []Limit {
	return []Limit{Operations, Time, StringLength, ArraySize, Memory}
}

// Sentinel errors for errors.Is classification.
var (
	ErrRuntime            = errors.New("runtime error")
	ErrConfig             = errors.New("configuration error")
	ErrCompile            = errors.New("compile error")
	ErrDisabledCapability = errors.New("disabled capability")
	ErrFunctionNotFound   = errors.New("function not found")
	ErrLimitExceeded      = errors.New("limit exceeded")
)

var sentinels = map[Kind]error{
	Runtime:            ErrRuntime,
	Config:             ErrConfig,
	Compile:            ErrCompile,
	DisabledCapability: ErrDisabledCapability,
	FunctionNotFound:   ErrFunctionNotFound,
	LimitExceeded:      ErrLimitExceeded,
}

// Error is a classified failure.
type Error struct {
	Kind Kind

	// Limit is set only when Kind is LimitExceeded.
	Limit Limit

	// Message describes the failure.
	Message string

	// Line and Column are 1-based source positions; zero when unknown.
	Line   int
	Column int

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Kind == LimitExceeded && e.Limit != NoLimit {
		prefix = fmt.Sprintf("%s(%s)", prefix, e.Limit)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d, col %d)", prefix, e.Message, e.Line, e.Column)
	}
	return prefix + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's Kind.
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// At returns a copy of e positioned at line and column.
func (e *Error) At(line, column int) *Error {
	cp := *e
	cp.Line, cp.Column = line, column
	return &cp
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around err.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func ConfigErrorf(format string, args ...any) *Error {
	return New(Config, format, args...)
}

func CompileErrorf(format string, args ...any) *Error {
	return New(Compile, format, args...)
}

func DisabledErrorf(format string, args ...any) *Error {
	return New(DisabledCapability, format, args...)
}

func RuntimeErrorf(format string, args ...any) *Error {
	return New(Runtime, format, args...)
}

func NotFoundErrorf(format string, args ...any) *Error {
	return New(FunctionNotFound, format, args...)
}

// Exceeded builds a LimitExceeded error for limit.
func Exceeded(limit Limit, format string, args ...any) *Error {
	e := New(LimitExceeded, format, args...)
	e.Limit = limit
	return e
}

// From classifies err. Errors that already carry a classification anywhere
// in their chain keep it; everything else becomes a RuntimeError.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}
	return &Error{Kind: Runtime, Message: err.Error(), Err: err}
}

// KindOf reports the Kind of err, or Runtime for unclassified errors.
func KindOf(err error) Kind {
	if serr := From(err); serr != nil {
		return serr.Kind
	}
	return Runtime
}

// IsLimit reports whether err is a LimitExceeded failure for limit.
func IsLimit(err error, limit Limit) bool {
	var serr *Error
	return errors.As(err, &serr) && serr.Kind == LimitExceeded && serr.Limit == limit
}

// Fatal reports whether err must not be intercepted by script-level error
// handling: limit violations and disabled capabilities always reach the host.
func Fatal(err error) bool {
	k := KindOf(err)
	return k == LimitExceeded || k == DisabledCapability
}
