package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/isdmx/scriptbox/limits"
	"github.com/isdmx/scriptbox/scripterr"
)

// State is the lifecycle position of a Session.
type State uint8

const (
	StateCreated State = iota
	StateCompiling
	StateRunning
	StateCompleted
	StateFailed
	StateLimitExceeded
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateCompiling:
		return "compiling"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateLimitExceeded:
		return "limit_exceeded"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateLimitExceeded
}

var transitions = map[State][]State{
	StateCreated:   {StateCompiling, StateFailed},
	StateCompiling: {StateRunning, StateFailed},
	StateRunning:   {StateCompleted, StateFailed, StateLimitExceeded},
}

// Session is the scope of exactly one execution. It owns the meter that
// enforces the policy and the output printed by the script. A session is
// single-threaded and is discarded when the call returns.
type Session struct {
	ID      string
	Started time.Time
	Meter   *limits.Meter

	state  State
	output strings.Builder
	chars  int
}

// NewSession creates a session in the Created state with a fresh meter for
// policy.
func NewSession(ctx context.Context, policy limits.Policy, opts ...limits.MeterOption) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Started: time.Now(),
		Meter:   limits.NewMeter(ctx, policy, opts...),
	}
}

func (s *Session) State() State { return s.state }

// Transition moves the session to next.
func (s *Session) Transition(next State) error {
	for _, allowed := range transitions[s.state] {
		if allowed == next {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("illegal session transition %s -> %s", s.state, next)
}

// Finish moves a running session to its terminal state according to err.
// Failures before Running always end in Failed.
func (s *Session) Finish(err error) State {
	if s.state.Terminal() {
		return s.state
	}
	switch {
	case s.state != StateRunning:
		s.state = StateFailed
	case err == nil:
		s.state = StateCompleted
	case scripterr.KindOf(err) == scripterr.LimitExceeded:
		s.state = StateLimitExceeded
	default:
		s.state = StateFailed
	}
	return s.state
}

// Print appends a line of script output. Output counts against the string
// ceiling as a whole.
func (s *Session) Print(line string) error {
	n := len([]rune(line)) + 1
	if err := s.Meter.Observe(s.chars+n, 0, int64(len(line)+1)); err != nil {
		return err
	}
	s.chars += n
	s.output.WriteString(line)
	s.output.WriteByte('\n')
	return nil
}

// OutputBytes returns the size of the printed output in bytes.
func (s *Session) OutputBytes() int { return s.output.Len() }

// Output returns everything printed so far.
func (s *Session) Output() string {
	return s.output.String()
}
