package limits

import (
	"context"
	"time"

	"github.com/isdmx/scriptbox/scripterr"
)

// ctxPollInterval is how many steps pass between polls of the caller's
// context for cancellation. Deadlines are checked on every step.
const ctxPollInterval = 256

// Meter tracks the budget of a single execution session. It is not safe for
// concurrent use; a session is single-threaded.
//
// Checks happen in the fixed order Operations, Time (Step), then
// StringLength, ArraySize, Memory (Observe). Once a ceiling is crossed the
// meter stays tripped and every later check returns the same error.
type Meter struct {
	policy   Policy
	ctx      context.Context
	now      func() time.Time
	deadline time.Time

	ops  uint64
	heap int64
	peak int64

	tripped *scripterr.Error
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MeterOption {
	return func(m *Meter) { m.now = now }
}

// NewMeter starts a budget for p. The deadline is now + p.MaxDuration, or
// the context deadline when that comes first.
func NewMeter(ctx context.Context, p Policy, opts ...MeterOption) *Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Meter{policy: p, ctx: ctx, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.deadline = m.now().Add(p.MaxDuration)
	if d, ok := ctx.Deadline(); ok && d.Before(m.deadline) {
		m.deadline = d
	}
	return m
}

// Policy returns the policy the meter enforces.
func (m *Meter) Policy() Policy { return m.policy }

// Deadline returns the wall-clock instant after which Step fails.
func (m *Meter) Deadline() time.Time { return m.deadline }

// Operations returns the number of steps taken so far.
func (m *Meter) Operations() uint64 { return m.ops }

// HeapBytes returns the current live-heap estimate.
func (m *Meter) HeapBytes() int64 { return m.heap }

// PeakHeapBytes returns the highest live-heap estimate seen.
func (m *Meter) PeakHeapBytes() int64 { return m.peak }

// Err returns the violation that tripped the meter, or nil.
func (m *Meter) Err() error {
	if m.tripped == nil {
		return nil
	}
	return m.tripped
}

// Step records one interpreter step.
func (m *Meter) Step() error {
	if m.tripped != nil {
		return m.tripped
	}
	m.ops++
	if m.ops > m.policy.MaxOperations {
		return m.trip(scripterr.Exceeded(scripterr.Operations,
			"script exceeded %d operations", m.policy.MaxOperations))
	}
	if !m.now().Before(m.deadline) {
		return m.trip(scripterr.Exceeded(scripterr.Time,
			"script exceeded its %s time budget", m.policy.MaxDuration))
	}
	if m.ops%ctxPollInterval == 0 {
		if err := m.ctx.Err(); err != nil {
			canceled := scripterr.Wrap(scripterr.LimitExceeded, err, "execution canceled: %v", err)
			canceled.Limit = scripterr.Time
			return m.trip(canceled)
		}
	}
	return nil
}

// Observe checks the size of a value produced in the current step:
// strLen characters, arrLen elements, and bytes of newly allocated heap.
// Pass zero for whatever does not apply.
func (m *Meter) Observe(strLen, arrLen int, bytes int64) error {
	if m.tripped != nil {
		return m.tripped
	}
	if strLen > m.policy.MaxStringLen {
		return m.trip(scripterr.Exceeded(scripterr.StringLength,
			"string of %d characters exceeds limit of %d", strLen, m.policy.MaxStringLen))
	}
	if arrLen > m.policy.MaxArraySize {
		return m.trip(scripterr.Exceeded(scripterr.ArraySize,
			"container of %d elements exceeds limit of %d", arrLen, m.policy.MaxArraySize))
	}
	if bytes > 0 {
		return m.Alloc(bytes)
	}
	return nil
}

// String checks a string of n characters.
func (m *Meter) String(n int) error {
	return m.Observe(n, 0, int64(n))
}

// Array checks a container of n elements.
func (m *Meter) Array(n int) error {
	return m.Observe(0, n, 0)
}

// Alloc adds n bytes to the live-heap estimate.
func (m *Meter) Alloc(n int64) error {
	if m.tripped != nil {
		return m.tripped
	}
	m.heap += n
	if m.heap > m.peak {
		m.peak = m.heap
	}
	if m.heap > m.policy.MemoryLimitBytes {
		return m.trip(scripterr.Exceeded(scripterr.Memory,
			"estimated heap of %d bytes exceeds limit of %d", m.heap, m.policy.MemoryLimitBytes))
	}
	return nil
}

// Release subtracts n bytes from the live-heap estimate.
func (m *Meter) Release(n int64) {
	m.heap -= n
	if m.heap < 0 {
		m.heap = 0
	}
}

// Measure replaces the live-heap estimate with n, a size measured by walking
// the reachable values.
func (m *Meter) Measure(n int64) error {
	if m.tripped != nil {
		return m.tripped
	}
	if n <= m.heap {
		m.Release(m.heap - n)
		return nil
	}
	return m.Alloc(n - m.heap)
}

func (m *Meter) trip(err *scripterr.Error) *scripterr.Error {
	m.tripped = err
	return err
}
