package limits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/scriptbox/scripterr"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, uint64(100_000), p.MaxOperations)
	assert.Equal(t, 5*time.Second, p.MaxDuration)
	assert.Equal(t, 10_000, p.MaxStringLen)
	assert.Equal(t, 1_000, p.MaxArraySize)
	assert.Equal(t, int64(10*1024*1024), p.MemoryLimitBytes)
	require.NoError(t, p.Validate())
}

func TestNewPolicy(t *testing.T) {
	t.Run("Overrides", func(t *testing.T) {
		p, err := NewPolicy(WithMaxOperations(10), WithMaxStringLen(5))
		require.NoError(t, err)
		assert.Equal(t, uint64(10), p.MaxOperations)
		assert.Equal(t, 5, p.MaxStringLen)
		assert.Equal(t, DefaultMaxArraySize, p.MaxArraySize)
	})

	invalid := []struct {
		name  string
		opt   Option
		field string
	}{
		{"ZeroOperations", WithMaxOperations(0), "max_operations"},
		{"ZeroDuration", WithMaxDuration(0), "max_duration"},
		{"NegativeDuration", WithMaxDuration(-time.Second), "max_duration"},
		{"ZeroStringLen", WithMaxStringLen(0), "max_string_len"},
		{"NegativeArraySize", WithMaxArraySize(-1), "max_array_size"},
		{"ZeroMemory", WithMemoryLimit(0), "memory_limit_bytes"},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPolicy(tc.opt)
			require.Error(t, err)
			assert.ErrorIs(t, err, scripterr.ErrConfig)
			assert.Contains(t, err.Error(), tc.field)
		})
	}
}

func TestMeterOperations(t *testing.T) {
	p, err := NewPolicy(WithMaxOperations(3))
	require.NoError(t, err)
	m := NewMeter(context.Background(), p)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Step())
	}
	err = m.Step()
	require.Error(t, err)
	assert.True(t, scripterr.IsLimit(err, scripterr.Operations))
	assert.Equal(t, uint64(4), m.Operations())

	// Sticky: every later check reports the same violation.
	assert.Same(t, err, m.Step())
	assert.Same(t, err, m.String(1))
	assert.Equal(t, err, m.Err())
}

func TestMeterDeadline(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	p, err := NewPolicy(WithMaxDuration(time.Second))
	require.NoError(t, err)

	m := NewMeter(context.Background(), p, WithClock(clock))
	require.NoError(t, m.Step())

	now = now.Add(time.Second)
	err = m.Step()
	assert.True(t, scripterr.IsLimit(err, scripterr.Time))
}

func TestMeterContextDeadlineTightensBudget(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ctx, cancel := context.WithDeadline(context.Background(), now.Add(100*time.Millisecond))
	defer cancel()

	m := NewMeter(ctx, DefaultPolicy(), WithClock(func() time.Time { return now }))
	assert.Equal(t, now.Add(100*time.Millisecond), m.Deadline())
}

func TestMeterContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMeter(ctx, DefaultPolicy())
	var err error
	for i := 0; i < ctxPollInterval && err == nil; i++ {
		err = m.Step()
	}
	require.Error(t, err)
	assert.True(t, scripterr.IsLimit(err, scripterr.Time))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestMeterTieBreakOrder(t *testing.T) {
	p, err := NewPolicy(WithMaxStringLen(4), WithMaxArraySize(2), WithMemoryLimit(8))
	require.NoError(t, err)

	t.Run("StringBeforeArrayBeforeMemory", func(t *testing.T) {
		m := NewMeter(context.Background(), p)
		err := m.Observe(5, 3, 100)
		assert.True(t, scripterr.IsLimit(err, scripterr.StringLength))
	})

	t.Run("ArrayBeforeMemory", func(t *testing.T) {
		m := NewMeter(context.Background(), p)
		err := m.Observe(0, 3, 100)
		assert.True(t, scripterr.IsLimit(err, scripterr.ArraySize))
	})

	t.Run("OperationsBeforeTime", func(t *testing.T) {
		now := time.Unix(0, 0)
		pp, err := NewPolicy(WithMaxOperations(1), WithMaxDuration(time.Nanosecond))
		require.NoError(t, err)
		m := NewMeter(context.Background(), pp, WithClock(func() time.Time { return now }))
		now = now.Add(time.Hour)
		require.True(t, scripterr.IsLimit(m.Step(), scripterr.Time))

		m = NewMeter(context.Background(), pp, WithClock(func() time.Time { return now }))
		m.ops = 1
		now = now.Add(time.Hour)
		assert.True(t, scripterr.IsLimit(m.Step(), scripterr.Operations))
	})
}

func TestMeterStringBoundary(t *testing.T) {
	p, err := NewPolicy(WithMaxStringLen(10))
	require.NoError(t, err)
	m := NewMeter(context.Background(), p)

	require.NoError(t, m.String(10))
	assert.True(t, scripterr.IsLimit(m.String(11), scripterr.StringLength))
}

func TestMeterHeap(t *testing.T) {
	p, err := NewPolicy(WithMemoryLimit(100))
	require.NoError(t, err)
	m := NewMeter(context.Background(), p)

	require.NoError(t, m.Alloc(60))
	m.Release(50)
	require.NoError(t, m.Alloc(80))
	assert.Equal(t, int64(90), m.HeapBytes())
	assert.Equal(t, int64(90), m.PeakHeapBytes())

	m.Release(1000)
	assert.Equal(t, int64(0), m.HeapBytes())

	assert.True(t, scripterr.IsLimit(m.Alloc(101), scripterr.Memory))
}

func TestMeterMeasure(t *testing.T) {
	p, err := NewPolicy(WithMemoryLimit(100))
	require.NoError(t, err)
	m := NewMeter(context.Background(), p)

	require.NoError(t, m.Alloc(70))
	require.NoError(t, m.Measure(30))
	assert.Equal(t, int64(30), m.HeapBytes())
	assert.Equal(t, int64(70), m.PeakHeapBytes())

	require.NoError(t, m.Measure(100))
	assert.Equal(t, int64(100), m.HeapBytes())

	err = m.Measure(101)
	assert.True(t, scripterr.IsLimit(err, scripterr.Memory), "got %v", err)
	assert.Equal(t, err, m.Measure(0), "a tripped meter stays tripped")
}
