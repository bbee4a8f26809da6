// Package limits describes the resource ceilings bounding one script
// execution and the per-session meter that enforces them.
package limits

import (
	"time"

	"github.com/isdmx/scriptbox/scripterr"
)

// Default ceilings.
const (
	DefaultMaxOperations    uint64        = 100_000
	DefaultMaxDuration      time.Duration = 5 * time.Second
	DefaultMaxStringLen     int           = 10_000
	DefaultMaxArraySize     int           = 1_000
	DefaultMemoryLimitBytes int64         = 10 * 1024 * 1024
)

// Policy is an immutable set of ceilings for one execution. Every field must
// be strictly positive.
type Policy struct {
	MaxOperations    uint64        `mapstructure:"max_operations" json:"max_operations" yaml:"max_operations"`
	MaxDuration      time.Duration `mapstructure:"max_duration" json:"max_duration" yaml:"max_duration"`
	MaxStringLen     int           `mapstructure:"max_string_len" json:"max_string_len" yaml:"max_string_len"`
	MaxArraySize     int           `mapstructure:"max_array_size" json:"max_array_size" yaml:"max_array_size"`
	MemoryLimitBytes int64         `mapstructure:"memory_limit_bytes" json:"memory_limit_bytes" yaml:"memory_limit_bytes"`
}

// DefaultPolicy returns the default ceilings.
func DefaultPolicy() Policy {
	return Policy{
		MaxOperations:    DefaultMaxOperations,
		MaxDuration:      DefaultMaxDuration,
		MaxStringLen:     DefaultMaxStringLen,
		MaxArraySize:     DefaultMaxArraySize,
		MemoryLimitBytes: DefaultMemoryLimitBytes,
	}
}

// Option overrides one ceiling of the default policy.
type Option func(*Policy)

func WithMaxOperations(n uint64) Option {
	return func(p *Policy) { p.MaxOperations = n }
}

func WithMaxDuration(d time.Duration) Option {
	return func(p *Policy) { p.MaxDuration = d }
}

func WithMaxStringLen(n int) Option {
	return func(p *Policy) { p.MaxStringLen = n }
}

func WithMaxArraySize(n int) Option {
	return func(p *Policy) { p.MaxArraySize = n }
}

func WithMemoryLimit(bytes int64) Option {
	return func(p *Policy) { p.MemoryLimitBytes = bytes }
}

// NewPolicy applies opts on top of DefaultPolicy and validates the result.
func NewPolicy(opts ...Option) (Policy, error) {
	p := DefaultPolicy()
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate returns a ConfigError naming the first non-positive ceiling.
func (p Policy) Validate() error {
	switch {
	case p.MaxOperations == 0:
		return scripterr.ConfigErrorf("max_operations must be positive, got: %d", p.MaxOperations)
	case p.MaxDuration <= 0:
		return scripterr.ConfigErrorf("max_duration must be positive, got: %s", p.MaxDuration)
	case p.MaxStringLen <= 0:
		return scripterr.ConfigErrorf("max_string_len must be positive, got: %d", p.MaxStringLen)
	case p.MaxArraySize <= 0:
		return scripterr.ConfigErrorf("max_array_size must be positive, got: %d", p.MaxArraySize)
	case p.MemoryLimitBytes <= 0:
		return scripterr.ConfigErrorf("memory_limit_bytes must be positive, got: %d", p.MemoryLimitBytes)
	}
	return nil
}

// Bounds are the size ceilings shared by evaluation and result marshalling.
type Bounds struct {
	MaxStringLen int
	MaxArraySize int
}

// Bounds returns the size ceilings of p.
func (p Policy) Bounds() Bounds {
	return Bounds{MaxStringLen: p.MaxStringLen, MaxArraySize: p.MaxArraySize}
}
