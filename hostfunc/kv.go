package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/isdmx/scriptbox/value"
)

// KVConfig bounds the shared key-value store.
type KVConfig struct {
	MaxKeySize   int `mapstructure:"max_key_size"`
	MaxValueSize int `mapstructure:"max_value_size"`
	MaxEntries   int `mapstructure:"max_entries"`
}

func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   256,
		MaxValueSize: 64 * 1024,
		MaxEntries:   1000,
	}
}

// KVStore is host-owned data shared across executions. It is the one
// sanctioned way for state to outlive a session.
type KVStore struct {
	cfg  KVConfig
	mu   sync.RWMutex
	data map[string]value.Value
}

func NewKVStore(cfg KVConfig) *KVStore {
	return &KVStore{cfg: cfg, data: make(map[string]value.Value)}
}

// Install registers kv_get, kv_set, kv_delete and kv_keys.
func (s *KVStore) Install(r *Registry) error {
	for name, fn := range map[string]Func{
		"kv_get":    s.Get,
		"kv_set":    s.Set,
		"kv_delete": s.Delete,
		"kv_keys":   s.Keys,
	} {
		if err := r.Register(name, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *KVStore) key(args []value.Value) (string, error) {
	if len(args) < 1 {
		return "", errors.New("key required")
	}
	key, ok := args[0].AsString()
	if !ok {
		return "", fmt.Errorf("key must be a string, got %s", args[0].Kind())
	}
	if s.cfg.MaxKeySize > 0 && len(key) > s.cfg.MaxKeySize {
		return "", fmt.Errorf("key exceeds %d bytes", s.cfg.MaxKeySize)
	}
	return key, nil
}

// Get returns the stored value or nil.
func (s *KVStore) Get(_ context.Context, args []value.Value) (value.Value, error) {
	key, err := s.key(args)
	if err != nil {
		return value.Nil(), err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return value.Nil(), nil
	}
	return val, nil
}

// Set stores a value under key.
func (s *KVStore) Set(_ context.Context, args []value.Value) (value.Value, error) {
	key, err := s.key(args)
	if err != nil {
		return value.Nil(), err
	}
	if len(args) < 2 {
		return value.Nil(), errors.New("value required")
	}
	val := args[1]
	if s.cfg.MaxValueSize > 0 && len(val.String()) > s.cfg.MaxValueSize {
		return value.Nil(), fmt.Errorf("value exceeds %d bytes", s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; !exists && s.cfg.MaxEntries > 0 && len(s.data) >= s.cfg.MaxEntries {
		return value.Nil(), fmt.Errorf("store is full (%d entries)", s.cfg.MaxEntries)
	}
	s.data[key] = val
	return value.Bool(true), nil
}

// Delete removes key, reporting whether it existed.
func (s *KVStore) Delete(_ context.Context, args []value.Value) (value.Value, error) {
	key, err := s.key(args)
	if err != nil {
		return value.Nil(), err
	}

	s.mu.Lock()
	_, exists := s.data[key]
	delete(s.data, key)
	s.mu.Unlock()

	return value.Bool(exists), nil
}

// Keys lists the stored keys in sorted order.
func (s *KVStore) Keys(_ context.Context, _ []value.Value) (value.Value, error) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	out := make([]value.Value, len(keys))
	for i, k := range keys {
		out[i] = value.String(k)
	}
	return value.Array(out...), nil
}
