package tenancy

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Store holds the process-wide configuration. It is written once by
// Configure and read lock-free afterwards.
type Store struct {
	mu  sync.Mutex
	cfg atomic.Pointer[Config]
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Configure builds, validates and freezes the configuration. A second call
// without an intervening Reset fails with ErrConfiguration.
func (s *Store) Configure(opts ...Option) (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Load() != nil {
		return nil, errors.Join(ErrConfiguration, ErrAlreadyConfigured)
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	s.cfg.Store(cfg)
	return cfg, nil
}

// Config returns the frozen configuration.
func (s *Store) Config() (*Config, error) {
	if cfg := s.cfg.Load(); cfg != nil {
		return cfg, nil
	}
	return nil, errors.Join(ErrConfiguration, ErrNotConfigured)
}

// MustConfig returns the configuration or panics if Configure was never called.
func (s *Store) MustConfig() *Config {
	cfg, err := s.Config()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Reset discards the configuration. Intended for tests and administrative tooling.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Store(nil)
}

var defaultStore = NewStore()

// Configure configures the process-wide store.
func Configure(opts ...Option) (*Config, error) {
	return defaultStore.Configure(opts...)
}

// Current returns the process-wide configuration.
func Current() (*Config, error) {
	return defaultStore.Config()
}

// Reset discards the process-wide configuration.
func Reset() {
	defaultStore.Reset()
}
