// Package memory is an in-process kv.Store for single instance deployments
// and tests. Expired entries are hidden immediately and reclaimed by a
// background sweeper.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/kv"
)

var errClosed = errors.New("kv/memory: store closed")

type entry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Options configure a Store.
type Options struct {
	// SweepInterval is how often expired entries are reclaimed. Defaults to
	// one minute. Negative disables the sweeper.
	SweepInterval time.Duration

	// Now overrides the clock, used by tests.
	Now func() time.Time

	Logger *slog.Logger
}

// Store is a mutex guarded map with per-key expiry.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	closed  bool

	now      func() time.Time
	logger   *slog.Logger
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ kv.Store = (*Store)(nil)

// New creates a Store and starts its sweeper. Call Close to stop it.
func New(opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SweepInterval == 0 {
		opts.SweepInterval = time.Minute
	}

	s := &Store{
		entries:  make(map[string]entry),
		now:      opts.Now,
		logger:   opts.Logger,
		interval: opts.SweepInterval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	if s.interval > 0 {
		go s.run()
	} else {
		close(s.doneCh)
	}
	return s
}

func (s *Store) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("kv sweep removed expired entries", "count", n)
			}
		case <-s.stopCh:
			return
		}
	}
}

// Sweep removes expired entries and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports stored entries, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup must be called with mu held.
func (s *Store) lookup(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		return entry{}, false
	}
	return e, true
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errClosed
	}
	e, ok := s.lookup(key)
	if !ok {
		return "", kv.ErrNotFound
	}
	return e.value, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}

	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errClosed
	}
	if _, ok := s.lookup(key); !ok {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *Store) DeleteIfEqual(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, errClosed
	}
	e, ok := s.lookup(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *Store) GetDel(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", errClosed
	}
	e, ok := s.lookup(key)
	if !ok {
		return "", kv.ErrNotFound
	}
	delete(s.entries, key)
	return e.value, nil
}

func (s *Store) TTL(_ context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errClosed
	}
	e, ok := s.lookup(key)
	if !ok {
		return 0, kv.ErrNotFound
	}
	if e.expiresAt.IsZero() {
		return 0, nil
	}
	return e.expiresAt.Sub(s.now()), nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}
	return nil
}

// Close stops the sweeper and drops all entries. It is safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.entries = nil
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	return nil
}
