// Package tokenstore keeps the session TokenPair in exactly one of two scopes:
// a durable, encrypted SQLite store or process memory.
package tokenstore

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/mrlokans/campusadmin/internal/entities"
)

// TokenStore is the single owner of the persisted TokenPair.
type TokenStore struct {
	mu        sync.Mutex
	durable   Scope
	ephemeral Scope
}

// New builds a store over the two given scopes.
func New(durable, ephemeral Scope) *TokenStore {
	return &TokenStore{
		durable:   durable,
		ephemeral: ephemeral,
	}
}

// Open creates a TokenStore backed by SQLite for the durable scope and
// memory for the ephemeral one.
func Open(cfg Config) (*TokenStore, error) {
	durable, err := OpenDurableScope(cfg)
	if err != nil {
		return nil, err
	}
	return New(durable, NewEphemeralScope()), nil
}

// Save writes pair into the durable scope when persistent is true, else into
// the ephemeral one. The other scope is erased first.
func (s *TokenStore) Save(pair entities.TokenPair, persistent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, other := s.ephemeral, s.durable
	if persistent {
		target, other = s.durable, s.ephemeral
	}

	if err := other.Erase(); err != nil {
		return fmt.Errorf("failed to clear %s scope: %w", other.Kind(), err)
	}
	if err := target.Write(pair); err != nil {
		return fmt.Errorf("failed to write %s scope: %w", target.Kind(), err)
	}
	return nil
}

// Load returns the stored pair, durable scope first. Returns nil, nil when
// neither scope holds a token.
func (s *TokenStore) Load() (*entities.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, _, err := s.loadLocked()
	return pair, err
}

// Locate reports which scope currently holds the pair, KindNone if neither.
func (s *TokenStore) Locate() (Kind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, kind, err := s.loadLocked()
	return kind, err
}

func (s *TokenStore) loadLocked() (*entities.TokenPair, Kind, error) {
	for _, scope := range []Scope{s.durable, s.ephemeral} {
		pair, err := scope.Read()
		if err != nil {
			return nil, KindNone, fmt.Errorf("failed to read %s scope: %w", scope.Kind(), err)
		}
		if pair != nil {
			return pair, scope.Kind(), nil
		}
	}
	return nil, KindNone, nil
}

// Clear erases both scopes. Safe to call repeatedly.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return errors.Join(s.durable.Erase(), s.ephemeral.Erase())
}

// Close releases scopes that hold resources.
func (s *TokenStore) Close() error {
	var errs []error
	for _, scope := range []Scope{s.durable, s.ephemeral} {
		if c, ok := scope.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
