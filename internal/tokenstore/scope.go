package tokenstore

import (
	"sync"

	"github.com/mrlokans/campusadmin/internal/entities"
)

// Kind identifies a storage scope.
type Kind string

const (
	KindNone      Kind = ""
	KindDurable   Kind = "durable"   // Survives process restarts
	KindEphemeral Kind = "ephemeral" // Lives as long as the process
)

// Scope is one place a TokenPair can live. Implementations read and write
// both halves of the pair together.
type Scope interface {
	Kind() Kind
	// Read returns nil when the scope holds no access token.
	Read() (*entities.TokenPair, error)
	Write(pair entities.TokenPair) error
	// Erase is idempotent.
	Erase() error
}

// EphemeralScope keeps the pair in process memory.
type EphemeralScope struct {
	mu   sync.RWMutex
	pair *entities.TokenPair
}

func NewEphemeralScope() *EphemeralScope {
	return &EphemeralScope{}
}

func (s *EphemeralScope) Kind() Kind { return KindEphemeral }

func (s *EphemeralScope) Read() (*entities.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pair == nil || s.pair.IsZero() {
		return nil, nil
	}
	cp := *s.pair
	return &cp, nil
}

func (s *EphemeralScope) Write(pair entities.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = &pair
	return nil
}

func (s *EphemeralScope) Erase() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
	return nil
}
