package identity

import (
	"context"
	"sync"

	domain "yogastudio/internal/domain/identity"
)

// MemoryStore is an in-memory stand-in for browser client storage.
// Each test should own its store; nothing is shared between instances.
type MemoryStore struct {
	mu     sync.RWMutex
	record string
	set    bool
	boot   string
	booted bool
}

// NewMemoryStore creates an empty store (anonymous state).
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save writes the identity record.
// PRE: id passes Validate
// POST: Load returns id
func (s *MemoryStore) Save(_ context.Context, id domain.Identity) error {
	raw, err := id.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = raw
	s.set = true
	return nil
}

// SeedOnBoot stages id to be written when the application next boots.
// POST: the next Boot call writes the record once
func (s *MemoryStore) SeedOnBoot(_ context.Context, id domain.Identity) error {
	raw, err := id.Encode()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boot = raw
	s.booted = false
	return nil
}

// Boot simulates application start: a staged seed lands before anything reads storage.
func (s *MemoryStore) Boot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.boot != "" && !s.booted {
		s.record = s.boot
		s.set = true
		s.booted = true
	}
}

// Load returns the stored identity and whether one is present.
func (s *MemoryStore) Load(_ context.Context) (domain.Identity, bool, error) {
	s.mu.RLock()
	raw, ok := s.record, s.set
	s.mu.RUnlock()
	if !ok {
		return domain.Identity{}, false, nil
	}
	id, err := domain.Decode(raw)
	if err != nil {
		return domain.Identity{}, false, err
	}
	return id, true, nil
}

// Raw returns the stored JSON exactly as the application would read it.
func (s *MemoryStore) Raw() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record, s.set
}

// Clear removes the record. Idempotent.
// POST: Load reports no identity
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = ""
	s.set = false
	return nil
}
