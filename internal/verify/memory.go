package verify

import (
	"context"
	"sync"
	"time"
)

type record struct {
	code      string
	expiresAt time.Time
}

// MemoryStore keeps verification records in process memory. Suitable for
// tests and single-node development; multi-instance deployments use the
// Postgres or Redis store.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	codeLen int
	records map[string]record
	now     func() time.Time
}

// NewMemoryStore creates an in-memory store. The TTL is both the code
// lifetime and the reissue throttle window.
func NewMemoryStore(ttl time.Duration, codeLen int) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		codeLen: codeLen,
		records: make(map[string]record),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Test hook.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Issue(ctx context.Context, identity string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.records[identity]; ok && r.expiresAt.After(s.now()) {
		return "", ErrAlreadyRegistered
	}

	code, err := GenerateCode(s.codeLen)
	if err != nil {
		return "", err
	}
	s.records[identity] = record{code: code, expiresAt: s.now().Add(s.ttl)}
	return code, nil
}

func (s *MemoryStore) Verify(ctx context.Context, identity, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[identity]
	if !ok {
		return false, nil
	}
	if !r.expiresAt.After(s.now()) {
		delete(s.records, identity)
		return false, nil
	}
	if r.code != code {
		return false, nil
	}
	delete(s.records, identity)
	return true, nil
}
