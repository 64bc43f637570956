package nonce

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process Store used in tests and when no Redis is
// configured.
type MemoryStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	issued map[string]time.Time // nonce -> expiry
	now    func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:    ttl,
		issued: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *MemoryStore) Issue(ctx context.Context) (string, error) {
	n, err := generate()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued[n] = s.now().Add(s.ttl)
	return n, nil
}

func (s *MemoryStore) Valid(ctx context.Context, n string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.issued[n]
	if !ok {
		return false, nil
	}
	if s.now().After(expiry) {
		delete(s.issued, n)
		return false, nil
	}
	return true, nil
}

func (s *MemoryStore) Consume(ctx context.Context, n string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issued, n)
	return nil
}
