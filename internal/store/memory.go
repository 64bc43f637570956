package store

import (
	"context"
	"sync"
	"time"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
)

// MemoryStore is an in-process OrderStore used in tests and when no database
// is configured. It also implements CartClearer.
type MemoryStore struct {
	mu     sync.RWMutex
	orders map[int64]domain.Order
	notes  map[int64][]Note
	carts  map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders: make(map[int64]domain.Order),
		notes:  make(map[int64][]Note),
		carts:  make(map[string]struct{}),
	}
}

func (s *MemoryStore) Get(ctx context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := order
	return &copied, nil
}

func (s *MemoryStore) Save(ctx context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = *order
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id int64, status, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	order.Status = status
	s.orders[id] = order
	if note != "" {
		s.notes[id] = append(s.notes[id], Note{Text: note, IsPrivate: true, CreatedAt: time.Now()})
	}
	return nil
}

func (s *MemoryStore) Transition(ctx context.Context, id int64, status, note string, from []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return false, ErrNotFound
	}

	current := domain.NormalizeStatus(order.Status)
	allowed := false
	for _, f := range from {
		if current == domain.NormalizeStatus(f) {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	order.Status = status
	s.orders[id] = order
	if note != "" {
		s.notes[id] = append(s.notes[id], Note{Text: note, IsPrivate: true, CreatedAt: time.Now()})
	}
	return true, nil
}

func (s *MemoryStore) AddNote(ctx context.Context, id int64, text string, private bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return ErrNotFound
	}
	s.notes[id] = append(s.notes[id], Note{Text: text, IsPrivate: private, CreatedAt: time.Now()})
	return nil
}

func (s *MemoryStore) Notes(ctx context.Context, id int64) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.orders[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]Note(nil), s.notes[id]...), nil
}

// AddCart registers a session cart so ClearCart has something to remove.
func (s *MemoryStore) AddCart(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[sessionID] = struct{}{}
}

// HasCart reports whether a session still has a cart.
func (s *MemoryStore) HasCart(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.carts[sessionID]
	return ok
}

func (s *MemoryStore) ClearCart(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, sessionID)
	return nil
}
