package store

import (
	"context"
	"errors"
	"time"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
)

// ErrNotFound is returned when the order id is unknown to the store.
var ErrNotFound = errors.New("order not found")

// Note is an annotation attached to an order. Private notes are not shown to
// the customer.
type Note struct {
	Text      string
	IsPrivate bool
	CreatedAt time.Time
}

// OrderStore is the gateway's contract with the external order storage. The
// production implementation is Postgres-backed; tests use the in-memory one.
type OrderStore interface {
	Get(ctx context.Context, id int64) (*domain.Order, error)
	Save(ctx context.Context, order *domain.Order) error
	// UpdateStatus sets the order status and records note alongside it.
	UpdateStatus(ctx context.Context, id int64, status, note string) error
	// Transition sets the status and records note only while the current
	// status is one of from. It reports whether the write was applied; a
	// false return means another writer settled the order first.
	Transition(ctx context.Context, id int64, status, note string, from []string) (bool, error)
	AddNote(ctx context.Context, id int64, text string, private bool) error
	Notes(ctx context.Context, id int64) ([]Note, error)
}

// CartClearer removes the checkout cart tied to a session once payment
// succeeds.
type CartClearer interface {
	ClearCart(ctx context.Context, sessionID string) error
}
