package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
)

// PostgresStore is the production OrderStore backed by a pgx pool. It expects
// the orders, order_notes and carts tables owned by the surrounding shop
// application.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Connect opens a pgx pool against dbURL with conservative pool limits.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*domain.Order, error) {
	const q = `
		SELECT id, order_key, status, total::text, pay_id, is_test, origin_tag, session_id,
		       billing_first_name, billing_last_name, billing_email, billing_phone,
		       billing_address_1, billing_address_2, billing_city, billing_postcode,
		       billing_country, billing_state
		FROM orders
		WHERE id = $1`

	var (
		o        domain.Order
		totalStr string
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&o.ID, &o.Key, &o.Status, &totalStr, &o.PayID, &o.IsTest, &o.OriginTag, &o.SessionID,
		&o.Billing.FirstName, &o.Billing.LastName, &o.Billing.Email, &o.Billing.Phone,
		&o.Billing.Address1, &o.Billing.Address2, &o.Billing.City, &o.Billing.Postcode,
		&o.Billing.Country, &o.Billing.State,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	o.Total, err = decimal.NewFromString(totalStr)
	if err != nil {
		return nil, fmt.Errorf("parse order %d total: %w", id, err)
	}
	return &o, nil
}

func (s *PostgresStore) Save(ctx context.Context, order *domain.Order) error {
	const q = `
		UPDATE orders
		SET status = $2,
		    pay_id = $3,
		    is_test = $4,
		    origin_tag = $5,
		    updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q, order.ID, order.Status, order.PayID, order.IsTest, order.OriginTag)
	if err != nil {
		return fmt.Errorf("save order %d: %w", order.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id int64, status, note string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update order %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	if note != "" {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_notes (order_id, note, is_private, created_at) VALUES ($1, $2, true, now())`,
			id, note)
		if err != nil {
			return fmt.Errorf("record order %d status note: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status update: %w", err)
	}
	return nil
}

func (s *PostgresStore) Transition(ctx context.Context, id int64, status, note string, from []string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin status transition: %w", err)
	}
	defer tx.Rollback(ctx)

	allowed := make([]string, 0, len(from))
	for _, f := range from {
		allowed = append(allowed, domain.NormalizeStatus(f))
	}

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1 AND lower(status) = ANY($3)`,
		id, status, allowed)
	if err != nil {
		return false, fmt.Errorf("transition order %d status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a settled order from an unknown one.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("check order %d: %w", id, err)
		}
		if !exists {
			return false, ErrNotFound
		}
		return false, tx.Commit(ctx)
	}

	if note != "" {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_notes (order_id, note, is_private, created_at) VALUES ($1, $2, true, now())`,
			id, note)
		if err != nil {
			return false, fmt.Errorf("record order %d status note: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit status transition: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) AddNote(ctx context.Context, id int64, text string, private bool) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO order_notes (order_id, note, is_private, created_at) VALUES ($1, $2, $3, now())`,
		id, text, private)
	if err != nil {
		return fmt.Errorf("add order %d note: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) Notes(ctx context.Context, id int64) ([]Note, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT note, is_private, created_at FROM order_notes WHERE order_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("list order %d notes: %w", id, err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.Text, &n.IsPrivate, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order %d note: %w", id, err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func (s *PostgresStore) ClearCart(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM carts WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("clear cart for session %s: %w", sessionID, err)
	}
	return nil
}
