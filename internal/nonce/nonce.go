// Package nonce issues and validates the per-session verification nonces
// that authenticate the client-side polling and popup-close endpoints.
package nonce

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// DefaultTTL bounds how long an issued nonce stays valid. Checkout sessions
// that outlive it must re-initiate.
const DefaultTTL = 12 * time.Hour

// Store holds issued nonces until they expire or are consumed.
type Store interface {
	// Issue creates and records a fresh nonce.
	Issue(ctx context.Context) (string, error)
	// Valid reports whether n was issued and has not expired or been consumed.
	Valid(ctx context.Context, n string) (bool, error)
	// Consume invalidates n. Unknown nonces are a no-op.
	Consume(ctx context.Context, n string) error
}

func generate() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
