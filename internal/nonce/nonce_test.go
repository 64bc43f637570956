package nonce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)

	n, err := s.Issue(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, n)

	ok, err := s.Valid(ctx, n)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Valid(ctx, "never-issued")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Consume(ctx, n))
	ok, err = s.Valid(ctx, n)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	current := time.Unix(1_750_000_000, 0)
	s.now = func() time.Time { return current }

	n, err := s.Issue(ctx)
	require.NoError(t, err)

	ok, _ := s.Valid(ctx, n)
	require.True(t, ok)

	current = current.Add(2 * time.Minute)
	ok, _ = s.Valid(ctx, n)
	require.False(t, ok)
}

func TestNoncesAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		n, err := s.Issue(ctx)
		require.NoError(t, err)
		_, dup := seen[n]
		require.False(t, dup)
		seen[n] = struct{}{}
	}
}
