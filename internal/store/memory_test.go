package store

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
)

func seedMemoryOrder(t *testing.T, s *MemoryStore, id int64, status string) {
	t.Helper()
	require.NoError(t, s.Save(context.Background(), &domain.Order{
		ID:     id,
		Key:    "wc_order_key",
		Status: status,
		Total:  decimal.RequireFromString("10.00"),
	}))
}

func TestTransitionAppliesFromEligibleStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedMemoryOrder(t, s, 1, domain.StatusPending)

	applied, err := s.Transition(ctx, 1, domain.StatusProcessing, "settled", domain.EligibleStatuses())
	require.NoError(t, err)
	require.True(t, applied)

	order, err := s.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, order.Status)

	notes, err := s.Notes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "settled", notes[0].Text)
}

func TestTransitionRefusesSettledOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedMemoryOrder(t, s, 2, domain.StatusCompleted)

	applied, err := s.Transition(ctx, 2, domain.StatusFailed, "late report", domain.EligibleStatuses())
	require.NoError(t, err)
	require.False(t, applied)

	order, err := s.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, order.Status)

	notes, err := s.Notes(ctx, 2)
	require.NoError(t, err)
	require.Empty(t, notes)
}

func TestTransitionUnknownOrder(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Transition(context.Background(), 99, domain.StatusFailed, "", domain.EligibleStatuses())
	require.ErrorIs(t, err, ErrNotFound)
}
