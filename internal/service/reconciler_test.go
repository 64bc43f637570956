package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/processor"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/store"
)

func newTestReconciler(orders *store.MemoryStore, proc processor.Processor, successStatus string) *Reconciler {
	return NewReconciler(orders, orders, proc, successStatus, "https://shop.test")
}

func TestReconcilePaidMapsToConfiguredStatus(t *testing.T) {
	ctx := context.Background()
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(1, domain.StatusPending, "tok-1"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	out := r.Reconcile(ctx, ReconcileInput{
		OrderID:       1,
		ClaimedToken:  "tok-1",
		ClaimedStatus: "paid",
		Authenticated: true,
	})

	require.Equal(t, OutcomeUpdated, out.Kind)
	require.Equal(t, domain.StatusProcessing, out.Status)
	require.NotEmpty(t, out.RedirectURL)
	require.Contains(t, out.RedirectURL, "order-received/1")

	order, err := orders.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusProcessing, order.Status)
}

func TestReconcileSuccessClearsCart(t *testing.T) {
	ctx := context.Background()
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(1, domain.StatusPending, "tok-1"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	require.True(t, orders.HasCart("sess-1"))
	out := r.Reconcile(ctx, ReconcileInput{OrderID: 1, ClaimedToken: "tok-1", ClaimedStatus: "success", Authenticated: true})
	require.Equal(t, OutcomeUpdated, out.Kind)
	require.False(t, orders.HasCart("sess-1"))
}

func TestReconcileExpiredCancelsOrder(t *testing.T) {
	ctx := context.Background()
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(2, domain.StatusPending, "tok-2"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	out := r.Reconcile(ctx, ReconcileInput{OrderID: 2, ClaimedToken: "tok-2", ClaimedStatus: "expired", Authenticated: true})
	require.Equal(t, OutcomeUpdated, out.Kind)
	require.Equal(t, domain.StatusCanceled, out.Status)

	order, _ := orders.Get(ctx, 2)
	require.Equal(t, domain.StatusCanceled, order.Status)
	// Cancellation keeps the cart so the customer can retry.
	require.True(t, orders.HasCart("sess-1"))
}

func TestReconcileTokenMismatchLeavesOrderUntouched(t *testing.T) {
	ctx := context.Background()
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(3, domain.StatusPending, "xyz"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	out := r.Reconcile(ctx, ReconcileInput{OrderID: 3, ClaimedToken: "abc", ClaimedStatus: "paid", Authenticated: true})
	require.Equal(t, OutcomeTokenMismatch, out.Kind)

	order, _ := orders.Get(ctx, 3)
	require.Equal(t, domain.StatusPending, order.Status)
}

func TestReconcileUnauthenticated(t *testing.T) {
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(4, domain.StatusPending, "tok"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	out := r.Reconcile(context.Background(), ReconcileInput{OrderID: 4, ClaimedToken: "tok", ClaimedStatus: "paid"})
	require.Equal(t, OutcomeUnauthorized, out.Kind)

	order, _ := orders.Get(context.Background(), 4)
	require.Equal(t, domain.StatusPending, order.Status)
}

func TestReconcileSettledOrderNoOps(t *testing.T) {
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(5, domain.StatusCompleted, "tok"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	for _, claimed := range []string{"paid", "failed", "expired", "nonsense"} {
		out := r.Reconcile(context.Background(), ReconcileInput{OrderID: 5, ClaimedToken: "tok", ClaimedStatus: claimed, Authenticated: true})
		require.Equal(t, OutcomeNoAction, out.Kind, "claimed=%q", claimed)
		require.Equal(t, domain.StatusCompleted, out.Status)
	}
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(6, domain.StatusPending, "tok-6"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	in := ReconcileInput{OrderID: 6, ClaimedToken: "tok-6", ClaimedStatus: "completed", Authenticated: true}

	first := r.Reconcile(ctx, in)
	require.Equal(t, OutcomeUpdated, first.Kind)

	second := r.Reconcile(ctx, in)
	require.Equal(t, OutcomeNoAction, second.Kind)
	require.Equal(t, domain.StatusProcessing, second.Status)
}

func TestReconcileFailedOrderMayStillSucceed(t *testing.T) {
	// A late success report for an order that previously failed is still
	// eligible: {pending, failed} is the reconcilable set.
	ctx := context.Background()
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(7, domain.StatusFailed, "tok-7"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusCompleted)

	out := r.Reconcile(ctx, ReconcileInput{OrderID: 7, ClaimedToken: "tok-7", ClaimedStatus: "success", Authenticated: true})
	require.Equal(t, OutcomeUpdated, out.Kind)
	require.Equal(t, domain.StatusCompleted, out.Status)
}

func TestReconcileMisconfiguredSuccessStatus(t *testing.T) {
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(8, domain.StatusPending, "tok"))
	r := newTestReconciler(orders, &stubProcessor{}, "refunded")

	out := r.Reconcile(context.Background(), ReconcileInput{OrderID: 8, ClaimedToken: "tok", ClaimedStatus: "paid", Authenticated: true})
	require.Equal(t, OutcomeConfigError, out.Kind)

	order, _ := orders.Get(context.Background(), 8)
	require.Equal(t, domain.StatusPending, order.Status)
}

func TestReconcileUnknownClaimedStatus(t *testing.T) {
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(9, domain.StatusPending, "tok"))
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	out := r.Reconcile(context.Background(), ReconcileInput{OrderID: 9, ClaimedToken: "tok", ClaimedStatus: "refunded", Authenticated: true})
	require.Equal(t, OutcomeUnknownStatus, out.Kind)

	order, _ := orders.Get(context.Background(), 9)
	require.Equal(t, domain.StatusPending, order.Status)
}

func TestReconcileUnknownOrder(t *testing.T) {
	r := newTestReconciler(store.NewMemoryStore(), &stubProcessor{}, domain.StatusProcessing)
	out := r.Reconcile(context.Background(), ReconcileInput{OrderID: 404, ClaimedToken: "tok", ClaimedStatus: "paid", Authenticated: true})
	require.Equal(t, OutcomeNotFound, out.Kind)
}

func TestRefreshFromProcessor(t *testing.T) {
	ctx := context.Background()
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(10, domain.StatusPending, "tok-10"))
	proc := &stubProcessor{txnStatus: "paid"}
	r := newTestReconciler(orders, proc, domain.StatusProcessing)

	out := r.RefreshFromProcessor(ctx, 10, "session-nonce")
	require.Equal(t, OutcomeUpdated, out.Kind)
	require.Equal(t, domain.StatusProcessing, out.Status)
	require.Equal(t, "session-nonce", proc.lastBearer)
}

func TestRefreshFromProcessorSkipsNonPending(t *testing.T) {
	// Unlike webhook reports, the popup-close probe only acts on pending
	// orders; a failed order is left alone.
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(11, domain.StatusFailed, "tok"))
	proc := &stubProcessor{txnStatus: "paid"}
	r := newTestReconciler(orders, proc, domain.StatusProcessing)

	out := r.RefreshFromProcessor(context.Background(), 11, "n")
	require.Equal(t, OutcomeNoAction, out.Kind)
	require.Empty(t, proc.lastBearer)
}

func TestRefreshFromProcessorGatewayError(t *testing.T) {
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(12, domain.StatusPending, "tok"))
	proc := &stubProcessor{txnErr: errors.New("boom")}
	r := newTestReconciler(orders, proc, domain.StatusProcessing)

	out := r.RefreshFromProcessor(context.Background(), 12, "n")
	require.Equal(t, OutcomeGatewayError, out.Kind)

	order, _ := orders.Get(context.Background(), 12)
	require.Equal(t, domain.StatusPending, order.Status)
}

func TestCurrentStatus(t *testing.T) {
	ctx := context.Background()
	orders := store.NewMemoryStore()
	r := newTestReconciler(orders, &stubProcessor{}, domain.StatusProcessing)

	seedOrder(t, orders, newTestOrder(20, domain.StatusPending, "t"))
	seedOrder(t, orders, newTestOrder(21, domain.StatusProcessing, "t"))
	seedOrder(t, orders, newTestOrder(22, domain.StatusFailed, "t"))

	res, err := r.CurrentStatus(ctx, 20)
	require.NoError(t, err)
	require.Equal(t, "pending", res.Status)
	require.Empty(t, res.RedirectURL)

	res, err = r.CurrentStatus(ctx, 21)
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)
	require.NotEmpty(t, res.RedirectURL)

	res, err = r.CurrentStatus(ctx, 22)
	require.NoError(t, err)
	require.Equal(t, "failed", res.Status)
	require.NotEmpty(t, res.RedirectURL)

	_, err = r.CurrentStatus(ctx, 404)
	require.ErrorIs(t, err, store.ErrNotFound)
}

// snapshotBarrierStore holds the first two Get callers until both have read
// their snapshot, forcing two racing reports past the eligibility pre-check
// before either one writes. Later Gets pass through untouched.
type snapshotBarrierStore struct {
	*store.MemoryStore
	remaining atomic.Int32
	released  chan struct{}
}

func (s *snapshotBarrierStore) Get(ctx context.Context, id int64) (*domain.Order, error) {
	order, err := s.MemoryStore.Get(ctx, id)
	if n := s.remaining.Add(-1); n == 0 {
		close(s.released)
	} else if n > 0 {
		<-s.released
	}
	return order, err
}

func TestReconcileConcurrentReportsApplyOnce(t *testing.T) {
	ctx := context.Background()
	orders := store.NewMemoryStore()
	seedOrder(t, orders, newTestOrder(1, domain.StatusPending, "tok-1"))

	gated := &snapshotBarrierStore{MemoryStore: orders, released: make(chan struct{})}
	gated.remaining.Store(2)
	r := NewReconciler(gated, orders, &stubProcessor{}, domain.StatusProcessing, "https://shop.test")

	outcomes := make(chan Outcome, 2)
	for _, claimed := range []string{"paid", "failed"} {
		claimed := claimed
		go func() {
			outcomes <- r.Reconcile(ctx, ReconcileInput{
				OrderID:       1,
				ClaimedToken:  "tok-1",
				ClaimedStatus: claimed,
				Authenticated: true,
			})
		}()
	}

	var updated, noAction int
	var winner Outcome
	for i := 0; i < 2; i++ {
		out := <-outcomes
		switch out.Kind {
		case OutcomeUpdated:
			updated++
			winner = out
		case OutcomeNoAction:
			noAction++
		default:
			t.Fatalf("unexpected outcome %s", out.Kind)
		}
	}

	require.Equal(t, 1, updated)
	require.Equal(t, 1, noAction)

	order, err := orders.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, winner.Status, order.Status)
}
