package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/processor"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/store"
)

// OutcomeKind enumerates the results of a reconciliation attempt.
type OutcomeKind int

const (
	OutcomeUpdated OutcomeKind = iota
	OutcomeNoAction
	OutcomeUnauthorized
	OutcomeTokenMismatch
	OutcomeNotFound
	OutcomeConfigError
	OutcomeUnknownStatus
	OutcomeGatewayError
	OutcomeStoreError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUpdated:
		return "updated"
	case OutcomeNoAction:
		return "no_action"
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeTokenMismatch:
		return "token_mismatch"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeConfigError:
		return "config_error"
	case OutcomeUnknownStatus:
		return "unknown_status"
	case OutcomeGatewayError:
		return "gateway_error"
	case OutcomeStoreError:
		return "store_error"
	}
	return "unknown"
}

// Outcome is the result of feeding one status report through the state
// machine. Status carries the resulting (or unchanged) order status when the
// order was found; RedirectURL points at the receipt page when known.
type Outcome struct {
	Kind        OutcomeKind
	Status      string
	RedirectURL string
	Err         error
}

// ReconcileInput is one claimed status report from any of the three inbound
// channels.
type ReconcileInput struct {
	OrderID       int64
	ClaimedToken  string
	ClaimedStatus string
	Authenticated bool
}

// Reconciler applies at most one status transition per order. The persisted
// order status is the only concurrency guard: whichever report lands first
// wins, later duplicates observe an ineligible status and no-op.
type Reconciler struct {
	orders        store.OrderStore
	carts         store.CartClearer // may be nil
	proc          processor.Processor
	successStatus string
	shopURL       string
}

func NewReconciler(orders store.OrderStore, carts store.CartClearer, proc processor.Processor, successStatus, shopURL string) *Reconciler {
	return &Reconciler{
		orders:        orders,
		carts:         carts,
		proc:          proc,
		successStatus: domain.NormalizeStatus(successStatus),
		shopURL:       shopURL,
	}
}

// Reconcile authenticates a claimed status report against the order's stored
// correlation token and applies the mapped transition exactly once.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput) Outcome {
	if !in.Authenticated {
		return Outcome{Kind: OutcomeUnauthorized}
	}

	order, err := r.orders.Get(ctx, in.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{Kind: OutcomeNotFound, Err: err}
		}
		return Outcome{Kind: OutcomeStoreError, Err: err}
	}

	// The token doubles as a shared secret, so the comparison is constant
	// time even though a mismatch is reported to the caller.
	if subtle.ConstantTimeCompare([]byte(in.ClaimedToken), []byte(order.PayID)) != 1 {
		zap.L().Error("correlation token mismatch", zap.Int64("order_id", order.ID))
		return Outcome{Kind: OutcomeTokenMismatch, Status: order.Status}
	}

	if !domain.Eligible(order.Status) {
		return Outcome{
			Kind:        OutcomeNoAction,
			Status:      order.Status,
			RedirectURL: r.receiptURL(order),
		}
	}

	return r.apply(ctx, order, in.ClaimedStatus)
}

// RefreshFromProcessor is the popup-close fallback: when the payment popup is
// dismissed without a callback, ask the processor for the authoritative
// transaction status and feed it through the state machine. Only pending
// orders are probed.
func (r *Reconciler) RefreshFromProcessor(ctx context.Context, orderID int64, bearer string) Outcome {
	order, err := r.orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{Kind: OutcomeNotFound, Err: err}
		}
		return Outcome{Kind: OutcomeStoreError, Err: err}
	}

	if domain.NormalizeStatus(order.Status) != domain.StatusPending {
		return Outcome{
			Kind:        OutcomeNoAction,
			Status:      order.Status,
			RedirectURL: r.receiptURL(order),
		}
	}

	claimed, err := r.proc.UpdateTxnStatus(ctx, bearer, order.ID, order.PayID)
	if err != nil {
		zap.L().Error("processor status refresh failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return Outcome{Kind: OutcomeGatewayError, Status: order.Status, Err: err}
	}

	return r.apply(ctx, order, claimed)
}

// PollResult is the read-path answer for the client-side polling loop.
type PollResult struct {
	Status      string // success, failed or pending
	RedirectURL string
}

// CurrentStatus derives the polling answer from the order's own persisted
// status. It never claims a new status.
func (r *Reconciler) CurrentStatus(ctx context.Context, orderID int64) (*PollResult, error) {
	order, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	switch {
	case domain.IsSuccessStatus(order.Status):
		return &PollResult{Status: "success", RedirectURL: r.receiptURL(order)}, nil
	case domain.NormalizeStatus(order.Status) == domain.StatusFailed:
		return &PollResult{Status: "failed", RedirectURL: r.receiptURL(order)}, nil
	}
	return &PollResult{Status: "pending"}, nil
}

func (r *Reconciler) apply(ctx context.Context, order *domain.Order, claimed string) Outcome {
	var target string
	kind := domain.ClassifyClaim(claimed)
	switch kind {
	case domain.ClaimSuccess:
		if !domain.IsSuccessStatus(r.successStatus) {
			zap.L().Error("configured success status is not allowed", zap.String("status", r.successStatus))
			return Outcome{Kind: OutcomeConfigError, Status: order.Status}
		}
		target = r.successStatus
	case domain.ClaimFailed:
		target = domain.StatusFailed
	case domain.ClaimCanceled:
		target = domain.StatusCanceled
	default:
		zap.L().Warn("unknown claimed transaction status",
			zap.Int64("order_id", order.ID),
			zap.String("claimed", claimed),
		)
		return Outcome{Kind: OutcomeUnknownStatus, Status: order.Status}
	}

	// The eligibility check already passed on a snapshot; the conditional
	// write repeats it atomically so concurrent reports cannot both land.
	note := fmt.Sprintf("Order marked as %s by Bytepay.", target)
	applied, err := r.orders.Transition(ctx, order.ID, target, note, domain.EligibleStatuses())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Outcome{Kind: OutcomeNotFound, Err: err}
		}
		return Outcome{Kind: OutcomeStoreError, Status: order.Status, Err: err}
	}
	if !applied {
		settled, err := r.orders.Get(ctx, order.ID)
		if err != nil {
			return Outcome{Kind: OutcomeStoreError, Status: order.Status, Err: err}
		}
		return Outcome{
			Kind:        OutcomeNoAction,
			Status:      settled.Status,
			RedirectURL: r.receiptURL(settled),
		}
	}

	if kind == domain.ClaimSuccess && r.carts != nil && order.SessionID != "" {
		if err := r.carts.ClearCart(ctx, order.SessionID); err != nil {
			zap.L().Warn("cart cleanup failed", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}

	zap.L().Info("order status reconciled",
		zap.Int64("order_id", order.ID),
		zap.String("from", order.Status),
		zap.String("to", target),
	)
	return Outcome{Kind: OutcomeUpdated, Status: target, RedirectURL: r.receiptURL(order)}
}

func (r *Reconciler) receiptURL(o *domain.Order) string {
	return fmt.Sprintf("%s/checkout/order-received/%d/?key=%s", r.shopURL, o.ID, url.QueryEscape(o.Key))
}
