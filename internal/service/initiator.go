package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/config"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/nonce"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/observability"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/processor"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/ratelimit"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/store"
)

var (
	ErrRateLimited     = errors.New("too many payment attempts, try again later")
	ErrLimitExceeded   = errors.New("payment method is currently unavailable")
	ErrConsentRequired = errors.New("consent to data collection is required")
)

// Order notes written during initiation. Both are added at most once per
// order, no matter how many times initiation retries.
const (
	noteSandboxOrder   = "This is a test order in sandbox mode."
	noteAwaitingAction = "Payment initiated via Bytepay Payment Gateway. Awaiting customer action."
	notePaymentPending = "Payment pending."
)

// Initiator builds the outbound payment request, calls the processor and
// stores correlation state on the order.
type Initiator struct {
	orders  store.OrderStore
	proc    processor.Processor
	limiter *ratelimit.Limiter
	nonces  nonce.Store
	cfg     *config.Config
	now     func() time.Time
}

func NewInitiator(orders store.OrderStore, proc processor.Processor, limiter *ratelimit.Limiter, nonces nonce.Store, cfg *config.Config) *Initiator {
	return &Initiator{
		orders:  orders,
		proc:    proc,
		limiter: limiter,
		nonces:  nonces,
		cfg:     cfg,
		now:     time.Now,
	}
}

// InitiationResult is returned on a successful initiation. The nonce
// authenticates the session's later polling and popup-close calls.
type InitiationResult struct {
	RedirectURL string
	Nonce       string
}

// Initiate takes a created order through the payment request flow: rate
// limiting, credential selection, daily-limit pre-check, the processor call,
// and correlation-state persistence. On any failure before the processor
// confirms, the order keeps its prior status.
func (s *Initiator) Initiate(ctx context.Context, orderID int64, clientIP string, consent bool) (*InitiationResult, error) {
	if s.cfg.RequireConsent && !consent {
		return nil, ErrConsentRequired
	}

	if !s.limiter.Allow(ratelimit.ClientID(clientIP), s.now()) {
		observability.IncrementRateLimited()
		observability.IncrementInitiation("rate_limited")
		return nil, ErrRateLimited
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if s.cfg.Sandbox {
		if err := s.markSandboxOrder(ctx, order); err != nil {
			return nil, err
		}
	}

	if err := s.proc.CheckDailyLimit(ctx, s.cfg.ActivePublicKey(), order.AmountString(), s.cfg.Sandbox); err != nil {
		var apiErr *processor.APIError
		if errors.As(err, &apiErr) {
			observability.IncrementInitiation("limit_exceeded")
			return nil, fmt.Errorf("%w: %s", ErrLimitExceeded, apiErr.Message)
		}
		observability.IncrementInitiation("gateway_error")
		return nil, err
	}

	n, err := s.nonces.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue verification nonce: %w", err)
	}

	order.OriginTag = domain.OriginTag

	req := s.buildPaymentRequest(order, n, clientIP)
	zap.L().Info("bytepay payment request",
		zap.Int64("order_id", order.ID),
		zap.String("amount", req.Amount),
		zap.Bool("sandbox", req.Sandbox),
	)

	session, err := s.proc.RequestPayment(ctx, s.cfg.ActivePublicKey(), req)
	if err != nil {
		observability.IncrementInitiation("gateway_error")
		zap.L().Error("bytepay payment request failed", zap.Int64("order_id", order.ID), zap.Error(err))
		return nil, err
	}

	// The correlation token is assigned exactly once; a repeated initiation
	// keeps the first token so in-flight status reports stay verifiable.
	if order.PayID == "" {
		order.PayID = session.PayID
	} else if order.PayID != session.PayID {
		zap.L().Warn("correlation token already set, keeping existing",
			zap.Int64("order_id", order.ID),
		)
	}

	if err := s.orders.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("persist correlation state: %w", err)
	}
	if err := s.orders.UpdateStatus(ctx, order.ID, domain.StatusPending, ""); err != nil {
		return nil, fmt.Errorf("mark order pending: %w", err)
	}
	// Retried initiations reach this point again; both notes are deduped.
	if err := s.addNoteOnce(ctx, order.ID, notePaymentPending, true); err != nil {
		return nil, err
	}
	if err := s.addNoteOnce(ctx, order.ID, noteAwaitingAction, true); err != nil {
		return nil, err
	}

	observability.IncrementInitiation("success")
	zap.L().Info("payment initiated",
		zap.Int64("order_id", order.ID),
		zap.String("redirect_url", session.PaymentLink),
	)
	return &InitiationResult{RedirectURL: session.PaymentLink, Nonce: n}, nil
}

// CheckAvailability probes the processor's daily limit for the given amount.
// Used to hide the payment option before checkout when it cannot succeed.
func (s *Initiator) CheckAvailability(ctx context.Context, amount decimal.Decimal) bool {
	err := s.proc.CheckDailyLimit(ctx, s.cfg.ActivePublicKey(), amount.StringFixed(2), s.cfg.Sandbox)
	if err != nil {
		zap.L().Info("bytepay unavailable for amount",
			zap.String("amount", amount.StringFixed(2)),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *Initiator) markSandboxOrder(ctx context.Context, order *domain.Order) error {
	if !order.IsTest {
		order.IsTest = true
		if err := s.orders.Save(ctx, order); err != nil {
			return fmt.Errorf("mark test order: %w", err)
		}
	}
	return s.addNoteOnce(ctx, order.ID, noteSandboxOrder, true)
}

func (s *Initiator) addNoteOnce(ctx context.Context, orderID int64, text string, private bool) error {
	notes, err := s.orders.Notes(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list order notes: %w", err)
	}
	for _, n := range notes {
		if strings.TrimSpace(n.Text) == strings.TrimSpace(text) {
			return nil
		}
	}
	if err := s.orders.AddNote(ctx, orderID, text, private); err != nil {
		return fmt.Errorf("add order note: %w", err)
	}
	return nil
}

func (s *Initiator) buildPaymentRequest(order *domain.Order, n, clientIP string) processor.PaymentRequest {
	callback := url.Values{}
	callback.Set("order_id", strconv.FormatInt(order.ID, 10))
	callback.Set("key", order.Key)
	callback.Set("nonce", n)
	callback.Set("mode", "api")

	return processor.PaymentRequest{
		FirstName:   order.Billing.FirstName,
		LastName:    order.Billing.LastName,
		RequestFor:  order.Billing.PayerContact(),
		Amount:      order.AmountString(),
		RedirectURL: s.cfg.CallbackURL + "?" + callback.Encode(),
		IPAddress:   clientIP,
		Remarks:     fmt.Sprintf("Order %d", order.ID),
		Address1:    order.Billing.Address1,
		Address2:    order.Billing.Address2,
		City:        order.Billing.City,
		Postcode:    order.Billing.Postcode,
		Country:     order.Billing.Country,
		State:       order.Billing.State,
		OrderID:     order.ID,
		Sandbox:     s.cfg.Sandbox,
	}
}
