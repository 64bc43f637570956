package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/config"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/domain"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/processor"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/store"
)

// stubProcessor fakes the Bytepay API for service tests.
type stubProcessor struct {
	dailyLimitErr error
	session       *processor.PaymentSession
	requestErr    error
	txnStatus     string
	txnErr        error

	dailyLimitCalls int
	requestCalls    int
	lastBearer      string
}

func (s *stubProcessor) CheckDailyLimit(ctx context.Context, publicKey, amount string, sandbox bool) error {
	s.dailyLimitCalls++
	return s.dailyLimitErr
}

func (s *stubProcessor) RequestPayment(ctx context.Context, publicKey string, req processor.PaymentRequest) (*processor.PaymentSession, error) {
	s.requestCalls++
	if s.requestErr != nil {
		return nil, s.requestErr
	}
	return s.session, nil
}

func (s *stubProcessor) UpdateTxnStatus(ctx context.Context, bearer string, orderID int64, payID string) (string, error) {
	s.lastBearer = bearer
	if s.txnErr != nil {
		return "", s.txnErr
	}
	return s.txnStatus, nil
}

func newTestOrder(id int64, status, payID string) *domain.Order {
	return &domain.Order{
		ID:     id,
		Key:    "wc_order_key",
		Status: status,
		PayID:  payID,
		Total:  decimal.RequireFromString("25.50"),
		Billing: domain.Billing{
			FirstName: "Jane",
			LastName:  "Doe",
			Email:     "jane@example.test",
			Address1:  "1 Main St",
			City:      "Springfield",
			Postcode:  "12345",
			Country:   "US",
			State:     "IL",
		},
		SessionID: "sess-1",
	}
}

func seedOrder(t *testing.T, orders *store.MemoryStore, order *domain.Order) {
	t.Helper()
	require.NoError(t, orders.Save(context.Background(), order))
	orders.AddCart(order.SessionID)
}

func testConfig() *config.Config {
	return &config.Config{
		ProcessorURL:   "https://processor.test",
		PublicKey:      "pk_live",
		SecretKey:      "sk_live",
		SuccessStatus:  domain.StatusProcessing,
		ShopURL:        "https://shop.test",
		CallbackURL:    "https://shop.test/bytepay/v1/data",
		RequireConsent: false,
		RateLimitMax:   5,
	}
}
