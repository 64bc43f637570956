package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/observability"
)

// API paths on the Bytepay processor.
const (
	pathDailyLimit      = "/api/dailylimit"
	pathRequestPayment  = "/api/request-payment"
	pathUpdateTxnStatus = "/api/update-txn-status"
)

// Timeouts per endpoint. Callers must treat a timeout as transient, never as
// a definitive payment status.
const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultStatusTimeout  = 15 * time.Second
)

// ErrUnreachable wraps transport-level failures talking to the processor.
var ErrUnreachable = errors.New("payment processor unreachable")

// APIError is a business-level rejection returned by the processor.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "payment processor rejected the request"
	}
	return e.Message
}

// PaymentRequest is the outbound payload for /api/request-payment.
type PaymentRequest struct {
	FirstName   string
	LastName    string
	RequestFor  string // payer email, or phone when email is absent
	Amount      string // fixed 2-decimal string
	RedirectURL string // callback URL embedding order id, key, nonce and mode
	IPAddress   string
	Remarks     string
	Address1    string
	Address2    string
	City        string
	Postcode    string
	Country     string
	State       string
	OrderID     int64
	Sandbox     bool
}

// PaymentSession is the processor's answer to a successful payment request.
type PaymentSession struct {
	PayID       string `json:"pay_id"`
	PaymentLink string `json:"payment_link"`
}

// Processor is the outbound contract the services depend on. The HTTP Client
// below is the production implementation; tests stub it.
type Processor interface {
	CheckDailyLimit(ctx context.Context, publicKey, amount string, sandbox bool) error
	RequestPayment(ctx context.Context, publicKey string, req PaymentRequest) (*PaymentSession, error)
	UpdateTxnStatus(ctx context.Context, bearer string, orderID int64, payID string) (string, error)
}

// Client talks to the Bytepay HTTP API with bearer authentication over
// verified TLS.
type Client struct {
	baseURL       string
	requestClient *http.Client // 30s budget: dailylimit, request-payment
	statusClient  *http.Client // 15s budget: update-txn-status
}

// NewClient creates a Client for the given base URL (e.g.
// "https://www.bytepay.it"). Non-positive timeouts use the defaults.
func NewClient(baseURL string, requestTimeout, statusTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = DefaultRequestTimeout
	}
	if statusTimeout <= 0 {
		statusTimeout = DefaultStatusTimeout
	}
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		requestClient: &http.Client{Timeout: requestTimeout},
		statusClient:  &http.Client{Timeout: statusTimeout},
	}
}

// CheckDailyLimit asks the processor whether the amount fits today's limit.
// A nil return means the payment may proceed.
func (c *Client) CheckDailyLimit(ctx context.Context, publicKey, amount string, sandbox bool) error {
	form := url.Values{}
	form.Set("amount", amount)
	form.Set("is_sandbox", strconv.FormatBool(sandbox))

	body, err := c.postForm(ctx, c.requestClient, pathDailyLimit, publicKey, form)
	if err != nil {
		return err
	}

	var resp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("decode daily limit response: %w", err)
	}
	if resp.Error != "" {
		return &APIError{Message: resp.Error}
	}
	return nil
}

// RequestPayment creates a payment session for the order and returns the
// correlation token and the customer-facing payment link.
func (c *Client) RequestPayment(ctx context.Context, publicKey string, req PaymentRequest) (*PaymentSession, error) {
	form := url.Values{}
	form.Set("api_public_key", publicKey)
	form.Set("first_name", req.FirstName)
	form.Set("last_name", req.LastName)
	form.Set("request_for", req.RequestFor)
	form.Set("amount", req.Amount)
	form.Set("redirect_url", req.RedirectURL)
	form.Set("redirect_time", "3")
	form.Set("ip_address", req.IPAddress)
	form.Set("source", "api")
	form.Set("remarks", req.Remarks)
	form.Set("billing_address_1", req.Address1)
	form.Set("billing_address_2", req.Address2)
	form.Set("billing_city", req.City)
	form.Set("billing_postcode", req.Postcode)
	form.Set("billing_country", req.Country)
	form.Set("billing_state", req.State)
	form.Set("is_sandbox", strconv.FormatBool(req.Sandbox))
	form.Set("meta_data[order_id]", strconv.FormatInt(req.OrderID, 10))
	form.Set("meta_data[amount]", req.Amount)
	form.Set("meta_data[source]", "bytepay-gateway")

	body, err := c.postForm(ctx, c.requestClient, pathRequestPayment, publicKey, form)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status  string              `json:"status"`
		Message string              `json:"message"`
		Error   string              `json:"error"`
		Errors  map[string][]string `json:"errors"`
		Data    PaymentSession      `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode payment response: %w", err)
	}

	if resp.Status == "success" && resp.Data.PaymentLink != "" {
		return &resp.Data, nil
	}

	msg := resp.Message
	if msg == "" {
		msg = resp.Error
	}
	if msg == "" {
		msg = "unable to retrieve payment link"
	}
	for _, fieldErrors := range resp.Errors {
		for _, fe := range fieldErrors {
			msg += " : " + fe
		}
	}
	return nil, &APIError{Message: msg}
}

// UpdateTxnStatus asks the processor for the authoritative transaction status
// of a payment session. Used by the popup-close fallback when no callback was
// delivered. The bearer credential is the per-session verification nonce.
func (c *Client) UpdateTxnStatus(ctx context.Context, bearer string, orderID int64, payID string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"order_id":      orderID,
		"payment_token": payID,
	})
	if err != nil {
		return "", fmt.Errorf("encode status request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pathUpdateTxnStatus, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	body, err := c.do(c.statusClient, req, pathUpdateTxnStatus)
	if err != nil {
		return "", err
	}

	var resp struct {
		TransactionStatus string `json:"transaction_status"`
		Error             string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode status response: %w", err)
	}
	if resp.TransactionStatus == "" {
		if resp.Error != "" {
			return "", &APIError{Message: resp.Error}
		}
		return "", &APIError{Message: "missing transaction_status in processor response"}
	}
	return resp.TransactionStatus, nil
}

func (c *Client) postForm(ctx context.Context, hc *http.Client, path, bearer string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+bearer)
	return c.do(hc, req, path)
}

func (c *Client) do(hc *http.Client, req *http.Request, path string) ([]byte, error) {
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		observability.ObserveProcessorCall(path, "transport_error", time.Since(start))
		zap.L().Error("processor request failed", zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		observability.ObserveProcessorCall(path, "read_error", time.Since(start))
		return nil, fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}

	observability.ObserveProcessorCall(path, strconv.Itoa(resp.StatusCode), time.Since(start))
	zap.L().Debug("processor response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return body, nil
}
