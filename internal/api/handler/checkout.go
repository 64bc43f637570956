package handler

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/processor"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/service"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/store"
)

// CheckoutHandler drives payment initiation and the pre-checkout
// availability probe.
type CheckoutHandler struct {
	init *service.Initiator
}

// NewCheckoutHandler creates a new CheckoutHandler instance.
func NewCheckoutHandler(init *service.Initiator) *CheckoutHandler {
	return &CheckoutHandler{init: init}
}

type checkoutRequest struct {
	OrderID orderID `json:"order_id"`
	Consent bool    `json:"consent"`
}

// Checkout handles POST /bytepay/v1/checkout.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Malformed checkout request."})
		return
	}
	if req.OrderID == 0 {
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Missing order id."})
		return
	}

	result, err := h.init.Initiate(r.Context(), int64(req.OrderID), clientIP(r), req.Consent)
	if err != nil {
		h.respondInitiateError(w, int64(req.OrderID), err)
		return
	}

	respondGateway(w, http.StatusOK, gatewayResponse{
		Success:     true,
		RedirectURL: result.RedirectURL,
		Security:    result.Nonce,
	})
}

func (h *CheckoutHandler) respondInitiateError(w http.ResponseWriter, id int64, err error) {
	switch {
	case errors.Is(err, service.ErrConsentRequired):
		respondGateway(w, http.StatusBadRequest, gatewayResponse{
			Message: "You must consent to the ACH payment authorization.",
		})
	case errors.Is(err, service.ErrRateLimited):
		respondGateway(w, http.StatusTooManyRequests, gatewayResponse{
			Message: "Too many payment attempts. Please wait a moment and try again.",
		})
	case errors.Is(err, service.ErrLimitExceeded):
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		respondGateway(w, http.StatusNotFound, gatewayResponse{Message: "Order not found."})
	case errors.Is(err, processor.ErrUnreachable):
		respondGateway(w, http.StatusBadGateway, gatewayResponse{
			Message: "Payment service is unreachable. Please try again later.",
		})
	default:
		var apiErr *processor.APIError
		if errors.As(err, &apiErr) {
			respondGateway(w, http.StatusBadGateway, gatewayResponse{Message: apiErr.Message})
			return
		}
		zap.L().Error("payment initiation failed", zap.Int64("order_id", id), zap.Error(err))
		respondGateway(w, http.StatusInternalServerError, gatewayResponse{
			Message: "Unable to initiate payment.",
		})
	}
}

type availabilityRequest struct {
	Amount string `json:"amount"`
}

// Available handles POST /bytepay/v1/available. It reports whether a payment
// of the given amount can currently be accepted.
func (h *CheckoutHandler) Available(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Malformed availability request."})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.IsNegative() {
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Invalid amount."})
		return
	}

	respondGateway(w, http.StatusOK, gatewayResponse{
		Success:   true,
		Available: h.init.CheckAvailability(r.Context(), amount),
	})
}
