package handler

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"

	"go.uber.org/zap"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/observability"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/service"
)

// WebhookHandler handles server-to-server status reports from the processor.
type WebhookHandler struct {
	recon  *service.Reconciler
	secret string
}

// NewWebhookHandler creates a new WebhookHandler instance.
func NewWebhookHandler(recon *service.Reconciler, secret string) *WebhookHandler {
	return &WebhookHandler{recon: recon, secret: secret}
}

type webhookPayload struct {
	Nonce       string  `json:"nonce"`
	OrderID     orderID `json:"order_id"`
	OrderStatus string  `json:"order_status"`
	PayID       string  `json:"pay_id"`
}

// Handle handles POST /bytepay/v1/webhook.
// The processor authenticates with the base64 form of the shared secret.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := decodeJSON(r, &payload); err != nil {
		zap.L().Error("decode webhook payload failed", zap.Error(err))
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Malformed webhook payload."})
		return
	}

	expected := base64.StdEncoding.EncodeToString([]byte(h.secret))
	authenticated := subtle.ConstantTimeCompare([]byte(payload.Nonce), []byte(expected)) == 1

	out := h.recon.Reconcile(r.Context(), service.ReconcileInput{
		OrderID:       int64(payload.OrderID),
		ClaimedToken:  payload.PayID,
		ClaimedStatus: payload.OrderStatus,
		Authenticated: authenticated,
	})
	observability.IncrementReconcileOutcome("webhook", out.Kind.String())

	switch out.Kind {
	case service.OutcomeUpdated:
		respondGateway(w, http.StatusOK, gatewayResponse{
			Success:   true,
			Message:   "Order status updated.",
			ReturnURL: out.RedirectURL,
		})
	case service.OutcomeNoAction:
		respondGateway(w, http.StatusOK, gatewayResponse{
			Success:   true,
			Message:   "No action taken.",
			ReturnURL: out.RedirectURL,
		})
	case service.OutcomeUnauthorized:
		respondGateway(w, http.StatusUnauthorized, gatewayResponse{Message: "Unauthorized request."})
	case service.OutcomeNotFound:
		respondGateway(w, http.StatusNotFound, gatewayResponse{Message: "Order not found."})
	case service.OutcomeTokenMismatch:
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Pay ID mismatch."})
	case service.OutcomeUnknownStatus:
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Unrecognized order status."})
	default:
		zap.L().Error("webhook reconcile failed",
			zap.Int64("order_id", int64(payload.OrderID)),
			zap.String("outcome", out.Kind.String()),
			zap.Error(out.Err),
		)
		respondGateway(w, http.StatusInternalServerError, gatewayResponse{Message: "Unable to process status report."})
	}
}
