package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/nonce"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/observability"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/service"
	"github.com/bytepay-it/bytepay-payment-gateway/internal/store"
)

// StatusHandler serves the client-side polling loop and the popup-close
// fallback. Both are authenticated by the nonce issued at initiation.
type StatusHandler struct {
	recon  *service.Reconciler
	nonces nonce.Store
}

// NewStatusHandler creates a new StatusHandler instance.
func NewStatusHandler(recon *service.Reconciler, nonces nonce.Store) *StatusHandler {
	return &StatusHandler{recon: recon, nonces: nonces}
}

type statusRequest struct {
	Security string  `json:"security"`
	OrderID  orderID `json:"order_id"`
}

// PaymentStatus handles POST /bytepay/v1/payment-status. It reads the
// persisted order status and never triggers a transition.
func (h *StatusHandler) PaymentStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	result, err := h.recon.CurrentStatus(r.Context(), int64(req.OrderID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondGateway(w, http.StatusNotFound, gatewayResponse{Message: "Order not found."})
			return
		}
		zap.L().Error("payment status lookup failed", zap.Int64("order_id", int64(req.OrderID)), zap.Error(err))
		respondGateway(w, http.StatusInternalServerError, gatewayResponse{Message: "Unable to read payment status."})
		return
	}

	if result.Status != "pending" {
		// A terminal answer ends the session; the nonce is single-settlement.
		h.consume(r, req.Security)
	}
	respondGateway(w, http.StatusOK, gatewayResponse{
		Success:     true,
		OrderID:     int64(req.OrderID),
		Status:      result.Status,
		RedirectURL: result.RedirectURL,
	})
}

// PopupClosed handles POST /bytepay/v1/popup-closed. When the payment popup
// is dismissed without a callback, the authoritative status is pulled from
// the processor, using the session nonce as the bearer credential.
func (h *StatusHandler) PopupClosed(w http.ResponseWriter, r *http.Request) {
	req, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	out := h.recon.RefreshFromProcessor(r.Context(), int64(req.OrderID), req.Security)
	observability.IncrementReconcileOutcome("popup", out.Kind.String())

	switch out.Kind {
	case service.OutcomeUpdated, service.OutcomeNoAction:
		// Either way the order is settled now and the session is over.
		h.consume(r, req.Security)
		respondGateway(w, http.StatusOK, gatewayResponse{
			Success:     true,
			OrderID:     int64(req.OrderID),
			Status:      out.Status,
			RedirectURL: out.RedirectURL,
		})
	case service.OutcomeNotFound:
		respondGateway(w, http.StatusNotFound, gatewayResponse{Message: "Order not found."})
	case service.OutcomeGatewayError:
		respondGateway(w, http.StatusBadGateway, gatewayResponse{Message: "Unable to verify payment status."})
	case service.OutcomeUnknownStatus:
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Unrecognized order status."})
	default:
		zap.L().Error("popup-close reconcile failed",
			zap.Int64("order_id", int64(req.OrderID)),
			zap.String("outcome", out.Kind.String()),
			zap.Error(out.Err),
		)
		respondGateway(w, http.StatusInternalServerError, gatewayResponse{Message: "Unable to process status report."})
	}
}

func (h *StatusHandler) consume(r *http.Request, n string) {
	if err := h.nonces.Consume(r.Context(), n); err != nil {
		zap.L().Warn("nonce consume failed", zap.Error(err))
	}
}

func (h *StatusHandler) authenticate(w http.ResponseWriter, r *http.Request) (*statusRequest, bool) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Malformed request."})
		return nil, false
	}
	if req.Security == "" || req.OrderID == 0 {
		respondGateway(w, http.StatusBadRequest, gatewayResponse{Message: "Missing security token or order id."})
		return nil, false
	}

	valid, err := h.nonces.Valid(r.Context(), req.Security)
	if err != nil {
		zap.L().Error("nonce validation failed", zap.Error(err))
		respondGateway(w, http.StatusInternalServerError, gatewayResponse{Message: "Unable to validate session."})
		return nil, false
	}
	if !valid {
		respondGateway(w, http.StatusForbidden, gatewayResponse{Message: "Invalid security token."})
		return nil, false
	}
	return &req, true
}
