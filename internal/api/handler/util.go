package handler

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytepay-it/bytepay-payment-gateway/internal/api/problem"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an RFC 7807 error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// gatewayResponse is the envelope the storefront scripts expect from every
// gateway endpoint.
type gatewayResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message,omitempty"`
	OrderID     int64  `json:"order_id,omitempty"`
	Status      string `json:"status,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	ReturnURL   string `json:"payment_return_url,omitempty"`
	Security    string `json:"security,omitempty"`
	Available   bool   `json:"available,omitempty"`
}

func respondGateway(w http.ResponseWriter, status int, resp gatewayResponse) {
	RespondJSON(w, status, resp)
}

// orderID accepts both JSON numbers and numeric strings, since different
// storefront scripts serialize the order id differently.
type orderID int64

func (id *orderID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid order id %q", s)
	}
	*id = orderID(v)
	return nil
}

// clientIP resolves the caller's address, preferring the first hop recorded
// by an upstream proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	return dec.Decode(dst)
}
