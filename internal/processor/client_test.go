package processor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckDailyLimit(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		require.Equal(t, "/api/dailylimit", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "42.50", r.PostFormValue("amount"))
		require.Equal(t, "false", r.PostFormValue("is_sandbox"))
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Second)
	require.NoError(t, c.CheckDailyLimit(context.Background(), "pk_live", "42.50", false))
	require.Equal(t, "Bearer pk_live", gotAuth)
	require.Equal(t, "application/x-www-form-urlencoded", gotContentType)
}

func TestCheckDailyLimitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Daily limit reached"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Second)
	err := c.CheckDailyLimit(context.Background(), "pk", "10.00", true)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Daily limit reached", apiErr.Message)
}

func TestRequestPaymentSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/request-payment", r.URL.Path)
		require.NoError(t, r.ParseForm())
		require.Equal(t, "19.99", r.PostFormValue("amount"))
		require.Equal(t, "jane@example.test", r.PostFormValue("request_for"))
		require.Equal(t, "77", r.PostFormValue("meta_data[order_id]"))
		w.Write([]byte(`{"status":"success","data":{"pay_id":"tok-1","payment_link":"https://pay.example/1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Second)
	session, err := c.RequestPayment(context.Background(), "pk", PaymentRequest{
		FirstName:  "Jane",
		RequestFor: "jane@example.test",
		Amount:     "19.99",
		OrderID:    77,
	})
	require.NoError(t, err)
	require.Equal(t, "tok-1", session.PayID)
	require.Equal(t, "https://pay.example/1", session.PaymentLink)
}

func TestRequestPaymentErrorCollectsFieldErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"Validation failed","errors":{"amount":["must be positive"]}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Second)
	_, err := c.RequestPayment(context.Background(), "pk", PaymentRequest{Amount: "-1"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Contains(t, apiErr.Message, "Validation failed")
	require.Contains(t, apiErr.Message, "must be positive")
}

func TestUpdateTxnStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/update-txn-status", r.URL.Path)
		require.Equal(t, "Bearer nonce-abc", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"transaction_status":"paid"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Second)
	status, err := c.UpdateTxnStatus(context.Background(), "nonce-abc", 9, "tok-9")
	require.NoError(t, err)
	require.Equal(t, "paid", status)
}

func TestUpdateTxnStatusMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, time.Second)
	_, err := c.UpdateTxnStatus(context.Background(), "n", 9, "tok")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
}

func TestTransportFailureIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, time.Second, time.Second)
	err := c.CheckDailyLimit(context.Background(), "pk", "1.00", false)
	require.True(t, errors.Is(err, ErrUnreachable))
}
