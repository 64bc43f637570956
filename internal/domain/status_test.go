package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyClaim(t *testing.T) {
	cases := []struct {
		claimed string
		kind    ClaimKind
	}{
		{"success", ClaimSuccess},
		{"paid", ClaimSuccess},
		{"processing", ClaimSuccess},
		{"completed", ClaimSuccess},
		{"PAID", ClaimSuccess},
		{"failed", ClaimFailed},
		{"canceled", ClaimCanceled},
		{"expired", ClaimCanceled},
		{"refunded", ClaimUnknown},
		{"", ClaimUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.kind, ClassifyClaim(tc.claimed), "claimed=%q", tc.claimed)
	}
}

func TestEligible(t *testing.T) {
	require.True(t, Eligible(StatusPending))
	require.True(t, Eligible(StatusFailed))
	require.False(t, Eligible(StatusProcessing))
	require.False(t, Eligible(StatusCompleted))
	require.False(t, Eligible(StatusCanceled))
	require.False(t, Eligible(StatusCreated))
}

func TestIsSuccessStatus(t *testing.T) {
	for _, s := range []string{StatusProcessing, StatusCompleted, StatusACHInProcess, StatusOnHold} {
		require.True(t, IsSuccessStatus(s))
	}
	require.False(t, IsSuccessStatus(StatusPending))
	require.False(t, IsSuccessStatus("refunded"))
}

func TestPayerContactFallback(t *testing.T) {
	b := Billing{Email: "a@b.test", Phone: "555"}
	require.Equal(t, "a@b.test", b.PayerContact())
	b.Email = ""
	require.Equal(t, "555", b.PayerContact())
}
