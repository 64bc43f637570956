package domain

import "strings"

// Order statuses. These mirror the store's own status vocabulary; the gateway
// never invents statuses outside this set.
const (
	StatusCreated      = "created"
	StatusPending      = "pending"
	StatusProcessing   = "processing"
	StatusCompleted    = "completed"
	StatusOnHold       = "on-hold"
	StatusACHInProcess = "ach-in-process"
	StatusFailed       = "failed"
	StatusCanceled     = "canceled"
)

// successStatuses is the set of statuses an operator may configure as the
// post-payment status. Anything else is a misconfiguration.
var successStatuses = map[string]struct{}{
	StatusProcessing:   {},
	StatusCompleted:    {},
	StatusACHInProcess: {},
	StatusOnHold:       {},
}

// IsSuccessStatus reports whether s is a valid configured post-payment status.
func IsSuccessStatus(s string) bool {
	_, ok := successStatuses[NormalizeStatus(s)]
	return ok
}

// Eligible reports whether an order in the given status may still accept a
// status report. Once an order leaves {pending, failed} it is settled and all
// further reports are no-ops.
func Eligible(status string) bool {
	switch NormalizeStatus(status) {
	case StatusPending, StatusFailed:
		return true
	}
	return false
}

// EligibleStatuses lists the statuses from which a transition may still be
// accepted. Stores take it as the predicate of a conditional status write, so
// the eligibility check and the write happen atomically.
func EligibleStatuses() []string {
	return []string{StatusPending, StatusFailed}
}

// ClaimKind classifies a status as claimed by an external caller.
type ClaimKind int

const (
	ClaimUnknown ClaimKind = iota
	ClaimSuccess
	ClaimFailed
	ClaimCanceled
)

// ClassifyClaim maps a processor-reported transaction status onto the local
// transition it requests. The caller decides the concrete success status; a
// success claim never carries one.
func ClassifyClaim(claimed string) ClaimKind {
	switch NormalizeStatus(claimed) {
	case "success", "paid", StatusProcessing, StatusCompleted:
		return ClaimSuccess
	case StatusFailed:
		return ClaimFailed
	case StatusCanceled, "expired":
		return ClaimCanceled
	}
	return ClaimUnknown
}

// NormalizeStatus trims and lower-cases a status value for comparison.
func NormalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
