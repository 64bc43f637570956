package domain

import (
	"github.com/shopspring/decimal"
)

// Meta keys persisted on the external order store. The names match what the
// Bytepay processor expects to find when it reads an order back.
const (
	MetaPayID       = "_bytepay_pay_id"
	MetaIsTestOrder = "_is_test_order"
	MetaOrderOrigin = "_order_origin"
)

// OriginTag marks orders created through this gateway.
const OriginTag = "bytepay_payment_gateway"

// Billing carries the customer identity and address fields sent with a
// payment request.
type Billing struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address1  string
	Address2  string
	City      string
	Postcode  string
	Country   string
	State     string
}

// PayerContact returns the billing email, falling back to the phone number
// when no email was collected.
func (b Billing) PayerContact() string {
	if b.Email != "" {
		return b.Email
	}
	return b.Phone
}

// Order is the gateway's view of an order held by the external order store.
type Order struct {
	ID        int64
	Key       string // opaque order key, part of the receipt URL
	Status    string
	PayID     string // correlation token issued by the processor; set once
	Total     decimal.Decimal
	Billing   Billing
	IsTest    bool
	OriginTag string
	SessionID string // checkout session that created the order, used for cart cleanup
}

// AmountString renders the order total as the 2-decimal fixed-point string
// the processor API expects.
func (o *Order) AmountString() string {
	return o.Total.StringFixed(2)
}
