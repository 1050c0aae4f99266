package models

// InvoicePaidEvent is the gateway's invoice-paid webhook payload. Amounts are
// integer cents as reported by the gateway, which remains the source of truth
// for invoice and charge amounts.
type InvoicePaidEvent struct {
	InvoiceID         string `json:"invoiceId" validate:"required"`
	SubscriptionID    string `json:"subscriptionId"`
	AmountPaidCents   int64  `json:"amountPaidCents"`
	SubtotalCents     int64  `json:"subtotalCents"`
	DiscountCents     int64  `json:"discountCents"`
	Currency          string `json:"currency" validate:"required"`
	AffiliateReferral string `json:"affiliateReferral,omitempty"` // referring affiliate's code, if any
}

// ChargeRefundedEvent is the gateway's charge-refunded webhook payload. The
// refunded amount is a cumulative running total, not a delta.
type ChargeRefundedEvent struct {
	InvoiceID                   string `json:"invoiceId" validate:"required"`
	ChargeID                    string `json:"chargeId"`
	CumulativeRefundedPaidCents int64  `json:"cumulativeRefundedPaidCents"`
}
