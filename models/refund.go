package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RefundProgress tracks, per (invoice, affiliate), the gateway-reported running
// total of refunded paid amount that has already been reconciled against the
// ledger. The counter is monotonically non-decreasing: replayed or out-of-order
// refund events whose cumulative value does not exceed it are no-ops.
type RefundProgress struct {
	ID                      primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	InvoiceID               string             `json:"invoiceId" bson:"invoiceId"`
	AffiliateUserID         primitive.ObjectID `json:"affiliateUserId" bson:"affiliateUserId"`
	RefundedPaidCentsTotal  int64              `json:"refundedPaidCentsTotal" bson:"refundedPaidCentsTotal"`
	UpdatedAt               time.Time          `json:"updatedAt" bson:"updatedAt"`
}
