package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Redemption request statuses. "processing" is a legacy transient state; a
// startup migration folds stale processing requests back to "requested".
const (
	RedemptionStatusRequested  = "requested"
	RedemptionStatusProcessing = "processing"
	RedemptionStatusPaid       = "paid"
	RedemptionStatusRejected   = "rejected"
)

// Block reasons returned to the user when a redemption cannot be created.
// These are structured rejections, not server errors.
const (
	BlockReasonNeedsOnboarding     = "needsOnboarding"
	BlockReasonPayoutsDisabled     = "payouts_disabled"
	BlockReasonBelowMin            = "below_min"
	BlockReasonHasDebt             = "has_debt"
	BlockReasonCurrencyMismatch    = "currency_mismatch"
	BlockReasonInsufficientBalance = "insufficient_balance"
)

// RedemptionRequest is a user-initiated withdrawal of available commission.
type RedemptionRequest struct {
	ID              primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	UserID          primitive.ObjectID `json:"userId" bson:"userId"`
	AmountCents     int64              `json:"amountCents" bson:"amountCents"`
	Currency        string             `json:"currency" bson:"currency"`
	Status          string             `json:"status" bson:"status"`
	IdempotencyKey  string             `json:"idempotencyKey" bson:"idempotencyKey"`
	RejectionReason string             `json:"rejectionReason,omitempty" bson:"rejectionReason,omitempty"`
	CreatedAt       time.Time          `json:"createdAt" bson:"createdAt"`
	ProcessedAt     *time.Time         `json:"processedAt,omitempty" bson:"processedAt,omitempty"`
}

// RedemptionIdempotencyKey builds the deterministic key that collapses repeated
// same-day requests for the same user and amount into a single record. The date
// component is always UTC.
func RedemptionIdempotencyKey(userID primitive.ObjectID, amountCents int64, at time.Time) string {
	return fmt.Sprintf("redeem_%s_%d_%s", userID.Hex(), amountCents, at.UTC().Format("20060102"))
}

// RedeemRequest is the user-facing request body.
type RedeemRequest struct {
	AmountCents int64  `json:"amountCents" validate:"required,gt=0"`
	Currency    string `json:"currency" validate:"required,len=3"`
}

// RedeemBlockedResponse is returned when a precondition fails.
type RedeemBlockedResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
}

// RedeemSuccessResponse is returned when the request was created (or already
// existed for the same user/amount/day).
type RedeemSuccessResponse struct {
	OK        bool   `json:"ok"`
	RequestID string `json:"requestId"`
}

// PayoutConfirmation is the payout provider's callback body resolving a
// redemption request.
type PayoutConfirmation struct {
	RequestID     string `json:"requestId" validate:"required"`
	Status        string `json:"status" validate:"required,oneof=paid rejected"`
	FailureReason string `json:"failureReason,omitempty"`
}
