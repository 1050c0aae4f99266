// models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User model. Authentication and profile management live in the main platform;
// this service only reads the payout-side fields it needs to gate redemptions.
type User struct {
	ID                 primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Email              string             `json:"email" bson:"email"`
	FullName           string             `json:"fullName" bson:"fullName"`
	IsActive           bool               `json:"isActive" bson:"isActive"`
	AffiliateCode      string             `json:"affiliateCode,omitempty" bson:"affiliateCode,omitempty"`
	PayoutsEnabled     bool               `json:"payoutsEnabled" bson:"payoutsEnabled"`
	OnboardingComplete bool               `json:"onboardingComplete" bson:"onboardingComplete"`
	SettlementCurrency string             `json:"settlementCurrency,omitempty" bson:"settlementCurrency,omitempty"`
	MinRedeemCents     int64              `json:"minRedeemCents,omitempty" bson:"minRedeemCents,omitempty"`
	CreatedAt          time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Response model
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// CurrencyBalanceView is one currency's slice of the balance read API.
type CurrencyBalanceView struct {
	AvailableCents int64      `json:"availableCents"`
	PendingCents   int64      `json:"pendingCents"`
	DebtCents      int64      `json:"debtCents"`
	NextMatureAt   *time.Time `json:"nextMatureAt,omitempty"`
	MinRedeemCents int64      `json:"minRedeemCents"`
}
