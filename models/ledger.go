package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Entry types for the commission log
const (
	EntryTypeCommission     = "commission"
	EntryTypeRefundReversal = "refund-reversal"
	EntryTypeAdjustment     = "adjustment"
)

// Entry statuses
const (
	EntryStatusPending   = "pending"
	EntryStatusAvailable = "available"
	EntryStatusFailed    = "failed"
	EntryStatusPaid      = "paid"
)

// CommissionLogEntry is one credited (or reversed) event in an affiliate's ledger.
// Entries are append-only and ordered by creation time. MaturedAt is set exactly
// once, when the entry transitions pending -> available; AvailableAt never changes
// after creation.
type CommissionLogEntry struct {
	ID                   primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	Type                 string             `json:"type" bson:"type"`
	Status               string             `json:"status" bson:"status"`
	AmountCents          int64              `json:"amountCents" bson:"amountCents"` // negative for reversals
	Currency             string             `json:"currency" bson:"currency"`
	SourceInvoiceID      string             `json:"sourceInvoiceId,omitempty" bson:"sourceInvoiceId,omitempty"`
	SourceSubscriptionID string             `json:"sourceSubscriptionId,omitempty" bson:"sourceSubscriptionId,omitempty"`
	AvailableAt          time.Time          `json:"availableAt" bson:"availableAt"`
	MaturedAt            *time.Time         `json:"maturedAt,omitempty" bson:"maturedAt,omitempty"`
	CreatedAt            time.Time          `json:"createdAt" bson:"createdAt"`
}

// CurrencyBalance is the cached per-currency projection of the entry log.
// AvailableCents is floored at 0; any true negative raw sum is carried in
// DebtCents instead, so the two never hold a value at the same time.
type CurrencyBalance struct {
	AvailableCents int64 `json:"availableCents" bson:"availableCents"`
	DebtCents      int64 `json:"debtCents" bson:"debtCents"`
}

// AffiliateLedger is the per-user ledger document. All mutation paths (webhook
// crediting, maturation, refund reconciliation, redemption debits) converge on
// this document, so every update goes through an optimistic Version check.
type AffiliateLedger struct {
	ID           primitive.ObjectID         `json:"id,omitempty" bson:"_id,omitempty"`
	UserID       primitive.ObjectID         `json:"userId" bson:"userId"`
	Balances     map[string]CurrencyBalance `json:"balances" bson:"balances"`
	Entries      []CommissionLogEntry       `json:"entries" bson:"entries"`
	NextMatureAt *time.Time                 `json:"nextMatureAt,omitempty" bson:"nextMatureAt,omitempty"`
	Version      int64                      `json:"version" bson:"version"`
	CreatedAt    time.Time                  `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time                  `json:"updatedAt" bson:"updatedAt"`
}

// ApplyBalanceDelta applies a signed amount to a cached balance and returns the
// new (available, debt) pair. The raw sum may go negative on a reversal; the
// cached available is floored at 0 and the deficit is tracked as debt. A later
// positive delta (matured commission) repays debt before becoming spendable.
func ApplyBalanceDelta(availableCents, debtCents, deltaCents int64) (int64, int64) {
	raw := availableCents - debtCents + deltaCents
	if raw >= 0 {
		return raw, 0
	}
	return 0, -raw
}

// NextPendingAvailableAt returns the earliest AvailableAt over still-pending
// entries, or nil when nothing is waiting to mature.
func NextPendingAvailableAt(entries []CommissionLogEntry) *time.Time {
	var next *time.Time
	for i := range entries {
		e := &entries[i]
		if e.Status != EntryStatusPending {
			continue
		}
		if next == nil || e.AvailableAt.Before(*next) {
			t := e.AvailableAt
			next = &t
		}
	}
	return next
}

// PendingCentsByCurrency sums pending entry amounts per currency.
func PendingCentsByCurrency(entries []CommissionLogEntry) map[string]int64 {
	sums := make(map[string]int64)
	for i := range entries {
		if entries[i].Status == EntryStatusPending {
			sums[entries[i].Currency] += entries[i].AmountCents
		}
	}
	return sums
}

// RebuiltBalances replays the entry log into a fresh per-currency balance map,
// counting only available entries. Used by the repair job to reconcile the
// cached projection against the log.
func RebuiltBalances(entries []CommissionLogEntry) map[string]CurrencyBalance {
	raw := make(map[string]int64)
	for i := range entries {
		if entries[i].Status == EntryStatusAvailable {
			raw[entries[i].Currency] += entries[i].AmountCents
		}
	}
	balances := make(map[string]CurrencyBalance, len(raw))
	for currency, sum := range raw {
		avail, debt := ApplyBalanceDelta(0, 0, sum)
		balances[currency] = CurrencyBalance{AvailableCents: avail, DebtCents: debt}
	}
	return balances
}
