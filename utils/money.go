package utils

import (
	"errors"
	"strings"

	"github.com/creatorlens/affiliate_backend/models"
)

// ErrInvalidCurrency is returned for currency codes outside ISO 4217.
var ErrInvalidCurrency = errors.New("invalid currency code")

// Commission base selection modes.
const (
	CommissionBaseAmountPaid            = "amount_paid"
	CommissionBaseSubtotalAfterDiscount = "subtotal_after_discount"
)

// isoCurrencies is the set of settlement currencies the payment gateway can
// report. Codes are stored lowercase.
var isoCurrencies = map[string]bool{
	"aed": true, "aud": true, "brl": true, "cad": true, "chf": true,
	"cny": true, "czk": true, "dkk": true, "eur": true, "gbp": true,
	"hkd": true, "huf": true, "idr": true, "ils": true, "inr": true,
	"jpy": true, "krw": true, "lbp": true, "mxn": true, "myr": true,
	"nok": true, "nzd": true, "php": true, "pln": true, "ron": true,
	"sar": true, "sek": true, "sgd": true, "thb": true, "try": true,
	"twd": true, "usd": true, "vnd": true, "zar": true,
}

// NormalizeCurrency lowercases a 3-letter ISO 4217 code, rejecting anything
// else. All currency comparisons in the ledger go through this.
func NormalizeCurrency(code string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(code))
	if len(normalized) != 3 || !isoCurrencies[normalized] {
		return "", ErrInvalidCurrency
	}
	return normalized, nil
}

// CommissionCents computes round(baseCents * ratePercent / 100) with integer
// round-half-up arithmetic. Money never touches floating point. Negative bases
// mirror the positive rounding so reversals stay symmetric with credits.
func CommissionCents(baseCents, ratePercent int64) int64 {
	n := baseCents * ratePercent
	if n >= 0 {
		return (n + 50) / 100
	}
	return -((-n + 50) / 100)
}

// CommissionBaseCents selects the configured commission base from an
// invoice-paid event. When the base is subtotal_after_discount, itemized
// discounts are subtracted before the rate applies. Non-positive bases earn
// nothing.
func CommissionBaseCents(event models.InvoicePaidEvent, base string) int64 {
	var cents int64
	switch base {
	case CommissionBaseSubtotalAfterDiscount:
		cents = event.SubtotalCents - event.DiscountCents
	default:
		cents = event.AmountPaidCents
	}
	if cents <= 0 {
		return 0
	}
	return cents
}

// ComputeCommission applies the configured rate to the configured base of an
// invoice-paid event.
func ComputeCommission(event models.InvoicePaidEvent, base string, ratePercent int64) int64 {
	return CommissionCents(CommissionBaseCents(event, base), ratePercent)
}
