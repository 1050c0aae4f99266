package controllers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/creatorlens/affiliate_backend/models"
)

func redeemableUser() *models.User {
	return &models.User{
		OnboardingComplete: true,
		PayoutsEnabled:     true,
		SettlementCurrency: "usd",
	}
}

func ledgerWith(currency string, available, debt int64) *models.AffiliateLedger {
	return &models.AffiliateLedger{
		Balances: map[string]models.CurrencyBalance{
			currency: {AvailableCents: available, DebtCents: debt},
		},
	}
}

func TestRedemptionBlockReason(t *testing.T) {
	const defaultMin = int64(1000)

	t.Run("clear to proceed", func(t *testing.T) {
		reason := redemptionBlockReason(redeemableUser(), ledgerWith("usd", 5000, 0), defaultMin, 2000, "usd")
		assert.Equal(t, "", reason)
	})

	t.Run("onboarding gate fires first", func(t *testing.T) {
		user := redeemableUser()
		user.OnboardingComplete = false
		user.PayoutsEnabled = false
		reason := redemptionBlockReason(user, ledgerWith("usd", 0, 500), defaultMin, 1, "eur")
		assert.Equal(t, models.BlockReasonNeedsOnboarding, reason)
	})

	t.Run("payouts disabled", func(t *testing.T) {
		user := redeemableUser()
		user.PayoutsEnabled = false
		reason := redemptionBlockReason(user, ledgerWith("usd", 5000, 0), defaultMin, 2000, "usd")
		assert.Equal(t, models.BlockReasonPayoutsDisabled, reason)
	})

	t.Run("below default minimum", func(t *testing.T) {
		reason := redemptionBlockReason(redeemableUser(), ledgerWith("usd", 5000, 0), defaultMin, 999, "usd")
		assert.Equal(t, models.BlockReasonBelowMin, reason)
	})

	t.Run("per-user minimum overrides default", func(t *testing.T) {
		user := redeemableUser()
		user.MinRedeemCents = 2500
		reason := redemptionBlockReason(user, ledgerWith("usd", 5000, 0), defaultMin, 2000, "usd")
		assert.Equal(t, models.BlockReasonBelowMin, reason)
	})

	t.Run("outstanding debt blocks before currency check", func(t *testing.T) {
		reason := redemptionBlockReason(redeemableUser(), ledgerWith("eur", 0, 300), defaultMin, 2000, "eur")
		assert.Equal(t, models.BlockReasonHasDebt, reason)
	})

	t.Run("settlement currency mismatch", func(t *testing.T) {
		reason := redemptionBlockReason(redeemableUser(), ledgerWith("eur", 5000, 0), defaultMin, 2000, "eur")
		assert.Equal(t, models.BlockReasonCurrencyMismatch, reason)
	})

	t.Run("no settlement currency set skips the mismatch gate", func(t *testing.T) {
		user := redeemableUser()
		user.SettlementCurrency = ""
		reason := redemptionBlockReason(user, ledgerWith("eur", 5000, 0), defaultMin, 2000, "eur")
		assert.Equal(t, "", reason)
	})

	t.Run("nil ledger passes the debt gate", func(t *testing.T) {
		reason := redemptionBlockReason(redeemableUser(), nil, defaultMin, 2000, "usd")
		assert.Equal(t, "", reason)
	})
}
