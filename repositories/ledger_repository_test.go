package repositories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/creatorlens/affiliate_backend/models"
)

func pendingEntry(availableAt time.Time, currency string, cents int64) models.CommissionLogEntry {
	return models.CommissionLogEntry{
		Type:        models.EntryTypeCommission,
		Status:      models.EntryStatusPending,
		AmountCents: cents,
		Currency:    currency,
		AvailableAt: availableAt,
		CreatedAt:   availableAt.AddDate(0, 0, -7),
	}
}

func TestEligibleEntryIndexes(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	t.Run("only elapsed pending entries qualify", func(t *testing.T) {
		matured := now.Add(-time.Hour)
		entries := []models.CommissionLogEntry{
			pendingEntry(now.Add(-time.Hour), "usd", 100),
			pendingEntry(now.Add(time.Hour), "usd", 200), // hold still running
			{Type: models.EntryTypeCommission, Status: models.EntryStatusAvailable, AvailableAt: now.Add(-2 * time.Hour), MaturedAt: &matured},
		}
		assert.Equal(t, []int{0}, eligibleEntryIndexes(entries, now, 10))
	})

	t.Run("entry exactly at the boundary qualifies", func(t *testing.T) {
		entries := []models.CommissionLogEntry{pendingEntry(now, "usd", 100)}
		assert.Equal(t, []int{0}, eligibleEntryIndexes(entries, now, 10))
	})

	t.Run("oldest money first", func(t *testing.T) {
		entries := []models.CommissionLogEntry{
			pendingEntry(now.Add(-1*time.Hour), "usd", 100),
			pendingEntry(now.Add(-3*time.Hour), "usd", 200),
			pendingEntry(now.Add(-2*time.Hour), "usd", 300),
		}
		assert.Equal(t, []int{1, 2, 0}, eligibleEntryIndexes(entries, now, 10))
	})

	t.Run("cap keeps the oldest entries", func(t *testing.T) {
		entries := []models.CommissionLogEntry{
			pendingEntry(now.Add(-1*time.Hour), "usd", 100),
			pendingEntry(now.Add(-3*time.Hour), "usd", 200),
			pendingEntry(now.Add(-2*time.Hour), "usd", 300),
		}
		assert.Equal(t, []int{1, 2}, eligibleEntryIndexes(entries, now, 2))
	})

	t.Run("nothing eligible", func(t *testing.T) {
		entries := []models.CommissionLogEntry{pendingEntry(now.Add(time.Minute), "usd", 100)}
		assert.Empty(t, eligibleEntryIndexes(entries, now, 10))
	})
}

func TestCommissionCurrency(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	entries := []models.CommissionLogEntry{
		{Type: models.EntryTypeCommission, SourceInvoiceID: "inv_1", Currency: "usd", AvailableAt: now},
		{Type: models.EntryTypeRefundReversal, SourceInvoiceID: "inv_2", Currency: "eur", AvailableAt: now},
	}

	currency, err := commissionCurrency(entries, "inv_1")
	require.NoError(t, err)
	assert.Equal(t, "usd", currency)

	// A reversal referencing the invoice is not a commission source.
	_, err = commissionCurrency(entries, "inv_2")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = commissionCurrency(entries, "inv_missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLedgerStateUpdate(t *testing.T) {
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	balances := map[string]models.CurrencyBalance{"usd": {AvailableCents: 1000}}

	t.Run("pending money keeps nextMatureAt armed", func(t *testing.T) {
		entries := []models.CommissionLogEntry{pendingEntry(now.Add(24*time.Hour), "usd", 500)}
		update := ledgerStateUpdate(entries, balances, now)

		set, ok := update["$set"].(bson.M)
		require.True(t, ok)
		assert.Equal(t, now.Add(24*time.Hour), set["nextMatureAt"])
		assert.NotContains(t, update, "$unset")
	})

	t.Run("fully matured ledger unsets nextMatureAt", func(t *testing.T) {
		matured := now
		entries := []models.CommissionLogEntry{
			{Status: models.EntryStatusAvailable, Currency: "usd", AmountCents: 500, AvailableAt: now.Add(-time.Hour), MaturedAt: &matured},
		}
		update := ledgerStateUpdate(entries, balances, now)

		set, ok := update["$set"].(bson.M)
		require.True(t, ok)
		// A null nextMatureAt would beat every later $min from the append path
		// and permanently drop the user from the maturation scan.
		assert.NotContains(t, set, "nextMatureAt")
		require.Contains(t, update, "$unset")
		assert.Contains(t, update["$unset"].(bson.M), "nextMatureAt")
	})

	t.Run("version always increments", func(t *testing.T) {
		update := ledgerStateUpdate(nil, balances, now)
		assert.Equal(t, bson.M{"version": 1}, update["$inc"])
	})
}

func TestCreditGate(t *testing.T) {
	t.Run("renewal invoices dedupe per invoice", func(t *testing.T) {
		// An invoice-anchored credit must not consult the subscription pair:
		// a subscription's second invoice is a fresh credit, not a replay.
		assert.Equal(t, gateInvoice, creditGate("inv_2", "sub_1"))
	})

	t.Run("subscription-anchored credits dedupe per subscription", func(t *testing.T) {
		assert.Equal(t, gateSubscription, creditGate("", "sub_1"))
	})

	t.Run("no identifiers means no gate", func(t *testing.T) {
		assert.Equal(t, gateNone, creditGate("", ""))
	})
}

func TestCopyBalancesIsIndependent(t *testing.T) {
	src := map[string]models.CurrencyBalance{
		"usd": {AvailableCents: 1000},
	}
	dst := copyBalances(src)
	dst["usd"] = models.CurrencyBalance{AvailableCents: 0, DebtCents: 500}

	assert.Equal(t, int64(1000), src["usd"].AvailableCents)
	assert.Equal(t, int64(0), src["usd"].DebtCents)
}
