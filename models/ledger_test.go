package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBalanceDelta(t *testing.T) {
	tests := []struct {
		name      string
		available int64
		debt      int64
		delta     int64
		wantAvail int64
		wantDebt  int64
	}{
		{name: "credit on empty balance", available: 0, debt: 0, delta: 1050, wantAvail: 1050, wantDebt: 0},
		{name: "debit within balance", available: 1050, debt: 0, delta: -500, wantAvail: 550, wantDebt: 0},
		{name: "reversal past zero creates debt", available: 300, debt: 0, delta: -500, wantAvail: 0, wantDebt: 200},
		{name: "credit repays debt first", available: 0, debt: 200, delta: 150, wantAvail: 0, wantDebt: 50},
		{name: "credit repays debt and leaves remainder", available: 0, debt: 200, delta: 500, wantAvail: 300, wantDebt: 0},
		{name: "zero delta is identity", available: 700, debt: 0, delta: 0, wantAvail: 700, wantDebt: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avail, debt := ApplyBalanceDelta(tt.available, tt.debt, tt.delta)
			assert.Equal(t, tt.wantAvail, avail, "available")
			assert.Equal(t, tt.wantDebt, debt, "debt")
		})
	}
}

func TestNextPendingAvailableAt(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	t.Run("empty log", func(t *testing.T) {
		assert.Nil(t, NextPendingAvailableAt(nil))
	})

	t.Run("no pending entries", func(t *testing.T) {
		matured := base
		entries := []CommissionLogEntry{
			{Status: EntryStatusAvailable, AvailableAt: base, MaturedAt: &matured},
			{Status: EntryStatusPaid, AvailableAt: base.Add(time.Hour)},
		}
		assert.Nil(t, NextPendingAvailableAt(entries))
	})

	t.Run("earliest pending wins regardless of order", func(t *testing.T) {
		entries := []CommissionLogEntry{
			{Status: EntryStatusPending, AvailableAt: base.Add(48 * time.Hour)},
			{Status: EntryStatusAvailable, AvailableAt: base},
			{Status: EntryStatusPending, AvailableAt: base.Add(24 * time.Hour)},
		}
		next := NextPendingAvailableAt(entries)
		require.NotNil(t, next)
		assert.True(t, next.Equal(base.Add(24*time.Hour)))
	})
}

func TestPendingCentsByCurrency(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	entries := []CommissionLogEntry{
		{Status: EntryStatusPending, Currency: "usd", AmountCents: 1050, AvailableAt: base},
		{Status: EntryStatusPending, Currency: "usd", AmountCents: 500, AvailableAt: base},
		{Status: EntryStatusPending, Currency: "eur", AmountCents: 200, AvailableAt: base},
		{Status: EntryStatusAvailable, Currency: "usd", AmountCents: 9999, AvailableAt: base},
	}

	sums := PendingCentsByCurrency(entries)
	assert.Equal(t, int64(1550), sums["usd"])
	assert.Equal(t, int64(200), sums["eur"])
	assert.Len(t, sums, 2)
}

func TestRebuiltBalances(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	matured := base

	t.Run("pending entries are excluded", func(t *testing.T) {
		entries := []CommissionLogEntry{
			{Status: EntryStatusAvailable, Currency: "usd", AmountCents: 1000, MaturedAt: &matured},
			{Status: EntryStatusPending, Currency: "usd", AmountCents: 500},
		}
		balances := RebuiltBalances(entries)
		require.Contains(t, balances, "usd")
		assert.Equal(t, int64(1000), balances["usd"].AvailableCents)
		assert.Equal(t, int64(0), balances["usd"].DebtCents)
	})

	t.Run("reversals past zero rebuild as debt", func(t *testing.T) {
		entries := []CommissionLogEntry{
			{Type: EntryTypeCommission, Status: EntryStatusAvailable, Currency: "usd", AmountCents: 300, MaturedAt: &matured},
			{Type: EntryTypeRefundReversal, Status: EntryStatusAvailable, Currency: "usd", AmountCents: -500, MaturedAt: &matured},
		}
		balances := RebuiltBalances(entries)
		assert.Equal(t, int64(0), balances["usd"].AvailableCents)
		assert.Equal(t, int64(200), balances["usd"].DebtCents)
	})

	t.Run("currencies rebuild independently", func(t *testing.T) {
		entries := []CommissionLogEntry{
			{Status: EntryStatusAvailable, Currency: "usd", AmountCents: 1000, MaturedAt: &matured},
			{Status: EntryStatusAvailable, Currency: "eur", AmountCents: -300, MaturedAt: &matured},
		}
		balances := RebuiltBalances(entries)
		assert.Equal(t, int64(1000), balances["usd"].AvailableCents)
		assert.Equal(t, int64(300), balances["eur"].DebtCents)
	})
}
