package repositories

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefundReversal(t *testing.T) {
	tests := []struct {
		name          string
		prior         int64
		newCumulative int64
		rate          int64
		wantDelta     int64
		wantReversal  int64
	}{
		{name: "first partial refund", prior: 0, newCumulative: 5000, rate: 10, wantDelta: 5000, wantReversal: 500},
		{name: "replayed delivery is a no-op", prior: 5000, newCumulative: 5000, rate: 10, wantDelta: 0, wantReversal: 0},
		{name: "out-of-order lower total is a no-op", prior: 5000, newCumulative: 3000, rate: 10, wantDelta: -2000, wantReversal: 0},
		{name: "refund grows incrementally", prior: 5000, newCumulative: 8000, rate: 10, wantDelta: 3000, wantReversal: 300},
		{name: "full refund after partial", prior: 8000, newCumulative: 10500, rate: 10, wantDelta: 2500, wantReversal: 250},
		{name: "sub-cent delta rounds half up", prior: 0, newCumulative: 105, rate: 10, wantDelta: 105, wantReversal: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delta, reversal := refundReversal(tt.prior, tt.newCumulative, tt.rate)
			assert.Equal(t, tt.wantDelta, delta, "delta")
			assert.Equal(t, tt.wantReversal, reversal, "reversal")
		})
	}
}

func TestRefundReversalConverges(t *testing.T) {
	// Cumulative totals delivered in any order with duplicates reverse the
	// same grand total as a clean in-order delivery.
	deliveries := []int64{5000, 3000, 5000, 8000, 8000, 10500}

	var prior, totalReversed int64
	for _, cumulative := range deliveries {
		delta, reversal := refundReversal(prior, cumulative, 10)
		if delta <= 0 {
			continue
		}
		totalReversed += reversal
		prior = cumulative
	}

	assert.Equal(t, int64(10500), prior)
	assert.Equal(t, int64(1050), totalReversed)
}
