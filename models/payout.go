package models

// PayoutRequest is the body sent to the payout provider when a redemption is
// dispatched. The idempotency key makes retried dispatches safe: the provider
// collapses duplicates on it.
type PayoutRequest struct {
	Reference      string `json:"reference"`
	AmountCents    int64  `json:"amountCents"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotencyKey"`
	DestinationID  string `json:"destinationId,omitempty"`
}

// PayoutResponse is the provider's generic response envelope.
type PayoutResponse struct {
	Status bool                   `json:"status"`
	Code   interface{}            `json:"code,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}
