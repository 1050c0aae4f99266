package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/creatorlens/affiliate_backend/models"
)

// PayoutService handles interactions with the payout provider's API. Payout
// creation carries the redemption's idempotency key, so a retried dispatch of
// the same redemption can never pay twice.
type PayoutService struct {
	baseURL string
	channel string
	secret  string
}

// NewPayoutService creates a new payout service instance
func NewPayoutService() *PayoutService {
	baseURL := os.Getenv("PAYOUT_API_URL")
	channel := os.Getenv("PAYOUT_CHANNEL")
	secret := os.Getenv("PAYOUT_SECRET")

	if baseURL == "" || channel == "" || secret == "" {
		log.Printf("WARNING: payout provider credentials not fully configured:")
		if baseURL == "" {
			log.Printf("  - PAYOUT_API_URL is missing")
		}
		if channel == "" {
			log.Printf("  - PAYOUT_CHANNEL is missing")
		}
		if secret == "" {
			log.Printf("  - PAYOUT_SECRET is missing")
		}
		log.Printf("Redemption dispatch will fail until these are set")
	}

	return &PayoutService{
		baseURL: baseURL,
		channel: channel,
		secret:  secret,
	}
}

// CreatePayout submits a payout for an accepted redemption request. The
// provider resolves it asynchronously via the confirmation callback.
func (s *PayoutService) CreatePayout(req models.PayoutRequest) error {
	resp, err := s.makeRequest(http.MethodPost, "payouts", req)
	if err != nil {
		return err
	}
	if !resp.Status {
		return fmt.Errorf("payout API rejected request %s: %v", req.Reference, resp.Code)
	}
	return nil
}

// makeRequest performs an HTTP request to the payout provider API
func (s *PayoutService) makeRequest(method, endpoint string, payload interface{}) (*models.PayoutResponse, error) {
	if s.baseURL == "" || s.channel == "" || s.secret == "" {
		return nil, fmt.Errorf("missing payout provider credentials; set PAYOUT_API_URL, PAYOUT_CHANNEL and PAYOUT_SECRET")
	}

	url := s.baseURL + endpoint

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("channel", s.channel)
	req.Header.Set("secret", s.secret)

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var payoutResp models.PayoutResponse
	if err := json.Unmarshal(respBody, &payoutResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w\nResponse body: %s", err, string(respBody))
	}

	return &payoutResp, nil
}
