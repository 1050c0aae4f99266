package config

import (
	"log"
	"os"
	"strconv"

	"github.com/creatorlens/affiliate_backend/utils"
)

// Affiliate holds the commission policy and the secrets the three trigger
// surfaces authenticate with.
type Affiliate struct {
	RatePercent       int64  // commission rate applied to the base, in whole percent
	HoldDays          int    // maturation hold period for fresh commissions
	MinRedeemCents    int64  // default minimum redemption, overridable per user
	CommissionBase    string // "amount_paid" or "subtotal_after_discount"
	CronSecret        string // shared secret for cron invocations
	WebhookSecret     string // HMAC key for gateway webhook signatures
	PayoutCallbackKey string // shared secret for payout confirmation callbacks
}

// LoadAffiliateConfig reads the affiliate policy from the environment,
// applying defaults where unset.
func LoadAffiliateConfig() Affiliate {
	cfg := Affiliate{
		RatePercent:       envInt64("COMMISSION_RATE_PERCENT", 10),
		HoldDays:          int(envInt64("COMMISSION_HOLD_DAYS", 7)),
		MinRedeemCents:    envInt64("MIN_REDEEM_CENTS", 1000),
		CommissionBase:    os.Getenv("COMMISSION_BASE"),
		CronSecret:        os.Getenv("CRON_SECRET"),
		WebhookSecret:     os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		PayoutCallbackKey: os.Getenv("PAYOUT_CALLBACK_SECRET"),
	}

	if cfg.CommissionBase == "" {
		cfg.CommissionBase = utils.CommissionBaseAmountPaid
	}
	if cfg.CronSecret == "" {
		log.Println("Warning: CRON_SECRET is not set, maturation endpoint is unprotected")
	}
	if cfg.WebhookSecret == "" {
		log.Println("Warning: GATEWAY_WEBHOOK_SECRET is not set, webhook signatures are not verified")
	}

	return cfg
}

func envInt64(key string, fallback int64) int64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
		log.Printf("Warning: invalid %s value %q, using default %d", key, os.Getenv(key), fallback)
	}
	return fallback
}
