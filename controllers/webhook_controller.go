package controllers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/models"
	"github.com/creatorlens/affiliate_backend/repositories"
	"github.com/creatorlens/affiliate_backend/utils"
)

// WebhookController consumes payment gateway events. Handlers are safe to
// replay: duplicate invoice-paid deliveries hit the idempotency indexes and
// duplicate refund deliveries fall out of the monotone progress cursor. Only
// store failures return 5xx, so the gateway's retry policy re-delivers exactly
// the events that did not commit.
type WebhookController struct {
	db     *mongo.Client
	ledger *repositories.LedgerRepository
	cfg    config.Affiliate
}

func NewWebhookController(db *mongo.Client, ledger *repositories.LedgerRepository, cfg config.Affiliate) *WebhookController {
	return &WebhookController{db: db, ledger: ledger, cfg: cfg}
}

// HandleInvoicePaid credits the referring affiliate for a paid subscription
// invoice, once per subscription and once per invoice.
func (wc *WebhookController) HandleInvoicePaid(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var event models.InvoicePaidEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid event body",
			Data:    err.Error(),
		})
	}
	if err := c.Validate(&event); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Missing required event fields",
			Data:    err.Error(),
		})
	}

	if event.AffiliateReferral == "" {
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Invoice has no affiliate referral",
		})
	}

	currency, err := utils.NormalizeCurrency(event.Currency)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid currency code",
			Data:    event.Currency,
		})
	}

	var affiliate models.User
	usersCollection := config.GetCollection(wc.db, config.UsersCollection)
	err = usersCollection.FindOne(ctx, bson.M{"affiliateCode": event.AffiliateReferral}).Decode(&affiliate)
	if err == mongo.ErrNoDocuments {
		log.Printf("Invoice %s references unknown affiliate code %s", event.InvoiceID, event.AffiliateReferral)
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Unknown affiliate code, nothing credited",
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}

	commission := utils.ComputeCommission(event, wc.cfg.CommissionBase, wc.cfg.RatePercent)
	if commission <= 0 {
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Commission base is non-positive, nothing credited",
		})
	}

	err = wc.ledger.CreditCommission(ctx, repositories.CreditParams{
		UserID:         affiliate.ID,
		InvoiceID:      event.InvoiceID,
		SubscriptionID: event.SubscriptionID,
		AmountCents:    commission,
		Currency:       currency,
		HoldDays:       wc.cfg.HoldDays,
	})
	if err == repositories.ErrAlreadyCredited {
		log.Printf("Invoice %s already credited to affiliate %s, skipping", event.InvoiceID, affiliate.ID.Hex())
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Invoice already credited",
		})
	}
	if err != nil {
		log.Printf("Failed to credit invoice %s: %v", event.InvoiceID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to record commission",
		})
	}

	invalidateBalanceCache(ctx, affiliate.ID)

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission credited",
		Data: bson.M{
			"affiliateUserId": affiliate.ID,
			"amountCents":     commission,
			"currency":        currency,
		},
	})
}

// HandleChargeRefunded reverses commission for the incremental refunded
// amount the gateway reports. The event carries a cumulative running total,
// never a delta.
func (wc *WebhookController) HandleChargeRefunded(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var event models.ChargeRefundedEvent
	if err := c.Bind(&event); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid event body",
			Data:    err.Error(),
		})
	}
	if err := c.Validate(&event); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Missing required event fields",
			Data:    err.Error(),
		})
	}

	reversed, userID, err := wc.ledger.ApplyRefund(ctx, event.InvoiceID, event.CumulativeRefundedPaidCents, wc.cfg.RatePercent)
	if err != nil {
		log.Printf("Failed to reconcile refund for invoice %s: %v", event.InvoiceID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to reconcile refund",
		})
	}

	if reversed == 0 {
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "No new refunded amount to reconcile",
		})
	}

	invalidateBalanceCache(ctx, userID)

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Commission reversed",
		Data: bson.M{
			"affiliateUserId": userID,
			"reversedCents":   reversed,
		},
	})
}
