package controllers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/models"
	"github.com/creatorlens/affiliate_backend/repositories"
	"github.com/creatorlens/affiliate_backend/services"
	"github.com/creatorlens/affiliate_backend/utils"
)

// RedemptionController handles withdrawal requests and the payout provider's
// confirmation callbacks.
type RedemptionController struct {
	db          *mongo.Client
	ledger      *repositories.LedgerRepository
	redemptions *repositories.RedemptionRepository
	payouts     *services.PayoutService
	cfg         config.Affiliate
}

func NewRedemptionController(db *mongo.Client, ledger *repositories.LedgerRepository, redemptions *repositories.RedemptionRepository, payouts *services.PayoutService, cfg config.Affiliate) *RedemptionController {
	return &RedemptionController{
		db:          db,
		ledger:      ledger,
		redemptions: redemptions,
		payouts:     payouts,
		cfg:         cfg,
	}
}

// RequestRedemption validates a withdrawal against the affiliate's payout
// profile and balance, reserves the amount, and dispatches the payout. The
// preconditions are checked in order and each failure is a structured block
// reason, never a server error. A second identical request on the same UTC
// day collapses onto the first via the idempotency key.
func (rc *RedemptionController) RequestRedemption(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, err := authenticatedUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user ID in token",
		})
	}

	var req models.RedeemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
			Data:    err.Error(),
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid redemption fields",
			Data:    err.Error(),
		})
	}

	currency, err := utils.NormalizeCurrency(req.Currency)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid currency code",
			Data:    req.Currency,
		})
	}

	var user models.User
	usersCollection := config.GetCollection(rc.db, config.UsersCollection)
	err = usersCollection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "User not found",
		})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}

	ledger, err := rc.ledger.GetLedger(ctx, userID)
	if err == repositories.ErrNotFound {
		ledger = nil
	} else if err != nil {
		log.Printf("Failed to load ledger for user %s: %v", userID.Hex(), err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Database error",
		})
	}

	if reason := redemptionBlockReason(&user, ledger, rc.cfg.MinRedeemCents, req.AmountCents, currency); reason != "" {
		return c.JSON(http.StatusOK, models.RedeemBlockedResponse{OK: false, Reason: reason})
	}

	key := models.RedemptionIdempotencyKey(userID, req.AmountCents, time.Now())
	request, err := rc.redemptions.CreateWithDebit(ctx, userID, req.AmountCents, currency, key)
	if err == repositories.ErrDuplicateRedemption {
		log.Printf("Redemption key %s already exists, returning existing request", key)
		return c.JSON(http.StatusOK, models.RedeemSuccessResponse{OK: true, RequestID: request.ID.Hex()})
	}
	if err == repositories.ErrInsufficientBalance || err == repositories.ErrNotFound {
		return c.JSON(http.StatusOK, models.RedeemBlockedResponse{OK: false, Reason: models.BlockReasonInsufficientBalance})
	}
	if err != nil {
		log.Printf("Failed to create redemption for user %s: %v", userID.Hex(), err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to create redemption request",
		})
	}

	invalidateBalanceCache(ctx, userID)

	// Dispatch is retried by ops tooling if the provider is down; the
	// reservation stays in place either way.
	if err := rc.payouts.CreatePayout(models.PayoutRequest{
		Reference:      request.ID.Hex(),
		AmountCents:    request.AmountCents,
		Currency:       request.Currency,
		IdempotencyKey: request.IdempotencyKey,
	}); err != nil {
		log.Printf("Failed to dispatch payout for redemption %s: %v", request.ID.Hex(), err)
	}

	return c.JSON(http.StatusOK, models.RedeemSuccessResponse{OK: true, RequestID: request.ID.Hex()})
}

// redemptionBlockReason evaluates the redemption preconditions in their fixed
// order and returns the first failing reason, or "" when the request may
// proceed. A nil ledger means the user has never earned anything yet.
func redemptionBlockReason(user *models.User, ledger *models.AffiliateLedger, defaultMinRedeemCents, amountCents int64, currency string) string {
	if !user.OnboardingComplete {
		return models.BlockReasonNeedsOnboarding
	}
	if !user.PayoutsEnabled {
		return models.BlockReasonPayoutsDisabled
	}

	minRedeem := defaultMinRedeemCents
	if user.MinRedeemCents > 0 {
		minRedeem = user.MinRedeemCents
	}
	if amountCents < minRedeem {
		return models.BlockReasonBelowMin
	}

	if ledger != nil && ledger.Balances[currency].DebtCents > 0 {
		return models.BlockReasonHasDebt
	}

	if user.SettlementCurrency != "" && user.SettlementCurrency != currency {
		return models.BlockReasonCurrencyMismatch
	}
	return ""
}

// HandlePayoutConfirmation resolves a redemption when the payout provider
// reports the outcome. Rejections credit the reserved amount back. Replayed
// confirmations are no-ops.
func (rc *RedemptionController) HandlePayoutConfirmation(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var confirmation models.PayoutConfirmation
	if err := c.Bind(&confirmation); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid confirmation body",
			Data:    err.Error(),
		})
	}
	if err := c.Validate(&confirmation); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid confirmation fields",
			Data:    err.Error(),
		})
	}

	requestID, err := primitive.ObjectIDFromHex(confirmation.RequestID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request ID format",
		})
	}

	request, err := rc.redemptions.Resolve(ctx, requestID, confirmation.Status, confirmation.FailureReason)
	if err == repositories.ErrNotFound {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Redemption request not found",
		})
	}
	if err != nil {
		log.Printf("Failed to resolve redemption %s: %v", confirmation.RequestID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to resolve redemption request",
		})
	}

	invalidateBalanceCache(ctx, request.UserID)

	// Notify the affiliate in the background; email never blocks the callback.
	go rc.notifyRedemptionOutcome(request)

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Redemption request resolved",
		Data:    request,
	})
}

func (rc *RedemptionController) notifyRedemptionOutcome(request *models.RedemptionRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var user models.User
	usersCollection := config.GetCollection(rc.db, config.UsersCollection)
	if err := usersCollection.FindOne(ctx, bson.M{"_id": request.UserID}).Decode(&user); err != nil {
		log.Printf("Failed to load user %s for redemption email: %v", request.UserID.Hex(), err)
		return
	}
	utils.SendRedemptionEmail(user.Email, request.Status, request.Currency, request.AmountCents, request.RejectionReason)
}
