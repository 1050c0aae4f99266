package controllers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/middleware"
	"github.com/creatorlens/affiliate_backend/models"
	"github.com/creatorlens/affiliate_backend/repositories"
)

const balanceCacheTTL = 30 * time.Second

// BalanceController serves the per-currency balance projection. The response
// is cached in Redis for a short TTL; mutation paths invalidate best-effort,
// and the cache being stale or down only delays reads, never money.
type BalanceController struct {
	db     *mongo.Client
	ledger *repositories.LedgerRepository
	cfg    config.Affiliate
}

func NewBalanceController(db *mongo.Client, ledger *repositories.LedgerRepository, cfg config.Affiliate) *BalanceController {
	return &BalanceController{db: db, ledger: ledger, cfg: cfg}
}

// GetBalance returns {currency: {availableCents, pendingCents, debtCents,
// nextMatureAt, minRedeemCents}} for the authenticated affiliate.
func (bc *BalanceController) GetBalance(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	userID, err := authenticatedUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, models.Response{
			Status:  http.StatusUnauthorized,
			Message: "Invalid user ID in token",
		})
	}

	if cached := readBalanceCache(ctx, userID); cached != nil {
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Balance fetched successfully",
			Data:    cached,
		})
	}

	view, err := bc.buildBalanceView(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to load balance",
		})
	}

	writeBalanceCache(ctx, userID, view)

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Balance fetched successfully",
		Data:    view,
	})
}

func (bc *BalanceController) buildBalanceView(ctx context.Context, userID primitive.ObjectID) (map[string]models.CurrencyBalanceView, error) {
	minRedeem := bc.cfg.MinRedeemCents
	var user models.User
	usersCollection := config.GetCollection(bc.db, config.UsersCollection)
	if err := usersCollection.FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err == nil && user.MinRedeemCents > 0 {
		minRedeem = user.MinRedeemCents
	}

	view := make(map[string]models.CurrencyBalanceView)

	ledger, err := bc.ledger.GetLedger(ctx, userID)
	if err == repositories.ErrNotFound {
		return view, nil
	}
	if err != nil {
		return nil, err
	}

	for currency, balance := range ledger.Balances {
		view[currency] = models.CurrencyBalanceView{
			AvailableCents: balance.AvailableCents,
			DebtCents:      balance.DebtCents,
			MinRedeemCents: minRedeem,
		}
	}
	for currency, pending := range models.PendingCentsByCurrency(ledger.Entries) {
		entry := view[currency]
		entry.PendingCents = pending
		entry.MinRedeemCents = minRedeem
		entry.NextMatureAt = nextMatureAtForCurrency(ledger.Entries, currency)
		view[currency] = entry
	}

	return view, nil
}

func nextMatureAtForCurrency(entries []models.CommissionLogEntry, currency string) *time.Time {
	var next *time.Time
	for i := range entries {
		e := &entries[i]
		if e.Status != models.EntryStatusPending || e.Currency != currency {
			continue
		}
		if next == nil || e.AvailableAt.Before(*next) {
			t := e.AvailableAt
			next = &t
		}
	}
	return next
}

// authenticatedUserID resolves the JWT subject to an ObjectID.
func authenticatedUserID(c echo.Context) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(middleware.GetUserIDFromToken(c))
}

func balanceCacheKey(userID primitive.ObjectID) string {
	return "affiliate:balance:" + userID.Hex()
}

func readBalanceCache(ctx context.Context, userID primitive.ObjectID) map[string]models.CurrencyBalanceView {
	client := config.GetRedisClient()
	if client == nil {
		return nil
	}
	raw, err := client.Get(ctx, balanceCacheKey(userID)).Result()
	if err != nil {
		return nil
	}
	var view map[string]models.CurrencyBalanceView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil
	}
	return view
}

func writeBalanceCache(ctx context.Context, userID primitive.ObjectID, view map[string]models.CurrencyBalanceView) {
	client := config.GetRedisClient()
	if client == nil {
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := client.Set(ctx, balanceCacheKey(userID), raw, balanceCacheTTL).Err(); err != nil {
		log.Printf("Failed to cache balance for %s: %v", userID.Hex(), err)
	}
}

// invalidateBalanceCache drops the cached projection after a ledger mutation.
// Best effort: a miss just means the next read recomputes.
func invalidateBalanceCache(ctx context.Context, userID primitive.ObjectID) {
	client := config.GetRedisClient()
	if client == nil || userID.IsZero() {
		return
	}
	if err := client.Del(ctx, balanceCacheKey(userID)).Err(); err != nil {
		log.Printf("Failed to invalidate balance cache for %s: %v", userID.Hex(), err)
	}
}
