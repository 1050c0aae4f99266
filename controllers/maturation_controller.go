package controllers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/creatorlens/affiliate_backend/models"
	"github.com/creatorlens/affiliate_backend/repositories"
	"github.com/creatorlens/affiliate_backend/services"
)

// MaturationController exposes the cron surfaces: the periodic maturation
// batch and the balance repair job.
type MaturationController struct {
	maturation *services.MaturationService
	ledger     *repositories.LedgerRepository
}

func NewMaturationController(maturation *services.MaturationService, ledger *repositories.LedgerRepository) *MaturationController {
	return &MaturationController{maturation: maturation, ledger: ledger}
}

// MaturationRequest tunes one batch run; zero values fall back to defaults.
type MaturationRequest struct {
	BatchUsers        int   `json:"batchUsers"`
	MaxEntriesPerUser int   `json:"maxEntriesPerUser"`
	TimeoutMs         int64 `json:"timeoutMs"`
}

// RunMaturation executes one maturation batch. A held lock means another run
// is in flight and is reported as a skip, not a failure.
func (mc *MaturationController) RunMaturation(c echo.Context) error {
	var req MaturationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid request body",
			Data:    err.Error(),
		})
	}

	opts := services.MaturationOptions{
		BatchUsers:        req.BatchUsers,
		MaxEntriesPerUser: req.MaxEntriesPerUser,
		Timeout:           time.Duration(req.TimeoutMs) * time.Millisecond,
	}
	if opts.Timeout <= 0 {
		opts.Timeout = services.DefaultMaturationTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout+10*time.Second)
	defer cancel()

	result, err := mc.maturation.Run(ctx, opts)
	if err == repositories.ErrLockHeld {
		log.Printf("Maturation run skipped: lock held by another owner")
		return c.JSON(http.StatusOK, models.Response{
			Status:  http.StatusOK,
			Message: "Maturation already running, skipped",
			Data:    result,
		})
	}
	if err != nil {
		log.Printf("Maturation run failed: %v", err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Maturation run failed",
			Data:    result,
		})
	}

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Maturation run complete",
		Data:    result,
	})
}

// RebuildBalancesRequest names the user whose cached balances to rebuild.
type RebuildBalancesRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// RebuildBalances replays a user's entry log into the cached balance map.
// Safety net for cache drift; the entry log stays the source of truth.
func (mc *MaturationController) RebuildBalances(c echo.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var req RebuildBalancesRequest
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
			Message: "Missing userId",
			Data:    err.Error(),
		})
	}

	userID, err := primitive.ObjectIDFromHex(req.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.Response{
			Status:  http.StatusBadRequest,
			Message: "Invalid user ID format",
		})
	}

	err = mc.ledger.RebuildBalances(ctx, userID)
	if err == repositories.ErrNotFound {
		return c.JSON(http.StatusNotFound, models.Response{
			Status:  http.StatusNotFound,
			Message: "Ledger not found",
		})
	}
	if err != nil {
		log.Printf("Failed to rebuild balances for %s: %v", req.UserID, err)
		return c.JSON(http.StatusInternalServerError, models.Response{
			Status:  http.StatusInternalServerError,
			Message: "Failed to rebuild balances",
		})
	}

	invalidateBalanceCache(ctx, userID)

	return c.JSON(http.StatusOK, models.Response{
		Status:  http.StatusOK,
		Message: "Balances rebuilt from entry log",
	})
}
