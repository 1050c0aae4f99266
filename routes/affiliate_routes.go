package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/creatorlens/affiliate_backend/controllers"
	"github.com/creatorlens/affiliate_backend/middleware"
)

// RegisterAffiliateRoutes wires the user-facing balance and redemption
// endpoints behind JWT auth.
func RegisterAffiliateRoutes(e *echo.Echo, balanceController *controllers.BalanceController, redemptionController *controllers.RedemptionController) {
	affiliate := e.Group("/api/affiliate")
	affiliate.Use(middleware.JWTMiddleware())

	affiliate.GET("/balance", balanceController.GetBalance)
	affiliate.POST("/redeem", redemptionController.RequestRedemption)
}
