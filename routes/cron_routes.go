package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/controllers"
	"github.com/creatorlens/affiliate_backend/middleware"
)

// RegisterCronRoutes wires the periodic jobs behind the cron shared secret.
func RegisterCronRoutes(e *echo.Echo, cfg config.Affiliate, maturationController *controllers.MaturationController) {
	cron := e.Group("/api/cron")
	cron.Use(middleware.SharedSecretAuth("X-Cron-Secret", cfg.CronSecret))

	cron.POST("/maturation", maturationController.RunMaturation)
	cron.POST("/rebuild-balances", maturationController.RebuildBalances)
}
