package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/controllers"
	"github.com/creatorlens/affiliate_backend/middleware"
)

// RegisterWebhookRoutes wires the payment gateway webhooks (HMAC-signed) and
// the payout provider's confirmation callback (shared secret).
func RegisterWebhookRoutes(e *echo.Echo, cfg config.Affiliate, webhookController *controllers.WebhookController, redemptionController *controllers.RedemptionController) {
	gateway := e.Group("/webhooks/gateway")
	gateway.Use(middleware.VerifyGatewaySignature(cfg.WebhookSecret))

	gateway.POST("/invoice-paid", webhookController.HandleInvoicePaid)
	gateway.POST("/charge-refunded", webhookController.HandleChargeRefunded)

	payout := e.Group("/webhooks/payout")
	payout.Use(middleware.SharedSecretAuth("X-Payout-Secret", cfg.PayoutCallbackKey))

	payout.POST("/confirmation", redemptionController.HandlePayoutConfirmation)
}
