package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/creatorlens/affiliate_backend/config"
	"github.com/creatorlens/affiliate_backend/controllers"
	"github.com/creatorlens/affiliate_backend/middleware"
	"github.com/creatorlens/affiliate_backend/repositories"
	"github.com/creatorlens/affiliate_backend/routes"
	"github.com/creatorlens/affiliate_backend/services"
)

// CustomValidator is a custom validator for Echo
type CustomValidator struct {
	validator *validator.Validate
}

// Validate validates the request body
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func main() {
	// Load .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: .env file not found")
	}

	// Connect to Redis (balance read cache; optional)
	config.ConnectRedis()

	// Connect to database
	client := config.ConnectDB()

	// Load the commission policy
	affiliateConfig := config.LoadAffiliateConfig()

	// Create a new Echo instance
	e := echo.New()

	// Initialize custom validator
	customValidator := &CustomValidator{validator: validator.New()}
	e.Validator = customValidator

	// Initialize rate limiter
	rateLimiter := middleware.NewRateLimiter()

	// Middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.Secure())
	e.Use(rateLimiter.RateLimit())

	e.Match([]string{"GET", "HEAD"}, "/", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "OK",
			"message": "Creatorlens Affiliate Backend is running",
			"version": "1.0",
		})
	})

	e.Match([]string{"GET", "HEAD"}, "/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":   "healthy",
			"database": "connected",
		})
	})

	// Initialize repositories
	ledgerRepo := repositories.NewLedgerRepository(client)
	lockRepo := repositories.NewLockRepository(client)
	redemptionRepo := repositories.NewRedemptionRepository(client, ledgerRepo)

	// Fold redemptions stuck in the legacy processing state back into the flow
	migrationCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := redemptionRepo.FoldStaleProcessing(migrationCtx, time.Hour); err != nil {
		log.Printf("Stale processing migration failed: %v", err)
	}
	cancel()

	// Initialize services
	maturationService := services.NewMaturationService(ledgerRepo, lockRepo)
	payoutService := services.NewPayoutService()

	// Initialize controllers
	webhookController := controllers.NewWebhookController(client, ledgerRepo, affiliateConfig)
	balanceController := controllers.NewBalanceController(client, ledgerRepo, affiliateConfig)
	redemptionController := controllers.NewRedemptionController(client, ledgerRepo, redemptionRepo, payoutService, affiliateConfig)
	maturationController := controllers.NewMaturationController(maturationService, ledgerRepo)

	// Register routes
	routes.RegisterAffiliateRoutes(e, balanceController, redemptionController)
	routes.RegisterWebhookRoutes(e, affiliateConfig, webhookController, redemptionController)
	routes.RegisterCronRoutes(e, affiliateConfig, maturationController)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	e.Logger.Fatal(e.Start(":" + port))
}
