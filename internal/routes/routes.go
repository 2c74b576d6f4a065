package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"github.com/example/stampcard/internal/config"
	"github.com/example/stampcard/internal/handlers"
	"github.com/example/stampcard/internal/middleware"
	"github.com/example/stampcard/internal/repository"
	"github.com/example/stampcard/internal/services"
)

// NewApp creates the fiber app with the shared error handler.
func NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Stampcard Backend",
		ErrorHandler: handlers.ErrorHandler,
	})
	app.Use(recover.New())
	return app
}

// Register wires up all HTTP routes. Scan and wallet routes only need store;
// account, card, customer and analytics routes are added when db is set.
func Register(app *fiber.App, db *gorm.DB, store repository.Store, cfg *config.Config) {
	// Initialize Telegram service
	telegramService := services.NewBusinessTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, db)

	activity := services.NewActivityLog(cfg.ActivityFeedSize)
	ledger := services.NewLedgerService(store, activity, telegramService)
	qr := services.NewQRCodeService(cfg.PublicBaseURL, cfg.QRServiceURL)

	scanHandler := handlers.NewScanHandler(services.NewResolver(store), ledger)
	walletHandler := handlers.NewWalletHandler(services.NewWalletService(cfg.GoogleWallet), qr)

	api := app.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})

	// Wallet routes
	api.Post("/wallet/pass", walletHandler.CreatePass)
	api.Post("/qrcode", walletHandler.QRCode)

	// Auth routes stay ahead of the protected group so its middleware does
	// not shadow them.
	if db != nil {
		authHandler := handlers.NewAuthHandler(db, cfg)
		auth := api.Group("/auth")
		auth.Post("/register", authHandler.Register)
		auth.Post("/login", authHandler.Login)
	}

	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))

	// Scan routes
	scan := protected.Group("/scan")
	scan.Post("/resolve", scanHandler.Resolve)
	scan.Post("/commit", scanHandler.Commit)
	scan.Post("/redeem", scanHandler.Redeem)
	scan.Get("/activity", scanHandler.Activity)

	protected.Get("/customer-cards/:id/transactions", scanHandler.Transactions)

	if db == nil {
		return
	}

	businessHandler := handlers.NewBusinessHandler(db)
	cardHandler := handlers.NewCardHandler(db, qr)
	customerHandler := handlers.NewCustomerHandler(db)
	analyticsHandler := handlers.NewAnalyticsHandler(db)

	protected.Get("/business", businessHandler.GetBusiness)
	protected.Put("/business", businessHandler.UpdateBusiness)

	// Card routes
	cards := protected.Group("/cards")
	cards.Get("/", cardHandler.ListCards)
	cards.Post("/", cardHandler.CreateCard)
	cards.Get("/:id", cardHandler.GetCard)
	cards.Put("/:id", cardHandler.UpdateCard)
	cards.Post("/:id/enroll", cardHandler.Enroll)

	// Customer routes
	customers := protected.Group("/customers")
	customers.Get("/", customerHandler.ListCustomers)
	customers.Post("/", customerHandler.CreateCustomer)
	customers.Get("/:id", customerHandler.GetCustomer)

	protected.Get("/analytics", analyticsHandler.Dashboard)
}

