package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/easytransac/easytransac-bridge/easytransac"
	"github.com/easytransac/easytransac-bridge/gateway"
	"github.com/easytransac/easytransac-bridge/handler"
	"github.com/easytransac/easytransac-bridge/infra/config"
	"github.com/easytransac/easytransac-bridge/infra/conn"
	"github.com/easytransac/easytransac-bridge/infra/logger"
	"github.com/easytransac/easytransac-bridge/infra/mailer"
	"github.com/easytransac/easytransac-bridge/infra/middle"
	"github.com/easytransac/easytransac-bridge/infra/opensearch"
	"github.com/easytransac/easytransac-bridge/infra/response"
	"github.com/easytransac/easytransac-bridge/infra/validate"
	"github.com/easytransac/easytransac-bridge/router"
	"github.com/easytransac/easytransac-bridge/store"
)

var (
	PORT             string
	openSearchLogger *opensearch.Logger
)

func init() {
	// Load Env
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, continuing with environment variables")
	}
	// init conf
	_ = config.App()
	validate.CustomValidate()

	PORT = config.GetEnv("APP_PORT", "9999")

	// Initialize OpenSearch client and logger
	cfg := config.GetAppConfig()
	if cfg.EnableLogging {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			log.Printf("Failed to initialize OpenSearch client: %v", err)
			log.Println("Continuing without OpenSearch logging...")
		} else {
			openSearchLogger = opensearch.NewLogger(osClient)
			log.Println("OpenSearch logging initialized successfully")
		}
	} else {
		log.Println("OpenSearch logging is disabled")
	}
}

func main() {
	cfg := config.GetAppConfig()
	settings := config.LoadGatewaySettings()

	logger.InitGlobalLogger(openSearchLogger, settings.DebugMode)

	// SQLite order store
	db := &conn.DB{}
	if err := db.ConnectDatabase(cfg.DatabasePath); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer db.CloseDatabase()

	orderStore := store.New(db.DB)
	if err := orderStore.Migrate(context.Background()); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	// EasyTransac API client. Without an API key the service still accepts
	// callbacks (and redirects them home) but refuses outbound operations.
	var apiClient *easytransac.Client
	if settings.APIKey != "" {
		client, err := easytransac.NewClient(settings.APIKey)
		if err != nil {
			log.Fatalf("EasyTransac client initialization failed: %v", err)
		}
		apiClient = client
	} else {
		log.Println("EASYTRANSAC_API_KEY is not set; outbound payment operations are disabled")
	}

	// Anomaly mailer
	var anomalyMailer gateway.Mailer
	if smtpCfg := config.LoadSMTPConfig(); smtpCfg.Host != "" {
		anomalyMailer = mailer.New(smtpCfg)
	} else if settings.NotifEmails != "" {
		log.Println("NOTIF_EMAILS is set but SMTP is not configured; anomaly emails will not be sent")
	}

	paymentGateway := gateway.New(apiClient, orderStore, anomalyMailer, settings)

	v := validator.New()
	callbackHandler := handler.NewCallbackHandler(paymentGateway, openSearchLogger)
	checkoutHandler := handler.NewCheckoutHandler(paymentGateway, v)
	orderHandler := handler.NewOrderHandler(orderStore, paymentGateway, v)
	cardsHandler := handler.NewCardsHandler(paymentGateway)
	healthHandler := handler.NewHealthHandler(db.DB, openSearchLogger != nil)

	// Chi Define Routes
	r := chi.NewRouter()

	// Basic Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Security Middleware
	rateLimiter := middle.NewRateLimiter()
	r.Use(middle.SecurityHeadersMiddleware())
	r.Use(middle.IPWhitelistMiddleware())
	r.Use(middle.RateLimitMiddleware(rateLimiter))
	r.Use(middle.RequestValidationMiddleware())

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With"},
		ExposedHeaders:   []string{"Link", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint (no auth required)
	r.Get("/health", healthHandler.CheckHealth)

	// Callback endpoint: processor notifications, browser returns and the
	// stored-card widget all arrive here (no auth required)
	r.HandleFunc("/callback", callbackHandler.HandleCallback)
	r.HandleFunc("/callback/", callbackHandler.HandleCallback)

	// Merchant API routes
	router.Routes(r, router.Handlers{
		Checkout: checkoutHandler,
		Orders:   orderHandler,
		Cards:    cardsHandler,
	})

	// Not Found
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = response.WriteJSON(w, http.StatusNotFound, response.Response{Success: false, Message: "Not Found"})
	})

	// Create a context that listens for interrupt and terminate signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run the HTTP server in a goroutine
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", PORT),
		Handler:           r,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}
	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatal(err.Error())
		}
	}()

	log.Println("API is running on", PORT)

	// Block until a signal is received
	<-ctx.Done()

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown failed: %v", err)
	}
}
