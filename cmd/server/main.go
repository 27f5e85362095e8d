package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"tasknest/internal/config"
	"tasknest/internal/crypto"
	"tasknest/internal/database"
	"tasknest/internal/handlers"
	"tasknest/internal/jobs"
	"tasknest/internal/logging"
	"tasknest/internal/middleware"
	"tasknest/internal/presentation"
	"tasknest/internal/services"
	"tasknest/pkg/auth"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting TaskNest server...")

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}

	cfg := config.Load()
	log.Printf("📋 Configuration loaded (Port: %s)", cfg.Port)

	// MongoDB
	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongoDB.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("❌ Failed to initialize MongoDB: %v", err)
	}
	cancelInit()
	log.Println("✅ MongoDB connected and initialized")

	// Redis (optional: without it, webhook dedup degrades to best effort)
	var redisService *services.RedisService
	if cfg.RedisURL != "" {
		redisService, err = services.NewRedisService(cfg.RedisURL)
		if err != nil {
			log.Printf("⚠️ Redis unavailable, message dedup disabled: %v", err)
			redisService = nil
		} else {
			defer redisService.Close()
		}
	}

	// Encryption of conversation history and memories at rest
	var encryptionService *crypto.EncryptionService
	if cfg.EncryptionMasterKey != "" {
		encryptionService, err = crypto.NewEncryptionService(cfg.EncryptionMasterKey)
		if err != nil {
			log.Fatalf("❌ Failed to initialize encryption: %v", err)
		}
		log.Println("✅ Encryption service initialized")
	} else {
		if os.Getenv("ENVIRONMENT") == "production" {
			log.Fatal("❌ CRITICAL: ENCRYPTION_MASTER_KEY is required in production. Generate with: openssl rand -hex 32")
		}
		log.Println("⚠️ ENCRYPTION_MASTER_KEY not set - history stored unencrypted (development mode only)")
	}

	// Service auth for the channel adapter
	var jwtAuth *auth.ServiceJWTAuth
	if cfg.WebhookJWTSecret != "" {
		jwtAuth, err = auth.NewServiceJWTAuth(cfg.WebhookJWTSecret, 0)
		if err != nil {
			log.Fatalf("❌ Failed to initialize service auth: %v", err)
		}
	}

	// Metrics
	services.InitMetrics()

	clock := clockwork.NewRealClock()

	// Lexicon with optional hot-reloaded override file
	lexicons, err := services.NewLexiconService(cfg.LexiconPath)
	if err != nil {
		log.Fatalf("❌ Failed to load lexicon: %v", err)
	}
	defer lexicons.Close()

	// Stores and collaborators
	taskStore := services.NewTaskStore(mongoDB)
	sessionStore := services.NewSessionStore(mongoDB, encryptionService, clock)
	outboundLog := services.NewOutboundLog(mongoDB)
	pairingService := services.NewPairingService(mongoDB)
	contextService := services.NewContextService(mongoDB, encryptionService)

	llmService := services.NewLLMService(cfg)
	embeddingService := services.NewEmbeddingService(cfg)

	formatter := presentation.NewFormatter()
	locator := services.NewTaskLocator(taskStore, embeddingService, cfg.VectorWeight, cfg.SearchTimeout)
	resolver := services.NewEntityResolver(taskStore, locator, outboundLog, clock)
	dispatcher := services.NewActionDispatcher(taskStore, pairingService, contextService, embeddingService, clock)
	confirmations := services.NewConfirmationFlow(taskStore, clock)

	var classifier *services.IntentClassifier
	if cfg.AIAPIKey != "" {
		classifier = services.NewIntentClassifier(llmService, cfg)
		log.Println("✅ AI intent classifier enabled")
	} else {
		log.Println("⚠️ AI_API_KEY not set - lexical classification only")
	}

	routerDeps := services.RouterDeps{
		Sessions:      sessionStore,
		Matcher:       services.NewIntentMatcher(lexicons),
		Resolver:      resolver,
		Locator:       locator,
		Dispatcher:    dispatcher,
		Confirmations: confirmations,
		Tasks:         taskStore,
		Contexts:      contextService,
		Outbound:      outboundLog,
		LLM:           llmService,
		Formatter:     formatter,
		Clock:         clock,
	}
	if classifier != nil {
		routerDeps.Classifier = classifier
	}
	if redisService != nil {
		routerDeps.Dedup = redisService
		routerDeps.Locks = redisService
	}
	router := services.NewIntentRouter(routerDeps, cfg)

	// Background jobs
	engine, err := jobs.NewEngine()
	if err != nil {
		log.Fatalf("❌ Failed to create job engine: %v", err)
	}
	if err := engine.Every(time.Minute, jobs.NewReminderJob(taskStore, outboundLog, clock)); err != nil {
		log.Fatalf("❌ %v", err)
	}
	if cfg.BriefingCron != "" {
		if err := engine.Cron(cfg.BriefingCron, jobs.NewBriefingJob(mongoDB, taskStore, outboundLog, formatter, clock)); err != nil {
			log.Fatalf("❌ %v", err)
		}
	}
	if err := engine.Cron("0 3 * * *", jobs.NewRetentionJob(mongoDB, sessionStore)); err != nil {
		log.Fatalf("❌ %v", err)
	}
	engine.Start()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName:      "TaskNest v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheus := fiberprometheus.New("tasknest")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	app.Use(cors.New(cors.Config{
		AllowOrigins: getAllowedOrigins(),
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-User-Id",
	}))
	app.Use(middleware.GlobalRateLimit())

	healthHandler := handlers.NewHealthHandler(mongoDB, redisService)
	messageHandler := handlers.NewMessageHandler(router)
	sessionDebugHandler := handlers.NewSessionDebugHandler(sessionStore)

	app.Get("/health", healthHandler.Handle)

	var rateCounter middleware.RateCounter
	if redisService != nil {
		rateCounter = redisService
	}

	api := app.Group("/api", middleware.ServiceAuth(jwtAuth))
	api.Post("/messages", middleware.MessageRateLimit(rateCounter), messageHandler.Handle)
	api.Get("/debug/sessions/:userId", sessionDebugHandler.Handle)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")
		engine.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

func getAllowedOrigins() string {
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		return origins
	}
	return "http://localhost:3000"
}
