package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"naszgpt-backend/internal/cache"
	"naszgpt-backend/internal/config"
	"naszgpt-backend/internal/database"
	"naszgpt-backend/internal/handlers"
	"naszgpt-backend/internal/logger"
	"naszgpt-backend/internal/middleware"
	"naszgpt-backend/internal/models"
	"naszgpt-backend/internal/repository"
	"naszgpt-backend/internal/router"
	"naszgpt-backend/internal/services"
	"naszgpt-backend/internal/websocket"
)

func main() {
	log.Println("🚀 Starting NaszGPT...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Println("✓ Environment variables loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Initialize Redis Clients (optional) ────
	var redisClients *database.RedisClients
	if cfg.RedisURL != "" {
		var err error
		redisClients, err = database.NewRedisClients(cfg.RedisURL)
		if err != nil {
			log.Fatalf("✗ Redis connection failed: %v", err)
		}
		defer redisClients.Close()
		log.Println("✓ Redis connected")
	}

	// ──── Step 3: Initialize Conversation Store ────
	var store repository.ConversationStore
	switch {
	case cfg.DatabaseURL != "":
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("✗ PostgreSQL connection failed: %v", err)
		}
		defer pool.Close()
		if err := database.RunMigrations(pool); err != nil {
			log.Fatalf("✗ Database migration failed: %v", err)
		}
		store = repository.NewConversationRepo(pool)
		log.Println("✓ PostgreSQL connected, migrations applied")
	case cfg.SQLitePath != "":
		db, err := database.NewSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("✗ SQLite open failed: %v", err)
		}
		if err := repository.InitSQLiteTables(db); err != nil {
			log.Fatalf("✗ SQLite schema setup failed: %v", err)
		}
		store = repository.NewSQLiteStore(db)
		log.Printf("✓ SQLite store at %s", cfg.SQLitePath)
	default:
		store = repository.NewMemoryStore()
		log.Println("✓ In-memory store (conversations are lost on restart)")
	}

	// ──── Step 4: Load Model Catalog ────
	catalog := services.NewCatalog(nil)
	if cfg.ModelCatalogFile != "" {
		file, err := config.OpenCatalogFile(cfg.ModelCatalogFile)
		if err != nil {
			log.Fatalf("✗ Model catalog: %v", err)
		}
		list, err := file.Models()
		if err != nil {
			log.Fatalf("✗ Model catalog: %v", err)
		}
		catalog.Replace(list)
		file.Watch(func(list []models.ModelInfo) { catalog.Replace(list) })
		log.Printf("✓ Model catalog loaded from %s (%d models, watching for changes)", cfg.ModelCatalogFile, len(list))
	} else {
		log.Printf("✓ Built-in model catalog (%d models)", len(catalog.Models()))
	}
	if _, ok := catalog.Get(cfg.DefaultModel); !ok {
		log.Fatalf("✗ DEFAULT_MODEL %q is not in the model catalog", cfg.DefaultModel)
	}

	// ──── Step 5: Initialize Completion Providers ────
	completions := services.NewCompletionRouter(catalog)
	completions.Register(models.ProviderOpenAI, services.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL))
	log.Println("✓ OpenAI client initialized")

	if cfg.GeminiAPIKey != "" {
		gemini, err := services.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiConcurrentReqs)
		if err != nil {
			log.Fatalf("✗ Gemini client initialization failed: %v", err)
		}
		defer gemini.Close()
		completions.Register(models.ProviderGemini, gemini)
		log.Println("✓ Gemini client initialized")
	}

	// ──── Step 6: Initialize Telemetry ────
	var reporter services.Reporter = services.NoopReporter{}
	if cfg.LangfuseEnabled() {
		lf, err := services.NewLangfuseReporter(ctx, cfg.LangfuseHost, cfg.LangfusePublicKey, cfg.LangfuseSecretKey, "naszgpt")
		if err != nil {
			log.Printf("⚠ Langfuse exporter could not be created, tracing disabled: %v", err)
		} else {
			reporter = lf
			log.Println("✓ Langfuse tracing enabled")
		}
	} else {
		log.Printf("⚠ Langfuse tracing disabled, missing %s", strings.Join(cfg.MissingLangfuseKeys(), ", "))
	}

	// ──── Step 7: Initialize Services ────
	var rateCache cache.Cache = cache.NewMemory()
	if redisClients != nil {
		rateCache = cache.NewRedis(redisClients.Cache, "naszgpt:")
	}
	rates := services.NewExchangeRateService(cfg.ExchangeRateURL, cfg.LocalCurrency, cfg.ExchangeRateTTL, rateCache)

	sessionRegistry := services.NewSessionRegistry()
	go sessionRegistry.RunJanitor(ctx, 10*time.Minute, cfg.SessionIdleTimeout)

	chatService := services.NewChatService(
		store,
		completions,
		catalog,
		services.NewFileExtractService(),
		rates,
		reporter,
		sessionRegistry,
		services.ChatConfig{
			DefaultModel:        cfg.DefaultModel,
			HistoryLimit:        cfg.HistoryLimit,
			MaxCompletionTokens: cfg.MaxCompletionTokens,
		},
	)

	// ──── Step 8: Start WebSocket Hub ────
	var pubsub *redis.Client
	if redisClients != nil {
		pubsub = redisClients.PubSub
	}
	wsHub := websocket.NewHub(pubsub, cfg.CORSOrigins)
	chatService.SetNotifier(wsHub)
	log.Println("✓ WebSocket hub started")

	// ──── Step 9: Start HTTP Server ────
	secret := cfg.SessionSecret
	if secret == "" {
		secret = randomSecret()
		log.Println("⚠ SESSION_SECRET not set, sessions will not survive a restart")
	}
	sessions := middleware.NewSessionManager(secret, cfg.SessionTTL, cfg.IsProduction())

	chatLimiter := middleware.NewRateLimiter(cfg.ChatRatePerMinute, time.Minute)
	go chatLimiter.RunCleanup(ctx)

	r := router.New(
		sessions,
		handlers.NewChatHandler(chatService, sessions, cfg.MaxUploadBytes),
		chatLimiter,
		wsHub,
		cfg.CORSOrigins,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		wsHub.Close()
		server.Shutdown(shutdownCtx)
		if err := reporter.Shutdown(shutdownCtx); err != nil {
			log.Printf("Telemetry flush failed: %v", err)
		}
	}()

	log.Printf("✓ NaszGPT ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
	<-shutdownDone
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("✗ Could not generate session secret: %v", err)
	}
	return hex.EncodeToString(b)
}
