package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/seu-repo/asistente-gemini/internal/adapter/ai/gemini"
	"github.com/seu-repo/asistente-gemini/internal/adapter/alexa"
	"github.com/seu-repo/asistente-gemini/internal/adapter/cache"
	grpcserver "github.com/seu-repo/asistente-gemini/internal/adapter/grpc/server"
	"github.com/seu-repo/asistente-gemini/internal/adapter/http/fiber/handlers"
	"github.com/seu-repo/asistente-gemini/internal/adapter/http/fiber/middleware"
	"github.com/seu-repo/asistente-gemini/internal/adapter/queue"
	"github.com/seu-repo/asistente-gemini/internal/adapter/session"
	"github.com/seu-repo/asistente-gemini/internal/adapter/storage/postgres"
	"github.com/seu-repo/asistente-gemini/internal/adapter/vault"
	wsAdapter "github.com/seu-repo/asistente-gemini/internal/adapter/websocket"
	"github.com/seu-repo/asistente-gemini/internal/domain"
	"github.com/seu-repo/asistente-gemini/internal/infrastructure/circuitbreaker"
	"github.com/seu-repo/asistente-gemini/internal/observability/telemetry"
	"github.com/seu-repo/asistente-gemini/internal/ports"
	adminsvc "github.com/seu-repo/asistente-gemini/internal/service/admin"
	"github.com/seu-repo/asistente-gemini/internal/service/email"
	"github.com/seu-repo/asistente-gemini/internal/service/health"
	"github.com/seu-repo/asistente-gemini/internal/service/voice"
	"github.com/seu-repo/asistente-gemini/pkg/config"
	applogger "github.com/seu-repo/asistente-gemini/pkg/logger"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}

	// 2. Initialize Logger
	logger, err := applogger.New(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger: ", err)
	}
	defer logger.Sync()

	logger.Info("Starting asistente-gemini",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. Resolve the Gemini API key from Vault when enabled
	if cfg.Vault.Enabled {
		apiKey, err := loadAPIKeyFromVault(ctx, cfg.Vault, logger)
		if err != nil {
			logger.Fatal("Failed to read Gemini API key from Vault", zap.Error(err))
		}
		cfg.Gemini.APIKey = apiKey
	}

	// 4. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.OpenTelemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(cfg.OpenTelemetry, cfg.App.Version)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 5. Circuit breakers
	breakers := circuitbreaker.NewManager(logger)

	// 6. Session cache and store
	sessionCache := newSessionCache(cfg, logger)
	defer sessionCache.Close()
	sessionStore := session.NewStore(sessionCache, cfg.Session.TTL)

	// 7. Interaction history (optional)
	var history *postgres.InteractionRepository
	var historyRepo ports.InteractionRepository
	if cfg.Database.Enabled {
		db, err := postgres.NewConnection(cfg.Database, logger)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer postgres.Close(db)

		if cfg.Database.AutoMigrate {
			if err := postgres.RunMigrations(db); err != nil {
				logger.Fatal("Failed to run migrations", zap.Error(err))
			}
		}
		history = postgres.NewInteractionRepository(db, logger)
		historyRepo = history
	}

	var reports *adminsvc.Service
	if historyRepo != nil {
		reports = adminsvc.NewService(historyRepo, breakers, logger)
		if cfg.Reports.EmailEnabled {
			mailer := email.NewReportMailer(cfg.App.Name, cfg.Reports.Recipients,
				email.NewSendGridProvider(cfg.Reports.SendGridAPIKey, cfg.Reports.FromEmail, cfg.Reports.FromName),
				reports, logger)
			go mailer.Run(ctx, cfg.Reports.Interval)
			logger.Info("Daily report e-mail enabled",
				zap.Strings("recipients", cfg.Reports.Recipients),
				zap.Duration("interval", cfg.Reports.Interval),
			)
		}
	}

	// 8. Interaction events: live feed hub plus the optional message queue
	wsHub := wsAdapter.NewHub(logger)
	go wsHub.Run(ctx)

	events := queue.FanOut{wsHub}
	messageQueue, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.Fatal("Failed to connect to message queue", zap.Error(err), zap.String("driver", cfg.Queue.Driver))
	}
	switch {
	case messageQueue != nil:
		defer messageQueue.Close()
		events = append(events, queue.NewInteractionPublisher(messageQueue, cfg.Queue.Subject))
		startBackgroundWorkers(messageQueue, cfg.Queue.Subject, historyRepo, logger)
	case history != nil:
		// Without a queue the history is written in the request path.
		events = append(events, history)
	}

	// 9. Gemini client
	geminiSettings := circuitbreaker.SettingsFromConfig("gemini", cfg.CircuitBreaker)
	if !cfg.CircuitBreaker.Enabled {
		geminiSettings.IsSuccessful = func(error) bool { return true }
	}
	geminiHTTP := circuitbreaker.NewHTTPClient(
		&http.Client{Timeout: cfg.Gemini.Timeout + time.Second},
		breakers.Get(geminiSettings),
		logger,
	)
	geminiClient, err := gemini.NewClient(gemini.Config{
		APIKey:            cfg.Gemini.APIKey,
		Model:             cfg.Gemini.Model,
		BaseURL:           cfg.Gemini.BaseURL,
		Timeout:           cfg.Gemini.Timeout,
		SystemInstruction: cfg.Gemini.SystemInstruction,
		MaxOutputTokens:   cfg.Gemini.MaxOutputTokens,
		Temperature:       cfg.Gemini.Temperature,
	}, geminiHTTP, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Gemini client", zap.Error(err))
	}

	// 10. Voice assistant
	normalizer := voice.NewNormalizer(voice.DefaultInvocationPhrases, voice.DefaultConnectives)
	if len(cfg.Skill.InvocationPhrases) > 0 {
		normalizer = voice.NewNormalizer(cfg.Skill.InvocationPhrases, voice.DefaultConnectives)
	}
	router := voice.NewRouter(geminiClient, logger,
		voice.WithNormalizer(normalizer),
		voice.WithAnswerTimeout(cfg.Gemini.Timeout),
	)
	voiceAssistant := voice.NewVoiceAssistant(router, sessionStore, events, logger)

	// 11. Alexa request verification
	certHTTP := circuitbreaker.NewHTTPClient(
		&http.Client{Timeout: 5 * time.Second},
		breakers.Get(circuitbreaker.DefaultSettings("alexa-certs")),
		logger,
	)
	verifier := alexa.NewVerifier(alexa.VerifierConfig{
		ApplicationIDs:     cfg.Skill.ApplicationIDs,
		VerifySignature:    cfg.Skill.VerifySignature,
		TimestampTolerance: cfg.Skill.TimestampTolerance,
	}, sessionCache, logger, alexa.WithCertFetcher(alexa.HTTPCertFetcher(certHTTP)))
	if len(cfg.Skill.ApplicationIDs) == 0 {
		logger.Warn("No Alexa application id configured, accepting requests for any skill")
	}

	// 12. Health checks
	healthService := health.NewService(&health.Config{
		Version:  cfg.App.Version,
		Cache:    sessionCache,
		Breakers: breakers,
	}, logger)
	if history != nil {
		healthService.RegisterChecker("database", func(ctx context.Context) health.CheckResult {
			return health.PingCheck(ctx, "database", history.Ping)
		})
	}

	// 13. Initialize Fiber HTTP Server
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		ServerHeader:          cfg.App.Name,
		DisableStartupMessage: true,
		BodyLimit:             cfg.HTTP.BodyLimit,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		IdleTimeout:           cfg.HTTP.IdleTimeout,
		ErrorHandler:          middleware.ErrorHandler(logger),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${method} ${path} | ${locals:requestid}\n",
	}))
	if cfg.CORS.Enabled {
		app.Use(middleware.NewCORS(cfg.CORS, handlers.VoicePath))
	}
	app.Use(middleware.RateLimit(cfg.RateLimiting, handlers.VoicePath))

	// Health Check Endpoints
	health.NewFiberHandler(healthService).RegisterRoutes(app)

	// Metrics endpoint for Prometheus
	if cfg.Prometheus.Enabled {
		metricsHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		app.Get(cfg.Prometheus.Path, func(c *fiber.Ctx) error {
			metricsHandler(c.Context())
			return nil
		})
	}

	// Alexa skill webhook
	handlers.NewVoiceHandler(voiceAssistant, verifier, logger).RegisterRoutes(app)

	// Admin API v1
	if cfg.Admin.APIKey != "" {
		v1 := app.Group("/api/v1", middleware.APIKeyRequired(cfg.Admin.APIKey))
		if cfg.CircuitBreaker.Enabled {
			v1.Use(middleware.CircuitBreaker(breakers.Get(circuitbreaker.SettingsFromConfig("admin-api", cfg.CircuitBreaker))))
		}
		admin := handlers.NewAdminHandler(geminiClient, normalizer, breakers, logger)
		if historyRepo != nil {
			admin.WithHistory(historyRepo)
			adminsvc.NewHandler(reports, logger).RegisterRoutes(v1)
		}
		admin.RegisterRoutes(v1)
	} else {
		logger.Info("Admin API disabled, set ADMIN_API_KEY to enable it")
	}

	// Live interaction feed
	app.Use("/ws", wsAdapter.Upgrade())
	app.Get("/ws/interactions", wsHub.Handler())

	// 14. Start servers
	go func() {
		logger.Info("Starting HTTP Server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP Server failed", zap.Error(err))
		}
	}()

	var grpcSrv *grpcserver.GRPCServer
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			logger.Fatal("Failed to listen for gRPC", zap.Error(err), zap.Int("port", cfg.GRPC.Port))
		}
		grpcSrv = grpcserver.NewGRPCServer(cfg.Admin.APIKey, func(ctx context.Context) bool {
			return healthService.Ready(ctx).Ready
		}, logger)
		go grpcSrv.Run(ctx, cfg.GRPC.SyncInterval)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				logger.Error("gRPC server failed", zap.Error(err))
			}
		}()
	}

	// 15. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	stop()

	logger.Info("Server exited gracefully")
}

func loadAPIKeyFromVault(ctx context.Context, cfg config.VaultConfig, logger *zap.Logger) (string, error) {
	secrets, err := vault.NewSecretManager(cfg.Address, cfg.Token, cfg.SecretPath)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var apiKey string
	err = circuitbreaker.RetryWithBackoff(ctx, 3, time.Second, func() error {
		key, err := secrets.GetGeminiAPIKey(ctx)
		if err != nil {
			logger.Warn("Vault read failed", zap.Error(err))
			return err
		}
		apiKey = key
		return nil
	})
	if err != nil {
		return "", err
	}

	logger.Info("Gemini API key loaded from Vault", zap.String("path", cfg.SecretPath))
	return apiKey, nil
}

// newSessionCache prefers Redis when configured and falls back to memory
// when it is unreachable at startup.
func newSessionCache(cfg *config.Config, logger *zap.Logger) ports.Cache {
	if cfg.Session.Store == "redis" {
		redisCache, err := cache.NewRedisCache(cfg.Redis, logger)
		if err == nil {
			return redisCache
		}
		logger.Error("Failed to connect to Redis, using in-memory sessions", zap.Error(err))
	}
	return cache.NewLocalCache(cfg.Session.CleanupInterval, logger)
}

// startBackgroundWorkers consumes the interaction stream as an audit trail.
// When a history repository is set, each event is also persisted there.
func startBackgroundWorkers(mq queue.MessageQueue, subject string, history ports.InteractionRepository, logger *zap.Logger) {
	logger.Info("Starting background workers", zap.String("subject", subject))

	audit := logger.Named("audit")
	err := queue.ConsumeInteractions(mq, subject, logger, func(e domain.InteractionEvent) error {
		audit.Info("Interaction",
			zap.String("event_id", e.ID),
			zap.String("session_id", e.SessionID),
			zap.String("request_type", string(e.RequestType)),
			zap.String("intent", e.Intent),
			zap.Bool("answered", e.Answered),
			zap.Bool("provider_failed", e.ProviderFailed),
			zap.Bool("assistant_mode", e.AssistantMode),
			zap.Bool("session_ended", e.SessionEnded),
			zap.Duration("latency", e.Latency),
		)
		if history == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return history.Save(ctx, &e)
	})
	if err != nil {
		logger.Error("Failed to subscribe to interaction events", zap.Error(err))
	}
}
