package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/classpilot-io/AI-grading/internal/config"
	"github.com/classpilot-io/AI-grading/internal/database"
	"github.com/classpilot-io/AI-grading/internal/handler"
	"github.com/classpilot-io/AI-grading/internal/middleware"
	"github.com/classpilot-io/AI-grading/internal/repository"
	"github.com/classpilot-io/AI-grading/internal/router"
	"github.com/classpilot-io/AI-grading/internal/service"
	"github.com/classpilot-io/AI-grading/internal/worker"
	"github.com/classpilot-io/AI-grading/pkg/ai"
	cloud "github.com/classpilot-io/AI-grading/pkg/cloudinary"
	"github.com/classpilot-io/AI-grading/pkg/grading"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	ctx := context.Background()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, concurrent grading of the same submission is not prevented")
	}

	var publisher service.EventPublisher
	if cfg.NATSURL != "" {
		natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName, logger)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer drainNATS(natsConn, logger)
		publisher = natsConn
	}

	fetcher := cloud.NewFetcher(cfg.StorageFetchTimeout, logger)
	storage, err := cloud.New(cloud.Config{
		CloudName: cfg.CloudinaryCloudName,
		APIKey:    cfg.CloudinaryAPIKey,
		APISecret: cfg.CloudinaryAPISecret,
		Folder:    cfg.CloudinaryUploadFolder,
	}, fetcher, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	provider, err := ai.NewProvider(ctx, ai.ProviderConfig{
		Name:         cfg.AIProvider,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("failed to create ai provider: %v", err)
	}
	logger.Info().Str("provider", provider.Name()).Msg("model provider ready")

	queue := worker.New(worker.Config{
		Workers:    cfg.GradingWorkers,
		QueueSize:  cfg.GradingQueueSize,
		JobTimeout: cfg.GradingTimeout + time.Minute,
	}, logger)

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	summaryRepo := repository.NewClassSummaryRepository(db)
	userRepo := repository.NewUserRepository(db)

	gradingService := service.NewGradingService(
		assignmentRepo,
		submissionRepo,
		storage,
		grading.NewRequestBuilder(storage),
		provider,
		service.NewGradingLocker(redisClient, logger),
		publisher,
		validate,
		service.GradingConfig{Timeout: cfg.GradingTimeout},
		logger,
	)
	assignmentService := service.NewAssignmentService(assignmentRepo, validate, storage, cfg.PublicBaseURL, logger)
	submissionService := service.NewSubmissionService(submissionRepo, assignmentRepo, gradingService, queue, logger)
	summaryService := service.NewClassSummaryService(assignmentRepo, submissionRepo, summaryRepo, provider, logger)
	userService := service.NewUserService(userRepo, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    cfg.UploadMaxBytes,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		DB:                  db,
		AssignmentHandler:   handler.NewAssignmentHandler(assignmentService, logger),
		SubmissionHandler:   handler.NewSubmissionHandler(gradingService, submissionService, logger),
		ClassSummaryHandler: handler.NewClassSummaryHandler(summaryService, logger),
		UserHandler:         handler.NewUserHandler(userService, logger),
		SessionMiddleware:   middleware.JWTOptional(cfg.JWTSecret),
		GradingLimiter:      middleware.RateLimit("grading", 10, time.Minute),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, queue, cfg.GradingTimeout)
}

func waitForShutdown(app *fiber.App, queue *worker.Queue, drain time.Duration) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if err := queue.Shutdown(ctx); err != nil {
		log.Printf("grading queue did not drain: %v", err)
	}

	log.Println("server stopped")
}

func drainNATS(conn *nats.Conn, logger zerolog.Logger) {
	if err := conn.Drain(); err != nil {
		logger.Warn().Err(err).Msg("failed to drain nats connection")
	}
}
