package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/checker"
	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/database"
	"github.com/noah-isme/gema-grader/internal/events"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(models.All()...); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	hub := events.NewHub(redisClient, natsConn, cfg.EventsChannel, logger)
	hub.Start(rootCtx)

	validate := validator.New(validator.WithRequiredStructEnabled())

	store := repository.NewStore(db)
	resolver := service.NewResolver(store.Catalog(), store.Seeds(), service.NewSeededPermutation(cfg.FinalTasks, cfg.FinalVariants))
	applier := service.NewVerdictApplier(store, hub, logger)

	submissionService := service.NewSubmissionService(store, resolver, hub, redisClient, service.SubmissionConfig{
		ReadOnly:      cfg.ReadOnly,
		MaxCodeBytes:  cfg.MaxCodeBytes,
		BoardCacheTTL: cfg.BoardCacheTTL,
	}, logger)
	reviewService := service.NewReviewService(store, resolver, applier, hub, service.ReviewConfig{
		WorkerDisabled: cfg.WorkerDisabled,
	}, logger)
	examService := service.NewExamService(store.Catalog(), store.Seeds(), cfg.FinalTasks, logger)

	hub.AddListener(func(event events.StatusEvent) {
		submissionService.InvalidateBoard(rootCtx, event.Key.GroupID)
	})

	var workers sync.WaitGroup
	if !cfg.WorkerDisabled {
		gateway, closeGateway, err := checker.New(cfg.CheckerOptions(), logger)
		if err != nil {
			log.Fatalf("failed to create checker gateway: %v", err)
		}
		defer func() {
			if err := closeGateway(); err != nil {
				logger.Warn().Err(err).Msg("failed to close checker gateway")
			}
		}()

		var lease worker.Lease
		if redisClient != nil {
			lease = worker.NewRedisLease(redisClient, cfg.EventsChannel+":worker-lease", cfg.WorkerLeaseTTL)
		}

		w := worker.New(store.Messages(), resolver, gateway, applier, lease, worker.Config{
			Interval:       cfg.WorkerInterval,
			CheckerTimeout: cfg.WorkerCheckerTimeout,
		}, logger)

		workers.Add(1)
		go func() {
			defer workers.Done()
			w.Run(rootCtx)
		}()
	} else {
		logger.Info().Msg("background worker disabled; verdicts come from manual review")
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to access database handle: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SubmissionHandler:   handler.NewSubmissionHandler(submissionService, validate, cfg.SubmissionRateLimit, logger),
		StatusStreamHandler: handler.NewStatusStreamHandler(hub, logger),
		ReviewHandler:       handler.NewReviewHandler(reviewService, validate, logger),
		ExamHandler:         handler.NewExamHandler(examService, logger),
		HealthPinger:        sqlDB.PingContext,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)

	cancelRoot()
	workers.Wait()
	log.Println("worker stopped")
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
