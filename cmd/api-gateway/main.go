package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/noah-isme/chore-dispute-api/api/swagger"
	"github.com/noah-isme/chore-dispute-api/internal/handler"
	"github.com/noah-isme/chore-dispute-api/internal/middleware"
	"github.com/noah-isme/chore-dispute-api/internal/repository"
	"github.com/noah-isme/chore-dispute-api/internal/service"
	"github.com/noah-isme/chore-dispute-api/pkg/cache"
	"github.com/noah-isme/chore-dispute-api/pkg/config"
	"github.com/noah-isme/chore-dispute-api/pkg/database"
	appErrors "github.com/noah-isme/chore-dispute-api/pkg/errors"
	"github.com/noah-isme/chore-dispute-api/pkg/events"
	"github.com/noah-isme/chore-dispute-api/pkg/jobs"
	"github.com/noah-isme/chore-dispute-api/pkg/lock"
	"github.com/noah-isme/chore-dispute-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/chore-dispute-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/chore-dispute-api/pkg/middleware/requestid"
)

// @title Chore Dispute API
// @version 1.0.0
// @description Household chore disputes settled by quorum vote.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type householdBackend interface {
	service.ChoreProvider
	service.PointsLedger
	service.MembershipProvider
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.Pinger{}

	var (
		store     repository.DisputeStore
		household householdBackend
	)
	switch cfg.Disputes.StoreDriver {
	case config.StoreDriverMemory:
		store = repository.NewMemoryDisputeStore()
		memoryHousehold := repository.NewMemoryHousehold()
		if cfg.Disputes.MemorySeed != "" {
			seed, err := config.LoadMemorySeed(cfg.Disputes.MemorySeed)
			if err != nil {
				logr.Fatal("failed to load memory seed", zap.Error(err))
			}
			if err := memoryHousehold.Seed(*seed); err != nil {
				logr.Fatal("invalid memory seed", zap.String("path", cfg.Disputes.MemorySeed), zap.Error(err))
			}
			logr.Info("seeded in-memory household",
				zap.String("path", cfg.Disputes.MemorySeed),
				zap.Int("homes", len(seed.Homes)),
				zap.Int("chores", len(seed.Chores)),
			)
		} else {
			logr.Warn("memory driver started without DISPUTE_MEMORY_SEED; no chores or members exist")
		}
		household = memoryHousehold
		logr.Warn("using in-memory dispute store; state is lost on restart")
	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close()
		store = repository.NewDisputeRepository(db)
		household = repository.NewHouseholdRepository(db)
	}
	checks["store"] = store

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, continuing without cache and sweeper lock", zap.Error(err))
	}
	var rosterStore service.RosterStore
	if redisClient != nil {
		defer redisClient.Close()
		rosterStore = repository.NewRosterCacheRepository(redisClient, "chores:")
		checks["redis"] = pingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	metricsSvc := service.NewMetricsService()
	rosters := service.NewRosterCache(rosterStore, metricsSvc, cfg.Membership.CacheTTL, logr, cfg.Membership.CacheEnabled && rosterStore != nil)
	members := service.NewMembershipService(household, rosters, logr)

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled {
		kafkaPublisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.DisputeTopic,
			WriteTimeout: cfg.Kafka.WriteTimeout,
		}, logr)
		if err != nil {
			logr.Fatal("failed to configure kafka publisher", zap.Error(err))
		}
		defer kafkaPublisher.Close() //nolint:errcheck
		publisher = kafkaPublisher
	}
	hub := service.NewResolutionHub(publisher, logr)

	effects := service.NewEffectsRunner(store, household, household, hub, cfg.Disputes.PointsMode, metricsSvc, logr)
	effectsQueue := jobs.NewQueue("dispute-effects", effects.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Disputes.Workers,
		MaxRetries: cfg.Disputes.WorkerRetries,
		RetryDelay: cfg.Disputes.WorkerRetryDelay,
		Logger:     logr,
		OnGiveUp:   effects.GiveUp,
		Retryable:  appErrors.Retryable,
	})
	effectsQueue.Start(ctx)
	defer effectsQueue.Stop()
	effects.UseQueue(effectsQueue)

	disputeSvc := service.NewDisputeService(store, household, members, effects, validator.New(), logr,
		service.WithResolutionWindow(cfg.Disputes.ResolutionWindow),
		service.WithDisputeMetrics(metricsSvc),
	)

	var sweepLock service.SweepLock
	if redisClient != nil {
		sweepLock = service.RedisSweepLock(lock.NewRedisLocker(redisClient, "chores:lock:"), cfg.Disputes.SweepLockTTL, logr)
	}
	service.NewDisputeSweeper(disputeSvc, cfg.Disputes, sweepLock, logr).Start(ctx)

	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/health", "/ready", "/metrics", cfg.APIPrefix+"/disputes/events"))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.Env != config.EnvProduction {
		api.POST("/auth/dev-token", handler.NewAuthHandler(authSvc).DevToken)
	}

	disputeHandler := handler.NewDisputeHandler(disputeSvc, hub)
	api.GET("/disputes/events", middleware.StreamJWT(authSvc), disputeHandler.Events)
	disputes := api.Group("/disputes", middleware.JWT(authSvc))
	disputes.POST("", disputeHandler.Create)
	disputes.GET("", disputeHandler.List)
	disputes.GET("/:id", disputeHandler.Get)
	disputes.GET("/:id/status", disputeHandler.Status)
	disputes.GET("/:id/votes/:voterEmail", disputeHandler.GetVote)
	disputes.POST("/:id/vote", disputeHandler.Vote)
	disputes.POST("/:id/unvote", disputeHandler.Unvote)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Disputes.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logr.Sugar().Errorw("server stopped with error", "error", err)
	}
	logr.Info("server stopped")
}
