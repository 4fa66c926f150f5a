package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/storefront-api/api/swagger"
	"github.com/noah-isme/storefront-api/internal/handler"
	"github.com/noah-isme/storefront-api/internal/repository"
	"github.com/noah-isme/storefront-api/internal/service"
	"github.com/noah-isme/storefront-api/pkg/cache"
	"github.com/noah-isme/storefront-api/pkg/config"
	"github.com/noah-isme/storefront-api/pkg/database"
	"github.com/noah-isme/storefront-api/pkg/jobs"
	"github.com/noah-isme/storefront-api/pkg/logger"
	"github.com/noah-isme/storefront-api/pkg/token"
)

// @title Storefront API
// @version 1.0.0
// @description Storefront accounts and credential lifecycle
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.MigrateOnStart {
		if err := database.Migrate(ctx, db.DB); err != nil {
			return err
		}
		logr.Info("database migrated")
	}

	// The principal cache is optional; without redis every lookup hits postgres.
	var cacheRepo *repository.CacheRepository
	if cfg.Cache.PrincipalEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, principal cache disabled", zap.Error(err))
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
			defer cacheRepo.Close()
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	users := repository.NewUserRepository(db)
	ledger := repository.NewCredentialRepository(db)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.PrincipalTTL, logr, cacheRepo != nil)
	principals := service.NewPrincipalDirectory(users, cacheSvc, logr)

	auditSvc := service.NewAuditService(users, logr)
	auditQueue := jobs.NewQueue("audit", auditSvc.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		Logger:     logr,
	})
	auditQueue.Start(ctx)
	defer auditQueue.Stop()
	auditSvc.AttachQueue(auditQueue)

	codec := token.NewCodec(cfg.JWT.Secret, cfg.JWT.Issuer)
	credentials := service.NewCredentialService(ledger, principals, codec, service.CredentialConfig{
		TTL:             cfg.Credential.TTL(),
		RenewalBudget:   cfg.Credential.RenewalBudget,
		SweepOnValidate: cfg.Credential.SweepOnValidate,
	}, auditSvc, metrics, logr)

	sweeper := service.NewSweepService(ledger, metrics, logr, cfg.Credential.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	authSvc := service.NewAuthService(users, principals, credentials, auditSvc, validate, logr)
	userSvc := service.NewUserService(users, principals, credentials, auditSvc, validate, logr)

	checks := map[string]handler.Pinger{
		"database": handler.PingFunc(db.PingContext),
	}
	if cacheRepo != nil {
		checks["cache"] = cacheRepo
	}

	router := newRouter(cfg, logr, routerDeps{
		auth:       handler.NewAuthHandler(authSvc, credentials),
		users:      handler.NewUserHandler(userSvc),
		metrics:    handler.NewMetricsHandler(metrics, checks),
		validator:  credentials,
		auditor:    auditSvc,
		metricsSvc: metrics,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
