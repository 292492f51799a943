package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-platform/internal/audit"
	"whatsapp-platform/internal/auth"
	"whatsapp-platform/internal/authz"
	"whatsapp-platform/internal/config"
	"whatsapp-platform/internal/httpapi"
	"whatsapp-platform/internal/integration"
	"whatsapp-platform/internal/quota"
	"whatsapp-platform/pkg/logger"
	"whatsapp-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Best-effort env file for local development; real deployments inject env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Service wiring. All mutable state lives in storage; the services are
	// stateless and shared across requests.
	dir := integration.NewPostgresDirectory(db)
	authzSvc := authz.NewService(dir)

	var quotaStore quota.Store
	switch cfg.Gate.QuotaStore {
	case "redis":
		quotaStore = quota.NewRedisStore(rdb)
	default:
		quotaStore = quota.NewPostgresStore(db)
	}
	quotaSvc := quota.NewService(quotaStore, quota.LogAlertSink{Log: log}).
		WithRetention(cfg.Gate.QuotaRetention)

	auditSvc := audit.NewService(audit.NewPostgresRepo(db), audit.LogAlertSink{}).
		WithRetention(cfg.Gate.AuditRetention)

	h := httpapi.Handlers{
		Auth:      authManager,
		Authz:     authzSvc,
		Quota:     quotaSvc,
		Audit:     auditSvc,
		Directory: dir,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(httpapi.Metrics())

	registerRoutes(r, h, db, auth.RequireAccessToken(authManager))

	// Periodic maintenance: expired quota windows and aged audit events.
	go runCleanup(rootCtx, log, cfg.Gate.CleanupInterval, quotaSvc, auditSvc)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}

// runCleanup drives the retention jobs until the context ends. The gating
// layer itself is scheduler-free; this is the external periodic caller.
func runCleanup(ctx context.Context, log *slog.Logger, interval time.Duration, quotaSvc *quota.Service, auditSvc *audit.Service) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := quotaSvc.CleanupOldRecords(ctx); err != nil {
				log.Warn("quota cleanup failed", "err", err)
			} else if n > 0 {
				log.Info("quota cleanup", "deleted", n)
			}
			if n, err := auditSvc.CleanupExpiredEvents(ctx); err != nil {
				log.Warn("audit cleanup failed", "err", err)
			} else if n > 0 {
				log.Info("audit cleanup", "deleted", n)
			}
		}
	}
}
