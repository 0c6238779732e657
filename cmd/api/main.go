// @title        Clinic Core API
// @version      1.0
// @description  Authentication, sessions and access control for the clinic platform.
// @BasePath     /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medora/clinic-core/internal/api"
	"github.com/medora/clinic-core/internal/api/handler"
	"github.com/medora/clinic-core/internal/core/ports"
	"github.com/medora/clinic-core/internal/core/service"
	"github.com/medora/clinic-core/internal/infrastructure/config"
	"github.com/medora/clinic-core/internal/infrastructure/db/mongo"
	"github.com/medora/clinic-core/internal/infrastructure/db/postgres"
	"github.com/medora/clinic-core/internal/infrastructure/db/redis"
	"github.com/medora/clinic-core/internal/infrastructure/mailer"
	"github.com/medora/clinic-core/internal/infrastructure/queue"
	"github.com/medora/clinic-core/pkg/logger"
)

const (
	serviceName     = "clinic-core"
	shutdownTimeout = 15 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		bootLog := logger.Init(logger.Options{})
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: serviceName,
		Env:     cfg.Env,
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Storage ---
	db, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.URL, MaxOpenConns: cfg.Postgres.MaxOpenConns})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, log); err != nil {
		return err
	}

	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	health := map[string]handler.Check{
		"postgres": db.PingContext,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	var mirrors []service.NamedSink
	if cfg.Audit.MirrorMongo {
		client, mdb, err := mongo.Connect(ctx, mongo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return err
		}
		defer func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(dctx)
		}()

		auditMirror := mongo.NewAuditRepository(mdb)
		if err := auditMirror.EnsureIndexes(ctx); err != nil {
			return err
		}
		mirrors = append(mirrors, service.NamedSink{Name: "mongo", Sink: auditMirror})
		health["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	}

	principals := postgres.NewPrincipalRepository(db)
	sessionRepo := postgres.NewSessionRepository(db)
	oneTime := postgres.NewOneTimeTokenRepository(db)
	auditRepo := postgres.NewAuditRepository(db)
	outbox := redis.NewAuditOutbox(rdb, cfg.Audit.OutboxKey)

	// --- Core services ---
	tokens, err := service.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL)
	if err != nil {
		return err
	}
	hasher := service.NewPasswordHasher(cfg.Auth.BcryptCost)
	sessions := service.NewSessionStore(sessionRepo, cfg.Auth.RefreshTokenTTL, log)
	credentials := service.NewCredentialStore(principals, hasher, service.LockoutPolicy{
		Threshold: cfg.Auth.LockoutThreshold,
		Duration:  cfg.Auth.LockoutDuration,
	}, log)

	authService := service.NewAuthService(service.AuthConfig{
		BaseURL:   cfg.BaseURL,
		ResetTTL:  cfg.Auth.ResetTokenTTL,
		InviteTTL: cfg.Auth.InviteTokenTTL,
	}, service.AuthDeps{
		Credentials: credentials,
		Tokens:      tokens,
		Sessions:    sessions,
		Accounts:    principals,
		OneTime:     oneTime,
		Hasher:      hasher,
		Mailer:      mailer.NewLogMailer(log),
	}, log)

	var sink ports.AuditSink = auditRepo
	if len(mirrors) > 0 {
		sink = service.NewFanoutSink(auditRepo, log, mirrors...)
	}
	recorder := service.NewAuditRecorder(sink, outbox, service.DefaultAuditTimeout, log)

	// --- Background workers ---
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	drainer := queue.NewAuditDrainer(outbox, recorder, cfg.Audit.Workers, log)
	drainer.Start(workerCtx)
	janitor := queue.NewSessionJanitor(sessions, cfg.Auth.PurgeInterval, log)
	janitor.Start(workerCtx)

	// --- HTTP ---
	e := api.NewRouter(api.RouterConfig{
		Log:           log,
		ExposeErrors:  cfg.IsDevelopment(),
		SecureCookies: cfg.IsProduction(),
		AuthRateLimit: cfg.AuthRateLimit,
	}, api.Services{
		Auth:     authService,
		Staff:    service.NewStaffService(principals, log),
		Audit:    service.NewAuditService(auditRepo),
		Recorder: recorder,
		Health:   health,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Requests are drained; stop the workers before the stores close.
	cancelWorkers()
	drainer.Wait()
	janitor.Wait()
	return nil
}
