package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voice-scheduler/internal/audit"
	"voice-scheduler/internal/auth"
	"voice-scheduler/internal/calls"
	"voice-scheduler/internal/config"
	"voice-scheduler/internal/dialer"
	"voice-scheduler/internal/httpapi"
	"voice-scheduler/internal/lifecycle"
	"voice-scheduler/internal/metrics"
	"voice-scheduler/internal/reporting"
	"voice-scheduler/internal/scheduler"
	"voice-scheduler/internal/telephony"
	"voice-scheduler/pkg/logger"
	"voice-scheduler/pkg/utils"

	"github.com/bsm/redislock"
	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)
	rootCtx = logger.With(rootCtx, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxOpenConns: cfg.DB.MaxOpenConns})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := calls.Migrate(rootCtx, db); err != nil {
		log.Error("calls migration failed", "err", err)
		os.Exit(1)
	}
	if err := audit.Migrate(rootCtx, db); err != nil {
		log.Error("audit migration failed", "err", err)
		os.Exit(1)
	}
	store := calls.NewPostgresRepo(db)

	// Redis backs the metrics counters and the cross-process fire guard. Outside production
	// the process keeps running on in-memory equivalents.
	var (
		recorder interface {
			metrics.Recorder
			metrics.Snapshotter
		} = metrics.NewMemoryRecorder()
		guard scheduler.FireGuard = scheduler.NewMemoryFireGuard()
	)
	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:        cfg.RedisAddr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.DialTimeout,
		IOTimeout:   cfg.Redis.IOTimeout,
	})
	switch {
	case err == nil:
		defer rdb.Close()
		recorder = metrics.NewRedisRecorder(rdb)
		guard = scheduler.NewRedisFireGuard(redislock.New(rdb), cfg.Scheduler.LockTTL)
	case cfg.IsProduction():
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	default:
		log.Warn("redis unavailable; using in-memory metrics and fire guard", "err", err)
	}

	provider := telephony.NewTwilioProvider(telephony.TwilioConfig{
		AccountSID:     cfg.Twilio.AccountSID,
		AuthToken:      cfg.Twilio.AuthToken,
		APIBaseURL:     cfg.Twilio.APIBaseURL,
		CallsPerSecond: cfg.Twilio.CallsPerSecond,
	})
	if err := provider.Ready(); err != nil {
		log.Warn("twilio not configured; calls will be refused", "err", err)
	}

	defaultMode, _ := calls.ParseDetectionMode(cfg.Detection.Mode)
	executor := dialer.NewExecutor(store, provider, recorder, dialer.Options{
		FromNumber:                     cfg.Twilio.FromNumber,
		Resolver:                       net.DefaultResolver,
		DefaultDetectionMode:           defaultMode,
		DefaultDetectionTimeoutSeconds: cfg.Detection.TimeoutSeconds,
	})
	if cfg.Callbacks.PublicBaseURL == "" {
		log.Warn("PUBLIC_BASE_URL not set; calls will be refused until it is configured")
	} else if err := executor.SetPublicBaseURL(rootCtx, cfg.Callbacks.PublicBaseURL); err != nil {
		log.Error("PUBLIC_BASE_URL unusable; calls will be refused until it is reconfigured", "err", err)
	}

	mediaBase := func() string {
		if cfg.Callbacks.MediaBaseURL != "" {
			return cfg.Callbacks.MediaBaseURL
		}
		return executor.PublicBaseURL()
	}
	machine := lifecycle.NewMachine(store, lifecycle.URLAudioResolver{Base: mediaBase}, recorder, lifecycle.Options{
		DefaultPostBeepDelaySeconds: cfg.Detection.PostBeepDelaySeconds,
	})

	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Error("scheduler timezone invalid", "err", err)
		os.Exit(1)
	}
	cron := scheduler.NewCronSchedule(loc)
	sched := scheduler.NewService(store, executor, cron, scheduler.Options{
		Guard:                          guard,
		Logger:                         log,
		DefaultDetectionMode:           defaultMode,
		DefaultDetectionTimeoutSeconds: cfg.Detection.TimeoutSeconds,
	})

	if err := httpapi.RegisterValidators(cron.Validate); err != nil {
		log.Error("validator registration failed", "err", err)
		os.Exit(1)
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, "/healthz"))

	var webhookMW []gin.HandlerFunc
	if cfg.Twilio.ValidateSignatures {
		webhookMW = append(webhookMW, telephony.RequireTwilioSignature(cfg.Twilio.AuthToken, executor.PublicBaseURL))
	}

	registerRoutes(r, routeDeps{
		authMW:     auth.RequireAccessToken(authManager),
		webhookMW:  webhookMW,
		webhooks:   telephony.WebhookHandler{Sink: machine},
		healthPing: func(ctx context.Context) error { return utils.HealthCheck(ctx, db, 2*time.Second) },
		api: httpapi.Handlers{
			Scheduled: sched,
			Dialer:    executor,
			CallLogs:  store,
			Reports:   reporting.NewService(store, recorder),
			Audit:     audit.NewService(audit.NewPostgresRepo(db)),
		},
	})

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

	// Webhooks for overdue calls fired during Start land on the server above.
	if err := sched.Start(rootCtx); err != nil {
		log.Error("scheduler start failed", "err", err)
		stop()
	}

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("scheduler stop timed out", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

}
