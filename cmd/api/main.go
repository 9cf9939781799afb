package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dropship-platform/internal/audit"
	"dropship-platform/internal/auth"
	"dropship-platform/internal/chat"
	"dropship-platform/internal/config"
	"dropship-platform/internal/functions"
	"dropship-platform/internal/httpapi"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/orders"
	"dropship-platform/internal/payout"
	"dropship-platform/internal/postpaid"
	"dropship-platform/internal/ratelimit"
	"dropship-platform/internal/realtime"
	"dropship-platform/internal/reporting"
	"dropship-platform/internal/settings"
	"dropship-platform/internal/store"
	"dropship-platform/internal/store/memstore"
	"dropship-platform/internal/store/pgstore"
	"dropship-platform/internal/wallet"
	"dropship-platform/pkg/logger"
	"dropship-platform/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	notifyQueueKey     = "notify:intents"
	realtimeChannel    = "realtime:events"
	chatAliasTTL       = 30 * 24 * time.Hour
	payoutGuardTTL     = 15 * time.Second
	presenceSweepEvery = 5 * time.Second
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

	var db *sql.DB
	if cfg.DB.Backend == "postgres" {
		db, err = utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{MaxConns: cfg.DB.MaxConns})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()

		if cfg.DB.Migrate {
			if err := pgstore.Migrate(rootCtx, db); err != nil {
				log.Error("migrations failed", "err", err)
				os.Exit(1)
			}
		}
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Persistence
	var (
		st          store.Store
		auditRepo   audit.Repository
		settingRepo settings.Repository
		notifRepo   notify.Repository
	)
	if db != nil {
		st = pgstore.New(db)
		auditRepo = audit.NewPostgresRepo(db)
		settingRepo = settings.NewPostgresRepo(db)
		notifRepo = notify.NewPostgresRepo(db)
	} else {
		log.Warn("using in-memory store; state is lost on restart")
		st = memstore.New()
		auditRepo = audit.NewMemoryRepo()
		settingRepo = settings.NewMemoryRepo()
		notifRepo = notify.NewMemoryRepo()
	}

	// Side-effect plumbing
	fn := functions.NewClient(cfg.Functions.URL, cfg.Functions.ServiceKey, cfg.Functions.Timeout)
	auditSvc := audit.NewService(auditRepo)
	settingsSvc := settings.NewService(settingRepo)

	var queue notify.Queue = notify.NewMemoryQueue(1024)
	if cfg.Notify.Queue == "redis" {
		queue = notify.NewRedisQueue(rdb, notifyQueueKey)
	}
	outbox := notify.NewOutbox(queue)
	worker := notify.NewWorker(queue, map[notify.Channel]notify.Sender{
		notify.ChannelEmail: notify.NewEmailSender(fn, cfg.Notify.AdminEmail),
		notify.ChannelInApp: notify.NewInAppSender(notifRepo),
	}, notify.WorkerConfig{MaxAttempts: cfg.Notify.MaxAttempts, Backoff: cfg.Notify.Backoff}, log)

	// Chat presence feeds the hub; presence changes go back out as events.
	var chatSvc *chat.Service
	presence := chat.NewPresence(chat.PresenceConfig{
		InactivityTimeout: cfg.Chat.InactivityTimeout,
		GracePeriod:       cfg.Chat.GracePeriod,
	}, func(userID string, s chat.PresenceState) {
		if chatSvc != nil {
			chatSvc.PublishPresence(userID, s)
		}
	})
	hub := realtime.NewHub(presence, log)
	bridge := realtime.NewBridge(rdb, realtimeChannel, hub, log)

	var reassigner chat.Reassigner = chat.NewRemoteReassigner(fn)
	if cfg.Chat.ReassignmentMode == "local" {
		reassigner = chat.NewLocalReassigner(st)
	}
	chatSvc = chat.NewService(st, chat.Deps{
		Settings:   settingsSvc,
		Reassigner: reassigner,
		Aliases:    chat.NewRedisAliases(rdb, chatAliasTTL),
		Presence:   presence,
		Notifier:   outbox,
		Events:     bridge,
		Audit:      auditSvc,
	})

	postpaidSvc := postpaid.NewService(st, fn, outbox, bridge, auditSvc)

	h := httpapi.Handlers{
		Auth:          authManager,
		Wallet:        wallet.NewService(st, bridge, auditSvc),
		Postpaid:      postpaidSvc,
		Payouts:       payout.NewService(st, settingsSvc, outbox, bridge, auditSvc, payout.WithGuard(payout.NewSlotGuard(rdb, payoutGuardTTL))),
		Orders:        orders.NewService(st, outbox, bridge, auditSvc),
		Chat:          chatSvc,
		Reporting:     reporting.NewService(st),
		Settings:      settingsSvc,
		Audit:         auditSvc,
		Notifications: notifRepo,
		Limiter:       ratelimit.NewRedisLimiter(rdb),
		RateLimit: httpapi.RateLimits{
			Payouts: cfg.RateLimit.Payouts,
			Chat:    cfg.RateLimit.Chat,
			Window:  cfg.RateLimit.Window,
		},
	}

	// Background workers
	var wg sync.WaitGroup
	goWorker := func(name string, run func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(rootCtx)
			log.Info("worker stopped", "worker", name)
		}()
	}
	goWorker("hub", hub.Run)
	goWorker("bridge", bridge.Run)
	goWorker("presence", func(ctx context.Context) { presence.Run(ctx, presenceSweepEvery) })
	goWorker("notify", func(ctx context.Context) {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("notify worker failed", "err", err)
		}
	})
	if cfg.Jobs.DueReminderInterval > 0 {
		goWorker("due_reminders", func(ctx context.Context) {
			postpaidSvc.RunDueReminderJob(ctx, cfg.Jobs.DueReminderInterval, log)
		})
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(corsMiddleware(cfg))

	registerRoutes(r, routeDeps{
		cfg:      cfg,
		handlers: h,
		authMW:   auth.RequireAccessToken(authManager),
		hub:      hub,
		db:       db,
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
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.DB.Backend)
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

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn("workers did not stop before shutdown deadline")
	}
}

func corsMiddleware(cfg config.Config) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposeHeaders: []string{"X-Request-Id", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.App.CORSAllowedOrigins) == 0 && !cfg.IsProduction() {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.App.CORSAllowedOrigins
	}
	return cors.New(c)
}
