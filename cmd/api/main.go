package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/PILOTO-ORG/cunha-sub000/internal/analytics"
	"github.com/PILOTO-ORG/cunha-sub000/internal/app"
	"github.com/PILOTO-ORG/cunha-sub000/internal/audit"
	"github.com/PILOTO-ORG/cunha-sub000/internal/auth"
	"github.com/PILOTO-ORG/cunha-sub000/internal/budget"
	"github.com/PILOTO-ORG/cunha-sub000/internal/catalog"
	"github.com/PILOTO-ORG/cunha-sub000/internal/client"
	"github.com/PILOTO-ORG/cunha-sub000/internal/common"
	"github.com/PILOTO-ORG/cunha-sub000/internal/config"
	"github.com/PILOTO-ORG/cunha-sub000/internal/events"
	"github.com/PILOTO-ORG/cunha-sub000/internal/health"
	"github.com/PILOTO-ORG/cunha-sub000/internal/lock"
	"github.com/PILOTO-ORG/cunha-sub000/internal/notify"
	"github.com/PILOTO-ORG/cunha-sub000/internal/obs"
	"github.com/PILOTO-ORG/cunha-sub000/internal/queue"
	"github.com/PILOTO-ORG/cunha-sub000/internal/ratelimit"
	"github.com/PILOTO-ORG/cunha-sub000/internal/reservation"
	"github.com/PILOTO-ORG/cunha-sub000/internal/resilience"
	"github.com/PILOTO-ORG/cunha-sub000/internal/security"
	"github.com/PILOTO-ORG/cunha-sub000/internal/stock"
	"github.com/PILOTO-ORG/cunha-sub000/internal/venue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "cunha")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "cunha-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	runMigrations(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "cunha-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	taskQueue := queue.Enqueuer{R: redisClient, Prefix: cfg.QueuePrefix, DedupTTL: cfg.IdempotencyTTL}

	notifyStore := &notify.PGStore{DB: pool}
	dispatcher := &notify.Dispatcher{
		Store: notifyStore,
		Queue: taskQueue,
		HTTP: &resilience.HTTPClient{
			Client:      notify.HttpClient(int(cfg.WebhookRequestTimeout/time.Millisecond), false),
			Breaker:     resilience.NewBreaker(cfg.CircuitWebhookMinReq, cfg.CircuitWebhookFailureRate, cfg.CircuitWebhookOpenFor).WithTarget("webhook-delivery").WithLogger(logger),
			BaseBackoff: cfg.WebhookRetryBase,
			MaxAttempts: cfg.WebhookRetryMaxAttempts,
			Jitter:      cfg.WebhookRetryJitter,
			Timeout:     cfg.WebhookRequestTimeout,
		},
		Endpoint:           notify.Endpoint{URL: cfg.WebhookURL, Secret: cfg.WebhookSecret},
		BackoffBaseSec:     int(cfg.WebhookBackoffBase / time.Second),
		DefaultMaxAttempts: cfg.WebhookMaxAttempts,
		Enabled:            cfg.WebhookDeliveryEnabled,
		Replay:             notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL:          cfg.WebhookReplayTTL,
	}

	bus := &events.Bus{
		Store:     &events.PGStore{DB: pool},
		Scheduler: dispatcher,
	}

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Repo:  &catalog.Repo{DB: pool},
		Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := &catalog.Handler{Service: catalogService}

	clientService, err := client.NewService(client.ServiceConfig{
		Repo:     &client.Repo{DB: pool},
		Validate: validator.New(),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise client service")
	}
	clientHandler := &client.Handler{Service: clientService}

	venueService, err := venue.NewService(&venue.Repo{DB: pool})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise venue service")
	}
	venueHandler := &venue.Handler{Service: venueService}

	stockService, err := stock.NewService(stock.ServiceConfig{
		Repo:   &stock.Repo{DB: pool},
		Bus:    bus,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise stock service")
	}
	stockHandler := &stock.Handler{Service: stockService}

	budgetRepo := &budget.Repo{DB: pool}
	budgetService, err := budget.NewService(budget.ServiceConfig{
		Repo:              budgetRepo,
		Products:          catalogService,
		Clients:           clientService,
		Bus:               bus,
		Logger:            logger,
		MaxRentalDays:     cfg.RentalMaxDays,
		DefaultDepositPct: cfg.DepositDefaultPct,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise budget service")
	}
	budgetHandler := &budget.Handler{Service: budgetService}

	reservationService, err := reservation.NewService(reservation.ServiceConfig{
		Store:   budgetRepo,
		Stock:   stockService,
		Locker:  lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff},
		Bus:     bus,
		Logger:  logger,
		LockTTL: cfg.LockTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise reservation service")
	}
	reservationHandler := &reservation.Handler{Service: reservationService}

	authService, err := auth.NewService(auth.Config{
		Accounts:       &auth.Repo{DB: pool},
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := &auth.Handler{Service: authService}
	authMiddleware := auth.Middleware{Service: authService}

	analyticsSvc := &analytics.Service{
		Q:            &analytics.Repo{DB: pool},
		R:            redisClient,
		TTL:          cfg.AnalyticsCacheTTL,
		DefaultRange: cfg.AnalyticsDefaultRange,
	}
	analyticsHandler := &analytics.Handler{Svc: analyticsSvc}

	notifyAdmin := &notify.AdminHandler{Store: notifyStore, Disp: dispatcher}
	queueAdmin := &queue.AdminHandler{
		Store:             queue.NewStore(pool),
		Queue:             taskQueue,
		Logger:            logger,
		VisibilityTimeout: cfg.QueueVisibilityTimeout,
	}

	auditService := audit.Service{
		Store:        &audit.PGStore{DB: pool},
		Enabled:      cfg.AuditEnabled,
		SamplingRate: cfg.AuditSamplingRate,
	}
	auditRecorder := audit.HTTPRecorder{
		Service: &auditService,
		OnError: func(err error) { logger.Error().Err(err).Msg("record audit entry") },
	}
	auditWrites := auditRecorder.Middleware(audit.HTTPConfig{})
	auditHandler := audit.Handler{Store: auditService.Store}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: cfg.QueuePrefix + ":rl:"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("rate limit check") },
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(security.Headers{Enable: true}.Middleware)
	r.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
	r.Use(limiter.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", true)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.Post("/register", authHandler.Register)
			a.Post("/login", authHandler.Login)
			a.Post("/logout", authHandler.Logout)

			a.Group(func(protected chi.Router) {
				protected.Use(authMiddleware.RequireAuth)
				protected.Get("/me", authHandler.Me)
			})
		})

		v.Group(func(p chi.Router) {
			p.Use(authMiddleware.RequireAuth)

			p.Route("/produtos", func(c chi.Router) {
				c.Get("/", catalogHandler.List)
				c.With(auditWrites).Post("/", catalogHandler.Create)
				c.Route("/{productID}", func(child chi.Router) {
					child.Get("/", catalogHandler.Get)
					child.With(auditWrites).Put("/", catalogHandler.Update)
					child.With(auditWrites).Delete("/", catalogHandler.Delete)
				})
			})

			p.Route("/clientes", func(c chi.Router) {
				c.Get("/", clientHandler.List)
				c.With(auditWrites).Post("/", clientHandler.Create)
				c.Route("/{clientID}", func(child chi.Router) {
					child.Get("/", clientHandler.Get)
					child.With(auditWrites).Put("/", clientHandler.Update)
					child.With(auditWrites).Delete("/", clientHandler.Delete)
				})
			})

			p.Route("/locais", func(c chi.Router) {
				c.Get("/", venueHandler.List)
				c.With(auditWrites).Post("/", venueHandler.Create)
				c.Route("/{venueID}", func(child chi.Router) {
					child.Get("/", venueHandler.Get)
					child.With(auditWrites).Put("/", venueHandler.Update)
					child.With(auditWrites).Delete("/", venueHandler.Delete)
				})
			})

			p.Route("/orcamentos", func(b chi.Router) {
				b.Get("/", budgetHandler.List)
				b.Post("/preview", budgetHandler.Preview)
				b.With(idem.Middleware, auditWrites).Post("/", budgetHandler.Create)
				b.Route("/{budgetID}", func(child chi.Router) {
					child.Get("/", budgetHandler.Get)
					child.With(auditWrites).Post("/enviar", budgetHandler.Send)
				})
			})

			p.Route("/reservas/{reservationID}", func(res chi.Router) {
				res.Use(idem.Middleware, auditWrites)
				res.Post("/confirmar", reservationHandler.Confirm)
				res.Post("/cancelar", reservationHandler.Cancel)
			})

			p.Route("/estoque", func(st chi.Router) {
				st.Get("/{productID}/disponibilidade", stockHandler.Availability)
				st.Get("/movimentacoes", stockHandler.Movements)
				st.With(auditWrites).Post("/movimentacoes", stockHandler.Record)
			})

			p.Route("/analytics", func(an chi.Router) {
				an.Get("/receita", analyticsHandler.Revenue)
				an.Get("/status", analyticsHandler.Statuses)
				an.Get("/mais-alugados", analyticsHandler.TopProducts)
				an.Get("/overview", analyticsHandler.Overview)
			})

			p.Route("/admin", func(admin chi.Router) {
				admin.Get("/webhooks/deliveries", notifyAdmin.ListDeliveries)
				admin.Post("/webhooks/deliveries/{deliveryID}/replay", notifyAdmin.ReplayDelivery)
				admin.Get("/queue/dlq", queueAdmin.ListDLQ)
				admin.Post("/queue/dlq/replay", queueAdmin.ReplayDLQ)
				admin.Get("/queue/stats", queueAdmin.Stats)
				admin.Get("/audit-logs", auditHandler.List)
			})
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		health.SetReady(false)
		drainCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(drainCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

func runMigrations(cfg *config.Config, logger zerolog.Logger) {
	path := strings.TrimSpace(cfg.MigrationsPath)
	if path == "" {
		return
	}
	m, err := migrate.New("file://"+path, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("open migrations")
	}
	defer m.Close()
	if err := app.RunMigrations(m); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/block", pprof.Handler("block"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	mux.Handle("/threadcreate", pprof.Handler("threadcreate"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
