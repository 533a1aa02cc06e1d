package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/techhaven/backend-pos/internal/auth"
	"github.com/techhaven/backend-pos/internal/cart"
	"github.com/techhaven/backend-pos/internal/catalog"
	"github.com/techhaven/backend-pos/internal/common"
	"github.com/techhaven/backend-pos/internal/config"
	"github.com/techhaven/backend-pos/internal/customer"
	"github.com/techhaven/backend-pos/internal/db"
	"github.com/techhaven/backend-pos/internal/events"
	"github.com/techhaven/backend-pos/internal/health"
	"github.com/techhaven/backend-pos/internal/loyalty"
	"github.com/techhaven/backend-pos/internal/obs"
	"github.com/techhaven/backend-pos/internal/ratelimit"
	"github.com/techhaven/backend-pos/internal/report"
	"github.com/techhaven/backend-pos/internal/settlement"
	"github.com/techhaven/backend-pos/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "pos-api",
			Endpoint:      cfg.TracingEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(startCtx, cfg.DatabaseURL, "pos-api")
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(startCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	st := postgres.New(pool)
	validate := validator.New()

	bus := &events.Bus{
		Store:     st,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}

	settlementSvc := &settlement.Service{
		Store:      st,
		Events:     bus,
		MaxRetries: cfg.SettlementRetries,
		Timeout:    cfg.SettlementTimeout,
		Log:        logger,
	}
	settlementHandler := settlement.NewHandler(settlement.HandlerConfig{Service: settlementSvc, Validate: validate})

	catalogSvc := &catalog.Service{
		Store: st,
		Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Log:   logger,
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: catalogSvc, Validate: validate})

	customerSvc := &customer.Service{Store: st, Log: logger}
	customerHandler := customer.NewHandler(customerSvc, validate)

	cartSvc := &cart.Service{Store: st, Log: logger}
	cartHandler := cart.NewHandler(cartSvc, validate)

	loyaltySvc := &loyalty.Service{Store: st, Events: bus, Log: logger}
	loyaltyHandler := loyalty.NewHandler(loyaltySvc, validate)

	reportSvc := &report.Service{Store: st, Redis: redisClient, TTL: cfg.ReportCacheTTL, Log: logger}
	reportHandler := report.NewHandler(reportSvc)

	authSvc, err := auth.NewService(auth.Config{
		Staff:          st,
		Secret:         cfg.JWTSecret,
		AccessTokenTTL: cfg.AccessTokenTTL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise auth service")
	}
	authHandler := auth.NewHandler(authSvc, validate)
	authMW := auth.Middleware{Service: authSvc}

	loginLimiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "ratelimit:login:"},
		Config: ratelimit.Config{
			Key:    common.ClientIP,
			Window: cfg.LoginRateWindow,
			Max:    cfg.LoginRateMax,
		},
		OnError: func(err error) { logger.Error().Err(err).Msg("login rate limiter") },
	}

	httpMetrics := obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPassword))

	healthHandler := health.Handler{Checker: health.Probes{Pool: pool, Redis: redisClient}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	staffOnly := authMW.RequireAuth
	managers := authMW.RequireRole(auth.RoleManager, auth.RoleAdmin)
	admins := authMW.RequireRole(auth.RoleAdmin)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/auth", func(a chi.Router) {
			a.With(loginLimiter.Middleware).Post("/login", authHandler.Login)
			a.With(admins).Post("/register", authHandler.Register)
			a.With(staffOnly).Get("/me", authHandler.Me)
		})

		v.Route("/products", func(p chi.Router) {
			p.Get("/", catalogHandler.Products)
			p.Get("/low-stock", catalogHandler.LowStock)
			p.Get("/{id}", catalogHandler.ProductDetail)
			p.Group(func(w chi.Router) {
				w.Use(managers)
				w.Post("/", catalogHandler.CreateProduct)
				w.Put("/{id}", catalogHandler.UpdateProduct)
				w.Delete("/{id}", catalogHandler.DeleteProduct)
				w.Post("/{id}/restore", catalogHandler.RestoreProduct)
			})
		})

		v.Route("/customers", func(c chi.Router) {
			c.Use(staffOnly)
			c.Get("/", customerHandler.Customers)
			c.Post("/", customerHandler.CreateCustomer)
			c.Get("/{id}", customerHandler.CustomerDetail)
			c.Put("/{id}", customerHandler.UpdateCustomer)
			c.With(managers).Delete("/{id}", customerHandler.DeleteCustomer)
			c.With(managers).Post("/{id}/restore", customerHandler.RestoreCustomer)
			c.Get("/{id}/history", customerHandler.History)

			c.Post("/{id}/redeem", loyaltyHandler.Redeem)
			c.Post("/{id}/reconcile-tier", loyaltyHandler.ReconcileTier)

			c.Route("/{id}/cart", func(ct chi.Router) {
				ct.Get("/", cartHandler.Get)
				ct.Get("/estimate", cartHandler.Estimate)
				ct.Post("/", cartHandler.Add)
				ct.Put("/{productID}", cartHandler.SetQuantity)
				ct.Delete("/{productID}", cartHandler.Remove)
				ct.Delete("/", cartHandler.Clear)
			})
		})

		v.Group(func(s chi.Router) {
			s.Use(staffOnly)
			s.Post("/sales", settlementHandler.SettleSale)
			s.Post("/returns", settlementHandler.SettleReturn)
			s.Get("/returns", settlementHandler.Returns)
			s.Get("/transactions/{id}", settlementHandler.Receipt)
		})

		v.Route("/reports", func(rep chi.Router) {
			rep.Use(managers)
			rep.Get("/daily", reportHandler.Daily)
			rep.Get("/range", reportHandler.Range)
			rep.Get("/tiers", reportHandler.ByTier)
			rep.Get("/inventory", reportHandler.Inventory)
			rep.Get("/export", reportHandler.ExportCSV)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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
