package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"zapgw/internal/config"
	"zapgw/internal/correlate"
	"zapgw/internal/crypt"
	"zapgw/internal/domain"
	"zapgw/internal/httpapi"
	"zapgw/internal/logging"
	"zapgw/internal/media"
	"zapgw/internal/observability"
	"zapgw/internal/pipeline"
	"zapgw/internal/presence"
	"zapgw/internal/providers"
	"zapgw/internal/providers/cloudapi"
	"zapgw/internal/providers/evolution"
	"zapgw/internal/providers/twilio"
	"zapgw/internal/receipts"
	"zapgw/internal/report"
	"zapgw/internal/store/pg"
	"zapgw/internal/tenant"
	"zapgw/internal/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg := config.LoadGateway()
	logging.Init("gateway", cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
		MaxConns:        cfg.DBPoolMaxConns,
		MinConns:        cfg.DBPoolMinConns,
		MaxConnLifetime: cfg.DBPoolMaxConnLifetime,
		MaxConnIdleTime: cfg.DBPoolMaxConnIdleTime,
	})
	if err != nil {
		slog.Error("gateway db connect failed", "err", err)
		os.Exit(1)
	}

	acquireWait, err := time.ParseDuration(cfg.DBPoolAcquireTimeout)
	if err != nil {
		slog.Error("invalid DB_POOL_ACQUIRE_TIMEOUT", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	observability.Register(prometheus.DefaultRegisterer)

	httpTimeout, err := time.ParseDuration(cfg.HTTPTimeout)
	if err != nil {
		slog.Error("invalid HTTP_TIMEOUT", "err", err)
		os.Exit(1)
	}
	client := &http.Client{Timeout: httpTimeout}

	codec, err := crypt.New(cfg.CredentialKey)
	if err != nil {
		slog.Error("credential codec init failed", "err", err)
		os.Exit(1)
	}
	st := pg.New(db, codec).Gate(cfg.DBPoolMaxConns, acquireWait)

	evo := &evolution.Client{
		HTTP:    client,
		Breaker: providers.NewBreaker("evolution"),
		Colocation: providers.Colocation{
			ContainerHost: cfg.EvolutionContainerHost,
			HostPort:      cfg.EvolutionHostPort,
		},
	}
	cloud := &cloudapi.Client{HTTP: client, Breaker: providers.NewBreaker("cloudapi")}
	tel := &twilio.Client{HTTP: client, Breaker: providers.NewBreaker("twilio")}

	writer := &pipeline.Writer{Store: st}
	pipe := &pipeline.Pipeline{
		Store:  st,
		Writer: writer,
		Media: &media.Resolver{
			PublicBase:      cfg.PublicBaseURL,
			StaticDir:       cfg.StaticDir,
			MaxDataURIBytes: cfg.MaxDataURIBytes,
		},
		Adapters: map[domain.ProviderKind]pipeline.Adapter{
			domain.ProviderEvolution: evo,
			domain.ProviderCloudAPI:  cloud,
			domain.ProviderTwilio:    tel,
		},
		DefaultCC:     cfg.DefaultCountryCode,
		OptInEnforced: cfg.OptInEnforcement,
	}

	reconciler := &receipts.Reconciler{Store: st}
	correlator := &correlate.Correlator{Store: st, Writer: writer}
	pres := &presence.Cache{RDB: rdb}

	s := httpapi.New()
	resolver := tenant.NewResolver(st, cfg.DefaultTenantSlug)
	s.Mux.Use(httpapi.WithTenant(resolver))
	s.Mux.Use(httpapi.RateLimit(cfg.RateRPS, cfg.RateBurst))
	s.Mux.Use(httpapi.Metrics(observability.APIRequests))

	api := &httpapi.API{
		Pipeline: pipe,
		Probe:    evo,
		Configs:  st,
		Grid:     &report.Materializer{Store: st, Reconciler: reconciler, Presence: pres, MaxVoterRows: 5000},
	}
	api.Register(s.Mux)

	wh := &httpapi.Webhook{
		Configs:    st,
		Reconciler: reconciler,
		Correlator: correlator,
		Writer:     writer,
		Dedup:      &webhook.Dedup{RDB: rdb},
		Presence:   pres,
		PublicURL:  cfg.PublicBaseURL,
	}
	wh.Register(s.Mux)

	root := mainMux(cfg, s, db.Ping)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Logging(root),
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("gateway shutdown", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("gateway server failed", "err", err)
		os.Exit(1)
	}

	db.Close()
	_ = rdb.Close()
}

func mainMux(cfg config.GatewayConfig, s *httpapi.Server, ping func(context.Context) error) http.Handler {
	root := http.NewServeMux()
	root.HandleFunc("/healthz", httpapi.Healthz())
	root.HandleFunc("/readyz", httpapi.Readyz(0, ping))
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	root.Handle("/", s.Mux)
	return root
}
