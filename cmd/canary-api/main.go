/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// canary-api is the prompt canary engine binary: HTTP API, health probes, and
// Prometheus metrics, backed by Postgres with an optional Redis cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/canarylabs/promptcanary/internal/prompt/analytics"
	"github.com/canarylabs/promptcanary/internal/prompt/api"
	"github.com/canarylabs/promptcanary/internal/prompt/canary"
	"github.com/canarylabs/promptcanary/internal/prompt/llm"
	"github.com/canarylabs/promptcanary/internal/prompt/optimizer"
	canarypg "github.com/canarylabs/promptcanary/internal/prompt/postgres"
	pgprovider "github.com/canarylabs/promptcanary/internal/prompt/providers/postgres"
	"github.com/canarylabs/promptcanary/internal/prompt/providers/redis"
	"github.com/canarylabs/promptcanary/internal/tracing"
	"github.com/canarylabs/promptcanary/pkg/logging"
	"github.com/canarylabs/promptcanary/pkg/metrics"
)

// flags groups all CLI flags for the canary-api binary.
type flags struct {
	apiAddr     string
	healthAddr  string
	metricsAddr string

	databaseURL string
	redisAddrs  string

	openaiAPIKey  string
	openaiBaseURL string
	openaiModel   string

	webhookURL string

	canaryMinSamples  int
	canaryThreshold   float64
	defaultWindowDays int

	rateLimitRequests int
	rateLimitWindow   time.Duration

	tracingEnabled bool
	otlpEndpoint   string
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.apiAddr, "listen-addr", ":8080", "API server listen address")
	flag.StringVar(&f.healthAddr, "health-addr", ":8081", "Health probe listen address")
	flag.StringVar(&f.metricsAddr, "metrics-addr", ":9090", "Metrics server listen address")
	flag.StringVar(&f.databaseURL, "database-url", "", "Postgres connection string")
	flag.StringVar(&f.redisAddrs, "redis-addr", "", "Redis addresses (comma-separated, empty disables caching)")
	flag.StringVar(&f.openaiAPIKey, "openai-api-key", "", "OpenAI API key (empty serves fallback judgments)")
	flag.StringVar(&f.openaiBaseURL, "openai-base-url", "", "OpenAI API base URL override")
	flag.StringVar(&f.openaiModel, "openai-model", "", "Chat model for judge and rewrite calls")
	flag.StringVar(&f.webhookURL, "webhook-url", "", "Rollback notification webhook URL (empty disables)")
	flag.IntVar(&f.canaryMinSamples, "canary-min-samples", canary.DefaultMinSamples, "Minimum canary samples before a rollback decision")
	flag.Float64Var(&f.canaryThreshold, "canary-threshold", canary.DefaultThreshold, "Fraction of active performance the canary must hold")
	flag.IntVar(&f.defaultWindowDays, "default-window-days", canary.DefaultWindowDays, "Evaluation aggregation window in days")
	flag.IntVar(&f.rateLimitRequests, "rate-limit-requests", 100, "Requests allowed per rate limit window (0 disables)")
	flag.DurationVar(&f.rateLimitWindow, "rate-limit-window", time.Minute, "Rate limit window")
	flag.BoolVar(&f.tracingEnabled, "tracing-enabled", false, "Enable OTLP trace export")
	flag.StringVar(&f.otlpEndpoint, "otlp-endpoint", "localhost:4317", "OTLP collector endpoint")
	flag.Parse()

	f.applyEnvFallbacks()
	return f
}

// applyEnvFallbacks applies environment variable overrides to flag defaults.
func (f *flags) applyEnvFallbacks() {
	envFallback(&f.apiAddr, ":8080", "LISTEN_ADDR")
	envFallback(&f.healthAddr, ":8081", "HEALTH_ADDR")
	envFallback(&f.metricsAddr, ":9090", "METRICS_ADDR")
	envFallback(&f.databaseURL, "", "DATABASE_URL")
	envFallback(&f.redisAddrs, "", "REDIS_ADDR")
	envFallback(&f.openaiAPIKey, "", "OPENAI_API_KEY")
	envFallback(&f.openaiBaseURL, "", "OPENAI_BASE_URL")
	envFallback(&f.openaiModel, "", "OPENAI_MODEL")
	envFallback(&f.webhookURL, "", "WEBHOOK_URL")
	envFallback(&f.otlpEndpoint, "localhost:4317", "OTLP_ENDPOINT")

	envIntFallback(&f.canaryMinSamples, canary.DefaultMinSamples, "CANARY_MIN_SAMPLES")
	envFloatFallback(&f.canaryThreshold, canary.DefaultThreshold, "CANARY_THRESHOLD")
	envIntFallback(&f.defaultWindowDays, canary.DefaultWindowDays, "DEFAULT_WINDOW_DAYS")
	envIntFallback(&f.rateLimitRequests, 100, "RATE_LIMIT_REQUESTS")
	envDurationFallback(&f.rateLimitWindow, time.Minute, "RATE_LIMIT_WINDOW")
	envBoolFallback(&f.tracingEnabled, "TRACING_ENABLED")
}

// envFallback sets *dst from the environment variable envKey when *dst still
// equals the default value and the environment variable is non-empty.
func envFallback(dst *string, defaultVal, envKey string) {
	if *dst == defaultVal {
		if v := os.Getenv(envKey); v != "" {
			*dst = v
		}
	}
}

func envIntFallback(dst *int, defaultVal int, envKey string) {
	if *dst != defaultVal {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloatFallback(dst *float64, defaultVal float64, envKey string) {
	if *dst != defaultVal {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = x
		}
	}
}

func envDurationFallback(dst *time.Duration, defaultVal time.Duration, envKey string) {
	if *dst != defaultVal {
		return
	}
	if v := os.Getenv(envKey); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// envBoolFallback enables a boolean flag from an environment variable when
// the flag is still false and the env var is "true".
func envBoolFallback(dst *bool, envKey string) {
	if !*dst && os.Getenv(envKey) == "true" {
		*dst = true
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	f := parseFlags()

	// --- Logger ---
	log, syncLog, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer syncLog()

	// --- Validate ---
	if f.databaseURL == "" {
		return fmt.Errorf("--database-url or DATABASE_URL is required")
	}

	// --- Signal context ---
	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	// --- Postgres pool ---
	pool, err := initPool(ctx, f.databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	// --- Migrations ---
	if err := runMigrations(f.databaseURL, log); err != nil {
		return err
	}
	log.V(1).Info("migrations complete")

	// --- Tracing ---
	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:     f.tracingEnabled,
		Endpoint:    f.otlpEndpoint,
		ServiceName: "canary-api",
		Insecure:    true,
	})
	if err != nil {
		return fmt.Errorf("creating tracing provider: %w", err)
	}
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = tp.Shutdown(shutCtx)
	}()

	// --- Metrics registry ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// --- Redis cache (optional) ---
	cache := initCache(f, log)
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	// --- Engine wiring ---
	store := pgprovider.NewFromPool(pool)
	mux := buildAPIMux(f, store, cache, tp, registry, log)

	// --- Servers ---
	healthSrv := newHealthServer(f.healthAddr, pool)
	metricsSrv := newMetricsServer(f.metricsAddr, registry)
	apiSrv := &http.Server{Addr: f.apiAddr, Handler: mux}

	startHTTPServer(log, "health", f.healthAddr, healthSrv)
	startHTTPServer(log, "metrics", f.metricsAddr, metricsSrv)
	startHTTPServer(log, "canary API", f.apiAddr, apiSrv)

	log.Info("canary-api ready",
		"api", f.apiAddr,
		"health", f.healthAddr,
		"metrics", f.metricsAddr,
		"redis", f.redisAddrs != "",
		"webhook", f.webhookURL != "",
		"tracing", f.tracingEnabled,
	)

	// --- Wait for shutdown ---
	<-ctx.Done()
	log.Info("shutting down")

	shutdownServers(log, apiSrv, healthSrv, metricsSrv)
	return nil
}

// buildAPIMux assembles the engine services and the HTTP handler, wrapped
// with the request-id, rate-limit, and metrics middleware.
func buildAPIMux(f *flags, store *pgprovider.Provider, cache *redis.Provider, tp *tracing.Provider, registry *prometheus.Registry, log logr.Logger) http.Handler {
	model := f.openaiModel
	if model == "" {
		model = llm.DefaultModel
	}

	canaryMetrics := metrics.NewCanaryMetricsWithRegisterer(registry)
	llmMetrics := metrics.NewLLMMetricsWithRegisterer(registry, metrics.LLMMetricsConfig{Model: model})
	httpMetrics := metrics.NewHTTPMetricsWithRegisterer(registry)

	judge := llm.NewClient(llm.Config{
		APIKey:  f.openaiAPIKey,
		BaseURL: f.openaiBaseURL,
		Model:   f.openaiModel,
	},
		llm.WithLogger(log.WithName("llm")),
		llm.WithMetrics(llmMetrics),
		llm.WithTracing(tp),
	)

	router := canary.NewRouter(store,
		canary.WithRouterMetrics(canaryMetrics),
		canary.WithRouterLogger(log.WithName("router")),
	)

	var notifier *canary.Notifier
	if f.webhookURL != "" {
		notifier = canary.NewNotifier(f.webhookURL,
			canary.WithNotifierMetrics(canaryMetrics),
			canary.WithNotifierLogger(log.WithName("webhook")),
		)
	}

	controllerOpts := []canary.ControllerOption{
		canary.WithControllerMetrics(canaryMetrics),
		canary.WithControllerLogger(log.WithName("controller")),
	}
	if notifier != nil {
		controllerOpts = append(controllerOpts, canary.WithNotifier(notifier))
	}
	controller := canary.NewController(store, canary.ControllerConfig{
		MinSamples: f.canaryMinSamples,
		Threshold:  f.canaryThreshold,
		WindowDays: f.defaultWindowDays,
	}, controllerOpts...)

	opt := optimizer.New(store, judge, judge,
		optimizer.WithLogger(log.WithName("optimizer")),
	)

	reporterOpts := []analytics.ReporterOption{
		analytics.WithReporterLogger(log.WithName("analytics")),
	}
	if cache != nil {
		reporterOpts = append(reporterOpts, analytics.WithCache(cache))
	}
	reporter := analytics.NewReporter(store, judge, reporterOpts...)

	serviceOpts := []api.ServiceOption{
		api.WithServiceLogger(log.WithName("pipeline")),
	}
	if cache != nil {
		serviceOpts = append(serviceOpts, api.WithJudgeCache(cache))
	}
	pipeline := api.NewAnalyzeService(store, router, judge, serviceOpts...)

	handler := api.NewHandler(pipeline, controller, opt, reporter, log)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	var h http.Handler = mux
	h = api.MetricsMiddleware(httpMetrics, h)
	h = api.RateLimitMiddleware(f.rateLimitRequests, f.rateLimitWindow, httpMetrics, h)
	h = api.RequestIDMiddleware(h)
	return h
}

// Pool configuration defaults.
const (
	defaultMaxConns        = 10
	defaultMinConns        = 2
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
)

// initPool creates a pgxpool connection pool with limits read from
// PG_MAX_CONNS, PG_MIN_CONNS, PG_MAX_CONN_LIFETIME, and PG_MAX_CONN_IDLE_TIME.
func initPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres connection string: %w", err)
	}

	poolCfg.MaxConns = envInt32("PG_MAX_CONNS", defaultMaxConns)
	poolCfg.MinConns = envInt32("PG_MIN_CONNS", defaultMinConns)
	poolCfg.MaxConnLifetime = envDuration("PG_MAX_CONN_LIFETIME", defaultMaxConnLifetime)
	poolCfg.MaxConnIdleTime = envDuration("PG_MAX_CONN_IDLE_TIME", defaultMaxConnIdleTime)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	return pool, nil
}

// envInt32 reads an environment variable as int32, returning def on missing/invalid values.
func envInt32(key string, def int32) int32 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return def
	}
	return int32(n)
}

// envDuration reads an environment variable as a time.Duration, returning def on missing/invalid.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// runMigrations applies database schema migrations.
func runMigrations(connStr string, log logr.Logger) error {
	migrator, err := canarypg.NewMigrator(connStr, log)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	return nil
}

// initCache creates the Redis cache provider, or returns nil when no Redis
// address is configured or Redis is unreachable. The cache is strictly an
// accelerator, so a failed connection degrades to running uncached instead
// of failing startup.
func initCache(f *flags, log logr.Logger) *redis.Provider {
	if f.redisAddrs == "" {
		log.V(1).Info("redis not configured, running uncached")
		return nil
	}

	cfg := redis.DefaultConfig()
	cfg.Addrs = strings.Split(f.redisAddrs, ",")
	cache, err := redis.New(cfg)
	if err != nil {
		log.Error(err, "redis unreachable, running uncached", "addrs", cfg.Addrs)
		return nil
	}
	log.V(1).Info("redis cache initialized", "addrs", cfg.Addrs)
	return cache
}

// newMetricsServer creates a dedicated HTTP server for Prometheus metrics.
func newMetricsServer(addr string, registry *prometheus.Registry) *http.Server {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: metricsMux}
}

// newHealthServer creates an HTTP server for health and readiness probes.
func newHealthServer(addr string, pool *pgxpool.Pool) *http.Server {
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	healthMux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("postgres unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: healthMux}
}

// startHTTPServer starts an HTTP server in a background goroutine.
func startHTTPServer(log logr.Logger, name, addr string, srv *http.Server) {
	go func() {
		log.Info("starting server", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "server error", "server", name)
		}
	}()
}

// shutdownServers gracefully stops all servers with a 30-second timeout.
func shutdownServers(log logr.Logger, servers ...*http.Server) {
	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()

	for _, srv := range servers {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutCtx); err != nil {
			log.Error(err, "server shutdown error", "addr", srv.Addr)
		}
	}
}
