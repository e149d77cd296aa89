package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	analysisclient "github.com/sustainabot/sustainabot/internal/adapter/analysis"
	"github.com/sustainabot/sustainabot/internal/adapter/github"
	"github.com/sustainabot/sustainabot/internal/adapter/gitlab"
	sbhttp "github.com/sustainabot/sustainabot/internal/adapter/http"
	otelx "github.com/sustainabot/sustainabot/internal/adapter/otel"
	"github.com/sustainabot/sustainabot/internal/adapter/ristretto"
	"github.com/sustainabot/sustainabot/internal/config"
	"github.com/sustainabot/sustainabot/internal/logger"
	"github.com/sustainabot/sustainabot/internal/report"
	"github.com/sustainabot/sustainabot/internal/resilience"
	"github.com/sustainabot/sustainabot/internal/service"
)

// tokenCacheSize bounds the installation token cache. Tokens are tiny;
// this is far more room than any real installation count needs.
const tokenCacheSize = 16 << 20

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"mode", cfg.Bot.Mode,
		"analysis_endpoint", cfg.Analysis.Endpoint,
	)

	mode := report.ParseMode(cfg.Bot.Mode)

	// --- Infrastructure ---

	tokenCache, err := ristretto.New(tokenCacheSize)
	if err != nil {
		return fmt.Errorf("token cache: %w", err)
	}

	metrics, err := otelx.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	shutdownTracer := otelx.InitTracer(cfg.Logging.Service)

	// --- Outbound clients ---

	ghClient := github.NewClient(cfg.GitHub.APIBaseURL)
	ghClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	glClient := gitlab.NewClient(cfg.GitLab.APIBaseURL, cfg.GitLab.APIToken)
	glClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	analyzer := analysisclient.NewClient(cfg.Analysis.Endpoint, cfg.Analysis.Timeout)
	analyzer.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	var privateKey []byte
	if cfg.GitHub.PrivateKeyPath != "" {
		privateKey, err = os.ReadFile(cfg.GitHub.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("read github private key: %w", err)
		}
	}
	creds := service.NewCredentialManager(cfg.GitHub.AppID, privateKey, ghClient, tokenCache)
	if !creds.Configured() {
		slog.Warn("github app credentials not configured, comments and check runs disabled")
	}
	if cfg.GitHub.WebhookSecret == "" {
		slog.Warn("webhook verification disabled: no secret configured", "platform", "github")
	}
	if cfg.GitLab.WebhookSecret == "" {
		slog.Warn("webhook verification disabled: no secret configured", "platform", "gitlab")
	}

	// --- Runtime and pipeline ---

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime := service.NewRuntime(cfg.Runtime.TickInterval, cfg.Runtime.Retention)
	runtime.Start(ctx)

	pipeline := service.NewPipeline(mode, analyzer, ghClient, glClient, creds, runtime, metrics)

	// --- HTTP ---

	handlers := &sbhttp.Handlers{
		Pipeline: pipeline,
		Runtime:  runtime,
		Metrics:  metrics,
		Mode:     mode,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(otelx.HTTPMiddleware(cfg.Logging.Service))

	sbhttp.MountRoutes(r, handlers, cfg.GitHub.WebhookSecret, cfg.GitLab.WebhookSecret)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		runtime.Dispatch(service.ShutdownRequested{})

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return shutdownTracer(shutdownCtx)
	})

	return g.Wait()
}
