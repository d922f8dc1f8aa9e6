package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pauljones0/creator-deal-tracker/internal/ai"
	"github.com/pauljones0/creator-deal-tracker/internal/api"
	"github.com/pauljones0/creator-deal-tracker/internal/brief"
	"github.com/pauljones0/creator-deal-tracker/internal/cache"
	"github.com/pauljones0/creator-deal-tracker/internal/config"
	"github.com/pauljones0/creator-deal-tracker/internal/digest"
	"github.com/pauljones0/creator-deal-tracker/internal/enrichment"
	"github.com/pauljones0/creator-deal-tracker/internal/notifier"
	"github.com/pauljones0/creator-deal-tracker/internal/storage"
	"github.com/pauljones0/creator-deal-tracker/internal/tracker"
)

type closableStore interface {
	tracker.DealStore
	io.Closer
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Critical error loading configuration", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg)
	slog.Info("Starting creator deal tracker...", "backend", cfg.StorageBackend)

	ctx := context.Background()
	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing storage", "backend", cfg.StorageBackend, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	transport, err := newTransport(ctx, cfg)
	if err != nil {
		slog.Error("Critical error initializing enrichment transport", "error", err)
		os.Exit(1)
	}

	gatewayOpts := []enrichment.Option{enrichment.WithTimeout(cfg.AITimeout)}
	if redisCache := cache.NewRedis(cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}); redisCache != nil {
		defer redisCache.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisCache.Ping(pingCtx); err != nil {
			slog.Warn("Redis not reachable, enrichment cache lookups will miss until it is", "addr", cfg.RedisAddr, "error", err)
		}
		cancel()
		gatewayOpts = append(gatewayOpts, enrichment.WithCache(redisCache, cfg.EnrichmentCacheTTL))
	}
	gateway := enrichment.NewGateway(transport, gatewayOpts...)

	svc := tracker.New(store, gateway,
		tracker.WithBriefFetcher(brief.NewFetcher(cfg.BriefAllowedHosts, brief.AllowPrivateNetworks(cfg.BriefAllowPrivate))),
		tracker.WithDefaultInterval(cfg.DefaultFollowUpDays),
	)

	var sender digest.Sender
	if n := notifier.New(cfg.DiscordWebhookURL); n.Enabled() {
		sender = n
	}
	runner := digest.New(svc, sender,
		digest.WithOwners(cfg.DigestOwnerIDs),
		digest.WithConcurrency(cfg.DigestConcurrency),
	)

	if cfg.DigestSchedule != "" {
		scheduler, err := runner.Schedule(cfg.DigestSchedule)
		if err != nil {
			slog.Error("Critical error scheduling digests", "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
		slog.Info("Attention digests scheduled", "schedule", cfg.DigestSchedule, "owners", len(cfg.DigestOwnerIDs))
	}

	handler := api.New(svc, runner,
		api.WithCORS(cfg.CORSAllowedOrigins),
		api.WithRequestTimeout(cfg.RequestTimeout),
	)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGTERM/SIGINT
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		sig := <-sigCh
		slog.Info("Received signal, shutting down gracefully...", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		}
	}()

	slog.Info("Listening on port", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("Failed to listen and serve", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped.")
}

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func openStore(ctx context.Context, cfg *config.Config) (closableStore, error) {
	if cfg.StorageBackend == config.BackendPostgres {
		store, err := storage.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
	store, err := storage.NewFirestore(ctx, cfg.ProjectID)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// newTransport prefers the hosted enrichment service over direct Gemini calls.
// A nil transport makes every enrichment fall back.
func newTransport(ctx context.Context, cfg *config.Config) (enrichment.Transport, error) {
	if t := ai.NewHTTPTransport(cfg.AIServiceURL, cfg.AIServiceToken, cfg.AIMaxRetries); t != nil {
		slog.Info("Using hosted enrichment service", "endpoint", cfg.AIServiceURL)
		return t, nil
	}
	g, err := ai.NewGeminiTransport(ctx, ai.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel})
	if err != nil {
		return nil, err
	}
	if g != nil {
		slog.Info("Using Gemini for enrichment", "model", cfg.GeminiModel)
		return g, nil
	}
	slog.Warn("No enrichment transport configured, using fallback results")
	return nil, nil
}
