package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/wardmail/accountlink/internal/accounts"
	"github.com/wardmail/accountlink/internal/authflow"
	"github.com/wardmail/accountlink/internal/provider"
	"github.com/wardmail/accountlink/internal/refresh"
	"github.com/wardmail/accountlink/internal/session"
	"github.com/wardmail/accountlink/internal/tokenstore"
)

// Version is set by the build process
var Version = "dev"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Error("loading configuration", slog.Any("error", err))
		os.Exit(1)
	}

	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		logger.Error("decoding encryption key", slog.Any("error", err))
		os.Exit(1)
	}
	cipher, err := tokenstore.NewAESCipher(key)
	if err != nil {
		logger.Error("creating cipher", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("parsing Redis URL", slog.Any("error", err))
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("connecting to Redis", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := tokenstore.OpenPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("connecting to database", slog.Any("error", err))
		os.Exit(1)
	}

	records := tokenstore.NewPostgresRecords(db)
	if err := records.EnsureSchema(ctx); err != nil {
		logger.Error("ensuring token schema", slog.Any("error", err))
		os.Exit(1)
	}
	tokens := tokenstore.NewStore(records, cipher, logger)

	accountStore := accounts.NewPostgresStore(db)
	if err := accountStore.EnsureSchema(ctx); err != nil {
		logger.Error("ensuring accounts schema", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := session.NewManager(
		session.NewRedisStore(redisClient),
		[]byte(cfg.SessionSigningKey),
		cfg.SessionIssuer,
		cfg.SessionTTL,
	)

	idp := buildProvider(cfg)

	registry := authflow.NewRegistry(
		authflow.WithSweepInterval(cfg.SweepInterval),
		authflow.WithRegistryLogger(logger),
	)
	defer registry.Close()

	orchestrator := authflow.NewOrchestrator(registry, idp, cfg.DeviceAuthEnabled,
		authflow.WithCallbackTimeout(cfg.CallbackTimeout),
		authflow.WithOrchestratorLogger(logger),
	)

	limiter := authflow.NewRedisPollLimiter(redisClient, cfg.PollRateWindow, cfg.MaxPollsPerWindow, logger)
	linker := accounts.NewLinker(accountStore, tokens, sessions, logger)

	poller := authflow.NewPollCoordinator(registry, linker,
		authflow.WithPollWait(cfg.PollWait),
		authflow.WithCompletionTTL(cfg.CompletionTTL),
		authflow.WithPollLimiter(limiter),
		authflow.WithPollLogger(logger),
	)

	chain := refresh.NewChain(tokens, idp, refresh.WithChainLogger(logger))

	srv := newServer(cfg, serverDeps{
		orchestrator: orchestrator,
		poller:       poller,
		chain:        chain,
		sessions:     sessions,
		tokens:       tokens,
		accounts:     accountStore,
		limiter:      limiter,
		devProvider:  devProviderOrNil(idp),
		logger:       logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.Int("port", cfg.Port),
			slog.String("version", Version))
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server failed", slog.Any("error", err))
		os.Exit(1)

	case <-shutdown:
		logger.Info("starting shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Error("shutting down server", slog.Any("error", err))
			if err := httpServer.Close(); err != nil {
				logger.Error("closing server", slog.Any("error", err))
			}
		}

		registry.Close()
		if err := redisClient.Close(); err != nil {
			logger.Error("closing Redis connection", slog.Any("error", err))
		}
		if err := db.Close(); err != nil {
			logger.Error("closing database connection", slog.Any("error", err))
		}
	}
}

func buildProvider(cfg Config) provider.Provider {
	if cfg.DevMode {
		return provider.NewDevProvider(cfg.Provider.Name, cfg.DevVerificationURI, 15*time.Minute)
	}
	return provider.NewOAuth2Provider(provider.OAuth2Config{
		Name:          cfg.Provider.Name,
		ClientID:      cfg.Provider.ClientID,
		ClientSecret:  cfg.Provider.ClientSecret,
		AuthURL:       cfg.Provider.AuthURL,
		DeviceAuthURL: cfg.Provider.DeviceAuthURL,
		TokenURL:      cfg.Provider.TokenURL,
		Scopes:        cfg.Provider.Scopes,
	})
}

func devProviderOrNil(p provider.Provider) *provider.DevProvider {
	if dev, ok := p.(*provider.DevProvider); ok {
		return dev
	}
	return nil
}
