// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telegram-media-generation/internal/config"
	"telegram-media-generation/internal/domain/ports/adapter"
	prov "telegram-media-generation/internal/infra/adapters/provider"
	tele "telegram-media-generation/internal/infra/adapters/telegram"
	pg "telegram-media-generation/internal/infra/db/postgres"
	"telegram-media-generation/internal/infra/logging"
	"telegram-media-generation/internal/infra/metrics"
	red "telegram-media-generation/internal/infra/redis"
	"telegram-media-generation/internal/infra/sched"
	"telegram-media-generation/internal/infra/web"
	"telegram-media-generation/internal/infra/worker"
	"telegram-media-generation/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				st := pool.Stat()
				metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
			}
		}
	}()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewPostgresUserRepo(pool)
	genRepo := pg.NewGenerationRepo(pool)
	txnRepo := pg.NewTransactionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	pricingRepo := pg.NewModelPricingRepoCacheDecorator(pg.NewModelPricingRepo(pool), redisClient)

	// ---- Use cases ----
	userUC := usecase.NewUserUseCase(userRepo, txnRepo, tm, logger)
	genUC := usecase.NewGenerationUseCase(userRepo, genRepo, txnRepo, pricingRepo, tm, cfg.Limits, logger)
	payUC := usecase.NewPaymentUseCase(payRepo, userRepo, txnRepo, tm, logger)
	pricingUC := usecase.NewPricingUseCase(pricingRepo, logger)

	// ---- Media providers (AIML default, Google for imagen/veo) ----
	byProvider := map[string]adapter.MediaProviderAdapter{}
	if cfg.Provider.AIMLKey != "" {
		aiml, err := prov.NewAIMLAdapter(cfg.Provider.AIMLKey, cfg.Provider.AIMLBaseURL, cfg.Provider.PollEvery)
		if err != nil {
			logger.Fatal().Err(err).Msg("aiml adapter")
		}
		byProvider["aiml"] = aiml
		logger.Info().Str("base", cfg.Provider.AIMLBaseURL).Msg("provider: aiml")
	}
	if cfg.Provider.GeminiKey != "" {
		google, err := prov.NewGoogleAdapter(ctx, cfg.Provider.GeminiKey, cfg.Provider.PollEvery)
		if err != nil {
			logger.Fatal().Err(err).Msg("google adapter")
		}
		byProvider["google"] = google
		logger.Info().Msg("provider: google")
	}
	if len(byProvider) == 0 {
		if !cfg.Runtime.Dev {
			logger.Fatal().Msg("no media provider configured: set provider.aiml_key or provider.gemini_key")
		}
		byProvider["noop"] = prov.NewNoopProviderAdapter()
		logger.Warn().Msg("provider: noop (dev)")
	}
	media := prov.NewMultiProviderAdapter("aiml", byProvider, nil)

	// ---- Telegram ----
	var bot adapter.TelegramNotifier
	if cfg.Telegram.Enabled {
		bot, err = tele.NewRealNotifier(&cfg.Telegram)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram")
		}
	} else {
		bot = tele.NewNoopNotifier()
	}

	// ---- Workers ----
	pool2 := worker.NewPool(cfg.Provider.Workers, cfg.Provider.QueueSize)
	pool2.Start(ctx)
	defer pool2.Stop()
	processor := worker.NewGenerationProcessor(genUC, media, bot, pool2, logger)

	sweeper := sched.NewSweeper(cfg.Limits.SweepEvery, genUC, logger)
	go func() { _ = sweeper.Run(ctx) }()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Security.JWTSecret, !cfg.Runtime.Dev, "", cfg.Security.TokenTTL)
	srv := web.NewServer(genUC, userUC, payUC, pricingUC, processor, rateLimiter, auth,
		cfg.Limits, cfg.Security, cfg.Telegram.AdminIDs, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
