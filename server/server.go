package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"songforge/cache"
	"songforge/config"
	"songforge/core/auth"
	"songforge/core/billing"
	"songforge/core/generation"
	"songforge/core/ledger"
	"songforge/core/playback"
	"songforge/db"
	"songforge/events"
	"songforge/logger"
	"songforge/repository"
	"songforge/storage"

	"github.com/robfig/cron/v3"
)

// Start builds every collaborator from cfg and serves HTTP until SIGINT or SIGTERM.
func Start(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	ctx := context.Background()

	gdb, err := db.ConnectGormDB(cfg)
	if err != nil {
		return err
	}
	defer db.CloseGormDB(gdb)

	if err := db.AutoMigrate(gdb); err != nil {
		return err
	}

	cacheClient, err := db.ConnectRedis(cfg)
	if err != nil {
		return err
	}
	defer cacheClient.Close()

	streamClient, err := db.ConnectStreamRedis(cfg)
	if err != nil {
		return err
	}
	defer streamClient.Close()
	logger.Info("[Server] Redis 连接成功", logger.String("addr", cfg.RedisAddr()))

	signer, err := storage.NewSigner(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	songRepo := repository.NewGormSongRepository(gdb)
	userRepo := repository.NewGormUserRepository(gdb)
	creditRepo := repository.NewGormCreditRepository(gdb)

	lists := cache.NewSongListCache(cacheClient)
	balances := cache.NewBalanceCache(cacheClient)
	dispatcher := events.NewRedisStreamDispatcher(streamClient, cfg.GenerationStream, events.DefaultStreamMaxLen)

	catalog := ledger.NewCatalog(cfg.ProductSmall, cfg.ProductMedium, cfg.ProductLarge)

	var verifier *billing.Verifier
	if cfg.PolarWebhookSecret != "" {
		if verifier, err = billing.NewVerifier(cfg.PolarWebhookSecret); err != nil {
			return fmt.Errorf("invalid POLAR_WEBHOOK_SECRET: %w", err)
		}
	} else {
		logger.Warn("[Server] POLAR_WEBHOOK_SECRET not set, billing webhook disabled")
	}

	apiHandler := NewAPIHandler(Deps{
		Intake:         generation.NewIntake(songRepo, dispatcher, lists),
		Links:          playback.NewIssuer(songRepo, signer, cfg.SignedURLTTL),
		Ledger:         ledger.New(catalog, creditRepo, balances),
		Songs:          songRepo,
		Users:          userRepo,
		Lists:          lists,
		Balances:       balances,
		Tokens:         auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL),
		Verifier:       verifier,
		NewUserCredits: cfg.NewUserCredits,
	})
	limiter := NewRateLimiter(cfg.GenerateRatePerMin, cfg.GenerateBurst)

	// 后台任务
	scheduler := cron.New()
	sweeper := generation.NewSweeper(songRepo, dispatcher, lists, cfg.SweepStaleAfter, cfg.SweepGiveUp)
	if _, err := sweeper.Schedule(scheduler, cfg.SweepSchedule); err != nil {
		return fmt.Errorf("invalid SWEEP_SCHEDULE %q: %w", cfg.SweepSchedule, err)
	}
	if _, err := scheduler.AddFunc("@every 10m", limiter.Cleanup); err != nil {
		return err
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      corsMiddleware(NewRouter(apiHandler, limiter)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 创建一个通道来接收操作系统信号
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	serveErr := make(chan error, 1)

	go func() {
		logger.Info("[Server] 服务启动", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-stop:
	}
	logger.Info("[Server] Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("[Server] Server stopped")
	return nil
}
