package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lifesuite/internal/config"
	"lifesuite/internal/db"
	"lifesuite/internal/email"
	apihttp "lifesuite/internal/http"
	"lifesuite/internal/maintenance"
	"lifesuite/internal/repository"
	"lifesuite/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	var repo repository.AccountRepository
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("using in-memory account store; data is lost on restart")
		repo = repository.NewMemoryAccountRepository()
	default:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Ping(ctx, pool); err != nil {
			logger.Fatal("db ping", zap.Error(err))
		}
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("db schema", zap.Error(err))
		}
		repo = repository.NewPgAccountRepository(pool)
	}

	store, err := service.NewCredentialStore(repo, service.NewBcryptHasher(0), nil)
	if err != nil {
		logger.Fatal("credential store", zap.Error(err))
	}

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}
	dispatcher := email.NewDispatcher(emailSender, cfg.MailSendTimeout, logger)
	templates := email.Templates{BaseURL: cfg.AppBaseURL}

	mailLimiter := service.NewMemoryRateLimiter(cfg.MailRateWindow, cfg.MailRateMax)
	attempts := service.NewMemoryAttemptCounter()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory limits", zap.Error(err))
		} else {
			mailLimiter = service.NewRedisRateLimiter(redisClient, cfg.MailRateWindow, cfg.MailRateMax)
			attempts = service.NewRedisAttemptCounter(redisClient)
		}
		cancel()
	}

	issuer := service.NewTokenIssuer(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		service.WithIssuerName(cfg.JWTIssuer),
	)
	recovery := service.NewRecoveryService(logger, store, dispatcher, templates,
		service.WithVerificationTTL(cfg.VerificationTTL),
		service.WithPasswordResetTTL(cfg.PasswordResetTTL),
		service.WithRecoveryLimiter(mailLimiter),
	)
	twoFactor := service.NewTwoFactorService(logger, store, dispatcher, templates,
		service.WithTwoFactorTTL(cfg.TwoFactorTTL),
		service.WithTwoFactorAttempts(attempts, cfg.TwoFactorMaxAttempts),
		service.WithTwoFactorLimiter(mailLimiter),
	)
	authSvc := service.NewAuthService(logger, store, issuer, recovery, twoFactor, dispatcher, templates, cfg.MailWaitTimeout)

	cleaner := maintenance.NewCleaner(store, logger,
		maintenance.WithSchedule(cfg.CleanupSchedule),
		maintenance.WithGrace(cfg.CleanupGrace),
	)
	if err := cleaner.Start(); err != nil {
		logger.Fatal("maintenance scheduler", zap.Error(err))
	}

	router := apihttp.NewRouter(logger, apihttp.NewAuthHandler(logger, authSvc))
	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
	<-cleaner.Stop().Done()
	dispatcher.Wait()
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
