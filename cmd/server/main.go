package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"popout/internal/api"
	"popout/internal/auth"
	"popout/internal/chat"
	"popout/internal/config"
	"popout/internal/db"
	"popout/internal/events"
	"popout/internal/janitor"
	"popout/internal/notify"
	"popout/internal/otp"
	"popout/internal/service"
	"popout/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	sqdb, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	defer sqdb.Close()
	if err := db.ApplyMigrationFile(sqdb, "migrations/001_init.sql"); err != nil {
		logger.Fatal("migration", zap.Error(err))
	}

	st := store.New(sqdb, cfg.DBDriver)
	codes := otp.New(cfg.OTPTTL())
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL())
	notifier := notify.New(cfg, logger)

	svc := service.New(cfg, st, codes, tokens, notifier, logger)
	ev := events.NewService(st, notifier, logger)
	hub := chat.NewHub(ev, logger)
	go hub.Run()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jan := janitor.New(st, codes, cfg.JanitorInterval(), cfg.JanitorGrace(), logger)
	go jan.Run(ctx)

	r := api.NewRouter(cfg, svc, ev, st, hub, sqdb, logger)

	hsrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadTimeout:       time.Duration(cfg.HTTPReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.HTTPReadHeaderTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTPWriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(cfg.HTTPIdleTimeoutSec) * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = hsrv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("db_driver", cfg.DBDriver))
	if err := hsrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.LogDev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
