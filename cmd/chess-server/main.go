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

	"go.uber.org/zap"

	"github.com/park285/chessplay/internal/adapter/chesspresenter"
	"github.com/park285/chessplay/internal/chessbuilder"
	"github.com/park285/chessplay/internal/config"
	"github.com/park285/chessplay/internal/obslog"
	"github.com/park285/chessplay/internal/playws"
	"github.com/park285/chessplay/internal/server"
	"github.com/park285/chessplay/internal/session"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	deps, err := chessbuilder.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("chess init error", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("close dependencies", zap.Error(err))
		}
	}()

	api := server.New(deps.ServerConfig(0, logger.Named("http")))

	settings := session.DefaultSettings()
	if cfg.PlayDefaultStrength > 0 {
		settings.Difficulty = ""
		settings.Strength = cfg.PlayDefaultStrength
	}
	play, err := playws.NewHandler(playws.Config{
		Requester:      deps.Requester(),
		Formatter:      chesspresenter.NewFormatter(deps.Messages),
		Settings:       settings,
		RequestTimeout: cfg.PlayRequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger.Named("play"),
	})
	if err != nil {
		logger.Fatal("play handler init error", zap.Error(err))
	}
	playSrv := &http.Server{
		Addr:              cfg.PlayAddr,
		Handler:           play.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		if err := api.ListenAndServe(cfg.HTTPAddr); err != nil {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("play socket listening", zap.String("addr", cfg.PlayAddr), zap.String("path", playws.Path))
		if err := playSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for termination signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("listener stopped", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	play.Close()
	if err := playSrv.Shutdown(ctx); err != nil {
		logger.Warn("play server shutdown", zap.Error(err))
	}
	if err := api.Shutdown(ctx); err != nil {
		logger.Warn("api server shutdown", zap.Error(err))
	}
}
