package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dexparty/trivia-backend/internal/config"
	"github.com/dexparty/trivia-backend/internal/content"
	"github.com/dexparty/trivia-backend/internal/game"
	"github.com/dexparty/trivia-backend/internal/httpapi"
	"github.com/dexparty/trivia-backend/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Default()
	if err := config.Load(os.Getenv("CONFIG_PATH"), &cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := newLogger()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	dir := game.NewDirectory(game.DirectoryConfig{
		Log: logger.Named("game"),
		Settings: game.Settings{
			Rounds:       cfg.Game.Rounds,
			Choices:      cfg.Game.Choices,
			Pixelation:   cfg.Game.Pixelation,
			ReadyTimeout: cfg.Game.ReadyTimeout,
			RunTimeout:   cfg.Game.RunTimeout,
		},
		IDs: game.IDPolicy{
			Charset:  cfg.IDs.Charset,
			Length:   cfg.IDs.Length,
			Attempts: cfg.IDs.Attempts,
		},
		Source:  content.NewDex(),
		Locator: content.NewSpriteLocator(cfg.Content.SpriteBase),
	})

	gw := ws.NewGateway(dir, logger)
	handler := httpapi.SetupRoutes(dir, gw)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.HTTP.Bind, strconv.Itoa(cfg.HTTP.Port)),
		Handler:           handler,
		ReadHeaderTimeout: 60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	var eg errgroup.Group
	eg.Go(func() error {
		logger.Info(fmt.Sprintf("listening on %s", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		<-shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})

	if err := eg.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown completed")
}

func newLogger() (*zap.Logger, error) {
	if os.Getenv("DEBUG") != "" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
