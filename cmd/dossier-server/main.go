package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	cfgPkg "github.com/xhad/dossier/pkg/config"
	"github.com/xhad/dossier/pkg/dossier"
	"github.com/xhad/dossier/pkg/logging"
	"github.com/xhad/dossier/server"
)

func main() {
	var configPath, addr string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if port := os.Getenv("PORT"); port != "" && addr == "" {
		cfg.Server.Addr = ":" + port
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("invalid configuration", zap.String("field", e.Field), zap.String("message", e.Message))
		}
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := dossier.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize dossier service", zap.Error(err))
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.NewWSServer(svc, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting websocket server", zap.String("addr", cfg.Server.Addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
