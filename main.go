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

	av "rc/service/api/alpha_vantage"
	"rc/service/api/yahoo"
	c "rc/service/core"
)

func main() {
	// initialize context and signal handler, listen for interrupt and term signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// .env is optional, the process environment wins
	cfg, err := c.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := c.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	fetchers := map[string]c.PriceFetcher{
		c.ProviderYahoo: yahoo.GetClient(cfg.FetchTimeout, logger),
	}
	if cfg.AlphaVantageApiKey != "" {
		fetchers[c.ProviderAlphaVantage] = av.GetClient(cfg.AlphaVantageApiKey, cfg.FetchTimeout, logger)
	}

	sc := c.ServiceContext{
		Context:         ctx,
		Logger:          logger,
		Fetchers:        fetchers,
		DefaultProvider: cfg.DefaultProvider,
	}

	// get http server, makes all of the endpoints and routes
	s := c.GetHttpServer(sc, cfg.Addr)

	go func() {
		logger.Info("starting server", zap.String("addr", s.Addr), zap.String("provider", cfg.DefaultProvider))
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// wait here until the context is closed (ie, ctrl+C)
	<-ctx.Done()
	logger.Info("received shutdown signal, shutting down gracefully")

	// this gives the server 10 seconds to shutdown gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}
