// Package main runs the in-memory storefront for local development.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/thomas/storefront-terminal-go/internal/config"
	"github.com/thomas/storefront-terminal-go/internal/logging"
	"github.com/thomas/storefront-terminal-go/internal/mockshop"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", "err", err)
	}

	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
		Prefix: "mockshop",
	})
	if err != nil {
		log.Fatal("Failed to set up logging", "err", err)
	}
	defer closer.Close()

	catalog, err := loadCatalog()
	if err != nil {
		logger.Fatal("Failed to load catalog", "err", err)
	}

	shop := mockshop.New(catalog,
		mockshop.WithLogger(logger),
		mockshop.WithLatency(cfg.MockLatency),
	)

	server := &http.Server{
		Addr:              cfg.MockAddr,
		Handler:           shop,
		ReadHeaderTimeout: 5 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Mock storefront listening", "addr", cfg.MockAddr, "products", len(catalog.Products), "latency", cfg.MockLatency)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", "err", err)
		}
	}()

	<-done
	logger.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", "err", err)
	}
}

// loadCatalog reads MOCKSHOP_CATALOG when set, the embedded catalog otherwise.
func loadCatalog() (*mockshop.Catalog, error) {
	path := os.Getenv("MOCKSHOP_CATALOG")
	if path == "" {
		return mockshop.DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mockshop.LoadCatalog(f)
}
