// Package main implements the SSH server that serves the storefront cart TUI.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	wishlogging "github.com/charmbracelet/wish/logging"

	"github.com/thomas/storefront-terminal-go/internal/auth"
	"github.com/thomas/storefront-terminal-go/internal/cartstate"
	"github.com/thomas/storefront-terminal-go/internal/catalog"
	"github.com/thomas/storefront-terminal-go/internal/config"
	"github.com/thomas/storefront-terminal-go/internal/logging"
	"github.com/thomas/storefront-terminal-go/internal/money"
	"github.com/thomas/storefront-terminal-go/internal/render"
	"github.com/thomas/storefront-terminal-go/internal/schedule"
	"github.com/thomas/storefront-terminal-go/internal/shop"
	"github.com/thomas/storefront-terminal-go/internal/tui"
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
		Prefix: "cartssh",
	})
	if err != nil {
		log.Fatal("Failed to set up logging", "err", err)
	}
	defer closer.Close()

	created, err := auth.EnsureHostKey(cfg.SSHHostKeyPath)
	if err != nil {
		logger.Fatal("Failed to ensure host key", "err", err)
	}
	if created {
		logger.Info("Generated new ED25519 host key", "path", cfg.SSHHostKeyPath)
	}

	allowlist := loadAllowlist(cfg, logger)

	formatter := money.NewFormatter(cfg.CurrencyFallback, cfg.MoneyTemplates)
	products := catalog.New(
		shop.NewClient(cfg.ShopBaseURL, shop.WithTimeout(cfg.CartTimeout)),
		cfg.CacheTTL,
		catalog.WithLogger(logger),
	)

	s := &sessions{cfg: cfg, logger: logger, money: formatter, catalog: products}
	checkKey := allowlist.Handler(logger)

	server, err := wish.NewServer(
		wish.WithAddress(cfg.SSHAddr),
		wish.WithHostKeyPath(cfg.SSHHostKeyPath),
		wish.WithPublicKeyAuth(func(ctx ssh.Context, key ssh.PublicKey) bool {
			return checkKey(ctx.User(), key)
		}),
		// Always disable password auth
		wish.WithPasswordAuth(func(ctx ssh.Context, password string) bool {
			return false
		}),
		wish.WithMiddleware(
			bubbletea.Middleware(s.handler),
			activeterm.Middleware(),
			wishlogging.MiddlewareWithLogger(logger),
		),
	)
	if err != nil {
		logger.Fatal("Failed to create SSH server", "err", err)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Starting SSH server", "addr", cfg.SSHAddr, "shop", cfg.ShopBaseURL, "auth", cfg.SSHAuthMode)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
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

// loadAllowlist returns nil in public mode, which accepts every key.
func loadAllowlist(cfg *config.Config, logger *log.Logger) *auth.Allowlist {
	if cfg.SSHAuthMode == config.AuthModePublic {
		logger.Warn("Running in PUBLIC mode - anyone can connect!")
		logger.Warn("This is NOT safe for internet-facing servers.")
		return nil
	}

	allowlist, err := auth.LoadAllowlist(cfg.AllowlistPath)
	if errors.Is(err, auth.ErrAllowlistNotFound) {
		logger.Info("Creating empty allowlist", "path", cfg.AllowlistPath)
		if err := auth.CreateEmptyAllowlist(cfg.AllowlistPath); err != nil {
			logger.Fatal("Failed to create allowlist", "err", err)
		}
		logger.Info("Please add your SSH public key to the allowlist and restart")
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal("Failed to load allowlist", "err", err)
	}

	if allowlist.Len() == 0 {
		logger.Warn("Allowlist is empty. No connections will be accepted.", "path", cfg.AllowlistPath)
	}
	if allowlist.Skipped() > 0 {
		logger.Warn("Ignored invalid allowlist lines", "count", allowlist.Skipped())
	}
	logger.Info("Loaded allowlist", "keys", allowlist.Len())
	return allowlist
}

// sessions builds one cart store and model per SSH session. The catalog and
// money formatter are shared; carts never are.
type sessions struct {
	cfg     *config.Config
	logger  *log.Logger
	money   money.Formatter
	catalog *catalog.Catalog
}

func (s *sessions) handler(sess ssh.Session) (tea.Model, []tea.ProgramOption) {
	logger := s.logger.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	ctx := sess.Context()

	client := shop.NewClient(s.cfg.ShopBaseURL, shop.WithTimeout(s.cfg.CartTimeout))
	store := cartstate.NewStore(client,
		cartstate.WithLogger(logger),
		cartstate.WithTimeout(s.cfg.CartTimeout),
	)
	go func() {
		if err := store.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Cart store stopped", "err", err)
		}
	}()

	bridge := tui.NewBridge(store)
	summary := render.Mount(store, render.Summary{Money: s.money}, func(line string) {
		logger.Debug("cart", "state", line)
	})
	tasks := schedule.NewGroup()
	store.Dispatch(cartstate.Refresh{})

	go func() {
		<-ctx.Done()
		tasks.Dispose()
		bridge.Close()
		store.Unsubscribe(summary)
		logger.Info("Session ended")
	}()

	logger.Info("Session started")
	m := tui.NewModel(tui.Deps{
		Store:        store,
		Updates:      bridge.Updates(),
		Catalog:      s.catalog,
		Money:        s.money,
		Collection:   s.cfg.Collection,
		UpsellLimit:  s.cfg.UpsellLimit,
		NoteDebounce: s.cfg.NoteDebounce,
		Tasks:        tasks,
		Logger:       logger,
	})
	return m, []tea.ProgramOption{tea.WithAltScreen()}
}
