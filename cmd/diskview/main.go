package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/diskview/internal/config"
	"github.com/alexjbarnes/diskview/internal/logging"
	"github.com/alexjbarnes/diskview/internal/oauth"
	"github.com/alexjbarnes/diskview/internal/session"
	"github.com/alexjbarnes/diskview/internal/state"
	"github.com/alexjbarnes/diskview/internal/web"
	"github.com/alexjbarnes/diskview/internal/yadisk"
)

var Version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.IsProduction())
	logger.Info("diskview starting",
		slog.String("version", Version),
		slog.String("listen", cfg.ListenAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := state.Open(cfg.StateDBPath)
	if err != nil {
		return fmt.Errorf("opening state: %w", err)
	}
	defer store.Close()

	mux := web.NewMux(web.MuxConfig{
		Sessions: session.NewManager(store, cfg.IsProduction()),
		OAuth: oauth.NewManager(oauth.Options{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURI:  cfg.RedirectURI,
			OAuthURL:     cfg.OAuthURL,
			UserinfoURL:  cfg.UserinfoURL,
		}),
		Disk:   yadisk.NewClient(cfg.DiskAPIURL, cfg.ListLimit, nil),
		Logger: logger,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runServer(gctx, cfg, logger, mux)
	})

	g.Go(func() error {
		runSweeper(gctx, cfg.CacheSweepInterval, store, logger)
		return nil
	})

	return g.Wait()
}

func runServer(ctx context.Context, cfg *config.Config, logger *slog.Logger, mux http.Handler) error {
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // downloads stream through this server
		IdleTimeout:  120 * time.Second,
	}

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", slog.String("error", err.Error()))
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// runSweeper periodically purges expired cache records and stale
// session records until the context is cancelled.
func runSweeper(ctx context.Context, interval time.Duration, store *state.Store, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cacheRemoved, err := store.SweepExpiredCache()
			if err != nil {
				logger.Warn("cache sweep failed", slog.String("error", err.Error()))
				continue
			}

			sessionsRemoved, err := store.SweepExpiredSessions(session.MaxAge)
			if err != nil {
				logger.Warn("session sweep failed", slog.String("error", err.Error()))
				continue
			}

			if cacheRemoved > 0 || sessionsRemoved > 0 {
				logger.Debug("state sweep",
					slog.Int("cache_removed", cacheRemoved),
					slog.Int("sessions_removed", sessionsRemoved),
				)
			}
		case <-ctx.Done():
			return
		}
	}
}
