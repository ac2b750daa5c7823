package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"fururank/src/analytics"
	"fururank/src/database"
	"fururank/src/handler"
	"fururank/src/model"
	"fururank/src/repository"
)

// ReportService is everything the reporting routes read from.
type ReportService interface {
	Leaderboard(ctx context.Context) ([]analytics.LeaderboardEntry, error)
	BestTrades(ctx context.Context, limit int) ([]analytics.Trade, error)
	GoldenPortfolio(ctx context.Context) ([]analytics.GoldenRow, error)
	TickerScores(ctx context.Context, symbols []string) ([]analytics.GoldenRow, error)
	Portfolio(ctx context.Context, handles []string) ([]analytics.PortfolioRow, error)
}

type FuruLoader interface {
	FindByHandle(ctx context.Context, handle string) (*model.Furu, error)
	LoadAggregate(ctx context.Context, id uint) (*model.Furu, error)
}

type ExceptionLister interface {
	Recent(ctx context.Context, limit int) ([]model.Exception, error)
	ByRun(ctx context.Context, runID string) ([]model.Exception, error)
}

// NewRouter wires the public routes.
func NewRouter(reports ReportService, furus FuruLoader, exceptions ExceptionLister, timeout time.Duration) http.Handler {
	r := chi.NewRouter()
	// === Global Middleware ===
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})

	r.Get("/leaderboard", handler.LeaderboardHandler(reports))
	r.Get("/best-trades", handler.BestTradesHandler(reports))
	r.Get("/golden-portfolio", handler.GoldenPortfolioHandler(reports))
	r.Get("/furus/{handle}", handler.FuruHandler(furus))
	r.Get("/furus/{handle}/portfolio", handler.FuruPortfolioHandler(reports))
	r.Get("/exceptions", handler.ExceptionsHandler(exceptions))

	return r
}

// StartServer serves the reporting API on the read-only connection until
// SIGINT or SIGTERM.
func StartServer(cfg *Config) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reports := analytics.NewDefaultReporter()
	furus := repository.NewFuruRepositoryWithDB(database.ReadOnlyDB)
	exceptions := repository.NewExceptionRepository().WithDB(database.ReadOnlyDB)
	if err := Run(ctx, ":"+cfg.Port, NewRouter(reports, furus, exceptions, cfg.RequestTimeout)); err != nil {
		logger.WithError(err).Error("Server stopped")
		os.Exit(1)
	}
}

// Run serves h on addr until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
