package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"fururank/src/analytics"
	"fururank/src/model"
	"fururank/src/repository"
)

const maxBestTradesLimit = 1000

type leaderboardLister interface {
	Leaderboard(ctx context.Context) ([]analytics.LeaderboardEntry, error)
}

type tradeLister interface {
	BestTrades(ctx context.Context, limit int) ([]analytics.Trade, error)
}

type goldenLister interface {
	GoldenPortfolio(ctx context.Context) ([]analytics.GoldenRow, error)
	TickerScores(ctx context.Context, symbols []string) ([]analytics.GoldenRow, error)
}

type portfolioLister interface {
	Portfolio(ctx context.Context, handles []string) ([]analytics.PortfolioRow, error)
}

type furuLoader interface {
	FindByHandle(ctx context.Context, handle string) (*model.Furu, error)
	LoadAggregate(ctx context.Context, id uint) (*model.Furu, error)
}

type positionView struct {
	*model.Position
	State model.PositionState `json:"state"`
}

type furuView struct {
	*model.Furu
	Positions []positionView `json:"positions"`
}

type exceptionLister interface {
	Recent(ctx context.Context, limit int) ([]model.Exception, error)
	ByRun(ctx context.Context, runID string) ([]model.Exception, error)
}

func writeJSON(w http.ResponseWriter, op string, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithField("op", op).WithError(err).Error("failed to encode response")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func positiveInt(r *http.Request, name string, fallback, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > max {
		return 0, false
	}
	return n, true
}

// LeaderboardHandler lists the ranked furus.
func LeaderboardHandler(svc leaderboardLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.Leaderboard(r.Context())
		if err != nil {
			logger.WithError(err).Error("failed to build leaderboard")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, "leaderboard", entries)
	}
}

// BestTradesHandler lists closed trades by return. Supports ?limit=.
func BestTradesHandler(svc tradeLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := positiveInt(r, "limit", analytics.DefaultBestTradesLimit, maxBestTradesLimit)
		if !ok {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		trades, err := svc.BestTrades(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list best trades")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, "best-trades", trades)
	}
}

// GoldenPortfolioHandler ranks the symbols held by leaderboard furus.
// ?symbols=AAA,BBB narrows the result to those symbols.
func GoldenPortfolioHandler(svc goldenLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			rows []analytics.GoldenRow
			err  error
		)
		if raw := r.URL.Query().Get("symbols"); raw != "" {
			rows, err = svc.TickerScores(r.Context(), strings.Split(raw, ","))
		} else {
			rows, err = svc.GoldenPortfolio(r.Context())
		}
		if err != nil {
			logger.WithError(err).Error("failed to build golden portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, "golden-portfolio", rows)
	}
}

// FuruPortfolioHandler lists the open positions of the furu in the path.
func FuruPortfolioHandler(svc portfolioLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := repository.NormalizeHandle(chi.URLParam(r, "handle"))
		if handle == "" {
			http.Error(w, "missing handle", http.StatusBadRequest)
			return
		}

		rows, err := svc.Portfolio(r.Context(), []string{handle})
		if err != nil {
			logger.WithError(err).WithField("handle", handle).Error("failed to build portfolio")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, "portfolio", rows)
	}
}

// FuruHandler returns a furu's stats and every position it holds or held.
func FuruHandler(repo furuLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := repository.NormalizeHandle(chi.URLParam(r, "handle"))
		if handle == "" {
			http.Error(w, "missing handle", http.StatusBadRequest)
			return
		}

		furu, err := repo.FindByHandle(r.Context(), handle)
		if err == nil && furu != nil {
			furu, err = repo.LoadAggregate(r.Context(), furu.ID)
		}
		if err != nil {
			logger.WithError(err).WithField("handle", handle).Error("failed to load furu")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if furu == nil {
			http.Error(w, "furu not found", http.StatusNotFound)
			return
		}

		view := furuView{Furu: furu, Positions: make([]positionView, 0, len(furu.Positions))}
		for _, p := range furu.Positions {
			view.Positions = append(view.Positions, positionView{Position: p, State: p.State()})
		}
		writeJSON(w, "furu", view)
	}
}

// ExceptionsHandler lists recent batch failures, or every failure of one
// batch run when run_id is given.
func ExceptionsHandler(repo exceptionLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if runID := r.URL.Query().Get("run_id"); runID != "" {
			out, err := repo.ByRun(r.Context(), runID)
			if err != nil {
				logger.WithError(err).WithField("run_id", runID).Error("failed to list run exceptions")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			writeJSON(w, "exceptions", out)
			return
		}

		limit, ok := positiveInt(r, "limit", 50, 500)
		if !ok {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		out, err := repo.Recent(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to list exceptions")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, "exceptions", out)
	}
}
