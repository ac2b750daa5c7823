package tracker

import (
	"context"
	"encoding/json"
	"time"

	"fururank/src/batch"
	"fururank/src/connectors"
	"fururank/src/lifecycle"
	"fururank/src/model"
	"fururank/src/pricing"
	"fururank/src/repository"
	"fururank/src/utils"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const service = "tracker"

// TweetSource is the social feed the tracker reads from.
type TweetSource interface {
	LookupUser(ctx context.Context, handle string) (*connectors.User, error)
	FetchTweets(ctx context.Context, userID string, since time.Time) ([]model.Tweet, error)
	SearchRecent(ctx context.Context, query string, since time.Time) ([]connectors.Post, error)
}

// Summary reports the outcome of one pass.
type Summary struct {
	Pass        string `json:"pass"`
	RunID       string `json:"run_id,omitempty"`
	Processed   int    `json:"processed"`
	Skipped     int    `json:"skipped"`
	Reactivated int    `json:"reactivated"`
	Failed      int    `json:"failed"`
	Created     int    `json:"created"`
	Deleted     int    `json:"deleted"`
}

func (s Summary) fields() map[string]interface{} {
	return map[string]interface{}{
		"pass":        s.Pass,
		"run_id":      s.RunID,
		"processed":   s.Processed,
		"skipped":     s.Skipped,
		"reactivated": s.Reactivated,
		"failed":      s.Failed,
		"created":     s.Created,
		"deleted":     s.Deleted,
	}
}

func (s *Summary) absorb(res batch.Result) {
	s.RunID = res.RunID
	s.Processed += res.Processed
	s.Skipped += res.Skipped
}

// Tracker runs the batch passes that keep furus, positions, tickers and
// scores up to date.
type Tracker struct {
	cfg    Config
	db     *gorm.DB
	tweets TweetSource
	prices pricing.HistoryProvider

	furuPolicy   lifecycle.Policy
	tickerPolicy lifecycle.Policy

	now func() time.Time
}

func New(db *gorm.DB, cfg Config, tweets TweetSource, prices pricing.HistoryProvider) *Tracker {
	return &Tracker{
		cfg:          cfg,
		db:           db,
		tweets:       tweets,
		prices:       prices,
		furuPolicy:   lifecycle.FuruPolicy(),
		tickerPolicy: lifecycle.TickerPolicy(),
		now:          time.Now,
	}
}

// WithClock replaces the wall clock, mostly for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) today() time.Time {
	return utils.Date(t.now().UTC())
}

func (t *Tracker) furus() *repository.FuruRepository {
	return repository.NewFuruRepositoryWithDB(t.db)
}

func (t *Tracker) tickers() *repository.TickerRepository {
	return repository.NewTickerRepositoryWithDB(t.db)
}

func (t *Tracker) positions() *repository.PositionRepository {
	return repository.NewPositionRepositoryWithDB(t.db)
}

// transaction runs fn inside one database transaction.
func (t *Tracker) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.db.WithContext(ctx).Transaction(fn)
}

// recordFailures persists skipped batch items as exceptions.
func recordFailures[T any](ctx context.Context, tx *gorm.DB, module, method string, failed []batch.Failure[T]) error {
	repo := repository.NewExceptionRepository().WithDB(tx)
	for _, f := range failed {
		extra, _ := json.Marshal(map[string]interface{}{"panic": f.Stack != ""})
		exc := &model.Exception{
			Service: service,
			Module:  module,
			Method:  method,
			RunID:   f.RunID,
			ItemKey: f.Key,
			Message: f.Err.Error(),
			Stack:   f.Stack,
			Level:   "error",
			Context: string(extra),
		}
		if err := repo.Create(ctx, exc); err != nil {
			return err
		}
	}
	return nil
}

func furuKey(f *model.Furu) string {
	return "@" + f.Handle
}

func logSummary(s Summary) {
	logger.WithFields(s.fields()).Info("Pass finished")
}
