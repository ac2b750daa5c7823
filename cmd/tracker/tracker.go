package tracker

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fururank/src/connectors"
	engine "fururank/src/tracker"
)

// ErrNoHandles is returned when a command needs handles and got none.
var ErrNoHandles = errors.New("no handles given")

// Tracker runs the batch passes from the command line.
type Tracker struct {
	Log    *logger.Entry
	DB     *gorm.DB
	engine *engine.Tracker
}

// WithEngine uses e instead of building one from the environment.
func (t *Tracker) WithEngine(e *engine.Tracker) *Tracker {
	t.engine = e
	return t
}

func (t *Tracker) tracker() *engine.Tracker {
	if t.engine != nil {
		return t.engine
	}

	cfg := engine.GetConfig()
	conn := connectors.GetConfig()
	if conn.TwitterBearerToken == "" {
		t.Log.Warn("TWITTER_BEARER_TOKEN is empty, tweet lookups will be rejected")
	}

	tweets := connectors.NewTwitterClient(conn).WithMaxTweets(cfg.MaxTotalTweets)
	t.engine = engine.New(t.DB, cfg, tweets, connectors.NewRouterFromConfig(conn))
	return t.engine
}

// Add starts tracking handles, merged with the ones listed in file when set.
func (t *Tracker) Add(ctx context.Context, handles []string, file string) error {
	if file != "" {
		fromFile, err := LoadHandles(file)
		if err != nil {
			return err
		}
		handles = append(handles, fromFile...)
	}
	if len(handles) == 0 {
		return ErrNoHandles
	}

	t.Log.WithField("handles", len(handles)).Info("Adding furus")
	_, err := t.tracker().AddHandles(ctx, handles)
	return err
}

func (t *Tracker) Discover(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return errors.New("no symbols given")
	}
	t.Log.WithField("symbols", symbols).Info("Discovering furus")
	_, err := t.tracker().Discover(ctx, symbols)
	return err
}

func (t *Tracker) Refresh(ctx context.Context) error {
	t.Log.Info("Refreshing furus")
	_, err := t.tracker().Refresh(ctx)
	return err
}

func (t *Tracker) Price(ctx context.Context) error {
	t.Log.Info("Pricing pending positions")
	_, err := t.tracker().PricePending(ctx)
	return err
}

func (t *Tracker) Score(ctx context.Context) error {
	t.Log.Info("Scoring furus")
	_, err := t.tracker().Score(ctx)
	return err
}

// Update is the daily job: refresh, price, then score.
func (t *Tracker) Update(ctx context.Context) error {
	t.Log.Info("Running update")
	summaries, err := t.tracker().Update(ctx)
	for _, s := range summaries {
		t.Log.WithFields(map[string]interface{}{
			"pass":      s.Pass,
			"processed": s.Processed,
			"skipped":   s.Skipped,
		}).Debug("Pass finished")
	}
	return err
}

func (t *Tracker) Rebuild(ctx context.Context, handles []string) error {
	if len(handles) == 0 {
		return ErrNoHandles
	}
	t.Log.WithField("handles", handles).Info("Rebuilding positions")
	_, err := t.tracker().Rebuild(ctx, handles)
	return err
}
