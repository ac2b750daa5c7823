package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fururank/src/batch"
	"fururank/src/connectors"
	"fururank/src/ledger"
	"fururank/src/lifecycle"
	"fururank/src/mentions"
	"fururank/src/model"
	"fururank/src/repository"
	"fururank/src/utils"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Refresh reactivates furus whose cooldown has passed, then fetches new
// tweets for every active furu and updates its raw positions.
func (t *Tracker) Refresh(ctx context.Context) (Summary, error) {
	sum := Summary{Pass: "refresh"}

	reactivated, err := t.reactivateFurus(ctx)
	if err != nil {
		return sum, err
	}
	sum.Reactivated = reactivated

	furus, err := t.furus().ListByStatus(ctx, model.StatusActive)
	if err != nil {
		return sum, fmt.Errorf("list active furus: %w", err)
	}

	if err := t.refreshFurus(ctx, furus, &sum); err != nil {
		return sum, err
	}
	logSummary(sum)
	return sum, nil
}

func (t *Tracker) reactivateFurus(ctx context.Context) (int, error) {
	failed, err := t.furus().ListByStatus(ctx, t.furuPolicy.Failed)
	if err != nil {
		return 0, fmt.Errorf("list failed furus: %w", err)
	}

	now := t.now()
	n := 0
	for _, f := range failed {
		if !lifecycle.ReactivateFuru(t.furuPolicy, f, now) {
			continue
		}
		if err := t.furus().UpdateStatus(ctx, f.ID, f.Status); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (t *Tracker) refreshFurus(ctx context.Context, furus []*model.Furu, sum *Summary) error {
	raw := ledger.New(t.cfg.LedgerConfig(), ledger.CalendarQuoter{})
	today := t.today()

	res, err := batch.Run(ctx, furus, t.cfg.BatchOptions(), furuKey,
		func(ctx context.Context, f *model.Furu) error {
			return t.refreshFuru(ctx, raw, f, today)
		},
		func(ctx context.Context, done []*model.Furu, failed []batch.Failure[*model.Furu]) error {
			return t.transaction(ctx, func(tx *gorm.DB) error {
				repo := repository.NewFuruRepositoryWithDB(tx)
				for _, f := range done {
					if err := repo.SaveAggregate(ctx, f); err != nil {
						return fmt.Errorf("save @%s: %w", f.Handle, err)
					}
					if f.Status == t.furuPolicy.Failed {
						sum.Failed++
					}
				}
				return recordFailures(ctx, tx, "refresh", "Refresh", failed)
			})
		},
	)
	sum.absorb(res)
	return err
}

// refreshFuru mutates only f. A fetch that fails twice is recorded as a
// lifecycle failure and the furu is otherwise left unchanged.
func (t *Tracker) refreshFuru(ctx context.Context, raw *ledger.Ledger, f *model.Furu, today time.Time) error {
	log := logger.WithFields(map[string]interface{}{
		"op":     "refresh",
		"handle": f.Handle,
	})

	if f.ExternalID == "" {
		var user *connectors.User
		err := connectors.RetryOnce(ctx, t.cfg.RetryDelay, func(ctx context.Context) error {
			var err error
			user, err = t.tweets.LookupUser(ctx, f.Handle)
			return err
		})
		if err != nil {
			log.WithError(err).Warn("Could not resolve twitter user")
			lifecycle.RecordFuruFailure(t.furuPolicy, f, t.now(), model.FailureSourceTwitter)
			return nil
		}
		f.ExternalID = user.ID
	}

	stored, err := t.furus().NewestTweetDate(ctx, f.ID)
	if err != nil {
		return fmt.Errorf("newest tweet of @%s: %w", f.Handle, err)
	}
	since := utils.AddDays(today, -t.cfg.HistoryCutoffDays)
	if stored != nil {
		since = *stored
	}

	var fetched []model.Tweet
	err = connectors.RetryOnce(ctx, t.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		fetched, err = t.tweets.FetchTweets(ctx, f.ExternalID, since)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("Could not fetch tweets")
		lifecycle.RecordFuruFailure(t.furuPolicy, f, t.now(), model.FailureSourceTwitter)
		return nil
	}
	f.Tweets = append(f.Tweets, fetched...)

	analysed := fetched
	if f.DateLastUpdated == nil {
		// first pass over this furu: stored tweets were never analysed
		archived, err := t.furus().TweetsSince(ctx, f.ID, time.Time{})
		if err != nil {
			return fmt.Errorf("archived tweets of @%s: %w", f.Handle, err)
		}
		analysed = append(archived, fetched...)
	} else {
		analysed = tweetsOnOrAfter(fetched, *f.DateLastUpdated)
	}

	timelines := mentions.Timelines(analysed)
	symbols := make([]string, 0, len(timelines))
	for s := range timelines {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		raw.Apply(ctx, f, symbol, timelines[symbol], today)
	}
	raw.SweepSilenced(ctx, f, today)
	f.DateLastUpdated = &today

	log.WithFields(map[string]interface{}{
		"fetched": len(fetched),
		"symbols": len(symbols),
	}).Debug("Furu refreshed")
	return nil
}

func tweetsOnOrAfter(tweets []model.Tweet, day time.Time) []model.Tweet {
	day = utils.Date(day)
	out := make([]model.Tweet, 0, len(tweets))
	for _, tw := range tweets {
		if !utils.Date(tw.PostedAt).Before(day) {
			out = append(out, tw)
		}
	}
	return out
}
