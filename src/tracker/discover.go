package tracker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"fururank/src/batch"
	"fururank/src/connectors"
	"fururank/src/mentions"
	"fururank/src/model"
	"fururank/src/repository"
	"fururank/src/utils"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// candidate is an account found through a ticker search. The worker fills
// either furu or rejected.
type candidate struct {
	handle   string
	furu     *model.Furu
	rejected error
}

// Discover searches recent tweets tagging each symbol, validates the
// untracked authors and starts tracking those that pass.
func (t *Tracker) Discover(ctx context.Context, symbols []string) (Summary, error) {
	sum := Summary{Pass: "discover"}
	today := t.today()

	tracked, err := t.furus().Handles(ctx)
	if err != nil {
		return sum, fmt.Errorf("list tracked handles: %w", err)
	}
	known := make(map[string]struct{}, len(tracked))
	for _, h := range tracked {
		known[h] = struct{}{}
	}

	var candidates []*candidate
	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
		tag := "$" + symbol
		log := logger.WithFields(map[string]interface{}{"op": "discover", "symbol": symbol})

		if len(symbol) > t.cfg.MaxSymbolLength || !mentions.IsCashTag(tag) {
			log.Warn("Not a ticker symbol, skipping")
			continue
		}

		var posts []connectors.Post
		err := connectors.RetryOnce(ctx, t.cfg.RetryDelay, func(ctx context.Context) error {
			var err error
			posts, err = t.tweets.SearchRecent(ctx, tag, utils.AddDays(today, -t.cfg.DiscoveryLookbackDays))
			return err
		})
		if err != nil {
			log.WithError(err).Error("Tweet search failed")
			continue
		}

		found := 0
		for _, p := range posts {
			if p.AuthorHandle == "" || !strings.Contains(p.Text, tag) {
				continue
			}
			key := strings.ToLower(p.AuthorHandle)
			if _, ok := known[key]; ok {
				continue
			}
			known[key] = struct{}{}
			candidates = append(candidates, &candidate{handle: p.AuthorHandle})
			found++
		}
		log.WithFields(map[string]interface{}{"posts": len(posts), "candidates": found}).Info("Found candidate furus")
	}

	rules := t.cfg.ValidationRules()
	var created []*model.Furu
	res, err := batch.Run(ctx, candidates, t.cfg.BatchOptions(),
		func(c *candidate) string { return "@" + c.handle },
		func(ctx context.Context, c *candidate) error {
			return t.validateCandidate(ctx, rules, c, today)
		},
		func(ctx context.Context, done []*candidate, failed []batch.Failure[*candidate]) error {
			return t.transaction(ctx, func(tx *gorm.DB) error {
				repo := repository.NewFuruRepositoryWithDB(tx)
				for _, c := range done {
					if c.furu == nil {
						continue
					}
					if err := repo.Create(ctx, c.furu); err != nil {
						return fmt.Errorf("create @%s: %w", c.handle, err)
					}
					if err := repo.SaveAggregate(ctx, c.furu); err != nil {
						return fmt.Errorf("store tweets of @%s: %w", c.handle, err)
					}
					created = append(created, c.furu)
				}
				return recordFailures(ctx, tx, "discover", "Discover", failed)
			})
		},
	)
	sum.absorb(res)
	if err != nil {
		return sum, err
	}

	sort.Slice(created, func(i, j int) bool { return created[i].Handle < created[j].Handle })
	sum.Created = len(created)
	sum.Skipped += len(candidates) - len(created) - res.Skipped

	if err := t.bootstrap(ctx, created, &sum); err != nil {
		return sum, err
	}
	logSummary(sum)
	return sum, nil
}

func (t *Tracker) validateCandidate(ctx context.Context, rules ValidationRules, c *candidate, today time.Time) error {
	log := logger.WithFields(map[string]interface{}{"op": "validate", "handle": c.handle})

	var user *connectors.User
	err := connectors.RetryOnce(ctx, t.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		user, err = t.tweets.LookupUser(ctx, c.handle)
		return err
	})
	if err != nil {
		return fmt.Errorf("lookup @%s: %w", c.handle, err)
	}

	if months := AgeInMonths(user.CreatedAt, t.now()); months <= rules.MinMonthsOld {
		c.rejected = fmt.Errorf("%w: %.1f months", ErrTooYoung, months)
		log.WithError(c.rejected).Debug("Candidate rejected")
		return nil
	}

	var tweets []model.Tweet
	err = connectors.RetryOnce(ctx, t.cfg.RetryDelay, func(ctx context.Context) error {
		var err error
		tweets, err = t.tweets.FetchTweets(ctx, user.ID, utils.AddDays(today, -t.cfg.ValidationCutoffDays))
		return err
	})
	if err != nil {
		return fmt.Errorf("tweets of @%s: %w", c.handle, err)
	}

	if err := rules.Validate(user.CreatedAt, tweets, t.now()); err != nil {
		c.rejected = err
		log.WithError(err).Debug("Candidate rejected")
		return nil
	}

	c.furu = &model.Furu{
		Handle:     user.Handle,
		ExternalID: user.ID,
		Status:     model.StatusActive,
		Tweets:     tweets,
	}
	log.WithField("tweets", len(tweets)).Info("Candidate accepted")
	return nil
}
