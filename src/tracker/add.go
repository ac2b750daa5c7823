package tracker

import (
	"context"
	"errors"
	"fmt"

	"fururank/src/connectors"
	"fururank/src/model"
	"fururank/src/repository"

	logger "github.com/sirupsen/logrus"
)

// AddHandles starts tracking the given handles. Unknown accounts are
// skipped; new furus get their history fetched, priced and scored.
func (t *Tracker) AddHandles(ctx context.Context, handles []string) (Summary, error) {
	sum := Summary{Pass: "add"}
	repo := t.furus()

	var added []*model.Furu
	seen := map[string]struct{}{}
	for _, raw := range handles {
		handle := repository.NormalizeHandle(raw)
		if handle == "" {
			continue
		}
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}
		log := logger.WithFields(map[string]interface{}{"op": "add", "handle": handle})

		existing, err := repo.FindByHandle(ctx, handle)
		if err != nil {
			return sum, fmt.Errorf("find @%s: %w", handle, err)
		}
		if existing != nil {
			log.WithField("status", existing.Status).Info("Furu already tracked")
			continue
		}

		var user *connectors.User
		err = connectors.RetryOnce(ctx, t.cfg.RetryDelay, func(ctx context.Context) error {
			var err error
			user, err = t.tweets.LookupUser(ctx, handle)
			return err
		})
		if err != nil {
			if errors.Is(err, connectors.ErrUserNotFound) {
				log.Warn("Twitter user does not exist")
			} else {
				log.WithError(err).Error("Could not look up twitter user")
			}
			sum.Skipped++
			continue
		}

		furu := &model.Furu{Handle: user.Handle, ExternalID: user.ID, Status: model.StatusActive}
		if err := repo.Create(ctx, furu); err != nil {
			return sum, fmt.Errorf("create @%s: %w", handle, err)
		}
		added = append(added, furu)
	}

	sum.Created = len(added)
	if err := t.bootstrap(ctx, added, &sum); err != nil {
		return sum, err
	}
	logSummary(sum)
	return sum, nil
}

// bootstrap builds positions for freshly created furus, prices everything
// pending and scores them.
func (t *Tracker) bootstrap(ctx context.Context, created []*model.Furu, sum *Summary) error {
	if len(created) == 0 {
		return nil
	}

	ids := make([]string, 0, len(created))
	for _, f := range created {
		ids = append(ids, f.Handle)
	}
	furus, err := t.furus().FindByHandles(ctx, ids)
	if err != nil {
		return fmt.Errorf("load new furus: %w", err)
	}

	if err := t.refreshFurus(ctx, furus, sum); err != nil {
		return err
	}
	if _, err := t.PricePending(ctx); err != nil {
		return err
	}

	// reload to pick up the prices written by the pricing pass
	furus, err = t.furus().FindByHandles(ctx, ids)
	if err != nil {
		return fmt.Errorf("reload new furus: %w", err)
	}
	var scoreSum Summary
	return t.scoreFurus(ctx, furus, &scoreSum)
}
