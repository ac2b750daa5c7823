package tracker

import (
	"context"
	"fmt"

	"fururank/src/batch"
	"fururank/src/model"
	"fururank/src/repository"
	"fururank/src/scoring"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Score recomputes the statistics of every active furu from its closed,
// priced positions.
func (t *Tracker) Score(ctx context.Context) (Summary, error) {
	sum := Summary{Pass: "score"}

	furus, err := t.furus().ListByStatus(ctx, model.StatusActive)
	if err != nil {
		return sum, fmt.Errorf("list active furus: %w", err)
	}

	if err := t.scoreFurus(ctx, furus, &sum); err != nil {
		return sum, err
	}
	logSummary(sum)
	return sum, nil
}

func (t *Tracker) scoreFurus(ctx context.Context, furus []*model.Furu, sum *Summary) error {
	res, err := batch.Run(ctx, furus, t.cfg.BatchOptions(), furuKey,
		func(_ context.Context, f *model.Furu) error {
			n := scoring.Recompute(f)
			logger.WithFields(map[string]interface{}{
				"op":     "score",
				"handle": f.Handle,
				"trades": n,
			}).Debug("Furu scored")
			return nil
		},
		func(ctx context.Context, done []*model.Furu, failed []batch.Failure[*model.Furu]) error {
			return t.transaction(ctx, func(tx *gorm.DB) error {
				repo := repository.NewFuruRepositoryWithDB(tx)
				for _, f := range done {
					if err := repo.SaveStats(ctx, f); err != nil {
						return fmt.Errorf("save stats of @%s: %w", f.Handle, err)
					}
				}
				return recordFailures(ctx, tx, "score", "Score", failed)
			})
		},
	)
	sum.absorb(res)
	return err
}
