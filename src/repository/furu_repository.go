package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fururank/src/database"
	"fururank/src/model"
)

// FuruRepository loads and saves furu aggregates: the furu row plus its
// positions, fetch failures and archived tweets.
type FuruRepository struct {
	db *gorm.DB
}

// NewFuruRepository creates a new repository instance using the main read/write database.
func NewFuruRepository() *FuruRepository {
	return &FuruRepository{db: database.MainDB}
}

func NewFuruRepositoryWithDB(db *gorm.DB) *FuruRepository {
	return &FuruRepository{db: db}
}

// WithDB binds the repository to a session or transaction.
func (r *FuruRepository) WithDB(db *gorm.DB) *FuruRepository {
	return &FuruRepository{db: db}
}

func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

func preloadPositions(db *gorm.DB) *gorm.DB {
	return db.Order("date_entered ASC, id ASC")
}

// FindByHandle fetches a furu without its associations.
// Returns (nil, nil) if the furu is not found.
func (r *FuruRepository) FindByHandle(ctx context.Context, handle string) (*model.Furu, error) {
	var furu model.Furu

	err := r.db.WithContext(ctx).
		Where("LOWER(handle) = LOWER(?)", NormalizeHandle(handle)).
		First(&furu).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":   "FuruRepository",
			"op":     "FindByHandle",
			"handle": handle,
		}).WithError(err).Error("Failed to fetch furu")
		return nil, err
	}

	return &furu, nil
}

// LoadAggregate fetches a furu with positions and failures.
// Returns (nil, nil) if the furu is not found.
func (r *FuruRepository) LoadAggregate(ctx context.Context, id uint) (*model.Furu, error) {
	var furu model.Furu

	err := r.db.WithContext(ctx).
		Preload("Positions", preloadPositions).
		Preload("Failures").
		First(&furu, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &furu, nil
}

// ListByStatus returns every furu in the given status with positions and
// failures preloaded, ordered by id.
func (r *FuruRepository) ListByStatus(ctx context.Context, status model.Status) ([]*model.Furu, error) {
	var furus []*model.Furu

	err := r.db.WithContext(ctx).
		Preload("Positions", preloadPositions).
		Preload("Failures").
		Where("status = ?", status).
		Order("id ASC").
		Find(&furus).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "FuruRepository",
			"op":     "ListByStatus",
			"status": status,
		}).WithError(err).Error("Failed to list furus")
		return nil, err
	}

	return furus, nil
}

// FindByHandles loads the aggregates of the given handles. Unknown handles
// are skipped.
func (r *FuruRepository) FindByHandles(ctx context.Context, handles []string) ([]*model.Furu, error) {
	lowered := make([]string, 0, len(handles))
	for _, h := range handles {
		lowered = append(lowered, strings.ToLower(NormalizeHandle(h)))
	}

	var furus []*model.Furu
	err := r.db.WithContext(ctx).
		Preload("Positions", preloadPositions).
		Preload("Failures").
		Where("LOWER(handle) IN ?", lowered).
		Order("id ASC").
		Find(&furus).Error
	return furus, err
}

// Create inserts a new furu. Handles are stored without the leading "@".
func (r *FuruRepository) Create(ctx context.Context, furu *model.Furu) error {
	furu.Handle = NormalizeHandle(furu.Handle)
	if furu.Status == "" {
		furu.Status = model.StatusActive
	}

	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(furu).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "FuruRepository",
			"op":     "Create",
			"handle": furu.Handle,
		}).WithError(err).Error("Failed to create furu")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "FuruRepository",
		"op":      "Create",
		"furu_id": furu.ID,
		"handle":  furu.Handle,
	}).Info("Furu created successfully")

	return nil
}

// SaveAggregate writes the furu row and flushes its owned collections:
// positions are upserted, removed positions deleted, and new failures and
// tweets inserted. Positions that fail validation are never written.
func (r *FuruRepository) SaveAggregate(ctx context.Context, furu *model.Furu) error {
	db := r.db.WithContext(ctx)

	if err := db.Omit(clause.Associations).Save(furu).Error; err != nil {
		return err
	}

	if ids := furu.RemovedPositionIDs(); len(ids) > 0 {
		if err := db.Where("furu_id = ? AND id IN ?", furu.ID, ids).Delete(&model.Position{}).Error; err != nil {
			return err
		}
		furu.ClearRemoved()
	}

	for _, p := range furu.Positions {
		p.FuruID = furu.ID
		if err := p.Validate(); err != nil {
			logger.WithFields(map[string]interface{}{
				"repo":   "FuruRepository",
				"op":     "SaveAggregate",
				"handle": furu.Handle,
				"symbol": p.Symbol,
			}).WithError(err).Warn("Skipping invalid position")
			continue
		}
		if err := db.Save(p).Error; err != nil {
			return err
		}
	}

	for i := range furu.Failures {
		failure := &furu.Failures[i]
		if failure.ID != 0 {
			continue
		}
		failure.FuruID = furu.ID
		if err := db.Create(failure).Error; err != nil {
			return err
		}
	}

	var tweets []*model.Tweet
	for i := range furu.Tweets {
		if furu.Tweets[i].ID == 0 {
			furu.Tweets[i].FuruID = furu.ID
			tweets = append(tweets, &furu.Tweets[i])
		}
	}
	if len(tweets) > 0 {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "furu_id"}, {Name: "external_id"}},
			DoNothing: true,
		}).CreateInBatches(tweets, 200).Error
		if err != nil {
			return err
		}
	}

	return nil
}

// SaveStats writes only the stats columns.
func (r *FuruRepository) SaveStats(ctx context.Context, furu *model.Furu) error {
	return r.db.WithContext(ctx).
		Model(furu).
		Select(model.StatsColumns).
		Updates(furu).Error
}

// UpdateStatus sets the lifecycle status of a furu.
func (r *FuruRepository) UpdateStatus(ctx context.Context, id uint, status model.Status) error {
	return r.db.WithContext(ctx).
		Model(&model.Furu{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// TweetsSince returns archived tweets posted on or after since, oldest first.
func (r *FuruRepository) TweetsSince(ctx context.Context, furuID uint, since time.Time) ([]model.Tweet, error) {
	var tweets []model.Tweet
	err := r.db.WithContext(ctx).
		Where("furu_id = ? AND posted_at >= ?", furuID, since).
		Order("posted_at ASC, id ASC").
		Find(&tweets).Error
	return tweets, err
}

// NewestTweetDate returns the posting time of the newest archived tweet,
// or nil when nothing is stored.
func (r *FuruRepository) NewestTweetDate(ctx context.Context, furuID uint) (*time.Time, error) {
	var tweet model.Tweet
	err := r.db.WithContext(ctx).
		Where("furu_id = ?", furuID).
		Order("posted_at DESC").
		First(&tweet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tweet.PostedAt, nil
}

// DeletePositions removes every position of a furu.
func (r *FuruRepository) DeletePositions(ctx context.Context, furuID uint) error {
	return r.db.WithContext(ctx).
		Where("furu_id = ?", furuID).
		Delete(&model.Position{}).Error
}

// Handles lists every tracked handle, lower-cased.
func (r *FuruRepository) Handles(ctx context.Context) ([]string, error) {
	var handles []string
	err := r.db.WithContext(ctx).
		Model(&model.Furu{}).
		Order("handle ASC").
		Pluck("handle", &handles).Error
	for i := range handles {
		handles[i] = strings.ToLower(handles[i])
	}
	return handles, err
}

func (r *FuruRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Furu{}).Count(&count).Error
	return count, err
}

func lowerAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
