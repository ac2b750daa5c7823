package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"fururank/src/database"
	"fururank/src/model"
)

type PositionRepository struct {
	db *gorm.DB
}

func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB}
}

func NewPositionRepositoryWithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// PricePending returns positions still waiting for a price: entered before
// today without an entry price, or closed before today without a close
// price. Rows are ordered by symbol then entry date.
func (r *PositionRepository) PricePending(ctx context.Context, today time.Time) ([]*model.Position, error) {
	var positions []*model.Position

	err := r.db.WithContext(ctx).
		Where("(price_entered IS NULL AND date_entered < ?) OR (date_closed IS NOT NULL AND price_closed IS NULL AND date_closed < ?)", today, today).
		Order("symbol ASC, date_entered ASC, id ASC").
		Find(&positions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "PositionRepository",
			"op":   "PricePending",
		}).WithError(err).Error("Failed to list price-pending positions")
		return nil, err
	}

	return positions, nil
}

// SaveAll upserts positions, skipping any that fail validation.
func (r *PositionRepository) SaveAll(ctx context.Context, positions []*model.Position) (int, error) {
	db := r.db.WithContext(ctx)
	saved := 0

	for _, p := range positions {
		if err := p.Validate(); err != nil {
			logger.WithFields(map[string]interface{}{
				"repo":        "PositionRepository",
				"op":          "SaveAll",
				"position_id": p.ID,
				"symbol":      p.Symbol,
			}).WithError(err).Warn("Skipping invalid position")
			continue
		}
		if err := db.Save(p).Error; err != nil {
			return saved, err
		}
		saved++
	}

	return saved, nil
}

func (r *PositionRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&model.Position{}).Error
}

// ListByFuru returns a furu's positions in entry order.
func (r *PositionRepository) ListByFuru(ctx context.Context, furuID uint) ([]model.Position, error) {
	var positions []model.Position
	err := r.db.WithContext(ctx).
		Where("furu_id = ?", furuID).
		Order("date_entered ASC, id ASC").
		Find(&positions).Error
	return positions, err
}
