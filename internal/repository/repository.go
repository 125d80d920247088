package repository

import (
	"fmt"

	"gorm.io/gorm"

	"feishu-digest-bot/internal/models"
)

// Repository persists the delivery audit trail.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// LogDelivery records one reply or digest push attempt.
func (r *Repository) LogDelivery(kind, targetID, status, errMsg string) error {
	log := models.DeliveryLog{
		Kind:     kind,
		TargetID: targetID,
		Status:   status,
		ErrorMsg: errMsg,
	}
	result := r.db.Create(&log)
	if result.Error != nil {
		return fmt.Errorf("failed to log delivery attempt: %w", result.Error)
	}
	return nil
}

// RecentDeliveries returns the most recent delivery attempts, optionally
// filtered by kind.
func (r *Repository) RecentDeliveries(kind string, limit int) ([]models.DeliveryLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := r.db.Order("created_at DESC").Limit(limit)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var logs []models.DeliveryLog
	if err := query.Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("failed to get delivery logs: %w", err)
	}
	return logs, nil
}
