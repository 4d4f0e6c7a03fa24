package database

import (
	"context"

	"proxyhub-api/internal/models"

	"gorm.io/gorm"
)

// SubscriptionRepository provides subscription persistence keyed by
// (user_id, service_type).
type SubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository creates a subscription repository
func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// GetByUserAndService returns the subscription for (userID, serviceType),
// or gorm.ErrRecordNotFound.
func (r *SubscriptionRepository) GetByUserAndService(ctx context.Context, userID uint, serviceType string) (*models.Subscription, error) {
	var subscription models.Subscription
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND service_type = ?", userID, serviceType).
		First(&subscription).Error
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

// Create inserts a new subscription row. The unique index on
// (user_id, service_type) makes a concurrent duplicate insert fail
// instead of producing two rows.
func (r *SubscriptionRepository) Create(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

// Save persists changes to an existing subscription row
func (r *SubscriptionRepository) Save(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}
