package database

import (
	"context"

	"proxyhub-api/internal/models"

	"gorm.io/gorm"
)

// ReconciliationRepository stores manual-review records for purchases
// where the upstream side effect succeeded but the local write failed.
type ReconciliationRepository struct {
	db *gorm.DB
}

// NewReconciliationRepository creates a reconciliation repository
func NewReconciliationRepository(db *gorm.DB) *ReconciliationRepository {
	return &ReconciliationRepository{db: db}
}

// Create inserts a reconciliation task
func (r *ReconciliationRepository) Create(ctx context.Context, task *models.ReconciliationTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// ListUnresolved returns all open reconciliation tasks
func (r *ReconciliationRepository) ListUnresolved(ctx context.Context) ([]models.ReconciliationTask, error) {
	var tasks []models.ReconciliationTask
	err := r.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// Resolve marks a task as handled
func (r *ReconciliationRepository) Resolve(ctx context.Context, taskID string) error {
	result := r.db.WithContext(ctx).Model(&models.ReconciliationTask{}).
		Where("task_id = ?", taskID).
		Update("resolved", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
