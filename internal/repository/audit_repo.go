package repository

import (
	"context"

	"prs/internal/model"

	"gorm.io/gorm"
)

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	ListByEntity(ctx context.Context, entityType string, entityID uint) ([]model.AuditLog, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

// ListByEntity returns the history of one entity, oldest first.
func (r *auditRepository) ListByEntity(ctx context.Context, entityType string, entityID uint) ([]model.AuditLog, error) {
	var logs []model.AuditLog
	if err := GetDB(ctx, r.db).Preload("User").
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("created_at, id").
		Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
