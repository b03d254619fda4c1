package repository

import (
	"context"

	"gorm.io/gorm"

	auditdomain "github.com/pathlight-ai/pathlight/internal/audit/domain"
)

type Repository struct{}

func NewRepository() auditdomain.Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, db *gorm.DB, entry *auditdomain.AuditLog) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *Repository) List(ctx context.Context, db *gorm.DB, resource, resourceID string, limit int) ([]auditdomain.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := db.WithContext(ctx).Model(&auditdomain.AuditLog{})
	if resource != "" {
		query = query.Where("resource = ?", resource)
	}
	if resourceID != "" {
		query = query.Where("resource_id = ?", resourceID)
	}

	var logs []auditdomain.AuditLog
	err := query.Order("created_at DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
