package persistence

import (
	"context"
	"errors"

	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncLogRepository implements SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Append stores a new entry
func (r *GormSyncLogRepository) Append(ctx context.Context, entry *accounting.SyncLogEntry) error {
	return r.db.WithContext(ctx).Create(models.QuickBooksSyncLogModelFromDomain(entry)).Error
}

// FindLatestByStatus returns the newest entry with the given status
func (r *GormSyncLogRepository) FindLatestByStatus(ctx context.Context, status accounting.SyncLogStatus) (*accounting.SyncLogEntry, error) {
	var model models.QuickBooksSyncLogModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status.String()).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrSyncLogNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll returns a page of entries, newest first, and the total matching count
func (r *GormSyncLogRepository) FindAll(ctx context.Context, filter accounting.SyncLogFilter) ([]accounting.SyncLogEntry, int64, error) {
	var total int64
	if err := r.applyLogFilter(r.db.WithContext(ctx).Model(&models.QuickBooksSyncLogModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := pageOffset(filter.Page, filter.PageSize)
	var rows []models.QuickBooksSyncLogModel
	query := r.applyLogFilter(r.db.WithContext(ctx).Model(&models.QuickBooksSyncLogModel{}), filter)
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	entries := make([]accounting.SyncLogEntry, len(rows))
	for i := range rows {
		entries[i] = *rows[i].ToDomain()
	}
	return entries, total, nil
}

func (r *GormSyncLogRepository) applyLogFilter(query *gorm.DB, filter accounting.SyncLogFilter) *gorm.DB {
	if filter.EntityType != nil {
		query = query.Where("entity_type = ?", filter.EntityType.String())
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	return query
}

// Ensure GormSyncLogRepository implements SyncLogRepository
var _ accounting.SyncLogRepository = (*GormSyncLogRepository)(nil)
