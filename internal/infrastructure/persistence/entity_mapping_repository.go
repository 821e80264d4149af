package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormEntityMappingRepository implements EntityMappingRepository over the three
// quickbooks_*_mapping tables, each with a unique index on local_id.
type GormEntityMappingRepository struct {
	db *gorm.DB
}

// NewGormEntityMappingRepository creates a new GormEntityMappingRepository
func NewGormEntityMappingRepository(db *gorm.DB) *GormEntityMappingRepository {
	return &GormEntityMappingRepository{db: db}
}

func (r *GormEntityMappingRepository) table(ctx context.Context, kind accounting.EntityKind) (*gorm.DB, error) {
	name := models.MappingTableName(kind)
	if name == "" {
		return nil, accounting.ErrInvalidEntityKind
	}
	return r.db.WithContext(ctx).Table(name), nil
}

// FindByLocalID finds the mapping of a local entity
func (r *GormEntityMappingRepository) FindByLocalID(ctx context.Context, kind accounting.EntityKind, localID uuid.UUID) (*accounting.EntityMapping, error) {
	q, err := r.table(ctx, kind)
	if err != nil {
		return nil, err
	}
	var model models.EntityMappingModel
	if err := q.Where("local_id = ?", localID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(kind), nil
}

// FindByRemoteID finds the mapping pointing at a remote entity
func (r *GormEntityMappingRepository) FindByRemoteID(ctx context.Context, kind accounting.EntityKind, remoteID string) (*accounting.EntityMapping, error) {
	q, err := r.table(ctx, kind)
	if err != nil {
		return nil, err
	}
	var model models.EntityMappingModel
	if err := q.Where("remote_id = ?", remoteID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(kind), nil
}

// FindByLocalIDs returns the existing mappings of the given local entities
func (r *GormEntityMappingRepository) FindByLocalIDs(ctx context.Context, kind accounting.EntityKind, localIDs []uuid.UUID) ([]accounting.EntityMapping, error) {
	q, err := r.table(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(localIDs) == 0 {
		return []accounting.EntityMapping{}, nil
	}

	var rows []models.EntityMappingModel
	if err := q.Where("local_id IN ?", localIDs).Find(&rows).Error; err != nil {
		return nil, err
	}

	mappings := make([]accounting.EntityMapping, len(rows))
	for i := range rows {
		mappings[i] = *rows[i].ToDomain(kind)
	}
	return mappings, nil
}

// Count counts the mappings of a kind
func (r *GormEntityMappingRepository) Count(ctx context.Context, kind accounting.EntityKind) (int64, error) {
	q, err := r.table(ctx, kind)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Insert stores the mapping with ON CONFLICT (local_id) DO NOTHING and reads back
// whichever row won, so concurrent writers for one local ID all see the same mapping.
func (r *GormEntityMappingRepository) Insert(ctx context.Context, mapping *accounting.EntityMapping) (*accounting.EntityMapping, error) {
	q, err := r.table(ctx, mapping.Kind)
	if err != nil {
		return nil, err
	}
	model := models.EntityMappingModelFromDomain(mapping)
	err = q.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_id"}},
		DoNothing: true,
	}).Create(model).Error
	if err != nil {
		return nil, err
	}
	return r.FindByLocalID(ctx, mapping.Kind, mapping.LocalID)
}

// Ensure GormEntityMappingRepository implements EntityMappingRepository
var _ accounting.EntityMappingRepository = (*GormEntityMappingRepository)(nil)
