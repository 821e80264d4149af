package persistence

import (
	"context"
	"errors"

	"github.com/retailhub/backend/internal/domain/accounting"
	"github.com/retailhub/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTokenRepository implements TokenRepository using GORM
type GormTokenRepository struct {
	db *gorm.DB
}

// NewGormTokenRepository creates a new GormTokenRepository
func NewGormTokenRepository(db *gorm.DB) *GormTokenRepository {
	return &GormTokenRepository{db: db}
}

// FindCurrent returns the most recently updated token record
func (r *GormTokenRepository) FindCurrent(ctx context.Context) (*accounting.TokenRecord, error) {
	var model models.QuickBooksTokenModel
	err := r.db.WithContext(ctx).Order("updated_at DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrNotConnected
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByRealm returns the token record of a realm
func (r *GormTokenRepository) FindByRealm(ctx context.Context, realmID string) (*accounting.TokenRecord, error) {
	var model models.QuickBooksTokenModel
	err := r.db.WithContext(ctx).Where("realm_id = ?", realmID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, accounting.ErrNotConnected
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts the record or overwrites the tokens of an existing realm.
// created_at is kept from the first insert.
func (r *GormTokenRepository) Save(ctx context.Context, token *accounting.TokenRecord) error {
	model := models.QuickBooksTokenModelFromDomain(token)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "realm_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"access_token",
				"refresh_token",
				"expires_at",
				"refresh_token_expires_at",
				"environment",
				"updated_at",
			}),
		}).
		Create(model).Error
}

// Delete removes the token record of a realm
func (r *GormTokenRepository) Delete(ctx context.Context, realmID string) error {
	return r.db.WithContext(ctx).
		Where("realm_id = ?", realmID).
		Delete(&models.QuickBooksTokenModel{}).Error
}

// Ensure GormTokenRepository implements TokenRepository
var _ accounting.TokenRepository = (*GormTokenRepository)(nil)
