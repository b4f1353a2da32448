package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type TokenPostgreSQL struct {
	db *gorm.DB
}

func NewTokenPostgreSQL(db *gorm.DB) repositories.TokenRepository {
	return &TokenPostgreSQL{db: db}
}

func (r *TokenPostgreSQL) Create(ctx context.Context, token *models.SecurityToken) error {
	err := r.db.WithContext(ctx).Create(token).Error
	return handleDBError(err, "create token")
}

func (r *TokenPostgreSQL) GetBySecretHash(ctx context.Context, secretHash string, purpose models.TokenPurpose) (*models.SecurityToken, error) {
	var token models.SecurityToken
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("secret_hash = ? AND purpose = ?", secretHash, purpose).
		First(&token).Error
	if err != nil {
		return nil, handleDBError(err, "get token")
	}
	return &token, nil
}

func (r *TokenPostgreSQL) MarkConsumed(ctx context.Context, id uint, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.SecurityToken{}).
		Where("id = ?", id).
		Update("consumed_at", at)
	if result.Error != nil {
		return handleDBError(result.Error, "consume token")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "consume token")
	}
	return nil
}

func (r *TokenPostgreSQL) InvalidateActive(ctx context.Context, accountID string, purpose models.TokenPurpose, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.SecurityToken{}).
		Where("account_id = ? AND purpose = ? AND consumed_at IS NULL", accountID, purpose).
		Update("consumed_at", at)
	return result.RowsAffected, handleDBError(result.Error, "invalidate tokens")
}

func (r *TokenPostgreSQL) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ? OR (consumed_at IS NOT NULL AND consumed_at < ?)", before, before).
		Delete(&models.SecurityToken{})
	return result.RowsAffected, handleDBError(result.Error, "delete stale tokens")
}

func (r *TokenPostgreSQL) DeleteByAccount(ctx context.Context, accountID string) error {
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&models.SecurityToken{}).Error
	return handleDBError(err, "delete account tokens")
}
