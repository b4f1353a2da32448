package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type AccountPostgreSQL struct {
	db *gorm.DB
}

func NewAccountPostgreSQL(db *gorm.DB) repositories.AccountRepository {
	return &AccountPostgreSQL{db: db}
}

func (r *AccountPostgreSQL) Create(ctx context.Context, account *models.Account) error {
	err := r.db.WithContext(ctx).Create(account).Error
	return handleDBError(err, "create account")
}

func (r *AccountPostgreSQL) GetByID(ctx context.Context, id string) (*models.Account, error) {
	var account models.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, handleDBError(err, "get account")
	}
	return &account, nil
}

func (r *AccountPostgreSQL) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("LOWER(username) = LOWER(?)", username).First(&account).Error
	if err != nil {
		return nil, handleDBError(err, "get account by username")
	}
	return &account, nil
}

func (r *AccountPostgreSQL) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email).First(&account).Error
	if err != nil {
		return nil, handleDBError(err, "get account by email")
	}
	return &account, nil
}

func (r *AccountPostgreSQL) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("LOWER(username) = LOWER(?)", username).
		Count(&count).Error
	return count > 0, handleDBError(err, "check username")
}

func (r *AccountPostgreSQL) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("LOWER(email) = LOWER(?)", email).
		Count(&count).Error
	return count > 0, handleDBError(err, "check email")
}

// Update writes the mutable profile and status columns; role is never updated
func (r *AccountPostgreSQL) Update(ctx context.Context, account *models.Account) error {
	account.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"email":          account.Email,
			"first_name":     account.FirstName,
			"last_name":      account.LastName,
			"active":         account.Active,
			"email_verified": account.EmailVerified,
			"updated_at":     account.UpdatedAt,
		})
	if result.Error != nil {
		return handleDBError(result.Error, "update account")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "update account")
	}
	return nil
}

func (r *AccountPostgreSQL) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Account{})
	if result.Error != nil {
		return handleDBError(result.Error, "delete account")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "delete account")
	}
	return nil
}

func (r *AccountPostgreSQL) List(ctx context.Context, filters repositories.AccountFilters) ([]*models.Account, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Account{})

	if filters.Role != nil {
		query = query.Where("role = ?", *filters.Role)
	}
	if filters.Active != nil {
		query = query.Where("active = ?", *filters.Active)
	}
	if filters.Query != "" {
		pattern := likePattern(filters.Query)
		query = query.Where(
			"username ILIKE ? OR email ILIKE ? OR first_name ILIKE ? OR last_name ILIKE ?",
			pattern, pattern, pattern, pattern,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, handleDBError(err, "count accounts")
	}

	var accounts []*models.Account
	err := applyPagination(query, filters.Limit, filters.Offset).
		Order("seq ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, 0, handleDBError(err, "list accounts")
	}

	return accounts, total, nil
}

func (r *AccountPostgreSQL) CountByRole(ctx context.Context) (map[models.UserRole]int64, error) {
	var rows []struct {
		Role  models.UserRole
		Count int64
	}
	err := r.db.WithContext(ctx).Model(&models.Account{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, handleDBError(err, "count accounts by role")
	}

	counts := make(map[models.UserRole]int64, len(rows))
	for _, row := range rows {
		counts[row.Role] = row.Count
	}
	return counts, nil
}

type CredentialPostgreSQL struct {
	db *gorm.DB
}

func NewCredentialPostgreSQL(db *gorm.DB) repositories.CredentialRepository {
	return &CredentialPostgreSQL{db: db}
}

func (r *CredentialPostgreSQL) Upsert(ctx context.Context, credential *models.Credential) error {
	credential.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"password_hash", "salt", "updated_at"}),
	}).Create(credential).Error
	return handleDBError(err, "upsert credential")
}

func (r *CredentialPostgreSQL) GetByAccountID(ctx context.Context, accountID string) (*models.Credential, error) {
	var credential models.Credential
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&credential).Error; err != nil {
		return nil, handleDBError(err, "get credential")
	}
	return &credential, nil
}
