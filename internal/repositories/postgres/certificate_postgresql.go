package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type CertificatePostgreSQL struct {
	db *gorm.DB
}

func NewCertificatePostgreSQL(db *gorm.DB) repositories.CertificateRepository {
	return &CertificatePostgreSQL{db: db}
}

func (r *CertificatePostgreSQL) Create(ctx context.Context, certificate *models.Certificate) error {
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(certificate).Error
	return handleDBError(err, "create certificate")
}

func (r *CertificatePostgreSQL) GetByID(ctx context.Context, id uint) (*models.Certificate, error) {
	var certificate models.Certificate
	err := r.db.WithContext(ctx).
		Preload("Owner").
		Preload("Reviewer").
		First(&certificate, id).Error
	if err != nil {
		return nil, handleDBError(err, "get certificate")
	}
	return &certificate, nil
}

func (r *CertificatePostgreSQL) GetByIDForUpdate(ctx context.Context, id uint) (*models.Certificate, error) {
	var certificate models.Certificate
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&certificate, id).Error
	if err != nil {
		return nil, handleDBError(err, "lock certificate")
	}
	return &certificate, nil
}

// Update persists the review outcome; ownership and assignment are immutable
func (r *CertificatePostgreSQL) Update(ctx context.Context, certificate *models.Certificate) error {
	certificate.UpdatedAt = time.Now()
	result := r.db.WithContext(ctx).Model(&models.Certificate{}).
		Where("id = ?", certificate.ID).
		Updates(map[string]interface{}{
			"status":      certificate.Status,
			"remarks":     certificate.Remarks,
			"reviewed_at": certificate.ReviewedAt,
			"updated_at":  certificate.UpdatedAt,
		})
	if result.Error != nil {
		return handleDBError(result.Error, "update certificate")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "update certificate")
	}
	return nil
}

func (r *CertificatePostgreSQL) filtered(ctx context.Context, filters repositories.CertificateFilters) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Certificate{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.OwnerID != nil {
		query = query.Where("owner_id = ?", *filters.OwnerID)
	}
	if filters.ReviewerID != nil {
		query = query.Where("reviewer_id = ?", *filters.ReviewerID)
	}
	return query
}

func (r *CertificatePostgreSQL) List(ctx context.Context, filters repositories.CertificateFilters) ([]*models.Certificate, int64, error) {
	query := r.filtered(ctx, filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, handleDBError(err, "count certificates")
	}

	var certificates []*models.Certificate
	err := applyPagination(query, filters.Limit, filters.Offset).
		Preload("Owner").
		Preload("Reviewer").
		Order("created_at DESC, id DESC").
		Find(&certificates).Error
	if err != nil {
		return nil, 0, handleDBError(err, "list certificates")
	}

	return certificates, total, nil
}

func (r *CertificatePostgreSQL) ListExpiring(ctx context.Context, filters repositories.ExpiryFilters) ([]*models.Certificate, error) {
	query := r.db.WithContext(ctx).Model(&models.Certificate{}).
		Where("expiry_date IS NOT NULL").
		Where("expiry_date BETWEEN ? AND ?", filters.From.Format(time.DateOnly), filters.To.Format(time.DateOnly))

	if filters.OwnerID != nil {
		query = query.Where("owner_id = ?", *filters.OwnerID)
	}
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}

	var certificates []*models.Certificate
	err := query.
		Preload("Owner").
		Order("expiry_date ASC, id ASC").
		Find(&certificates).Error
	if err != nil {
		return nil, handleDBError(err, "list expiring certificates")
	}
	return certificates, nil
}

func (r *CertificatePostgreSQL) CountByStatus(ctx context.Context, filters repositories.CertificateFilters) (repositories.StatusCounts, error) {
	var rows []struct {
		Status models.CertificateStatus
		Count  int64
	}

	filters.Status = nil
	err := r.filtered(ctx, filters).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return repositories.StatusCounts{}, handleDBError(err, "count certificates by status")
	}

	var counts repositories.StatusCounts
	for _, row := range rows {
		switch row.Status {
		case models.CertificatePending:
			counts.Pending = row.Count
		case models.CertificateAccepted:
			counts.Accepted = row.Count
		case models.CertificateRejected:
			counts.Rejected = row.Count
		}
	}
	return counts, nil
}

// SoftDeleteByOwner marks and counts in one statement. The UPDATE waits on
// any row a concurrent review holds, so RETURNING reports the committed status.
func (r *CertificatePostgreSQL) SoftDeleteByOwner(ctx context.Context, ownerID string) (map[string]int, error) {
	now := time.Now()
	var rows []deletedCertificate
	err := r.db.WithContext(ctx).Raw(
		"UPDATE certificates SET deleted_at = ?, updated_at = ? "+
			"WHERE owner_id = ? AND deleted_at IS NULL "+
			"RETURNING reviewer_id, status",
		now, now, ownerID,
	).Scan(&rows).Error
	if err != nil {
		return nil, handleDBError(err, "delete certificates by owner")
	}
	return withdrawnByReviewer(rows), nil
}

type deletedCertificate struct {
	ReviewerID string
	Status     models.CertificateStatus
}

func withdrawnByReviewer(rows []deletedCertificate) map[string]int {
	withdrawn := make(map[string]int)
	for _, row := range rows {
		if row.Status == models.CertificatePending {
			withdrawn[row.ReviewerID]++
		}
	}
	return withdrawn
}

// LedgerCounts includes soft deleted rows that were already resolved, since
// those still count toward a reviewer's total
func (r *CertificatePostgreSQL) LedgerCounts(ctx context.Context) ([]repositories.LedgerCount, error) {
	var rows []repositories.LedgerCount
	err := r.db.WithContext(ctx).Unscoped().Model(&models.Certificate{}).
		Select(
			"reviewer_id, "+
				"COUNT(*) FILTER (WHERE status = ? AND deleted_at IS NULL) AS pending, "+
				"COUNT(*) FILTER (WHERE status <> ?) AS resolved",
			models.CertificatePending, models.CertificatePending,
		).
		Group("reviewer_id").
		Having("COUNT(*) FILTER (WHERE status <> ? OR deleted_at IS NULL) > 0", models.CertificatePending).
		Order("reviewer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, handleDBError(err, "compute ledger counts")
	}
	return rows, nil
}
