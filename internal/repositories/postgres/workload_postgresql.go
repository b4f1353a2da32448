package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

// assignmentLockKey identifies the transaction scoped advisory lock that
// serializes reviewer selection across service instances
const assignmentLockKey int64 = 0x63657274_61737367

type WorkloadPostgreSQL struct {
	db *gorm.DB
}

func NewWorkloadPostgreSQL(db *gorm.DB) repositories.WorkloadRepository {
	return &WorkloadPostgreSQL{db: db}
}

func (r *WorkloadPostgreSQL) Ensure(ctx context.Context, accountID string) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.WorkloadCounter{AccountID: accountID}).Error
	return handleDBError(err, "ensure workload counter")
}

func (r *WorkloadPostgreSQL) Get(ctx context.Context, accountID string) (*models.WorkloadCounter, error) {
	var counter models.WorkloadCounter
	if err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&counter).Error; err != nil {
		return nil, handleDBError(err, "get workload counter")
	}
	return &counter, nil
}

// LockAssignment must run inside a transaction; the lock is released on commit or rollback
func (r *WorkloadPostgreSQL) LockAssignment(ctx context.Context) error {
	err := r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", assignmentLockKey).Error
	return handleDBError(err, "lock assignment")
}

func (r *WorkloadPostgreSQL) PickLeastLoaded(ctx context.Context) (*models.WorkloadCounter, error) {
	var counter models.WorkloadCounter
	err := r.db.WithContext(ctx).
		Table("workload_counters AS w").
		Select("w.*").
		Joins("JOIN accounts a ON a.id = w.account_id").
		Where("a.deleted_at IS NULL AND a.active AND a.role = ?", models.RoleFaculty).
		Order("w.pending_count ASC, w.total_assigned ASC, a.created_at ASC, a.seq ASC").
		Limit(1).
		Take(&counter).Error
	if err != nil {
		return nil, handleDBError(err, "pick reviewer")
	}
	return &counter, nil
}

// Adjust applies deltas in a single statement so concurrent writers cannot lose updates
func (r *WorkloadPostgreSQL) Adjust(ctx context.Context, accountID string, pendingDelta, totalDelta int) error {
	result := r.db.WithContext(ctx).Model(&models.WorkloadCounter{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"pending_count":  gorm.Expr("pending_count + ?", pendingDelta),
			"total_assigned": gorm.Expr("total_assigned + ?", totalDelta),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return handleDBError(result.Error, "adjust workload")
	}
	if result.RowsAffected == 0 {
		return handleDBError(gorm.ErrRecordNotFound, "adjust workload")
	}
	return nil
}

func (r *WorkloadPostgreSQL) Set(ctx context.Context, counter *models.WorkloadCounter) error {
	counter.UpdatedAt = time.Now()
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pending_count", "total_assigned", "updated_at"}),
	}).Create(counter).Error
	return handleDBError(err, "set workload counter")
}

func (r *WorkloadPostgreSQL) Snapshot(ctx context.Context) ([]repositories.WorkloadEntry, error) {
	var entries []repositories.WorkloadEntry
	err := r.db.WithContext(ctx).
		Table("accounts AS a").
		Select(`a.id AS account_id, a.username, a.first_name, a.last_name, a.email, a.active,
			COALESCE(w.pending_count, 0) AS pending_count,
			COALESCE(w.total_assigned, 0) AS total_assigned`).
		Joins("LEFT JOIN workload_counters w ON w.account_id = a.id").
		Where("a.deleted_at IS NULL AND a.role = ?", models.RoleFaculty).
		Order("a.username ASC").
		Scan(&entries).Error
	if err != nil {
		return nil, handleDBError(err, "workload snapshot")
	}
	return entries, nil
}

func (r *WorkloadPostgreSQL) Delete(ctx context.Context, accountID string) error {
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&models.WorkloadCounter{}).Error
	return handleDBError(err, "delete workload counter")
}
