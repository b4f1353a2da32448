package repositories

import (
	"context"
	"time"

	"github.com/certtrack/certificate-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type AccountFilters struct {
	Role   *models.UserRole `json:"role"`
	Active *bool            `json:"active"`
	Query  string           `json:"query"` // username, email or name
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type CertificateFilters struct {
	Status     *models.CertificateStatus `json:"status"`
	OwnerID    *string                   `json:"owner_id"`
	ReviewerID *string                   `json:"reviewer_id"`
	Limit      int                       `json:"limit"`
	Offset     int                       `json:"offset"`
}

type ExpiryFilters struct {
	OwnerID *string
	Status  *models.CertificateStatus
	From    time.Time // inclusive calendar date
	To      time.Time // inclusive calendar date
}

// ===== PROJECTIONS =====

type StatusCounts struct {
	Pending  int64 `json:"pending"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
}

func (c StatusCounts) Total() int64 {
	return c.Pending + c.Accepted + c.Rejected
}

// WorkloadEntry joins a reviewer account with its counter
type WorkloadEntry struct {
	AccountID     string `json:"account_id"`
	Username      string `json:"username"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	Active        bool   `json:"active"`
	PendingCount  int    `json:"pending_count"`
	TotalAssigned int    `json:"total_assigned"`
}

// LedgerCount is a reviewer's workload recomputed from certificate rows
type LedgerCount struct {
	ReviewerID string
	Pending    int
	Resolved   int
}

// ===== REPOSITORY INTERFACES =====

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filters AccountFilters) ([]*models.Account, int64, error)
	CountByRole(ctx context.Context) (map[models.UserRole]int64, error)
}

type CredentialRepository interface {
	Upsert(ctx context.Context, credential *models.Credential) error
	GetByAccountID(ctx context.Context, accountID string) (*models.Credential, error)
}

type CertificateRepository interface {
	Create(ctx context.Context, certificate *models.Certificate) error
	GetByID(ctx context.Context, id uint) (*models.Certificate, error)
	// GetByIDForUpdate locks the row for the rest of the transaction
	GetByIDForUpdate(ctx context.Context, id uint) (*models.Certificate, error)
	Update(ctx context.Context, certificate *models.Certificate) error
	List(ctx context.Context, filters CertificateFilters) ([]*models.Certificate, int64, error)
	// ListExpiring returns certificates ordered by expiry date, soonest first
	ListExpiring(ctx context.Context, filters ExpiryFilters) ([]*models.Certificate, error)
	CountByStatus(ctx context.Context, filters CertificateFilters) (StatusCounts, error)
	// SoftDeleteByOwner removes an owner's certificates and returns, per
	// reviewer, how many of them were still pending
	SoftDeleteByOwner(ctx context.Context, ownerID string) (map[string]int, error)
	LedgerCounts(ctx context.Context) ([]LedgerCount, error)
}

type WorkloadRepository interface {
	Ensure(ctx context.Context, accountID string) error
	Get(ctx context.Context, accountID string) (*models.WorkloadCounter, error)
	// LockAssignment serializes assignment decisions until the transaction ends
	LockAssignment(ctx context.Context) error
	// PickLeastLoaded returns the active reviewer with the lowest pending
	// count, then lowest total, then earliest account creation
	PickLeastLoaded(ctx context.Context) (*models.WorkloadCounter, error)
	Adjust(ctx context.Context, accountID string, pendingDelta, totalDelta int) error
	Set(ctx context.Context, counter *models.WorkloadCounter) error
	Snapshot(ctx context.Context) ([]WorkloadEntry, error)
	Delete(ctx context.Context, accountID string) error
}

type TokenRepository interface {
	Create(ctx context.Context, token *models.SecurityToken) error
	// GetBySecretHash locks the token row for the rest of the transaction
	GetBySecretHash(ctx context.Context, secretHash string, purpose models.TokenPurpose) (*models.SecurityToken, error)
	MarkConsumed(ctx context.Context, id uint, at time.Time) error
	// InvalidateActive consumes every unconsumed token of the purpose
	InvalidateActive(ctx context.Context, accountID string, purpose models.TokenPurpose, at time.Time) (int64, error)
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
	DeleteByAccount(ctx context.Context, accountID string) error
}
