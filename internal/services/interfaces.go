package services

import (
	"context"
	"time"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

// ===== SERVICE INTERFACES =====

// TokenLedger issues and redeems single-use security tokens. Methods taking a
// tx join the caller's transaction; a nil tx runs in a transaction of its own.
type TokenLedger interface {
	Issue(ctx context.Context, tx repositories.Repository, accountID string, purpose models.TokenPurpose, ttl time.Duration) (*models.SecurityToken, error)
	Redeem(ctx context.Context, tx repositories.Repository, secret string, purpose models.TokenPurpose) (string, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// WorkloadBalancer picks reviewers and keeps their counters in step with the
// certificate ledger
type WorkloadBalancer interface {
	Assign(ctx context.Context, tx repositories.Repository) (string, error)
	OnAssigned(ctx context.Context, tx repositories.Repository, reviewerID string) error
	OnResolved(ctx context.Context, tx repositories.Repository, reviewerID string) error
	OnWithdrawn(ctx context.Context, tx repositories.Repository, reviewerID string, count int) error
	Snapshot(ctx context.Context) ([]*WorkloadEntryResponse, error)
	Reconcile(ctx context.Context) (*ReconcileResult, error)
}

type CertificateService interface {
	CreateUploadURL(ctx context.Context, ownerID string, req *UploadURLRequest) (*UploadURLResponse, error)
	Submit(ctx context.Context, ownerID string, req *SubmitCertificateRequest) (*CertificateResponse, error)
	Review(ctx context.Context, certificateID uint, reviewerID string, req *ReviewCertificateRequest) (*CertificateResponse, error)
	Get(ctx context.Context, certificateID uint, viewerID string) (*CertificateResponse, error)
	ListMine(ctx context.Context, ownerID string, req *CertificateListRequest) (*CertificateListResponse, error)
	ListAssigned(ctx context.Context, reviewerID string, req *CertificateListRequest) (*CertificateListResponse, error)
	ListAll(ctx context.Context, req *CertificateListRequest) (*CertificateListResponse, error)
	ReviewerStats(ctx context.Context, reviewerID string) (*ReviewerStats, error)
}

type PerformanceScorer interface {
	Score(ctx context.Context, ownerID string) (*PerformanceScore, error)
	// ExpiringSoon lists certificates expiring within windowDays, soonest
	// first; windowDays <= 0 selects the configured window
	ExpiringSoon(ctx context.Context, ownerID string, windowDays int) ([]*CertificateResponse, error)
}

type AnalyticsService interface {
	Summary(ctx context.Context) (*AnalyticsSummary, error)
}

type AccountService interface {
	Register(ctx context.Context, req *RegisterRequest) (*AccountResponse, error)
	ResendVerification(ctx context.Context, req *EmailRequest) error
	VerifyEmail(ctx context.Context, secret string) (*AccountResponse, error)
	Login(ctx context.Context, req *LoginRequest, clientIP string) (*LoginResponse, error)
	ForgotPassword(ctx context.Context, req *EmailRequest) error
	ResetPassword(ctx context.Context, secret string, req *ResetPasswordRequest) error
	GetProfile(ctx context.Context, accountID string) (*AccountResponse, error)
	UpdateProfile(ctx context.Context, accountID string, req *UpdateProfileRequest) (*AccountResponse, error)
	ListAccounts(ctx context.Context, req *AccountListRequest) (*AccountListResponse, error)
	SetActive(ctx context.Context, actorID, accountID string, active bool) (*AccountResponse, error)
	DeleteAccount(ctx context.Context, actorID, accountID string) error
	// CreateAdmin bootstraps an operator account; it is not exposed over HTTP
	CreateAdmin(ctx context.Context, req *CreateAdminRequest) (*AccountResponse, error)
}

type ExportService interface {
	ExportCertificates(ctx context.Context, req *CertificateListRequest) ([]byte, error)
}

type ExpiryAlertService interface {
	Dispatch(ctx context.Context, dryRun bool) (*ExpiryAlertReport, error)
}

type ServiceManager interface {
	Initialize(ctx context.Context) error
	Account() AccountService
	Certificate() CertificateService
	Workload() WorkloadBalancer
	Tokens() TokenLedger
	Performance() PerformanceScorer
	Analytics() AnalyticsService
	Export() ExportService
	ExpiryAlerts() ExpiryAlertService
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ===== ACCOUNT DTOs =====

type RegisterRequest struct {
	Username  string          `json:"username" validate:"required,min=3,max=150,username"`
	Email     string          `json:"email" validate:"required,email,max=254"`
	Password  string          `json:"password" validate:"required,min=6,max=128"`
	FirstName string          `json:"first_name" validate:"max=150"`
	LastName  string          `json:"last_name" validate:"max=150"`
	Role      models.UserRole `json:"role" validate:"required,signup_role"`
}

// CreateAdminRequest creates an already verified admin account
type CreateAdminRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=150,username"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=6,max=128"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresAt   time.Time        `json:"expires_at"`
	Account     *AccountResponse `json:"account"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=6,max=128"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
}

type AccountResponse struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	Email         string          `json:"email"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
	Role          models.UserRole `json:"role"`
	Active        bool            `json:"active"`
	EmailVerified bool            `json:"email_verified"`
	CreatedAt     time.Time       `json:"created_at"`
}

type AccountListRequest struct {
	Role   string `form:"role" validate:"omitempty,oneof=student faculty admin"`
	Active *bool  `form:"active"`
	Query  string `form:"search" validate:"max=100"`
	Page   int    `form:"page" validate:"omitempty,min=1"`
	Size   int    `form:"size" validate:"omitempty,min=1,max=100"`
}

type AccountListResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	Size     int                `json:"size"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// ===== CERTIFICATE DTOs =====

type UploadURLRequest struct {
	FileName    string `json:"file_name" validate:"required,max=255,certificate_file"`
	ContentType string `json:"content_type" validate:"required,max=100"`
	Size        int64  `json:"size" validate:"required,min=1"`
}

type UploadURLResponse struct {
	FileRef   string    `json:"file_ref"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SubmitCertificateRequest struct {
	Title        string  `json:"title" validate:"required,max=255"`
	Organization string  `json:"organization" validate:"required,max=255"`
	IssueDate    string  `json:"issue_date" validate:"required,datetime=2006-01-02"`
	ExpiryDate   *string `json:"expiry_date" validate:"omitempty,datetime=2006-01-02"`
	FileRef      string  `json:"file_ref" validate:"required,max=512"`
}

type ReviewCertificateRequest struct {
	Status  models.CertificateStatus `json:"status" validate:"required,review_decision"`
	Remarks *string                  `json:"remarks" validate:"omitempty,max=2000"`
}

type CertificateListRequest struct {
	Status     string `form:"status" validate:"omitempty,oneof=pending accepted rejected"`
	OwnerID    string `form:"owner_id" validate:"omitempty,max=36"`
	ReviewerID string `form:"reviewer_id" validate:"omitempty,max=36"`
	Page       int    `form:"page" validate:"omitempty,min=1"`
	Size       int    `form:"size" validate:"omitempty,min=1,max=100"`
}

type AccountSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

type CertificateResponse struct {
	ID              uint                     `json:"id"`
	Title           string                   `json:"title"`
	Organization    string                   `json:"organization"`
	IssueDate       string                   `json:"issue_date"`
	ExpiryDate      *string                  `json:"expiry_date"`
	DaysUntilExpiry *int                     `json:"days_until_expiry,omitempty"`
	FileRef         string                   `json:"file_ref"`
	Status          models.CertificateStatus `json:"status"`
	Remarks         *string                  `json:"remarks"`
	OwnerID         string                   `json:"owner_id"`
	ReviewerID      string                   `json:"reviewer_id"`
	Owner           *AccountSummary          `json:"owner,omitempty"`
	Reviewer        *AccountSummary          `json:"reviewer,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
	ReviewedAt      *time.Time               `json:"reviewed_at"`
}

type CertificateListResponse struct {
	Certificates []*CertificateResponse `json:"certificates"`
	Total        int64                  `json:"total"`
	Page         int                    `json:"page"`
	Size         int                    `json:"size"`
}

type ReviewerStats struct {
	ReviewerID    string `json:"reviewer_id"`
	TotalAssigned int64  `json:"total_assigned"`
	Pending       int64  `json:"pending"`
	Accepted      int64  `json:"accepted"`
	Rejected      int64  `json:"rejected"`
}

// ===== PROJECTION DTOs =====

// PerformanceScore.Score is 10 per accepted minus 2 per rejected
// certificate. It is not clamped and may be negative.
type PerformanceScore struct {
	OwnerID  string `json:"owner_id"`
	Accepted int64  `json:"accepted"`
	Rejected int64  `json:"rejected"`
	Pending  int64  `json:"pending"`
	Total    int64  `json:"total"`
	Score    int64  `json:"score"`
}

// WorkloadEntryResponse reports a reviewer's counters. Resolved counts
// completed reviews only; ReviewerStats.TotalAssigned also includes pending.
type WorkloadEntryResponse struct {
	AccountID    string                `json:"account_id"`
	Username     string                `json:"username"`
	Name         string                `json:"name"`
	Email        string                `json:"email"`
	Active       bool                  `json:"active"`
	PendingCount int                   `json:"pending_count"`
	Resolved     int                   `json:"resolved"`
	Status       models.WorkloadStatus `json:"status"`
}

type WorkloadDrift struct {
	ReviewerID     string `json:"reviewer_id"`
	StoredPending  int    `json:"stored_pending"`
	StoredTotal    int    `json:"stored_total"`
	LedgerPending  int    `json:"ledger_pending"`
	LedgerResolved int    `json:"ledger_resolved"`
}

type ReconcileResult struct {
	Checked int             `json:"checked"`
	Drift   []WorkloadDrift `json:"drift"`
}

type AnalyticsSummary struct {
	TotalCertificates int64                     `json:"total_certificates"`
	ByStatus          repositories.StatusCounts `json:"by_status"`
	TotalStudents     int64                     `json:"total_students"`
	TotalFaculty      int64                     `json:"total_faculty"`
	TotalAdmins       int64                     `json:"total_admins"`
	Reviewers         []*WorkloadEntryResponse  `json:"reviewers"`
	GeneratedAt       time.Time                 `json:"generated_at"`
}

type ExpiryAlertItem struct {
	CertificateID uint   `json:"certificate_id"`
	Title         string `json:"title"`
	Organization  string `json:"organization"`
	ExpiryDate    string `json:"expiry_date"`
	DaysLeft      int    `json:"days_left"`
	Severity      string `json:"severity"`
}

type ExpiryAlert struct {
	AccountID string            `json:"account_id"`
	Email     string            `json:"email"`
	Name      string            `json:"name"`
	Items     []ExpiryAlertItem `json:"items"`
}

type ExpiryAlertReport struct {
	DryRun       bool           `json:"dry_run"`
	Students     int            `json:"students"`
	Certificates int            `json:"certificates"`
	Published    int            `json:"published"`
	Alerts       []*ExpiryAlert `json:"alerts"`
}
