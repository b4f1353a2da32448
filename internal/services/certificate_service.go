package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/certtrack/certificate-service/internal/cache"
	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
	"github.com/certtrack/certificate-service/internal/storage"
	"github.com/certtrack/certificate-service/internal/validator"
)

type certificateService struct {
	repo      repositories.Repository
	balancer  WorkloadBalancer
	files     storage.FileStore
	cache     *cache.CacheManager
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
	now       func() time.Time
}

func NewCertificateService(
	repo repositories.Repository,
	balancer WorkloadBalancer,
	files storage.FileStore,
	cacheManager *cache.CacheManager,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
) CertificateService {
	return &certificateService{
		repo:      repo,
		balancer:  balancer,
		files:     files,
		cache:     cacheManager,
		publisher: publisher,
		logger:    logger,
		validator: validator,
		now:       time.Now,
	}
}

func fileRefPrefix(ownerID string) string {
	return "certificates/" + ownerID + "/"
}

// ===== SUBMISSION =====

func (s *certificateService) CreateUploadURL(ctx context.Context, ownerID string, req *UploadURLRequest) (*UploadURLResponse, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if errs := s.validator.GetBusinessValidator().ValidateUploadFile(req.FileName, req.Size); len(errs) > 0 {
		return nil, errs
	}

	if _, err := s.requireActive(ctx, ownerID, models.RoleStudent, "upload"); err != nil {
		return nil, err
	}

	fileRef := fileRefPrefix(ownerID) + uuid.NewString() + strings.ToLower(filepath.Ext(req.FileName))
	url, expiresAt, err := s.files.PresignUpload(ctx, fileRef, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload url: %w", err)
	}

	return &UploadURLResponse{FileRef: fileRef, UploadURL: url, ExpiresAt: expiresAt}, nil
}

func (s *certificateService) Submit(ctx context.Context, ownerID string, req *SubmitCertificateRequest) (*CertificateResponse, error) {
	s.logger.Info("Submitting certificate", "owner_id", ownerID, "title", req.Title)

	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	issueDate, expiryDate, err := s.parseDates(req)
	if err != nil {
		return nil, err
	}
	today := currentDate(s.now)
	if errs := s.validator.GetBusinessValidator().ValidateCertificateDates(issueDate, expiryDate, today); len(errs) > 0 {
		return nil, errs
	}

	owner, err := s.requireActive(ctx, ownerID, models.RoleStudent, "submit")
	if err != nil {
		return nil, err
	}

	if err := s.checkFileRef(ctx, ownerID, req.FileRef); err != nil {
		return nil, err
	}

	certificate := &models.Certificate{
		OwnerID:      ownerID,
		Title:        strings.TrimSpace(req.Title),
		Organization: strings.TrimSpace(req.Organization),
		IssueDate:    datatypes.Date(issueDate),
		FileRef:      req.FileRef,
		Status:       models.CertificatePending,
	}
	if expiryDate != nil {
		expiry := datatypes.Date(*expiryDate)
		certificate.ExpiryDate = &expiry
	}

	var created *models.Certificate
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		reviewerID, err := s.balancer.Assign(ctx, tx)
		if err != nil {
			return err
		}
		certificate.ReviewerID = reviewerID

		if err := tx.Certificate().Create(ctx, certificate); err != nil {
			return fmt.Errorf("failed to create certificate: %w", err)
		}
		if err := s.balancer.OnAssigned(ctx, tx, reviewerID); err != nil {
			return err
		}

		created, err = tx.Certificate().GetByID(ctx, certificate.ID)
		if err != nil {
			return fmt.Errorf("failed to reload certificate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Certificate submitted", "certificate_id", created.ID, "owner_id", ownerID, "reviewer_id", created.ReviewerID)
	cache.InvalidateCertificateCaches(ctx, s.cache, ownerID, created.ReviewerID)

	submitted := events.CertificateSubmittedEvent{
		CertificateID: created.ID,
		Title:         created.Title,
		OwnerID:       owner.ID,
		ReviewerID:    created.ReviewerID,
	}
	if created.Reviewer != nil {
		submitted.ReviewerEmail = created.Reviewer.Email
	}
	publish(ctx, s.publisher, s.logger, events.EventCertificateSubmitted, submitted)

	return toCertificateResponse(created, today), nil
}

func (s *certificateService) parseDates(req *SubmitCertificateRequest) (time.Time, *time.Time, error) {
	issueDate, err := validator.ParseDate("issue_date", req.IssueDate)
	if err != nil {
		return time.Time{}, nil, err
	}
	if req.ExpiryDate == nil || *req.ExpiryDate == "" {
		return issueDate, nil, nil
	}
	expiryDate, err := validator.ParseDate("expiry_date", *req.ExpiryDate)
	if err != nil {
		return time.Time{}, nil, err
	}
	return issueDate, &expiryDate, nil
}

// checkFileRef accepts only objects uploaded under the owner's prefix
func (s *certificateService) checkFileRef(ctx context.Context, ownerID, fileRef string) error {
	if !strings.HasPrefix(fileRef, fileRefPrefix(ownerID)) || strings.Contains(fileRef, "..") {
		return validationError("file_ref", "does not belong to the submitting account", fileRef, "file_ref_owner")
	}

	exists, err := s.files.Exists(ctx, fileRef)
	if err != nil {
		return fmt.Errorf("failed to check uploaded file: %w", err)
	}
	if !exists {
		return validationError("file_ref", "file has not been uploaded", fileRef, "file_missing")
	}
	return nil
}

// ===== REVIEW =====

func (s *certificateService) Review(ctx context.Context, certificateID uint, reviewerID string, req *ReviewCertificateRequest) (*CertificateResponse, error) {
	s.logger.Info("Reviewing certificate", "certificate_id", certificateID, "reviewer_id", reviewerID, "status", req.Status)

	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	var reviewed *models.Certificate
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		certificate, err := tx.Certificate().GetByIDForUpdate(ctx, certificateID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrCertificateNotFound
			}
			return fmt.Errorf("failed to load certificate: %w", err)
		}

		if certificate.ReviewerID != reviewerID {
			return NewPermissionError(reviewerID, certificateID, "certificate", "review", "not the assigned reviewer")
		}
		if certificate.Status != models.CertificatePending {
			return ErrInvalidTransition
		}

		// Access tokens outlive deactivation, so the reviewer is rechecked here
		reviewer, err := tx.Account().GetByID(ctx, reviewerID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("failed to load reviewer: %w", err)
		}
		if reviewer == nil || !reviewer.Active {
			return ErrAccountDisabled
		}

		reviewedAt := s.now()
		certificate.Status = req.Status
		certificate.Remarks = req.Remarks
		certificate.ReviewedAt = &reviewedAt

		if err := tx.Certificate().Update(ctx, certificate); err != nil {
			return fmt.Errorf("failed to update certificate: %w", err)
		}
		if err := s.balancer.OnResolved(ctx, tx, reviewerID); err != nil {
			return err
		}

		// The locked row carries no associations; reload for the event and response
		reviewed, err = tx.Certificate().GetByID(ctx, certificateID)
		if err != nil {
			return fmt.Errorf("failed to reload certificate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Certificate reviewed", "certificate_id", reviewed.ID, "status", reviewed.Status)
	cache.InvalidateCertificateCaches(ctx, s.cache, reviewed.OwnerID, reviewerID)

	payload := events.CertificateReviewedEvent{
		CertificateID: reviewed.ID,
		Title:         reviewed.Title,
		OwnerID:       reviewed.OwnerID,
		ReviewerID:    reviewerID,
		Status:        string(reviewed.Status),
		Remarks:       reviewed.Remarks,
	}
	if reviewed.Owner != nil {
		payload.OwnerEmail = reviewed.Owner.Email
	}
	publish(ctx, s.publisher, s.logger, events.EventCertificateReviewed, payload)

	return toCertificateResponse(reviewed, currentDate(s.now)), nil
}

// ===== READS =====

func (s *certificateService) Get(ctx context.Context, certificateID uint, viewerID string) (*CertificateResponse, error) {
	certificate, err := s.repo.Certificate().GetByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrCertificateNotFound
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	if viewerID != certificate.OwnerID && viewerID != certificate.ReviewerID {
		viewer, err := s.loadAccount(ctx, viewerID)
		if err != nil {
			return nil, err
		}
		if viewer.Role != models.RoleAdmin {
			return nil, NewPermissionError(viewerID, certificateID, "certificate", "read", "not owner, reviewer or admin")
		}
	}

	return toCertificateResponse(certificate, currentDate(s.now)), nil
}

func (s *certificateService) ListMine(ctx context.Context, ownerID string, req *CertificateListRequest) (*CertificateListResponse, error) {
	return s.list(ctx, req, func(f *repositories.CertificateFilters) {
		f.OwnerID = &ownerID
	})
}

func (s *certificateService) ListAssigned(ctx context.Context, reviewerID string, req *CertificateListRequest) (*CertificateListResponse, error) {
	return s.list(ctx, req, func(f *repositories.CertificateFilters) {
		f.ReviewerID = &reviewerID
	})
}

func (s *certificateService) ListAll(ctx context.Context, req *CertificateListRequest) (*CertificateListResponse, error) {
	if req == nil {
		req = &CertificateListRequest{}
	}
	return s.list(ctx, req, func(f *repositories.CertificateFilters) {
		if req.OwnerID != "" {
			f.OwnerID = &req.OwnerID
		}
		if req.ReviewerID != "" {
			f.ReviewerID = &req.ReviewerID
		}
	})
}

func (s *certificateService) list(ctx context.Context, req *CertificateListRequest, scope func(*repositories.CertificateFilters)) (*CertificateListResponse, error) {
	if req == nil {
		req = &CertificateListRequest{}
	}
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	page, size := normalizePage(req.Page, req.Size)
	filters := repositories.CertificateFilters{Limit: size, Offset: (page - 1) * size}
	if req.Status != "" {
		status := models.CertificateStatus(req.Status)
		filters.Status = &status
	}
	scope(&filters)

	certificates, total, err := s.repo.Certificate().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}

	return &CertificateListResponse{
		Certificates: toCertificateResponses(certificates, currentDate(s.now)),
		Total:        total,
		Page:         page,
		Size:         size,
	}, nil
}

func (s *certificateService) ReviewerStats(ctx context.Context, reviewerID string) (*ReviewerStats, error) {
	var stats ReviewerStats
	err := s.cache.Stats.CacheOrExecute(ctx, cache.ReviewerStatsKey(reviewerID), &stats, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		counts, err := s.repo.Certificate().CountByStatus(ctx, repositories.CertificateFilters{ReviewerID: &reviewerID})
		if err != nil {
			return nil, fmt.Errorf("failed to count assigned certificates: %w", err)
		}
		return &ReviewerStats{
			ReviewerID:    reviewerID,
			TotalAssigned: counts.Total(),
			Pending:       counts.Pending,
			Accepted:      counts.Accepted,
			Rejected:      counts.Rejected,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ===== HELPERS =====

func (s *certificateService) loadAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repo.Account().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}

func (s *certificateService) requireActive(ctx context.Context, accountID string, role models.UserRole, action string) (*models.Account, error) {
	account, err := s.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.Role != role {
		return nil, NewPermissionError(accountID, accountID, "certificate", action, "requires role "+string(role))
	}
	if !account.Active {
		return nil, ErrAccountDisabled
	}
	return account, nil
}
