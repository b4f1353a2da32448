package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/certtrack/certificate-service/internal/auth"
	"github.com/certtrack/certificate-service/internal/cache"
	"github.com/certtrack/certificate-service/internal/config"
	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/limiter"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
	"github.com/certtrack/certificate-service/internal/validator"
)

type AccountServiceConfig struct {
	FrontendURL string
	Tokens      config.TokenConfig
}

type accountService struct {
	repo      repositories.Repository
	ledger    TokenLedger
	balancer  WorkloadBalancer
	issuer    *auth.TokenIssuer
	limiter   limiter.Limiter
	cache     *cache.CacheManager
	publisher events.EventPublisher
	config    AccountServiceConfig
	logger    *slog.Logger
	validator *validator.Validator
}

func NewAccountService(
	repo repositories.Repository,
	ledger TokenLedger,
	balancer WorkloadBalancer,
	issuer *auth.TokenIssuer,
	loginLimiter limiter.Limiter,
	cacheManager *cache.CacheManager,
	publisher events.EventPublisher,
	cfg AccountServiceConfig,
	logger *slog.Logger,
	validator *validator.Validator,
) AccountService {
	if loginLimiter == nil {
		loginLimiter = limiter.Noop{}
	}
	return &accountService{
		repo:      repo,
		ledger:    ledger,
		balancer:  balancer,
		issuer:    issuer,
		limiter:   loginLimiter,
		cache:     cacheManager,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		validator: validator,
	}
}

// ===== REGISTRATION & VERIFICATION =====

func (s *accountService) Register(ctx context.Context, req *RegisterRequest) (*AccountResponse, error) {
	s.logger.Info("Registering account", "username", req.Username, "role", req.Role)

	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if errs := s.validator.GetBusinessValidator().ValidateSignupRole(req.Role); len(errs) > 0 {
		return nil, errs
	}

	if err := s.ensureUnique(ctx, req.Username, req.Email); err != nil {
		return nil, err
	}

	hash, salt, err := auth.NewPasswordHash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		ID:        uuid.NewString(),
		Username:  strings.TrimSpace(req.Username),
		Email:     strings.TrimSpace(req.Email),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Role:      req.Role,
		Active:    true,
	}

	var token *models.SecurityToken
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Account().Create(ctx, account); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrAccountExists
			}
			return fmt.Errorf("failed to create account: %w", err)
		}

		if err := tx.Credential().Upsert(ctx, &models.Credential{
			AccountID:    account.ID,
			PasswordHash: hash,
			Salt:         salt,
		}); err != nil {
			return fmt.Errorf("failed to store credential: %w", err)
		}

		if account.IsReviewer() {
			if err := tx.Workload().Ensure(ctx, account.ID); err != nil {
				return fmt.Errorf("failed to create workload counter: %w", err)
			}
		}

		token, err = s.ledger.Issue(ctx, tx, account.ID, models.TokenEmailVerify, s.config.Tokens.EmailVerifyTTL)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Account registered", "account_id", account.ID, "role", account.Role)
	cache.SafeDelete(ctx, s.cache.Analytics, cache.AnalyticsSummaryKey)
	s.publishLink(ctx, events.EventVerificationRequested, account, "verify-email", token)

	return toAccountResponse(account), nil
}

// CreateAdmin skips email verification since admins cannot sign up themselves
func (s *accountService) CreateAdmin(ctx context.Context, req *CreateAdminRequest) (*AccountResponse, error) {
	s.logger.Info("Creating admin account", "username", req.Username)

	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, req.Username, req.Email); err != nil {
		return nil, err
	}

	hash, salt, err := auth.NewPasswordHash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := &models.Account{
		ID:            uuid.NewString(),
		Username:      strings.TrimSpace(req.Username),
		Email:         strings.TrimSpace(req.Email),
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		Role:          models.RoleAdmin,
		Active:        true,
		EmailVerified: true,
	}

	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Account().Create(ctx, account); err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				return ErrAccountExists
			}
			return fmt.Errorf("failed to create account: %w", err)
		}
		if err := tx.Credential().Upsert(ctx, &models.Credential{
			AccountID:    account.ID,
			PasswordHash: hash,
			Salt:         salt,
		}); err != nil {
			return fmt.Errorf("failed to store credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Admin account created", "account_id", account.ID)
	cache.SafeDelete(ctx, s.cache.Analytics, cache.AnalyticsSummaryKey)

	return toAccountResponse(account), nil
}

func (s *accountService) ensureUnique(ctx context.Context, username, email string) error {
	taken, err := s.repo.Account().ExistsByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return ErrAccountExists
	}

	taken, err = s.repo.Account().ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return ErrAccountExists
	}
	return nil
}

// ResendVerification is silent for unknown addresses
func (s *accountService) ResendVerification(ctx context.Context, req *EmailRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}

	account, err := s.repo.Account().GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Info("Verification resend for unknown email")
			return nil
		}
		return fmt.Errorf("failed to load account: %w", err)
	}
	if account.EmailVerified {
		return ErrEmailAlreadyVerified
	}

	token, err := s.ledger.Issue(ctx, nil, account.ID, models.TokenEmailVerify, s.config.Tokens.EmailVerifyTTL)
	if err != nil {
		return err
	}

	s.publishLink(ctx, events.EventVerificationRequested, account, "verify-email", token)
	return nil
}

func (s *accountService) VerifyEmail(ctx context.Context, secret string) (*AccountResponse, error) {
	var account *models.Account
	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		accountID, err := s.ledger.Redeem(ctx, tx, secret, models.TokenEmailVerify)
		if err != nil {
			return err
		}

		account, err = tx.Account().GetByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("failed to load account: %w", err)
		}

		account.EmailVerified = true
		if err := tx.Account().Update(ctx, account); err != nil {
			return fmt.Errorf("failed to update account: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Email verified", "account_id", account.ID)
	publish(ctx, s.publisher, s.logger, events.EventAccountWelcome, events.AccountWelcomeEvent{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.FullName(),
		Role:      string(account.Role),
	})

	return toAccountResponse(account), nil
}

// ===== LOGIN & PASSWORD RESET =====

func (s *accountService) Login(ctx context.Context, req *LoginRequest, clientIP string) (*LoginResponse, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	allowed, retryAfter, err := s.limiter.Allow(ctx, req.Username, clientIP)
	if err != nil {
		s.logger.Warn("Login limiter unavailable", "error", err)
	} else if !allowed {
		return nil, fmt.Errorf("%w: retry in %s", ErrTooManyAttempts, retryAfter.Round(time.Second))
	}

	account, err := s.checkCredentials(ctx, req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.recordFailure(ctx, req.Username, clientIP)
		}
		return nil, err
	}

	if !account.Active {
		return nil, ErrAccountDisabled
	}
	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if err := s.limiter.Success(ctx, req.Username, clientIP); err != nil {
		s.logger.Warn("Failed to reset login limiter", "error", err)
	}

	accessToken, expiresAt, err := s.issuer.Issue(account.ID, account.Role)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	s.logger.Info("Login succeeded", "account_id", account.ID)
	return &LoginResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		Account:     toAccountResponse(account),
	}, nil
}

func (s *accountService) checkCredentials(ctx context.Context, req *LoginRequest) (*models.Account, error) {
	account, err := s.repo.Account().GetByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	credential, err := s.repo.Credential().GetByAccountID(ctx, account.ID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	if !auth.VerifyPassword(req.Password, credential.Salt, credential.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return account, nil
}

func (s *accountService) recordFailure(ctx context.Context, username, clientIP string) {
	blocked, blockFor, err := s.limiter.Failure(ctx, username, clientIP)
	if err != nil {
		s.logger.Warn("Failed to record login failure", "error", err)
		return
	}
	if blocked {
		s.logger.Warn("Login temporarily blocked", "username", username, "block_for", blockFor)
	}
}

// ForgotPassword is silent for unknown or disabled accounts
func (s *accountService) ForgotPassword(ctx context.Context, req *EmailRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}

	account, err := s.repo.Account().GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.logger.Info("Password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("failed to load account: %w", err)
	}
	if !account.Active {
		s.logger.Info("Password reset requested for disabled account", "account_id", account.ID)
		return nil
	}

	token, err := s.ledger.Issue(ctx, nil, account.ID, models.TokenPasswordReset, s.config.Tokens.PasswordResetTTL)
	if err != nil {
		return err
	}

	s.publishLink(ctx, events.EventPasswordResetRequested, account, "reset-password", token)
	return nil
}

func (s *accountService) ResetPassword(ctx context.Context, secret string, req *ResetPasswordRequest) error {
	if err := s.validator.ValidateStruct(req); err != nil {
		return err
	}

	hash, salt, err := auth.NewPasswordHash(req.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	var accountID string
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		accountID, err = s.ledger.Redeem(ctx, tx, secret, models.TokenPasswordReset)
		if err != nil {
			return err
		}

		if _, err := tx.Account().GetByID(ctx, accountID); err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("failed to load account: %w", err)
		}

		if err := tx.Credential().Upsert(ctx, &models.Credential{
			AccountID:    accountID,
			PasswordHash: hash,
			Salt:         salt,
		}); err != nil {
			return fmt.Errorf("failed to update credential: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Password reset", "account_id", accountID)
	return nil
}

func (s *accountService) publishLink(ctx context.Context, eventType events.EventType, account *models.Account, path string, token *models.SecurityToken) {
	publish(ctx, s.publisher, s.logger, eventType, events.AccountLinkEvent{
		AccountID: account.ID,
		Email:     account.Email,
		Name:      account.FullName(),
		Link:      fmt.Sprintf("%s/%s/%s", s.config.FrontendURL, path, token.Secret),
		ExpiresAt: token.ExpiresAt,
	})
}

// ===== PROFILE =====

func (s *accountService) GetProfile(ctx context.Context, accountID string) (*AccountResponse, error) {
	account, err := s.loadAccount(ctx, s.repo, accountID)
	if err != nil {
		return nil, err
	}
	return toAccountResponse(account), nil
}

func (s *accountService) UpdateProfile(ctx context.Context, accountID string, req *UpdateProfileRequest) (*AccountResponse, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	account, err := s.loadAccount(ctx, s.repo, accountID)
	if err != nil {
		return nil, err
	}
	if req.FirstName != nil {
		account.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		account.LastName = strings.TrimSpace(*req.LastName)
	}

	if err := s.repo.Account().Update(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return toAccountResponse(account), nil
}

// ===== ADMINISTRATION =====

func (s *accountService) ListAccounts(ctx context.Context, req *AccountListRequest) (*AccountListResponse, error) {
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	page, size := normalizePage(req.Page, req.Size)
	filters := repositories.AccountFilters{
		Active: req.Active,
		Query:  strings.TrimSpace(req.Query),
		Limit:  size,
		Offset: (page - 1) * size,
	}
	if req.Role != "" {
		role := models.UserRole(req.Role)
		filters.Role = &role
	}

	accounts, total, err := s.repo.Account().List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	result := make([]*AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		result = append(result, toAccountResponse(a))
	}
	return &AccountListResponse{Accounts: result, Total: total, Page: page, Size: size}, nil
}

func (s *accountService) SetActive(ctx context.Context, actorID, accountID string, active bool) (*AccountResponse, error) {
	if actorID == accountID && !active {
		return nil, NewPermissionError(actorID, accountID, "account", "deactivate", "cannot deactivate own account")
	}

	account, err := s.loadAccount(ctx, s.repo, accountID)
	if err != nil {
		return nil, err
	}
	account.Active = active
	if err := s.repo.Account().Update(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	s.logger.Info("Account activation changed", "account_id", accountID, "active", active, "actor_id", actorID)
	cache.SafeDelete(ctx, s.cache.Analytics, cache.AnalyticsSummaryKey)
	return toAccountResponse(account), nil
}

// DeleteAccount soft deletes the account. A student's certificates go with it
// and their pending ones are withdrawn from reviewer counters; a reviewer with
// pending work cannot be deleted.
func (s *accountService) DeleteAccount(ctx context.Context, actorID, accountID string) error {
	if actorID == accountID {
		return NewPermissionError(actorID, accountID, "account", "delete", "cannot delete own account")
	}

	err := s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		account, err := s.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}

		switch account.Role {
		case models.RoleStudent:
			withdrawn, err := tx.Certificate().SoftDeleteByOwner(ctx, accountID)
			if err != nil {
				return fmt.Errorf("failed to delete certificates: %w", err)
			}
			for reviewerID, count := range withdrawn {
				if err := s.balancer.OnWithdrawn(ctx, tx, reviewerID, count); err != nil {
					return err
				}
			}
		case models.RoleFaculty:
			if err := tx.Workload().LockAssignment(ctx); err != nil {
				return fmt.Errorf("failed to lock assignment: %w", err)
			}
			counter, err := tx.Workload().Get(ctx, accountID)
			if err != nil && !errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("failed to load workload: %w", err)
			}
			if counter != nil && counter.PendingCount > 0 {
				return NewBusinessRuleError(ErrReviewerHasPending,
					fmt.Sprintf("reviewer has %d pending certificates", counter.PendingCount),
					map[string]interface{}{"pending_count": counter.PendingCount})
			}
			if err := tx.Workload().Delete(ctx, accountID); err != nil {
				return fmt.Errorf("failed to delete workload counter: %w", err)
			}
		}

		if err := tx.Token().DeleteByAccount(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete tokens: %w", err)
		}
		if err := tx.Account().Delete(ctx, accountID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("Account deleted", "account_id", accountID, "actor_id", actorID)
	cache.InvalidateAll(ctx, s.cache)
	return nil
}

func (s *accountService) loadAccount(ctx context.Context, repo repositories.Repository, accountID string) (*models.Account, error) {
	account, err := repo.Account().GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return account, nil
}
