package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/certtrack/certificate-service/internal/auth"
	"github.com/certtrack/certificate-service/internal/config"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

const tokenSecretBytes = 32

type tokenLedger struct {
	repo   repositories.Repository
	ttls   config.TokenConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewTokenLedger(repo repositories.Repository, ttls config.TokenConfig, logger *slog.Logger) TokenLedger {
	return &tokenLedger{repo: repo, ttls: ttls, logger: logger, now: time.Now}
}

// hashSecret is the lookup key stored in place of the secret
func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func (l *tokenLedger) defaultTTL(purpose models.TokenPurpose) time.Duration {
	if purpose == models.TokenPasswordReset {
		return l.ttls.PasswordResetTTL
	}
	return l.ttls.EmailVerifyTTL
}

// Issue supersedes every unconsumed token of the same account and purpose and
// returns a new one with its plaintext Secret set
func (l *tokenLedger) Issue(ctx context.Context, tx repositories.Repository, accountID string, purpose models.TokenPurpose, ttl time.Duration) (*models.SecurityToken, error) {
	if !purpose.IsValid() {
		return nil, validationError("purpose", "unknown token purpose", purpose, "oneof")
	}
	if ttl <= 0 {
		ttl = l.defaultTTL(purpose)
	}

	raw, err := auth.RandBytes(tokenSecretBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	now := l.now()

	token := &models.SecurityToken{
		AccountID:  accountID,
		Purpose:    purpose,
		SecretHash: hashSecret(secret),
		ExpiresAt:  now.Add(ttl),
		CreatedAt:  now,
	}

	err = withTx(ctx, l.repo, tx, func(tx repositories.Repository) error {
		superseded, err := tx.Token().InvalidateActive(ctx, accountID, purpose, now)
		if err != nil {
			return fmt.Errorf("failed to invalidate previous tokens: %w", err)
		}
		if superseded > 0 {
			l.logger.Debug("Superseded security tokens", "account_id", accountID, "purpose", purpose, "count", superseded)
		}

		if err := tx.Token().Create(ctx, token); err != nil {
			return fmt.Errorf("failed to store token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	token.Secret = secret
	l.logger.Info("Security token issued", "account_id", accountID, "purpose", purpose, "expires_at", token.ExpiresAt)
	return token, nil
}

// Redeem consumes the token and returns its account id
func (l *tokenLedger) Redeem(ctx context.Context, tx repositories.Repository, secret string, purpose models.TokenPurpose) (string, error) {
	if secret == "" {
		return "", ErrTokenNotFound
	}

	var accountID string
	err := withTx(ctx, l.repo, tx, func(tx repositories.Repository) error {
		token, err := tx.Token().GetBySecretHash(ctx, hashSecret(secret), purpose)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrTokenNotFound
			}
			return fmt.Errorf("failed to load token: %w", err)
		}

		if token.IsConsumed() {
			return ErrTokenAlreadyUsed
		}
		now := l.now()
		if token.IsExpired(now) {
			return ErrTokenExpired
		}

		if err := tx.Token().MarkConsumed(ctx, token.ID, now); err != nil {
			return fmt.Errorf("failed to consume token: %w", err)
		}
		accountID = token.AccountID
		return nil
	})
	if err != nil {
		return "", err
	}

	l.logger.Info("Security token redeemed", "account_id", accountID, "purpose", purpose)
	return accountID, nil
}

// PurgeExpired deletes tokens that expired or were consumed before the cutoff
func (l *tokenLedger) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	deleted, err := l.repo.Token().DeleteStale(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tokens: %w", err)
	}
	l.logger.Info("Purged security tokens", "before", before, "deleted", deleted)
	return deleted, nil
}
