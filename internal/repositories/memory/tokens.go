package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type tokenRepository struct {
	r *MemoryRepository
}

func (t *tokenRepository) Create(ctx context.Context, token *models.SecurityToken) error {
	defer t.r.lock()()
	data := t.r.data()

	for _, existing := range data.tokens {
		if existing.SecretHash == token.SecretHash {
			return fmt.Errorf("create token failed: %w", repositories.ErrDuplicate)
		}
	}

	data.tokenSeq++
	token.ID = data.tokenSeq
	if token.CreatedAt.IsZero() {
		token.CreatedAt = t.r.now()
	}
	stored := *token
	stored.Secret = ""
	data.tokens[token.ID] = &stored
	return nil
}

func (t *tokenRepository) GetBySecretHash(ctx context.Context, secretHash string, purpose models.TokenPurpose) (*models.SecurityToken, error) {
	defer t.r.lock()()
	for _, token := range t.r.data().tokens {
		if token.SecretHash == secretHash && token.Purpose == purpose {
			cp := *token
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("get token failed: %w", repositories.ErrNotFound)
}

func (t *tokenRepository) MarkConsumed(ctx context.Context, id uint, at time.Time) error {
	defer t.r.lock()()
	token, ok := t.r.data().tokens[id]
	if !ok {
		return fmt.Errorf("consume token failed: %w", repositories.ErrNotFound)
	}
	consumedAt := at
	token.ConsumedAt = &consumedAt
	return nil
}

func (t *tokenRepository) InvalidateActive(ctx context.Context, accountID string, purpose models.TokenPurpose, at time.Time) (int64, error) {
	defer t.r.lock()()
	var count int64
	for _, token := range t.r.data().tokens {
		if token.AccountID == accountID && token.Purpose == purpose && token.ConsumedAt == nil {
			consumedAt := at
			token.ConsumedAt = &consumedAt
			count++
		}
	}
	return count, nil
}

func (t *tokenRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	defer t.r.lock()()
	tokens := t.r.data().tokens
	var count int64
	for id, token := range tokens {
		if token.ExpiresAt.Before(before) || (token.ConsumedAt != nil && token.ConsumedAt.Before(before)) {
			delete(tokens, id)
			count++
		}
	}
	return count, nil
}

func (t *tokenRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	defer t.r.lock()()
	tokens := t.r.data().tokens
	for id, token := range tokens {
		if token.AccountID == accountID {
			delete(tokens, id)
		}
	}
	return nil
}
