package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

func TestTokenRedeemIsSingleUse(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	account := env.createAccount(t, models.RoleStudent, "student")
	ledger := env.manager.Tokens()

	token, err := ledger.Issue(ctx, nil, account.ID, models.TokenEmailVerify, 0)
	require.NoError(t, err)
	require.NotEmpty(t, token.Secret)
	assert.Equal(t, hashSecret(token.Secret), token.SecretHash)
	assert.WithinDuration(t, testStart.Add(24*time.Hour), token.ExpiresAt, time.Second)

	accountID, err := ledger.Redeem(ctx, nil, token.Secret, models.TokenEmailVerify)
	require.NoError(t, err)
	assert.Equal(t, account.ID, accountID)

	_, err = ledger.Redeem(ctx, nil, token.Secret, models.TokenEmailVerify)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenReissueSupersedesPrevious(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	account := env.createAccount(t, models.RoleStudent, "student")
	ledger := env.manager.Tokens()

	first, err := ledger.Issue(ctx, nil, account.ID, models.TokenPasswordReset, 0)
	require.NoError(t, err)
	verify, err := ledger.Issue(ctx, nil, account.ID, models.TokenEmailVerify, 0)
	require.NoError(t, err)
	second, err := ledger.Issue(ctx, nil, account.ID, models.TokenPasswordReset, 0)
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	_, err = ledger.Redeem(ctx, nil, first.Secret, models.TokenPasswordReset)
	assert.ErrorIs(t, err, ErrTokenAlreadyUsed)

	_, err = ledger.Redeem(ctx, nil, second.Secret, models.TokenPasswordReset)
	assert.NoError(t, err)

	// a different purpose is left alone
	_, err = ledger.Redeem(ctx, nil, verify.Secret, models.TokenEmailVerify)
	assert.NoError(t, err)
}

func TestTokenExpiry(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	account := env.createAccount(t, models.RoleStudent, "student")
	ledger := env.manager.Tokens()

	token, err := ledger.Issue(ctx, nil, account.ID, models.TokenPasswordReset, 0)
	require.NoError(t, err)
	assert.WithinDuration(t, testStart.Add(time.Hour), token.ExpiresAt, time.Second)

	env.clock.Advance(time.Hour)
	_, err = ledger.Redeem(ctx, nil, token.Secret, models.TokenPasswordReset)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenRedeemRejectsUnknownOrWrongPurpose(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	account := env.createAccount(t, models.RoleStudent, "student")
	ledger := env.manager.Tokens()

	token, err := ledger.Issue(ctx, nil, account.ID, models.TokenEmailVerify, 0)
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, nil, token.Secret, models.TokenPasswordReset)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = ledger.Redeem(ctx, nil, "not-a-token", models.TokenEmailVerify)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = ledger.Redeem(ctx, nil, "", models.TokenEmailVerify)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	_, err = ledger.Redeem(ctx, nil, token.Secret, models.TokenEmailVerify)
	assert.NoError(t, err)
}

func TestTokenPurge(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	account := env.createAccount(t, models.RoleStudent, "student")
	ledger := env.manager.Tokens()

	_, err := ledger.Issue(ctx, nil, account.ID, models.TokenPasswordReset, 0)
	require.NoError(t, err)
	live, err := ledger.Issue(ctx, nil, account.ID, models.TokenEmailVerify, 0)
	require.NoError(t, err)

	env.clock.Advance(2 * time.Hour)
	deleted, err := ledger.PurgeExpired(ctx, env.clock.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = ledger.Redeem(ctx, nil, live.Secret, models.TokenEmailVerify)
	assert.NoError(t, err)
}

func TestTokenIssueJoinsTransaction(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	account := env.createAccount(t, models.RoleStudent, "student")
	ledger := env.manager.Tokens()

	var secret string
	err := env.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		token, err := ledger.Issue(ctx, tx, account.ID, models.TokenEmailVerify, 0)
		if err != nil {
			return err
		}
		secret = token.Secret
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = ledger.Redeem(ctx, nil, secret, models.TokenEmailVerify)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}
