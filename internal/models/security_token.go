package models

import "time"

type TokenPurpose string

const (
	TokenEmailVerify   TokenPurpose = "email_verify"
	TokenPasswordReset TokenPurpose = "password_reset"
)

func (p TokenPurpose) IsValid() bool {
	return p == TokenEmailVerify || p == TokenPasswordReset
}

// SecurityToken is a single-use credential. Only the SHA-256 of the secret is
// stored; Secret is populated on issue and never persisted.
type SecurityToken struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	AccountID  string       `json:"account_id" gorm:"not null;index:idx_tokens_account_purpose;size:36"`
	Purpose    TokenPurpose `json:"purpose" gorm:"not null;index:idx_tokens_account_purpose;size:32"`
	SecretHash string       `json:"-" gorm:"uniqueIndex;not null;size:64"`
	Secret     string       `json:"-" gorm:"-"`
	ExpiresAt  time.Time    `json:"expires_at" gorm:"not null;index"`
	ConsumedAt *time.Time   `json:"consumed_at"`
	CreatedAt  time.Time    `json:"created_at"`
}

func (SecurityToken) TableName() string {
	return "security_tokens"
}

func (t *SecurityToken) IsConsumed() bool {
	return t.ConsumedAt != nil
}

func (t *SecurityToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
