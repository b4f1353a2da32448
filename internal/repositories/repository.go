package repositories

import (
	"context"
	"errors"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	// ErrConstraint reports a write rejected by an integrity rule
	ErrConstraint = errors.New("constraint violation")
)

// Repository aggregates all repository interfaces
type Repository interface {
	Account() AccountRepository
	Credential() CredentialRepository
	Certificate() CertificateRepository
	Workload() WorkloadRepository
	Token() TokenRepository

	// WithTransaction runs fn against a transaction scoped repository. Any
	// error returned by fn rolls back every write made through it.
	WithTransaction(ctx context.Context, fn func(Repository) error) error

	// Health check
	Ping(ctx context.Context) error

	// Close connections
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}
