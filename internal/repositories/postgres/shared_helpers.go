package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/certtrack/certificate-service/internal/repositories"
)

// Postgres SQLSTATE codes mapped to repository errors
const (
	uniqueViolation = "23505"
	checkViolation  = "23514"
)

// handleDBError translates driver errors into repository sentinels
func handleDBError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s failed: %w", operation, repositories.ErrNotFound)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%s failed: %w", operation, repositories.ErrDuplicate)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s failed: %s: %w", operation, pgErr.ConstraintName, repositories.ErrDuplicate)
		case checkViolation:
			return fmt.Errorf("%s failed: %s: %w", operation, pgErr.ConstraintName, repositories.ErrConstraint)
		}
	}

	return fmt.Errorf("%s failed: %w", operation, err)
}

// applyPagination applies limit/offset; a zero limit means unbounded
func applyPagination(query *gorm.DB, limit, offset int) *gorm.DB {
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	return query
}

// likePattern escapes LIKE wildcards in user input
func likePattern(q string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(strings.TrimSpace(q)) + "%"
}
