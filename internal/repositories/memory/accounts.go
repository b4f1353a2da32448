package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type accountRepository struct {
	r *MemoryRepository
}

func copyAccount(a *models.Account) *models.Account {
	cp := *a
	return &cp
}

func (a *accountRepository) live(id string) (*models.Account, bool) {
	account, ok := a.r.data().accounts[id]
	if !ok || account.DeletedAt.Valid {
		return nil, false
	}
	return account, true
}

func (a *accountRepository) Create(ctx context.Context, account *models.Account) error {
	defer a.r.lock()()
	data := a.r.data()

	if account.ID == "" {
		return fmt.Errorf("create account failed: empty id")
	}
	for _, existing := range data.accounts {
		if existing.ID == account.ID ||
			strings.EqualFold(existing.Username, account.Username) ||
			strings.EqualFold(existing.Email, account.Email) {
			return fmt.Errorf("create account failed: %w", repositories.ErrDuplicate)
		}
	}

	now := a.r.now()
	data.accountSeq++
	account.Seq = data.accountSeq
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	data.accounts[account.ID] = copyAccount(account)
	return nil
}

func (a *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	defer a.r.lock()()
	account, ok := a.live(id)
	if !ok {
		return nil, fmt.Errorf("get account failed: %w", repositories.ErrNotFound)
	}
	return copyAccount(account), nil
}

func (a *accountRepository) findBy(match func(*models.Account) bool) *models.Account {
	for _, account := range a.r.data().accounts {
		if !account.DeletedAt.Valid && match(account) {
			return account
		}
	}
	return nil
}

func (a *accountRepository) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	defer a.r.lock()()
	account := a.findBy(func(acc *models.Account) bool { return strings.EqualFold(acc.Username, username) })
	if account == nil {
		return nil, fmt.Errorf("get account by username failed: %w", repositories.ErrNotFound)
	}
	return copyAccount(account), nil
}

func (a *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	defer a.r.lock()()
	account := a.findBy(func(acc *models.Account) bool { return strings.EqualFold(acc.Email, email) })
	if account == nil {
		return nil, fmt.Errorf("get account by email failed: %w", repositories.ErrNotFound)
	}
	return copyAccount(account), nil
}

func (a *accountRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	defer a.r.lock()()
	return a.findBy(func(acc *models.Account) bool { return strings.EqualFold(acc.Username, username) }) != nil, nil
}

func (a *accountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	defer a.r.lock()()
	return a.findBy(func(acc *models.Account) bool { return strings.EqualFold(acc.Email, email) }) != nil, nil
}

func (a *accountRepository) Update(ctx context.Context, account *models.Account) error {
	defer a.r.lock()()
	existing, ok := a.live(account.ID)
	if !ok {
		return fmt.Errorf("update account failed: %w", repositories.ErrNotFound)
	}

	// role, identity and creation metadata are not updatable
	updated := copyAccount(account)
	updated.Role = existing.Role
	updated.Seq = existing.Seq
	updated.CreatedAt = existing.CreatedAt
	updated.DeletedAt = existing.DeletedAt
	updated.UpdatedAt = a.r.now()
	a.r.data().accounts[account.ID] = updated

	account.UpdatedAt = updated.UpdatedAt
	return nil
}

func (a *accountRepository) Delete(ctx context.Context, id string) error {
	defer a.r.lock()()
	account, ok := a.live(id)
	if !ok {
		return fmt.Errorf("delete account failed: %w", repositories.ErrNotFound)
	}
	account.DeletedAt = gorm.DeletedAt{Time: a.r.now(), Valid: true}
	return nil
}

func (a *accountRepository) List(ctx context.Context, filters repositories.AccountFilters) ([]*models.Account, int64, error) {
	defer a.r.lock()()

	query := strings.ToLower(strings.TrimSpace(filters.Query))
	var matched []*models.Account
	for _, account := range a.r.data().accounts {
		if account.DeletedAt.Valid {
			continue
		}
		if filters.Role != nil && account.Role != *filters.Role {
			continue
		}
		if filters.Active != nil && account.Active != *filters.Active {
			continue
		}
		if query != "" && !accountMatches(account, query) {
			continue
		}
		matched = append(matched, account)
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].Seq < matched[j].Seq })

	total := int64(len(matched))
	page := paginate(matched, filters.Offset, filters.Limit)
	result := make([]*models.Account, 0, len(page))
	for _, account := range page {
		result = append(result, copyAccount(account))
	}
	return result, total, nil
}

func accountMatches(account *models.Account, query string) bool {
	for _, field := range []string{account.Username, account.Email, account.FirstName, account.LastName} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

func (a *accountRepository) CountByRole(ctx context.Context) (map[models.UserRole]int64, error) {
	defer a.r.lock()()
	counts := make(map[models.UserRole]int64)
	for _, account := range a.r.data().accounts {
		if !account.DeletedAt.Valid {
			counts[account.Role]++
		}
	}
	return counts, nil
}

type credentialRepository struct {
	r *MemoryRepository
}

func (c *credentialRepository) Upsert(ctx context.Context, credential *models.Credential) error {
	defer c.r.lock()()
	cp := *credential
	cp.UpdatedAt = c.r.now()
	c.r.data().credentials[credential.AccountID] = &cp
	return nil
}

func (c *credentialRepository) GetByAccountID(ctx context.Context, accountID string) (*models.Credential, error) {
	defer c.r.lock()()
	credential, ok := c.r.data().credentials[accountID]
	if !ok {
		return nil, fmt.Errorf("get credential failed: %w", repositories.ErrNotFound)
	}
	cp := *credential
	return &cp, nil
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
