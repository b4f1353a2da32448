package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type certificateRepository struct {
	r *MemoryRepository
}

// view copies a certificate and attaches its owner and reviewer
func (c *certificateRepository) view(cert *models.Certificate) *models.Certificate {
	cp := *cert
	cp.Owner, cp.Reviewer = nil, nil
	accounts := c.r.data().accounts
	if owner, ok := accounts[cert.OwnerID]; ok && !owner.DeletedAt.Valid {
		cp.Owner = copyAccount(owner)
	}
	if reviewer, ok := accounts[cert.ReviewerID]; ok && !reviewer.DeletedAt.Valid {
		cp.Reviewer = copyAccount(reviewer)
	}
	return &cp
}

func (c *certificateRepository) live(id uint) (*models.Certificate, bool) {
	cert, ok := c.r.data().certificates[id]
	if !ok || cert.DeletedAt.Valid {
		return nil, false
	}
	return cert, true
}

func (c *certificateRepository) Create(ctx context.Context, certificate *models.Certificate) error {
	defer c.r.lock()()
	data := c.r.data()

	data.certificateSeq++
	now := c.r.now()
	certificate.ID = data.certificateSeq
	if certificate.CreatedAt.IsZero() {
		certificate.CreatedAt = now
	}
	certificate.UpdatedAt = now

	stored := *certificate
	stored.Owner, stored.Reviewer = nil, nil
	data.certificates[stored.ID] = &stored
	return nil
}

func (c *certificateRepository) GetByID(ctx context.Context, id uint) (*models.Certificate, error) {
	defer c.r.lock()()
	cert, ok := c.live(id)
	if !ok {
		return nil, fmt.Errorf("get certificate failed: %w", repositories.ErrNotFound)
	}
	return c.view(cert), nil
}

// GetByIDForUpdate needs no row lock here: transactions are already serialized.
// Like the locking query in Postgres it returns the row without associations.
func (c *certificateRepository) GetByIDForUpdate(ctx context.Context, id uint) (*models.Certificate, error) {
	defer c.r.lock()()
	cert, ok := c.live(id)
	if !ok {
		return nil, fmt.Errorf("lock certificate failed: %w", repositories.ErrNotFound)
	}
	cp := *cert
	cp.Owner, cp.Reviewer = nil, nil
	return &cp, nil
}

func (c *certificateRepository) Update(ctx context.Context, certificate *models.Certificate) error {
	defer c.r.lock()()
	existing, ok := c.live(certificate.ID)
	if !ok {
		return fmt.Errorf("update certificate failed: %w", repositories.ErrNotFound)
	}

	updated := *certificate
	updated.Owner, updated.Reviewer = nil, nil
	updated.OwnerID = existing.OwnerID
	updated.ReviewerID = existing.ReviewerID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = c.r.now()
	c.r.data().certificates[certificate.ID] = &updated

	certificate.UpdatedAt = updated.UpdatedAt
	return nil
}

func (c *certificateRepository) matching(filters repositories.CertificateFilters) []*models.Certificate {
	var matched []*models.Certificate
	for _, cert := range c.r.data().certificates {
		if cert.DeletedAt.Valid {
			continue
		}
		if filters.Status != nil && cert.Status != *filters.Status {
			continue
		}
		if filters.OwnerID != nil && cert.OwnerID != *filters.OwnerID {
			continue
		}
		if filters.ReviewerID != nil && cert.ReviewerID != *filters.ReviewerID {
			continue
		}
		matched = append(matched, cert)
	}
	return matched
}

func (c *certificateRepository) List(ctx context.Context, filters repositories.CertificateFilters) ([]*models.Certificate, int64, error) {
	defer c.r.lock()()

	matched := c.matching(filters)
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	page := paginate(matched, filters.Offset, filters.Limit)
	result := make([]*models.Certificate, 0, len(page))
	for _, cert := range page {
		result = append(result, c.view(cert))
	}
	return result, total, nil
}

func (c *certificateRepository) ListExpiring(ctx context.Context, filters repositories.ExpiryFilters) ([]*models.Certificate, error) {
	defer c.r.lock()()

	from := models.DateOf(filters.From)
	to := models.DateOf(filters.To)

	var matched []*models.Certificate
	for _, cert := range c.r.data().certificates {
		if cert.DeletedAt.Valid || cert.ExpiryDate == nil {
			continue
		}
		if filters.OwnerID != nil && cert.OwnerID != *filters.OwnerID {
			continue
		}
		if filters.Status != nil && cert.Status != *filters.Status {
			continue
		}
		expiry := models.DateOf(time.Time(*cert.ExpiryDate))
		if expiry.Before(from) || expiry.After(to) {
			continue
		}
		matched = append(matched, cert)
	}

	sort.Slice(matched, func(i, j int) bool {
		ei, ej := time.Time(*matched[i].ExpiryDate), time.Time(*matched[j].ExpiryDate)
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return matched[i].ID < matched[j].ID
	})

	result := make([]*models.Certificate, 0, len(matched))
	for _, cert := range matched {
		result = append(result, c.view(cert))
	}
	return result, nil
}

func (c *certificateRepository) CountByStatus(ctx context.Context, filters repositories.CertificateFilters) (repositories.StatusCounts, error) {
	defer c.r.lock()()

	var counts repositories.StatusCounts
	for _, cert := range c.matching(filters) {
		switch cert.Status {
		case models.CertificatePending:
			counts.Pending++
		case models.CertificateAccepted:
			counts.Accepted++
		case models.CertificateRejected:
			counts.Rejected++
		}
	}
	return counts, nil
}

func (c *certificateRepository) SoftDeleteByOwner(ctx context.Context, ownerID string) (map[string]int, error) {
	defer c.r.lock()()

	withdrawn := make(map[string]int)
	deletedAt := gorm.DeletedAt{Time: c.r.now(), Valid: true}
	for _, cert := range c.r.data().certificates {
		if cert.DeletedAt.Valid || cert.OwnerID != ownerID {
			continue
		}
		if cert.Status == models.CertificatePending {
			withdrawn[cert.ReviewerID]++
		}
		cert.DeletedAt = deletedAt
	}
	return withdrawn, nil
}

func (c *certificateRepository) LedgerCounts(ctx context.Context) ([]repositories.LedgerCount, error) {
	defer c.r.lock()()

	byReviewer := make(map[string]*repositories.LedgerCount)
	for _, cert := range c.r.data().certificates {
		// withdrawn pending certificates no longer count, resolved ones always do
		if cert.Status == models.CertificatePending && cert.DeletedAt.Valid {
			continue
		}
		entry, ok := byReviewer[cert.ReviewerID]
		if !ok {
			entry = &repositories.LedgerCount{ReviewerID: cert.ReviewerID}
			byReviewer[cert.ReviewerID] = entry
		}
		if cert.Status == models.CertificatePending {
			entry.Pending++
		} else {
			entry.Resolved++
		}
	}

	result := make([]repositories.LedgerCount, 0, len(byReviewer))
	for _, entry := range byReviewer {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ReviewerID < result[j].ReviewerID })
	return result, nil
}
