package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
	"github.com/certtrack/certificate-service/internal/validator"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// withTx runs fn in the caller's transaction when tx is set, otherwise in a
// new one
func withTx(ctx context.Context, repo, tx repositories.Repository, fn func(repositories.Repository) error) error {
	if tx != nil {
		return fn(tx)
	}
	return repo.WithTransaction(ctx, fn)
}

// publish emits an event after commit. Delivery failures are logged only.
func publish(ctx context.Context, publisher events.EventPublisher, logger *slog.Logger, eventType events.EventType, data interface{}) {
	if publisher == nil {
		return
	}
	event := events.NewEvent(eventType, data)
	if err := publisher.Publish(ctx, event); err != nil {
		logger.Error("Failed to publish event", "event_type", eventType, "event_id", event.ID, "error", err)
	}
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func currentDate(now func() time.Time) time.Time {
	return models.DateOf(now())
}

func toAccountResponse(a *models.Account) *AccountResponse {
	return &AccountResponse{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		Role:          a.Role,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
		CreatedAt:     a.CreatedAt,
	}
}

func toAccountSummary(a *models.Account) *AccountSummary {
	if a == nil {
		return nil
	}
	return &AccountSummary{
		ID:       a.ID,
		Username: a.Username,
		Name:     a.FullName(),
		Email:    a.Email,
	}
}

func formatDate(t time.Time) string {
	return t.Format(validator.DateLayout)
}

func toCertificateResponse(c *models.Certificate, today time.Time) *CertificateResponse {
	resp := &CertificateResponse{
		ID:           c.ID,
		Title:        c.Title,
		Organization: c.Organization,
		IssueDate:    formatDate(time.Time(c.IssueDate)),
		FileRef:      c.FileRef,
		Status:       c.Status,
		Remarks:      c.Remarks,
		OwnerID:      c.OwnerID,
		ReviewerID:   c.ReviewerID,
		Owner:        toAccountSummary(c.Owner),
		Reviewer:     toAccountSummary(c.Reviewer),
		CreatedAt:    c.CreatedAt,
		ReviewedAt:   c.ReviewedAt,
	}
	if c.ExpiryDate != nil {
		expiry := formatDate(time.Time(*c.ExpiryDate))
		resp.ExpiryDate = &expiry
		if days, ok := c.DaysUntilExpiry(today); ok {
			resp.DaysUntilExpiry = &days
		}
	}
	return resp
}

func toCertificateResponses(certs []*models.Certificate, today time.Time) []*CertificateResponse {
	out := make([]*CertificateResponse, 0, len(certs))
	for _, c := range certs {
		out = append(out, toCertificateResponse(c, today))
	}
	return out
}

func toWorkloadEntry(e repositories.WorkloadEntry, capacity int) *WorkloadEntryResponse {
	counter := models.WorkloadCounter{AccountID: e.AccountID, PendingCount: e.PendingCount, TotalAssigned: e.TotalAssigned}
	account := models.Account{FirstName: e.FirstName, LastName: e.LastName, Username: e.Username}
	return &WorkloadEntryResponse{
		AccountID:    e.AccountID,
		Username:     e.Username,
		Name:         account.FullName(),
		Email:        e.Email,
		Active:       e.Active,
		PendingCount: e.PendingCount,
		Resolved:     e.TotalAssigned,
		Status:       counter.Status(capacity),
	}
}
