package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityNotice   = "notice"
)

// AlertSeverity grades how urgently a certificate needs renewal
func AlertSeverity(daysLeft int) string {
	switch {
	case daysLeft <= 7:
		return SeverityCritical
	case daysLeft <= 15:
		return SeverityWarning
	default:
		return SeverityNotice
	}
}

type expiryAlertService struct {
	repo       repositories.Repository
	publisher  events.EventPublisher
	windowDays int
	logger     *slog.Logger
	now        func() time.Time
}

func NewExpiryAlertService(repo repositories.Repository, publisher events.EventPublisher, windowDays int, logger *slog.Logger) ExpiryAlertService {
	return &expiryAlertService{
		repo:       repo,
		publisher:  publisher,
		windowDays: windowDays,
		logger:     logger,
		now:        time.Now,
	}
}

// Dispatch groups accepted certificates of active students that expire within
// the window and publishes one alert per student unless dryRun is set
func (s *expiryAlertService) Dispatch(ctx context.Context, dryRun bool) (*ExpiryAlertReport, error) {
	today := currentDate(s.now)
	accepted := models.CertificateAccepted

	certificates, err := s.repo.Certificate().ListExpiring(ctx, repositories.ExpiryFilters{
		Status: &accepted,
		From:   today,
		To:     today.AddDate(0, 0, s.windowDays),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring certificates: %w", err)
	}

	byOwner := make(map[string]*ExpiryAlert)
	report := &ExpiryAlertReport{DryRun: dryRun, Alerts: []*ExpiryAlert{}}
	for _, c := range certificates {
		owner := c.Owner
		if owner == nil || !owner.Active || owner.Role != models.RoleStudent {
			continue
		}
		days, _ := c.DaysUntilExpiry(today)

		alert, ok := byOwner[owner.ID]
		if !ok {
			alert = &ExpiryAlert{AccountID: owner.ID, Email: owner.Email, Name: owner.FullName()}
			byOwner[owner.ID] = alert
			report.Alerts = append(report.Alerts, alert)
		}
		alert.Items = append(alert.Items, ExpiryAlertItem{
			CertificateID: c.ID,
			Title:         c.Title,
			Organization:  c.Organization,
			ExpiryDate:    formatDate(time.Time(*c.ExpiryDate)),
			DaysLeft:      days,
			Severity:      AlertSeverity(days),
		})
		report.Certificates++
	}

	sort.Slice(report.Alerts, func(i, j int) bool {
		return report.Alerts[i].Items[0].DaysLeft < report.Alerts[j].Items[0].DaysLeft ||
			(report.Alerts[i].Items[0].DaysLeft == report.Alerts[j].Items[0].DaysLeft && report.Alerts[i].AccountID < report.Alerts[j].AccountID)
	})
	report.Students = len(report.Alerts)

	if dryRun {
		s.logger.Info("Expiry alerts computed (dry run)", "students", report.Students, "certificates", report.Certificates)
		return report, nil
	}

	for _, alert := range report.Alerts {
		items := make([]events.ExpiringCertificate, 0, len(alert.Items))
		for _, item := range alert.Items {
			items = append(items, events.ExpiringCertificate(item))
		}
		event := events.NewEvent(events.EventCertificateExpiryAlert, events.ExpiryAlertEvent{
			AccountID:    alert.AccountID,
			Email:        alert.Email,
			Name:         alert.Name,
			Certificates: items,
		})
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("Failed to publish expiry alert", "account_id", alert.AccountID, "error", err)
			continue
		}
		report.Published++
	}

	s.logger.Info("Expiry alerts dispatched", "students", report.Students, "published", report.Published)
	return report, nil
}
