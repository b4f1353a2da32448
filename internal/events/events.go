package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventSource  = "certificate-service"
	EventVersion = "1.0"
)

type EventType string

const (
	EventVerificationRequested  EventType = "account.verification_requested"
	EventPasswordResetRequested EventType = "account.password_reset_requested"
	EventAccountWelcome         EventType = "account.welcome"
	EventCertificateSubmitted   EventType = "certificate.submitted"
	EventCertificateReviewed    EventType = "certificate.reviewed"
	EventCertificateExpiryAlert EventType = "certificate.expiry_alert"
)

// Event is the envelope published for every domain notification
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewEvent wraps data in an envelope with a fresh id
func NewEvent(eventType EventType, data interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    EventSource,
		Version:   EventVersion,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// EventPublisher delivers events to downstream consumers (mailers, dashboards)
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Payloads

type AccountLinkEvent struct {
	AccountID string    `json:"account_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"`
}

type AccountWelcomeEvent struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
}

type CertificateSubmittedEvent struct {
	CertificateID uint   `json:"certificate_id"`
	Title         string `json:"title"`
	OwnerID       string `json:"owner_id"`
	ReviewerID    string `json:"reviewer_id"`
	ReviewerEmail string `json:"reviewer_email,omitempty"`
}

type CertificateReviewedEvent struct {
	CertificateID uint    `json:"certificate_id"`
	Title         string  `json:"title"`
	OwnerID       string  `json:"owner_id"`
	OwnerEmail    string  `json:"owner_email,omitempty"`
	ReviewerID    string  `json:"reviewer_id"`
	Status        string  `json:"status"`
	Remarks       *string `json:"remarks,omitempty"`
}

type ExpiringCertificate struct {
	CertificateID uint   `json:"certificate_id"`
	Title         string `json:"title"`
	Organization  string `json:"organization"`
	ExpiryDate    string `json:"expiry_date"`
	DaysLeft      int    `json:"days_left"`
	Severity      string `json:"severity"`
}

type ExpiryAlertEvent struct {
	AccountID    string                `json:"account_id"`
	Email        string                `json:"email"`
	Name         string                `json:"name"`
	Certificates []ExpiringCertificate `json:"certificates"`
}
