package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type CertificateStatus string

const (
	CertificatePending  CertificateStatus = "pending"
	CertificateAccepted CertificateStatus = "accepted"
	CertificateRejected CertificateStatus = "rejected"
)

func (s CertificateStatus) IsValid() bool {
	switch s {
	case CertificatePending, CertificateAccepted, CertificateRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s CertificateStatus) IsTerminal() bool {
	return s == CertificateAccepted || s == CertificateRejected
}

type Certificate struct {
	ID           uint              `json:"id" gorm:"primaryKey"`
	OwnerID      string            `json:"owner_id" gorm:"not null;index;size:36"`
	ReviewerID   string            `json:"reviewer_id" gorm:"not null;index;size:36"`
	Title        string            `json:"title" gorm:"not null;size:255"`
	Organization string            `json:"organization" gorm:"not null;size:255"`
	IssueDate    datatypes.Date    `json:"issue_date" gorm:"not null"`
	ExpiryDate   *datatypes.Date   `json:"expiry_date" gorm:"index"`
	FileRef      string            `json:"file_ref" gorm:"not null;size:512"`
	Status       CertificateStatus `json:"status" gorm:"not null;default:pending;size:20;index"`
	Remarks      *string           `json:"remarks" gorm:"type:text"`

	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ReviewedAt *time.Time     `json:"reviewed_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Owner    *Account `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Reviewer *Account `json:"reviewer,omitempty" gorm:"foreignKey:ReviewerID"`
}

func (Certificate) TableName() string {
	return "certificates"
}

// DaysUntilExpiry returns whole calendar days between today and the expiry
// date. ok is false when the certificate has no expiry date.
func (c *Certificate) DaysUntilExpiry(today time.Time) (days int, ok bool) {
	if c.ExpiryDate == nil {
		return 0, false
	}
	expiry := DateOf(time.Time(*c.ExpiryDate))
	return int(expiry.Sub(DateOf(today)).Hours() / 24), true
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
