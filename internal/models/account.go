package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleFaculty UserRole = "faculty"
	RoleAdmin   UserRole = "admin"
)

func (r UserRole) IsValid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	}
	return false
}

// Account is a portal identity. Role never changes after creation.
type Account struct {
	ID        string   `json:"id" gorm:"primaryKey;size:36"`
	Seq       int64    `json:"-" gorm:"->;column:seq"`
	Username  string   `json:"username" gorm:"uniqueIndex;not null;size:150"`
	Email     string   `json:"email" gorm:"uniqueIndex;not null;size:255"`
	FirstName string   `json:"first_name" gorm:"size:150"`
	LastName  string   `json:"last_name" gorm:"size:150"`
	Role      UserRole `json:"role" gorm:"not null;size:20;index"`

	// Status
	Active        bool `json:"active" gorm:"not null;default:true"`
	EmailVerified bool `json:"email_verified" gorm:"not null;default:false"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) FullName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

func (a *Account) IsReviewer() bool {
	return a.Role == RoleFaculty
}

// Credential stores the password hash apart from the account row.
type Credential struct {
	AccountID    string    `json:"-" gorm:"primaryKey;size:36"`
	PasswordHash []byte    `json:"-" gorm:"type:bytea;not null"`
	Salt         []byte    `json:"-" gorm:"type:bytea;not null"`
	UpdatedAt    time.Time `json:"-"`
}

func (Credential) TableName() string {
	return "credentials"
}
