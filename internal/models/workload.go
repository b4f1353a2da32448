package models

import "time"

type WorkloadStatus string

const (
	WorkloadAvailable WorkloadStatus = "Available"
	WorkloadFull      WorkloadStatus = "Full"
)

// WorkloadCounter mirrors the certificate ledger for one reviewer:
// PendingCount is the number of pending certificates assigned to them and
// TotalAssigned counts the ones they have resolved.
type WorkloadCounter struct {
	AccountID     string    `json:"account_id" gorm:"primaryKey;size:36"`
	PendingCount  int       `json:"pending_count" gorm:"not null;default:0"`
	TotalAssigned int       `json:"total_assigned" gorm:"not null;default:0"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (WorkloadCounter) TableName() string {
	return "workload_counters"
}

// Status is advisory only; assignment never refuses a full reviewer.
func (w *WorkloadCounter) Status(capacity int) WorkloadStatus {
	if w.PendingCount >= capacity {
		return WorkloadFull
	}
	return WorkloadAvailable
}
