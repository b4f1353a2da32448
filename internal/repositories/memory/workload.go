package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type workloadRepository struct {
	r *MemoryRepository
}

func (w *workloadRepository) Ensure(ctx context.Context, accountID string) error {
	defer w.r.lock()()
	counters := w.r.data().workload
	if _, ok := counters[accountID]; !ok {
		counters[accountID] = &models.WorkloadCounter{AccountID: accountID, UpdatedAt: w.r.now()}
	}
	return nil
}

func (w *workloadRepository) Get(ctx context.Context, accountID string) (*models.WorkloadCounter, error) {
	defer w.r.lock()()
	counter, ok := w.r.data().workload[accountID]
	if !ok {
		return nil, fmt.Errorf("get workload counter failed: %w", repositories.ErrNotFound)
	}
	cp := *counter
	return &cp, nil
}

// LockAssignment is a no-op: every transaction already holds the store lock
func (w *workloadRepository) LockAssignment(ctx context.Context) error {
	return nil
}

func (w *workloadRepository) PickLeastLoaded(ctx context.Context) (*models.WorkloadCounter, error) {
	defer w.r.lock()()
	data := w.r.data()

	type candidate struct {
		counter *models.WorkloadCounter
		account *models.Account
	}
	var candidates []candidate
	for id, counter := range data.workload {
		account, ok := data.accounts[id]
		if !ok || account.DeletedAt.Valid || !account.Active || account.Role != models.RoleFaculty {
			continue
		}
		candidates = append(candidates, candidate{counter: counter, account: account})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("pick reviewer failed: %w", repositories.ErrNotFound)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.counter.PendingCount != b.counter.PendingCount {
			return a.counter.PendingCount < b.counter.PendingCount
		}
		if a.counter.TotalAssigned != b.counter.TotalAssigned {
			return a.counter.TotalAssigned < b.counter.TotalAssigned
		}
		if !a.account.CreatedAt.Equal(b.account.CreatedAt) {
			return a.account.CreatedAt.Before(b.account.CreatedAt)
		}
		return a.account.Seq < b.account.Seq
	})

	cp := *candidates[0].counter
	return &cp, nil
}

func (w *workloadRepository) Adjust(ctx context.Context, accountID string, pendingDelta, totalDelta int) error {
	defer w.r.lock()()
	counter, ok := w.r.data().workload[accountID]
	if !ok {
		return fmt.Errorf("adjust workload failed: %w", repositories.ErrNotFound)
	}
	if counter.PendingCount+pendingDelta < 0 {
		return fmt.Errorf("adjust workload failed: pending count cannot become negative: %w", repositories.ErrConstraint)
	}
	counter.PendingCount += pendingDelta
	counter.TotalAssigned += totalDelta
	counter.UpdatedAt = w.r.now()
	return nil
}

func (w *workloadRepository) Set(ctx context.Context, counter *models.WorkloadCounter) error {
	defer w.r.lock()()
	cp := *counter
	cp.UpdatedAt = w.r.now()
	w.r.data().workload[counter.AccountID] = &cp
	return nil
}

func (w *workloadRepository) Snapshot(ctx context.Context) ([]repositories.WorkloadEntry, error) {
	defer w.r.lock()()
	data := w.r.data()

	var entries []repositories.WorkloadEntry
	for _, account := range data.accounts {
		if account.DeletedAt.Valid || account.Role != models.RoleFaculty {
			continue
		}
		entry := repositories.WorkloadEntry{
			AccountID: account.ID,
			Username:  account.Username,
			FirstName: account.FirstName,
			LastName:  account.LastName,
			Email:     account.Email,
			Active:    account.Active,
		}
		if counter, ok := data.workload[account.ID]; ok {
			entry.PendingCount = counter.PendingCount
			entry.TotalAssigned = counter.TotalAssigned
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Username < entries[j].Username })
	return entries, nil
}

func (w *workloadRepository) Delete(ctx context.Context, accountID string) error {
	defer w.r.lock()()
	delete(w.r.data().workload, accountID)
	return nil
}
