package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type workloadBalancer struct {
	repo     repositories.Repository
	capacity int
	logger   *slog.Logger
}

// NewWorkloadBalancer creates a balancer. capacity only drives the advisory
// Full/Available status; assignment never refuses a reviewer.
func NewWorkloadBalancer(repo repositories.Repository, capacity int, logger *slog.Logger) WorkloadBalancer {
	return &workloadBalancer{repo: repo, capacity: capacity, logger: logger}
}

// Assign takes the assignment lock and picks the least loaded active
// reviewer. Call OnAssigned in the same transaction.
func (b *workloadBalancer) Assign(ctx context.Context, tx repositories.Repository) (string, error) {
	var reviewerID string
	err := withTx(ctx, b.repo, tx, func(tx repositories.Repository) error {
		if err := tx.Workload().LockAssignment(ctx); err != nil {
			return fmt.Errorf("failed to lock assignment: %w", err)
		}

		counter, err := tx.Workload().PickLeastLoaded(ctx)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrNoReviewerAvailable
			}
			return fmt.Errorf("failed to pick reviewer: %w", err)
		}
		reviewerID = counter.AccountID

		b.logger.Debug("Reviewer selected",
			"reviewer_id", counter.AccountID,
			"pending_count", counter.PendingCount,
			"total_assigned", counter.TotalAssigned)
		return nil
	})
	return reviewerID, err
}

func (b *workloadBalancer) OnAssigned(ctx context.Context, tx repositories.Repository, reviewerID string) error {
	return b.adjust(ctx, tx, reviewerID, 1, 0)
}

// OnResolved moves one certificate from pending to the reviewer's lifetime total
func (b *workloadBalancer) OnResolved(ctx context.Context, tx repositories.Repository, reviewerID string) error {
	return b.adjust(ctx, tx, reviewerID, -1, 1)
}

// OnWithdrawn drops pending certificates that left the ledger unreviewed
func (b *workloadBalancer) OnWithdrawn(ctx context.Context, tx repositories.Repository, reviewerID string, count int) error {
	if count <= 0 {
		return nil
	}
	return b.adjust(ctx, tx, reviewerID, -count, 0)
}

func (b *workloadBalancer) adjust(ctx context.Context, tx repositories.Repository, reviewerID string, pendingDelta, totalDelta int) error {
	return withTx(ctx, b.repo, tx, func(tx repositories.Repository) error {
		if err := tx.Workload().Adjust(ctx, reviewerID, pendingDelta, totalDelta); err != nil {
			return fmt.Errorf("failed to update workload of %s: %w", reviewerID, err)
		}
		return nil
	})
}

func (b *workloadBalancer) Snapshot(ctx context.Context) ([]*WorkloadEntryResponse, error) {
	entries, err := b.repo.Workload().Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load workload: %w", err)
	}

	result := make([]*WorkloadEntryResponse, 0, len(entries))
	for _, e := range entries {
		result = append(result, toWorkloadEntry(e, b.capacity))
	}
	return result, nil
}

// Reconcile recomputes every reviewer's counters from the certificate ledger
// and overwrites the ones that drifted
func (b *workloadBalancer) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	result := &ReconcileResult{Drift: []WorkloadDrift{}}

	err := b.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		if err := tx.Workload().LockAssignment(ctx); err != nil {
			return fmt.Errorf("failed to lock assignment: %w", err)
		}

		reviewers, err := tx.Workload().Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to load workload: %w", err)
		}
		ledger, err := tx.Certificate().LedgerCounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to count ledger: %w", err)
		}

		byReviewer := make(map[string]repositories.LedgerCount, len(ledger))
		for _, entry := range ledger {
			byReviewer[entry.ReviewerID] = entry
		}

		for _, reviewer := range reviewers {
			result.Checked++
			counted := byReviewer[reviewer.AccountID]
			if counted.Pending == reviewer.PendingCount && counted.Resolved == reviewer.TotalAssigned {
				continue
			}

			result.Drift = append(result.Drift, WorkloadDrift{
				ReviewerID:     reviewer.AccountID,
				StoredPending:  reviewer.PendingCount,
				StoredTotal:    reviewer.TotalAssigned,
				LedgerPending:  counted.Pending,
				LedgerResolved: counted.Resolved,
			})

			if err := tx.Workload().Set(ctx, &models.WorkloadCounter{
				AccountID:     reviewer.AccountID,
				PendingCount:  counted.Pending,
				TotalAssigned: counted.Resolved,
			}); err != nil {
				return fmt.Errorf("failed to repair workload of %s: %w", reviewer.AccountID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result.Drift, func(i, j int) bool { return result.Drift[i].ReviewerID < result.Drift[j].ReviewerID })
	if len(result.Drift) > 0 {
		b.logger.Warn("Workload counters repaired", "reviewers", len(result.Drift))
	}
	return result, nil
}
