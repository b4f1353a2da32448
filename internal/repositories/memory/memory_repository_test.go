package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

func newFaculty(t *testing.T, repo *MemoryRepository, id string, active bool) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Account().Create(ctx, &models.Account{
		ID: id, Username: id, Email: id + "@example.edu", Role: models.RoleFaculty, Active: active,
	}))
	require.NoError(t, repo.Workload().Ensure(ctx, id))
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	newFaculty(t, repo, "f1", true)

	boom := errors.New("boom")
	err := repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		require.NoError(t, tx.Workload().Adjust(ctx, "f1", 1, 0))
		require.NoError(t, tx.Certificate().Create(ctx, &models.Certificate{OwnerID: "s1", ReviewerID: "f1", Status: models.CertificatePending}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	counter, err := repo.Workload().Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 0, counter.PendingCount)

	_, total, err := repo.Certificate().List(ctx, repositories.CertificateFilters{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestWithTransactionCommits(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	newFaculty(t, repo, "f1", true)

	err := repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		return tx.Workload().Adjust(ctx, "f1", 2, 0)
	})
	require.NoError(t, err)

	counter, err := repo.Workload().Get(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, 2, counter.PendingCount)
}

func TestPickLeastLoadedOrdering(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := base
	repo := NewMemoryRepository(WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	newFaculty(t, repo, "f1", true)
	newFaculty(t, repo, "f2", true)
	newFaculty(t, repo, "f3", false)

	picked, err := repo.Workload().PickLeastLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, "f1", picked.AccountID, "creation order breaks full ties")

	require.NoError(t, repo.Workload().Adjust(ctx, "f1", 0, 1))
	picked, err = repo.Workload().PickLeastLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, "f2", picked.AccountID, "lower total wins on equal pending")

	require.NoError(t, repo.Workload().Adjust(ctx, "f2", 1, 0))
	picked, err = repo.Workload().PickLeastLoaded(ctx)
	require.NoError(t, err)
	assert.Equal(t, "f1", picked.AccountID, "pending count dominates")
}

func TestPickLeastLoadedWithoutReviewers(t *testing.T) {
	repo := NewMemoryRepository()
	newFaculty(t, repo, "inactive", false)

	_, err := repo.Workload().PickLeastLoaded(context.Background())
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestAdjustRejectsNegativePending(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	newFaculty(t, repo, "f1", true)

	require.ErrorIs(t, repo.Workload().Adjust(ctx, "f1", -1, 1), repositories.ErrConstraint)
}

func TestAccountUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	newFaculty(t, repo, "f1", true)

	err := repo.Account().Create(ctx, &models.Account{ID: "other", Username: "F1", Email: "x@example.edu", Role: models.RoleStudent})
	require.ErrorIs(t, err, repositories.ErrDuplicate)
}

func TestListExpiringOrdersBySoonest(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	today := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, days := range []int{20, 5, 40, 0} {
		expiry := datatypes.Date(today.AddDate(0, 0, days))
		require.NoError(t, repo.Certificate().Create(ctx, &models.Certificate{
			OwnerID: "s1", ReviewerID: "f1", Title: string(rune('a' + i)),
			IssueDate: datatypes.Date(today.AddDate(-1, 0, 0)), ExpiryDate: &expiry,
			Status: models.CertificatePending,
		}))
	}
	require.NoError(t, repo.Certificate().Create(ctx, &models.Certificate{OwnerID: "s1", ReviewerID: "f1", Status: models.CertificatePending}))

	owner := "s1"
	certs, err := repo.Certificate().ListExpiring(ctx, repositories.ExpiryFilters{
		OwnerID: &owner, From: today, To: today.AddDate(0, 0, 30),
	})
	require.NoError(t, err)
	require.Len(t, certs, 3)
	assert.Equal(t, []string{"d", "b", "a"}, []string{certs[0].Title, certs[1].Title, certs[2].Title})
}

func TestSoftDeleteByOwnerAndLedger(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	create := func(owner, reviewer string, status models.CertificateStatus) {
		require.NoError(t, repo.Certificate().Create(ctx, &models.Certificate{OwnerID: owner, ReviewerID: reviewer, Status: status}))
	}
	create("s1", "f1", models.CertificatePending)
	create("s1", "f1", models.CertificateAccepted)
	create("s1", "f2", models.CertificatePending)
	create("s2", "f1", models.CertificatePending)

	withdrawn, err := repo.Certificate().SoftDeleteByOwner(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"f1": 1, "f2": 1}, withdrawn)

	ledger, err := repo.Certificate().LedgerCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []repositories.LedgerCount{{ReviewerID: "f1", Pending: 1, Resolved: 1}}, ledger)
}
