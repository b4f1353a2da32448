package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certtrack/certificate-service/internal/models"
)

func TestSnapshotReportsAdvisoryStatus(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	busy := env.createAccount(t, models.RoleFaculty, "busy")

	for i := 0; i < 6; i++ {
		env.submit(t, student.ID, nil)
	}
	idle := env.createAccount(t, models.RoleFaculty, "idle")

	snapshot, err := env.manager.Workload().Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	byID := map[string]*WorkloadEntryResponse{}
	for _, e := range snapshot {
		byID[e.AccountID] = e
	}
	assert.Equal(t, 6, byID[busy.ID].PendingCount)
	assert.Equal(t, models.WorkloadFull, byID[busy.ID].Status)
	assert.Equal(t, models.WorkloadAvailable, byID[idle.ID].Status)
	assert.Equal(t, "busy", byID[busy.ID].Name)
}

func TestAssignKeepsFullReviewerEligible(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	only := env.createAccount(t, models.RoleFaculty, "only")

	for i := 0; i < 8; i++ {
		assert.Equal(t, only.ID, env.submit(t, student.ID, nil).ReviewerID)
	}
	assert.Equal(t, 8, env.counter(t, only.ID).PendingCount)
}

func TestReconcileRepairsDrift(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")
	other := env.createAccount(t, models.RoleFaculty, "other")

	env.review(t, env.submit(t, student.ID, nil), models.CertificateAccepted)
	env.submit(t, student.ID, nil)
	env.submit(t, student.ID, nil)

	require.NoError(t, env.repo.Workload().Set(ctx, &models.WorkloadCounter{
		AccountID:     faculty.ID,
		PendingCount:  9,
		TotalAssigned: 0,
	}))

	result, err := env.manager.Workload().Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	require.Len(t, result.Drift, 1)
	assert.Equal(t, WorkloadDrift{
		ReviewerID:     faculty.ID,
		StoredPending:  9,
		StoredTotal:    0,
		LedgerPending:  1,
		LedgerResolved: 1,
	}, result.Drift[0])

	counter := env.counter(t, faculty.ID)
	assert.Equal(t, 1, counter.PendingCount)
	assert.Equal(t, 1, counter.TotalAssigned)
	assert.Equal(t, 1, env.counter(t, other.ID).PendingCount)

	again, err := env.manager.Workload().Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Drift)
}

func TestOnWithdrawnIgnoresEmptyCount(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")

	require.NoError(t, env.manager.Workload().OnWithdrawn(ctx, nil, faculty.ID, 0))
	assert.Equal(t, 0, env.counter(t, faculty.ID).PendingCount)
}

func TestSnapshotResolvedExcludesPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")

	env.review(t, env.submit(t, student.ID, nil), models.CertificateAccepted)
	env.submit(t, student.ID, nil)
	env.submit(t, student.ID, nil)

	snapshot, err := env.manager.Workload().Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)
	assert.Equal(t, 2, snapshot[0].PendingCount)
	assert.Equal(t, 1, snapshot[0].Resolved)

	stats, err := env.manager.Certificate().ReviewerStats(ctx, faculty.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalAssigned)
	assert.Equal(t, stats.TotalAssigned, int64(snapshot[0].PendingCount+snapshot[0].Resolved))
}
