package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certtrack/certificate-service/internal/models"
)

func TestComputeScore(t *testing.T) {
	tests := []struct {
		accepted, rejected int64
		want               int64
	}{
		{0, 0, 0},
		{3, 1, 28},
		{0, 4, -8},
		{1, 5, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ComputeScore(tt.accepted, tt.rejected), "accepted=%d rejected=%d", tt.accepted, tt.rejected)
	}
}

func TestScoreTracksReviews(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	env.createAccount(t, models.RoleFaculty, "faculty")

	var certs []*CertificateResponse
	for i := 0; i < 5; i++ {
		certs = append(certs, env.submit(t, student.ID, nil))
	}

	score, err := env.manager.Performance().Score(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), score.Score)
	assert.Equal(t, int64(5), score.Pending)

	env.review(t, certs[0], models.CertificateRejected)
	env.review(t, certs[1], models.CertificateRejected)
	score, err = env.manager.Performance().Score(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-4), score.Score)

	env.review(t, certs[2], models.CertificateAccepted)
	score, err = env.manager.Performance().Score(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, &PerformanceScore{
		OwnerID:  student.ID,
		Accepted: 1,
		Rejected: 2,
		Pending:  2,
		Total:    5,
		Score:    6,
	}, score)
}

func TestScoreIgnoresOtherStudents(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	other := env.createAccount(t, models.RoleStudent, "other")
	env.createAccount(t, models.RoleFaculty, "faculty")

	env.review(t, env.submit(t, other.ID, nil), models.CertificateAccepted)

	score, err := env.manager.Performance().Score(ctx, student.ID)
	require.NoError(t, err)
	assert.Zero(t, score.Score)
	assert.Zero(t, score.Total)
}

func TestExpiringSoonWindow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	env.createAccount(t, models.RoleFaculty, "faculty")

	in31 := env.submit(t, student.ID, intPtr(31))
	in30 := env.submit(t, student.ID, intPtr(30))
	in29 := env.submit(t, student.ID, intPtr(29))
	today := env.submit(t, student.ID, intPtr(0))
	env.submit(t, student.ID, nil)
	env.review(t, in29, models.CertificateRejected)

	expiring, err := env.manager.Performance().ExpiringSoon(ctx, student.ID, 0)
	require.NoError(t, err)

	var ids []uint
	for _, c := range expiring {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []uint{today.ID, in29.ID, in30.ID}, ids)
	assert.NotContains(t, ids, in31.ID)

	require.NotNil(t, expiring[0].DaysUntilExpiry)
	assert.Equal(t, 0, *expiring[0].DaysUntilExpiry)
	assert.Equal(t, 30, *expiring[2].DaysUntilExpiry)

	wider, err := env.manager.Performance().ExpiringSoon(ctx, student.ID, 31)
	require.NoError(t, err)
	assert.Len(t, wider, 4)
}
