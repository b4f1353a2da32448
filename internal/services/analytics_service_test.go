package services

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certtrack/certificate-service/internal/cache"
	"github.com/certtrack/certificate-service/internal/models"
)

func TestAnalyticsSummary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	s1 := env.createAccount(t, models.RoleStudent, "s1")
	s2 := env.createAccount(t, models.RoleStudent, "s2")
	env.createAccount(t, models.RoleFaculty, "f1")
	env.createAccount(t, models.RoleFaculty, "f2")
	env.createAccount(t, models.RoleAdmin, "admin")

	env.review(t, env.submit(t, s1.ID, nil), models.CertificateAccepted)
	env.review(t, env.submit(t, s1.ID, nil), models.CertificateRejected)
	env.submit(t, s2.ID, nil)

	summary, err := env.manager.Analytics().Summary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.TotalCertificates)
	assert.EqualValues(t, 1, summary.ByStatus.Pending)
	assert.EqualValues(t, 1, summary.ByStatus.Accepted)
	assert.EqualValues(t, 1, summary.ByStatus.Rejected)
	assert.EqualValues(t, 2, summary.TotalStudents)
	assert.EqualValues(t, 2, summary.TotalFaculty)
	assert.EqualValues(t, 1, summary.TotalAdmins)
	require.Len(t, summary.Reviewers, 2)

	pending := 0
	for _, r := range summary.Reviewers {
		pending += r.PendingCount
	}
	assert.Equal(t, 1, pending)
}

func TestAnalyticsSummaryIsCachedUntilWrite(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := newTestEnv(t, func(d *Dependencies) {
		d.Cache = cache.NewCacheManager(client)
	})
	student := env.createAccount(t, models.RoleStudent, "student")
	env.createAccount(t, models.RoleFaculty, "faculty")
	env.submit(t, student.ID, nil)

	first, err := env.manager.Analytics().Summary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.TotalCertificates)
	assert.True(t, mr.Exists("analytics:"+cache.AnalyticsSummaryKey))

	// writes that bypass the services are not seen until the entry expires
	require.NoError(t, env.repo.Account().Create(ctx, &models.Account{
		ID: "late", Username: "late", Email: "late@example.edu", Role: models.RoleStudent, Active: true,
	}))
	cached, err := env.manager.Analytics().Summary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cached.TotalStudents)

	env.submit(t, student.ID, nil)
	fresh, err := env.manager.Analytics().Summary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, fresh.TotalCertificates)
	assert.EqualValues(t, 2, fresh.TotalStudents)
}
