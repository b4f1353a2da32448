package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/models"
)

func TestAlertSeverity(t *testing.T) {
	tests := map[int]string{
		0:  SeverityCritical,
		7:  SeverityCritical,
		8:  SeverityWarning,
		15: SeverityWarning,
		16: SeverityNotice,
		30: SeverityNotice,
	}
	for days, want := range tests {
		assert.Equal(t, want, AlertSeverity(days), "days=%d", days)
	}
}

func seedExpiring(t *testing.T, env *testEnv) (alice, bob *models.Account) {
	t.Helper()
	ctx := context.Background()
	alice = env.createAccount(t, models.RoleStudent, "alice")
	bob = env.createAccount(t, models.RoleStudent, "bob")
	carol := env.createAccount(t, models.RoleStudent, "carol")
	env.createAccount(t, models.RoleFaculty, "faculty")

	env.review(t, env.submit(t, alice.ID, intPtr(20)), models.CertificateAccepted)
	env.review(t, env.submit(t, alice.ID, intPtr(5)), models.CertificateAccepted)
	env.review(t, env.submit(t, alice.ID, intPtr(40)), models.CertificateAccepted)
	env.submit(t, alice.ID, intPtr(3))
	env.review(t, env.submit(t, bob.ID, intPtr(10)), models.CertificateAccepted)
	env.review(t, env.submit(t, bob.ID, intPtr(12)), models.CertificateRejected)
	env.review(t, env.submit(t, carol.ID, intPtr(2)), models.CertificateAccepted)

	carol.Active = false
	require.NoError(t, env.repo.Account().Update(ctx, carol))
	return alice, bob
}

func TestDispatchDryRun(t *testing.T) {
	env := newTestEnv(t)
	alice, bob := seedExpiring(t, env)

	report, err := env.manager.ExpiryAlerts().Dispatch(context.Background(), true)
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Students)
	assert.Equal(t, 3, report.Certificates)
	assert.Zero(t, report.Published)
	assert.Empty(t, env.publisher.EventsOfType(events.EventCertificateExpiryAlert))

	require.Len(t, report.Alerts, 2)
	assert.Equal(t, alice.ID, report.Alerts[0].AccountID)
	assert.Equal(t, bob.ID, report.Alerts[1].AccountID)

	aliceItems := report.Alerts[0].Items
	require.Len(t, aliceItems, 2)
	assert.Equal(t, 5, aliceItems[0].DaysLeft)
	assert.Equal(t, SeverityCritical, aliceItems[0].Severity)
	assert.Equal(t, env.date(5), aliceItems[0].ExpiryDate)
	assert.Equal(t, 20, aliceItems[1].DaysLeft)
	assert.Equal(t, SeverityNotice, aliceItems[1].Severity)

	assert.Equal(t, SeverityWarning, report.Alerts[1].Items[0].Severity)
}

func TestDispatchPublishesOneEventPerStudent(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := seedExpiring(t, env)

	report, err := env.manager.ExpiryAlerts().Dispatch(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Published)

	published := env.publisher.EventsOfType(events.EventCertificateExpiryAlert)
	require.Len(t, published, 2)

	first := published[0].Data.(events.ExpiryAlertEvent)
	assert.Equal(t, alice.ID, first.AccountID)
	assert.Equal(t, alice.Email, first.Email)
	require.Len(t, first.Certificates, 2)
	assert.Equal(t, SeverityCritical, first.Certificates[0].Severity)
}

func TestDispatchWithNothingExpiring(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	env.createAccount(t, models.RoleFaculty, "faculty")
	env.review(t, env.submit(t, student.ID, nil), models.CertificateAccepted)

	report, err := env.manager.ExpiryAlerts().Dispatch(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, report.Students)
	assert.NotNil(t, report.Alerts)
}
