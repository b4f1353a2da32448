package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/validator"
)

func TestSubmitRoutesToLeastLoadedReviewer(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")

	// busy joins first and takes three certificates before idle exists
	busy := env.createAccount(t, models.RoleFaculty, "busy")
	for i := 0; i < 3; i++ {
		assert.Equal(t, busy.ID, env.submit(t, student.ID, nil).ReviewerID)
	}
	idle := env.createAccount(t, models.RoleFaculty, "idle")

	var got []string
	for i := 0; i < 6; i++ {
		got = append(got, env.submit(t, student.ID, nil).ReviewerID)
	}

	assert.Equal(t, []string{idle.ID, idle.ID, idle.ID, busy.ID, idle.ID, busy.ID}, got)
	assert.Equal(t, 5, env.counter(t, busy.ID).PendingCount)
	assert.Equal(t, 4, env.counter(t, idle.ID).PendingCount)
}

func TestSubmitPrefersLowerLifetimeTotalOnTie(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	first := env.createAccount(t, models.RoleFaculty, "first")

	cert := env.submit(t, student.ID, nil)
	env.review(t, cert, models.CertificateAccepted)
	second := env.createAccount(t, models.RoleFaculty, "second")

	// both have nothing pending; first has resolved one already
	assert.Equal(t, second.ID, env.submit(t, student.ID, nil).ReviewerID)
	assert.Equal(t, first.ID, env.submit(t, student.ID, nil).ReviewerID)
}

func TestConcurrentSubmissionsStayBalanced(t *testing.T) {
	env := newTestEnv(t)
	const faculty, submissions = 3, 30

	var reviewers []*models.Account
	for i := 0; i < faculty; i++ {
		reviewers = append(reviewers, env.createAccount(t, models.RoleFaculty, "reviewer"+string(rune('a'+i))))
	}
	student := env.createAccount(t, models.RoleStudent, "student")

	refs := make([]string, submissions)
	for i := range refs {
		refs[i] = env.upload(student.ID)
	}

	var wg sync.WaitGroup
	errs := make(chan error, submissions)
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			_, err := env.manager.Certificate().Submit(context.Background(), student.ID, &SubmitCertificateRequest{
				Title:        "Concurrent",
				Organization: "Org",
				IssueDate:    env.date(-10),
				FileRef:      ref,
			})
			errs <- err
		}(refs[i])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sum := 0
	for _, r := range reviewers {
		pending := env.counter(t, r.ID).PendingCount
		assert.LessOrEqual(t, pending, submissions/faculty)
		sum += pending
	}
	assert.Equal(t, submissions, sum)

	result, err := env.manager.Workload().Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Drift)
}

func TestSubmitWithoutReviewers(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")

	_, err := env.manager.Certificate().Submit(context.Background(), student.ID, &SubmitCertificateRequest{
		Title: "A", Organization: "B", IssueDate: env.date(-1), FileRef: env.upload(student.ID),
	})
	assert.ErrorIs(t, err, ErrNoReviewerAvailable)

	list, err := env.manager.Certificate().ListMine(context.Background(), student.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, list.Total)
}

func TestSubmitSkipsInactiveReviewers(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	inactive := env.createAccount(t, models.RoleFaculty, "inactive")
	active := env.createAccount(t, models.RoleFaculty, "active")

	inactive.Active = false
	require.NoError(t, env.repo.Account().Update(context.Background(), inactive))

	for i := 0; i < 3; i++ {
		assert.Equal(t, active.ID, env.submit(t, student.ID, nil).ReviewerID)
	}
}

func TestSubmitDateRules(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	env.createAccount(t, models.RoleFaculty, "faculty")

	strPtr := func(s string) *string { return &s }
	tests := []struct {
		name   string
		issue  string
		expiry *string
		rule   string
	}{
		{name: "expiry before issue", issue: "2024-01-01", expiry: strPtr("2023-12-31"), rule: validator.RuleInvalidDateRange},
		{name: "expiry equals issue", issue: "2024-05-01", expiry: strPtr("2024-05-01"), rule: validator.RuleInvalidDateRange},
		{name: "expired yesterday", issue: "2024-01-01", expiry: strPtr(env.date(-1)), rule: validator.RuleAlreadyExpired},
		{name: "expires today", issue: "2024-01-01", expiry: strPtr(env.date(0))},
		{name: "no expiry", issue: "2024-01-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.manager.Certificate().Submit(context.Background(), student.ID, &SubmitCertificateRequest{
				Title:        "Cert",
				Organization: "Org",
				IssueDate:    tt.issue,
				ExpiryDate:   tt.expiry,
				FileRef:      env.upload(student.ID),
			})
			if tt.rule == "" {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrValidationFailed)
			var verrs validator.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			assert.True(t, verrs.HasRule(tt.rule), "got %v", verrs)
		})
	}
}

func TestSubmitRejectsForeignOrMissingFile(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	other := env.createAccount(t, models.RoleStudent, "other")
	env.createAccount(t, models.RoleFaculty, "faculty")

	for _, ref := range []string{
		env.upload(other.ID),
		"certificates/" + student.ID + "/never-uploaded.pdf",
		"certificates/" + student.ID + "/../" + other.ID + "/x.pdf",
	} {
		_, err := env.manager.Certificate().Submit(context.Background(), student.ID, &SubmitCertificateRequest{
			Title: "Cert", Organization: "Org", IssueDate: env.date(-5), FileRef: ref,
		})
		assert.ErrorIs(t, err, ErrValidationFailed, ref)
	}
}

func TestSubmitRequiresActiveStudent(t *testing.T) {
	env := newTestEnv(t)
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")

	_, err := env.manager.Certificate().Submit(context.Background(), faculty.ID, &SubmitCertificateRequest{
		Title: "Cert", Organization: "Org", IssueDate: env.date(-5), FileRef: env.upload(faculty.ID),
	})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitPublishesEvent(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")

	cert := env.submit(t, student.ID, nil)

	published := env.publisher.EventsOfType(events.EventCertificateSubmitted)
	require.Len(t, published, 1)
	data := published[0].Data.(events.CertificateSubmittedEvent)
	assert.Equal(t, cert.ID, data.CertificateID)
	assert.Equal(t, faculty.Email, data.ReviewerEmail)
}

func TestReviewTransitions(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")
	stranger := env.createAccount(t, models.RoleFaculty, "stranger")

	cert := env.submit(t, student.ID, nil)
	require.Equal(t, faculty.ID, cert.ReviewerID)

	_, err := env.manager.Certificate().Review(ctx, cert.ID, stranger.ID, &ReviewCertificateRequest{Status: models.CertificateAccepted})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.manager.Certificate().Review(ctx, 9999, faculty.ID, &ReviewCertificateRequest{Status: models.CertificateAccepted})
	assert.ErrorIs(t, err, ErrCertificateNotFound)

	_, err = env.manager.Certificate().Review(ctx, cert.ID, faculty.ID, &ReviewCertificateRequest{Status: models.CertificatePending})
	assert.ErrorIs(t, err, ErrValidationFailed)

	remarks := "verified with issuer"
	reviewed, err := env.manager.Certificate().Review(ctx, cert.ID, faculty.ID, &ReviewCertificateRequest{
		Status:  models.CertificateAccepted,
		Remarks: &remarks,
	})
	require.NoError(t, err)
	assert.Equal(t, models.CertificateAccepted, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedAt)
	assert.Equal(t, remarks, *reviewed.Remarks)

	counter := env.counter(t, faculty.ID)
	assert.Equal(t, 0, counter.PendingCount)
	assert.Equal(t, 1, counter.TotalAssigned)

	_, err = env.manager.Certificate().Review(ctx, cert.ID, faculty.ID, &ReviewCertificateRequest{Status: models.CertificateRejected})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrConflict)

	after, err := env.manager.Certificate().Get(ctx, cert.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateAccepted, after.Status)
	assert.Equal(t, remarks, *after.Remarks)
	assert.Equal(t, 1, env.counter(t, faculty.ID).TotalAssigned)

	assert.Len(t, env.publisher.EventsOfType(events.EventCertificateReviewed), 1)
}

func TestReviewEventAndResponseCarryAccounts(t *testing.T) {
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")

	reviewed := env.review(t, env.submit(t, student.ID, nil), models.CertificateRejected)
	require.NotNil(t, reviewed.Owner)
	require.NotNil(t, reviewed.Reviewer)
	assert.Equal(t, student.Email, reviewed.Owner.Email)
	assert.Equal(t, faculty.Username, reviewed.Reviewer.Username)

	published := env.publisher.EventsOfType(events.EventCertificateReviewed)
	require.Len(t, published, 1)
	data := published[0].Data.(events.CertificateReviewedEvent)
	assert.Equal(t, student.Email, data.OwnerEmail)
	assert.Equal(t, string(models.CertificateRejected), data.Status)
}

func TestReviewByDeactivatedReviewer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")
	admin := env.createAccount(t, models.RoleAdmin, "admin")

	cert := env.submit(t, student.ID, nil)
	_, err := env.manager.Account().SetActive(ctx, admin.ID, faculty.ID, false)
	require.NoError(t, err)

	_, err = env.manager.Certificate().Review(ctx, cert.ID, faculty.ID, &ReviewCertificateRequest{Status: models.CertificateAccepted})
	assert.ErrorIs(t, err, ErrAccountDisabled)
	assert.ErrorIs(t, err, ErrForbidden)

	after, err := env.manager.Certificate().Get(ctx, cert.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CertificatePending, after.Status)
	assert.Equal(t, 1, env.counter(t, faculty.ID).PendingCount)
	assert.Empty(t, env.publisher.EventsOfType(events.EventCertificateReviewed))

	_, err = env.manager.Account().SetActive(ctx, admin.ID, faculty.ID, true)
	require.NoError(t, err)
	env.review(t, cert, models.CertificateAccepted)
}

func TestGetAccessControl(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	other := env.createAccount(t, models.RoleStudent, "other")
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")
	admin := env.createAccount(t, models.RoleAdmin, "admin")

	cert := env.submit(t, student.ID, nil)

	for _, viewer := range []string{student.ID, faculty.ID, admin.ID} {
		got, err := env.manager.Certificate().Get(ctx, cert.ID, viewer)
		require.NoError(t, err)
		assert.Equal(t, cert.ID, got.ID)
		require.NotNil(t, got.Owner)
		assert.Equal(t, student.Username, got.Owner.Username)
	}

	_, err := env.manager.Certificate().Get(ctx, cert.ID, other.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestListingsAndReviewerStats(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	faculty := env.createAccount(t, models.RoleFaculty, "faculty")

	var certs []*CertificateResponse
	for i := 0; i < 4; i++ {
		certs = append(certs, env.submit(t, student.ID, nil))
	}
	env.review(t, certs[0], models.CertificateAccepted)
	env.review(t, certs[1], models.CertificateRejected)

	mine, err := env.manager.Certificate().ListMine(ctx, student.ID, &CertificateListRequest{Page: 1, Size: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 4, mine.Total)
	require.Len(t, mine.Certificates, 3)
	assert.Equal(t, certs[3].ID, mine.Certificates[0].ID, "newest first")

	pending, err := env.manager.Certificate().ListAssigned(ctx, faculty.ID, &CertificateListRequest{Status: "pending"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, pending.Total)

	all, err := env.manager.Certificate().ListAll(ctx, &CertificateListRequest{OwnerID: student.ID, Status: "accepted"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, all.Total)

	_, err = env.manager.Certificate().ListAll(ctx, &CertificateListRequest{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	stats, err := env.manager.Certificate().ReviewerStats(ctx, faculty.ID)
	require.NoError(t, err)
	assert.Equal(t, &ReviewerStats{ReviewerID: faculty.ID, TotalAssigned: 4, Pending: 2, Accepted: 1, Rejected: 1}, stats)
}

func TestCreateUploadURL(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")

	resp, err := env.manager.Certificate().CreateUploadURL(ctx, student.ID, &UploadURLRequest{
		FileName: "AWS Cert.PDF", ContentType: "application/pdf", Size: 2048,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^certificates/`+student.ID+`/[0-9a-f-]{36}\.pdf$`, resp.FileRef)
	assert.Contains(t, resp.UploadURL, resp.FileRef)

	_, err = env.manager.Certificate().CreateUploadURL(ctx, student.ID, &UploadURLRequest{
		FileName: "cert.exe", ContentType: "application/octet-stream", Size: 10,
	})
	assert.ErrorIs(t, err, ErrValidationFailed)

	_, err = env.manager.Certificate().CreateUploadURL(ctx, student.ID, &UploadURLRequest{
		FileName: "cert.pdf", ContentType: "application/pdf", Size: validator.MaxCertificateFileSize + 1,
	})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestCountersMatchLedger(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	student := env.createAccount(t, models.RoleStudent, "student")
	env.createAccount(t, models.RoleFaculty, "f1")
	env.createAccount(t, models.RoleFaculty, "f2")

	for i := 0; i < 7; i++ {
		cert := env.submit(t, student.ID, nil)
		if i%2 == 0 {
			env.review(t, cert, models.CertificateAccepted)
		}
	}

	ledger, err := env.repo.Certificate().LedgerCounts(ctx)
	require.NoError(t, err)
	for _, entry := range ledger {
		counter := env.counter(t, entry.ReviewerID)
		assert.Equal(t, entry.Pending, counter.PendingCount)
		assert.Equal(t, entry.Resolved, counter.TotalAssigned)
	}
}
