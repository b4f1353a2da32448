package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/certtrack/certificate-service/internal/auth"
	"github.com/certtrack/certificate-service/internal/cache"
	"github.com/certtrack/certificate-service/internal/config"
	"github.com/certtrack/certificate-service/internal/events"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories/memory"
	"github.com/certtrack/certificate-service/internal/storage"
	"github.com/certtrack/certificate-service/internal/utils"
	"github.com/certtrack/certificate-service/internal/validator"
)

// testClock advances one millisecond per reading so creation order is stable
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	repo      *memory.MemoryRepository
	files     *storage.MemoryStore
	publisher *events.MockEventPublisher
	issuer    *auth.TokenIssuer
	clock     *testClock
	manager   ServiceManager
	fileSeq   int
}

var testStart = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

func newTestEnv(t *testing.T, opts ...func(*Dependencies)) *testEnv {
	t.Helper()

	clock := newTestClock(testStart)
	logger := utils.NopLogger()
	env := &testEnv{
		repo:      memory.NewMemoryRepository(memory.WithClock(clock.Now)),
		files:     storage.NewMemoryStore(),
		publisher: events.NewMockEventPublisher(logger),
		issuer:    auth.NewTokenIssuer("test-secret", time.Hour),
		clock:     clock,
	}

	deps := Dependencies{
		Repo:      env.repo,
		Cache:     cache.NewCacheManager(nil),
		Publisher: env.publisher,
		Files:     env.files,
		Issuer:    env.issuer,
		Logger:    logger,
		Validator: validator.New(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	env.manager = NewServiceManager(deps, ServiceManagerConfig{
		FrontendURL: "http://portal.test",
		Tokens: config.TokenConfig{
			EmailVerifyTTL:   24 * time.Hour,
			PasswordResetTTL: time.Hour,
		},
		ExpiryWindowDays: 30,
		WorkloadCap:      5,
		Now:              clock.Now,
	})
	require.NoError(t, env.manager.Initialize(context.Background()))
	return env
}

func (e *testEnv) createAccount(t *testing.T, role models.UserRole, name string) *models.Account {
	t.Helper()
	ctx := context.Background()

	account := &models.Account{
		ID:            uuid.NewString(),
		Username:      name,
		Email:         name + "@example.edu",
		FirstName:     name,
		Role:          role,
		Active:        true,
		EmailVerified: true,
	}
	require.NoError(t, e.repo.Account().Create(ctx, account))
	if role == models.RoleFaculty {
		require.NoError(t, e.repo.Workload().Ensure(ctx, account.ID))
	}
	return account
}

// upload stores a document for owner and returns its file reference
func (e *testEnv) upload(ownerID string) string {
	e.fileSeq++
	ref := fmt.Sprintf("certificates/%s/doc-%d.pdf", ownerID, e.fileSeq)
	e.files.Put(ref)
	return ref
}

func (e *testEnv) date(offsetDays int) string {
	return testStart.AddDate(0, 0, offsetDays).Format(validator.DateLayout)
}

func (e *testEnv) submit(t *testing.T, ownerID string, expiryOffset *int) *CertificateResponse {
	t.Helper()
	req := &SubmitCertificateRequest{
		Title:        "Cloud Practitioner",
		Organization: "AWS",
		IssueDate:    e.date(-100),
		FileRef:      e.upload(ownerID),
	}
	if expiryOffset != nil {
		expiry := e.date(*expiryOffset)
		req.ExpiryDate = &expiry
	}
	cert, err := e.manager.Certificate().Submit(context.Background(), ownerID, req)
	require.NoError(t, err)
	return cert
}

func (e *testEnv) review(t *testing.T, cert *CertificateResponse, status models.CertificateStatus) *CertificateResponse {
	t.Helper()
	reviewed, err := e.manager.Certificate().Review(context.Background(), cert.ID, cert.ReviewerID, &ReviewCertificateRequest{Status: status})
	require.NoError(t, err)
	return reviewed
}

func (e *testEnv) counter(t *testing.T, reviewerID string) *models.WorkloadCounter {
	t.Helper()
	counter, err := e.repo.Workload().Get(context.Background(), reviewerID)
	require.NoError(t, err)
	return counter
}

func intPtr(v int) *int { return &v }
