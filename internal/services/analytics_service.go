package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/certtrack/certificate-service/internal/cache"
	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

type analyticsService struct {
	repo     repositories.Repository
	balancer WorkloadBalancer
	cache    *cache.CacheManager
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewAnalyticsService(repo repositories.Repository, balancer WorkloadBalancer, cacheManager *cache.CacheManager, ttl time.Duration, logger *slog.Logger) AnalyticsService {
	if ttl <= 0 {
		ttl = cache.AnalyticsCacheConfig.TTL
	}
	return &analyticsService{
		repo:     repo,
		balancer: balancer,
		cache:    cacheManager,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *analyticsService) Summary(ctx context.Context) (*AnalyticsSummary, error) {
	var summary AnalyticsSummary
	err := s.cache.Analytics.CacheOrExecute(ctx, cache.AnalyticsSummaryKey, &summary, s.ttl, func() (interface{}, error) {
		return s.compute(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *analyticsService) compute(ctx context.Context) (*AnalyticsSummary, error) {
	s.logger.Debug("Computing analytics summary")

	counts, err := s.repo.Certificate().CountByStatus(ctx, repositories.CertificateFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to count certificates: %w", err)
	}

	roles, err := s.repo.Account().CountByRole(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count accounts: %w", err)
	}

	reviewers, err := s.balancer.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	return &AnalyticsSummary{
		TotalCertificates: counts.Total(),
		ByStatus:          counts,
		TotalStudents:     roles[models.RoleStudent],
		TotalFaculty:      roles[models.RoleFaculty],
		TotalAdmins:       roles[models.RoleAdmin],
		Reviewers:         reviewers,
		GeneratedAt:       s.now().UTC(),
	}, nil
}
