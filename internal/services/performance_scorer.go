package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/certtrack/certificate-service/internal/cache"
	"github.com/certtrack/certificate-service/internal/repositories"
)

const (
	acceptedPoints = 10
	rejectedPoints = 2
)

type performanceScorer struct {
	repo       repositories.Repository
	cache      *cache.CacheManager
	windowDays int
	logger     *slog.Logger
	now        func() time.Time
}

func NewPerformanceScorer(repo repositories.Repository, cacheManager *cache.CacheManager, windowDays int, logger *slog.Logger) PerformanceScorer {
	return &performanceScorer{
		repo:       repo,
		cache:      cacheManager,
		windowDays: windowDays,
		logger:     logger,
		now:        time.Now,
	}
}

// ComputeScore returns 10 points per accepted and -2 per rejected certificate
func ComputeScore(accepted, rejected int64) int64 {
	return accepted*acceptedPoints - rejected*rejectedPoints
}

func (p *performanceScorer) Score(ctx context.Context, ownerID string) (*PerformanceScore, error) {
	var score PerformanceScore
	err := p.cache.Stats.CacheOrExecute(ctx, cache.ScoreKey(ownerID), &score, cache.StatsCacheConfig.TTL, func() (interface{}, error) {
		counts, err := p.repo.Certificate().CountByStatus(ctx, repositories.CertificateFilters{OwnerID: &ownerID})
		if err != nil {
			return nil, fmt.Errorf("failed to count certificates: %w", err)
		}
		return &PerformanceScore{
			OwnerID:  ownerID,
			Accepted: counts.Accepted,
			Rejected: counts.Rejected,
			Pending:  counts.Pending,
			Total:    counts.Total(),
			Score:    ComputeScore(counts.Accepted, counts.Rejected),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &score, nil
}

// ExpiringSoon includes certificates expiring today through today+windowDays
func (p *performanceScorer) ExpiringSoon(ctx context.Context, ownerID string, windowDays int) ([]*CertificateResponse, error) {
	if windowDays <= 0 {
		windowDays = p.windowDays
	}
	today := currentDate(p.now)

	certificates, err := p.repo.Certificate().ListExpiring(ctx, repositories.ExpiryFilters{
		OwnerID: &ownerID,
		From:    today,
		To:      today.AddDate(0, 0, windowDays),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring certificates: %w", err)
	}

	return toCertificateResponses(certificates, today), nil
}
