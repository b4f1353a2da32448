package cache

import (
	"context"
	"log/slog"
)

// Cache keys shared between readers and invalidation
const (
	AnalyticsSummaryKey = "summary"
)

// ScoreKey caches a student's performance score
func ScoreKey(ownerID string) string {
	return "score:" + ownerID
}

// ReviewerStatsKey caches a reviewer's dashboard counters
func ReviewerStatsKey(reviewerID string) string {
	return "reviewer:" + reviewerID
}

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateCertificateCaches drops every projection touched by a change to
// one certificate
func InvalidateCertificateCaches(ctx context.Context, cm *CacheManager, ownerID, reviewerID string) {
	SafeDelete(ctx, cm.Analytics, AnalyticsSummaryKey)
	SafeDelete(ctx, cm.Stats, ScoreKey(ownerID), ReviewerStatsKey(reviewerID))
}

// InvalidateAll drops every cached projection
func InvalidateAll(ctx context.Context, cm *CacheManager) {
	SafeInvalidatePattern(ctx, cm.Analytics, "*")
	SafeInvalidatePattern(ctx, cm.Stats, "*")
}
