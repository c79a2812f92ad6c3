package usage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amerfu/llmgate/internal/models"
)

// Service is the append side and the read side of the usage log. Rows are
// append-only: nothing in the gateway updates or deletes them.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// Append persists one usage record.
func (s *Service) Append(ctx context.Context, entry *models.UsageLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append usage log: %w", err)
	}
	return nil
}

// Summary aggregates one user's usage inside an optional time window.
type Summary struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalCost         float64 `json:"total_cost"`
	TotalTokens       int64   `json:"total_tokens"`
	TotalInputTokens  int64   `json:"total_input_tokens"`
	TotalOutputTokens int64   `json:"total_output_tokens"`
	TotalCachedTokens int64   `json:"total_cached_tokens"`
	CacheHits         int64   `json:"cache_hits"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
}

// Summarize runs the aggregation in the database; usage tables grow too fast
// to fold rows in application memory.
func (s *Service) Summarize(ctx context.Context, userID string, since, until *time.Time) (*Summary, error) {
	query := s.db.WithContext(ctx).Model(&models.UsageLog{}).Where("user_id = ?", userID)
	if since != nil {
		query = query.Where("timestamp >= ?", *since)
	}
	if until != nil {
		query = query.Where("timestamp <= ?", *until)
	}

	var summary Summary
	err := query.Select(`COUNT(*) as total_requests,
		COALESCE(SUM(cost_usd), 0) as total_cost,
		COALESCE(SUM(total_tokens), 0) as total_tokens,
		COALESCE(SUM(input_tokens), 0) as total_input_tokens,
		COALESCE(SUM(output_tokens), 0) as total_output_tokens,
		COALESCE(SUM(cache_read_tokens), 0) as total_cached_tokens,
		COALESCE(SUM(CASE WHEN is_cache_hit THEN 1 ELSE 0 END), 0) as cache_hits`).
		Scan(&summary).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}

	if summary.TotalRequests > 0 {
		summary.CacheHitRate = float64(summary.CacheHits) / float64(summary.TotalRequests)
	}
	return &summary, nil
}

// List returns one user's raw log rows, newest first, with the total row
// count for pagination.
func (s *Service) List(ctx context.Context, userID string, offset, limit int) ([]models.UsageLog, int64, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := s.db.WithContext(ctx).Model(&models.UsageLog{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count usage logs: %w", err)
	}

	var logs []models.UsageLog
	if err := query.Order("timestamp DESC").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list usage logs: %w", err)
	}
	return logs, total, nil
}
