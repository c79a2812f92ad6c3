package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/providers"
)

var ErrPriceNotFound = errors.New("price not found")

// tokensPerUnit is the denominator every rate is quoted against: rates are
// USD per million tokens.
const tokensPerUnit = 1_000_000

// Service owns the per-model rate table.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logger}
}

// UpsertPriceRequest carries the full rate card for one model. Absent rates
// default to zero, which prices that token class as free.
type UpsertPriceRequest struct {
	ModelName      string  `json:"model_name"`
	Provider       string  `json:"provider"`
	InputRate      float64 `json:"input_rate"`
	OutputRate     float64 `json:"output_rate"`
	CacheReadRate  float64 `json:"cache_read_rate"`
	CacheWriteRate float64 `json:"cache_write_rate"`
}

func (r *UpsertPriceRequest) Validate() error {
	if r.ModelName == "" {
		return errors.New("model_name is required")
	}
	if r.InputRate < 0 || r.OutputRate < 0 || r.CacheReadRate < 0 || r.CacheWriteRate < 0 {
		return errors.New("rates must not be negative")
	}
	return nil
}

func (s *Service) GetByModel(ctx context.Context, modelName string) (*models.ModelPrice, error) {
	var price models.ModelPrice
	if err := s.db.WithContext(ctx).Where("model_name = ?", modelName).First(&price).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPriceNotFound
		}
		return nil, fmt.Errorf("failed to get price: %w", err)
	}
	return &price, nil
}

func (s *Service) List(ctx context.Context) ([]models.ModelPrice, error) {
	var prices []models.ModelPrice
	if err := s.db.WithContext(ctx).Order("model_name").Find(&prices).Error; err != nil {
		return nil, fmt.Errorf("failed to list prices: %w", err)
	}
	return prices, nil
}

// Upsert writes the rate card for a model, replacing any existing one. The
// returned flag reports whether a new row was created.
func (s *Service) Upsert(ctx context.Context, req *UpsertPriceRequest) (*models.ModelPrice, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	var price models.ModelPrice
	err := s.db.WithContext(ctx).Where("model_name = ?", req.ModelName).First(&price).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		price = models.ModelPrice{
			ModelName:      req.ModelName,
			Provider:       req.Provider,
			InputRate:      req.InputRate,
			OutputRate:     req.OutputRate,
			CacheReadRate:  req.CacheReadRate,
			CacheWriteRate: req.CacheWriteRate,
		}
		if err := s.db.WithContext(ctx).Create(&price).Error; err != nil {
			return nil, false, fmt.Errorf("failed to create price: %w", err)
		}
		s.logger.Info("Model price created",
			zap.String("model", price.ModelName),
			zap.String("provider", price.Provider))
		return &price, true, nil

	case err != nil:
		return nil, false, fmt.Errorf("failed to look up price: %w", err)
	}

	updates := map[string]interface{}{
		"provider":         req.Provider,
		"input_rate":       req.InputRate,
		"output_rate":      req.OutputRate,
		"cache_read_rate":  req.CacheReadRate,
		"cache_write_rate": req.CacheWriteRate,
	}
	if err := s.db.WithContext(ctx).Model(&price).Updates(updates).Error; err != nil {
		return nil, false, fmt.Errorf("failed to update price: %w", err)
	}
	s.logger.Info("Model price updated", zap.String("model", price.ModelName))
	return &price, false, nil
}

func (s *Service) Delete(ctx context.Context, modelName string) error {
	result := s.db.WithContext(ctx).Where("model_name = ?", modelName).Delete(&models.ModelPrice{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete price: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPriceNotFound
	}
	s.logger.Info("Model price deleted", zap.String("model", modelName))
	return nil
}

// Cost prices usage at the given rates. Results are rounded to six decimals
// so the ledger's repeated float arithmetic stays stable across replicas.
func Cost(price *models.ModelPrice, u providers.Usage) float64 {
	cost := float64(u.InputTokens)/tokensPerUnit*price.InputRate +
		float64(u.OutputTokens)/tokensPerUnit*price.OutputRate +
		float64(u.CacheReadTokens)/tokensPerUnit*price.CacheReadRate +
		float64(u.CacheWriteTokens)/tokensPerUnit*price.CacheWriteRate
	return Round(cost)
}

// Round rounds to six decimal places, the precision the usage log persists.
func Round(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
