package key

import (
	"context"
	"fmt"

	"github.com/amerfu/llmgate/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrKeyNotFound = fmt.Errorf("key not found")

// Service handles bearer key management.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

type CreateKeyRequest struct {
	UserID        string   `json:"user_id"`
	KeyName       string   `json:"key_name"`
	IsActive      *bool    `json:"is_active,omitempty"`
	AllowedModels []string `json:"allowed_models,omitempty"`
}

type BulkCreateKeysRequest struct {
	UserID        string   `json:"user_id"`
	Count         int      `json:"count"`
	KeyPrefix     string   `json:"key_prefix"`
	IsActive      *bool    `json:"is_active,omitempty"`
	AllowedModels []string `json:"allowed_models,omitempty"`
}

type UpdateKeyRequest struct {
	KeyName       *string   `json:"key_name,omitempty"`
	IsActive      *bool     `json:"is_active,omitempty"`
	AllowedModels *[]string `json:"allowed_models,omitempty"`
}

// Empty reports whether the update carries no changes.
func (r UpdateKeyRequest) Empty() bool {
	return r.KeyName == nil && r.IsActive == nil && r.AllowedModels == nil
}

// Create generates a fresh key string and persists the record.
func (s *Service) Create(ctx context.Context, req CreateKeyRequest) (*models.Key, error) {
	keyValue, err := Generate()
	if err != nil {
		return nil, err
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	key := &models.Key{
		Key:           keyValue,
		UserID:        req.UserID,
		KeyName:       req.KeyName,
		IsActive:      active,
		AllowedModels: req.AllowedModels,
	}

	if err := s.db.WithContext(ctx).Create(key).Error; err != nil {
		return nil, fmt.Errorf("failed to create key: %w", err)
	}

	s.logger.Info("key created",
		zap.String("user_id", key.UserID),
		zap.String("key_name", key.KeyName))

	return key, nil
}

// CreateBulk generates req.Count keys named {prefix}-1..{prefix}-N.
func (s *Service) CreateBulk(ctx context.Context, req BulkCreateKeysRequest) ([]*models.Key, error) {
	prefix := req.KeyPrefix
	if prefix == "" {
		prefix = "api-key"
	}

	keys := make([]*models.Key, 0, req.Count)
	for i := 0; i < req.Count; i++ {
		key, err := s.Create(ctx, CreateKeyRequest{
			UserID:        req.UserID,
			KeyName:       fmt.Sprintf("%s-%d", prefix, i+1),
			IsActive:      req.IsActive,
			AllowedModels: req.AllowedModels,
		})
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	return keys, nil
}

// GetByKey resolves a bearer key string to its record. This is the auth
// cache's loader; it returns inactive keys too so the gate can distinguish
// 403 from 401.
func (s *Service) GetByKey(ctx context.Context, keyValue string) (*models.Key, error) {
	var key models.Key
	if err := s.db.WithContext(ctx).
		Where("key = ?", keyValue).
		First(&key).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get key: %w", err)
	}
	return &key, nil
}

// ListByUser returns every key owned by the account.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.Key, error) {
	var keys []*models.Key
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at").
		Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// Update applies the non-nil fields of req to the key record.
func (s *Service) Update(ctx context.Context, keyValue string, req UpdateKeyRequest) (*models.Key, error) {
	key, err := s.GetByKey(ctx, keyValue)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.KeyName != nil {
		updates["key_name"] = *req.KeyName
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.AllowedModels != nil {
		key.AllowedModels = *req.AllowedModels
		updates["allowed_models"] = key.AllowedModels
	}

	if err := s.db.WithContext(ctx).Model(key).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update key: %w", err)
	}

	s.logger.Info("key updated",
		zap.String("user_id", key.UserID),
		zap.String("key_name", key.KeyName))

	return key, nil
}
