package account

import (
	"context"
	"fmt"

	"github.com/amerfu/llmgate/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = fmt.Errorf("account not found")
	ErrDuplicateUserID = fmt.Errorf("user id already exists")
)

// Service handles tenant accounts, including the atomic budget debit.
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

type CreateAccountRequest struct {
	UserID       string              `json:"user_id"`
	AccountName  string              `json:"account_name,omitempty"`
	BudgetUSD    float64             `json:"budget_usd"`
	BudgetPeriod models.BudgetPeriod `json:"budget_period,omitempty"`
	IsActive     *bool               `json:"is_active,omitempty"`
}

type UpdateAccountRequest struct {
	AccountName  *string              `json:"account_name,omitempty"`
	BudgetUSD    *float64             `json:"budget_usd,omitempty"`
	BudgetPeriod *models.BudgetPeriod `json:"budget_period,omitempty"`
	IsActive     *bool                `json:"is_active,omitempty"`
}

// Empty reports whether the update carries no changes.
func (r UpdateAccountRequest) Empty() bool {
	return r.AccountName == nil && r.BudgetUSD == nil && r.BudgetPeriod == nil && r.IsActive == nil
}

func (s *Service) Create(ctx context.Context, req CreateAccountRequest) (*models.Account, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", req.UserID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicateUserID
	}

	period := req.BudgetPeriod
	if period == "" {
		period = models.BudgetPeriodTotal
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	account := &models.Account{
		UserID:       req.UserID,
		AccountName:  req.AccountName,
		BudgetUSD:    req.BudgetUSD,
		BudgetPeriod: period,
		IsActive:     active,
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account created",
		zap.String("user_id", account.UserID),
		zap.Float64("budget_usd", account.BudgetUSD))

	return account, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID string) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&account).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

func (s *Service) List(ctx context.Context, offset, limit int) ([]*models.Account, error) {
	var accounts []*models.Account
	if err := s.db.WithContext(ctx).
		Order("created_at").
		Offset(offset).
		Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// Update applies the non-nil fields of req to the account record.
func (s *Service) Update(ctx context.Context, userID string, req UpdateAccountRequest) (*models.Account, error) {
	updates := map[string]interface{}{}
	if req.AccountName != nil {
		updates["account_name"] = *req.AccountName
	}
	if req.BudgetUSD != nil {
		updates["budget_usd"] = *req.BudgetUSD
	}
	if req.BudgetPeriod != nil {
		updates["budget_period"] = *req.BudgetPeriod
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ?", userID).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update account: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAccountNotFound
	}

	s.logger.Info("account updated", zap.String("user_id", userID))

	return s.GetByUserID(ctx, userID)
}

// Debit atomically increments spent_usd, matching only active accounts.
// The single conditional UPDATE is the entire concurrency story: debits
// commute, so there is no read-modify-write and no lock. Returns whether a
// row matched; false means the account vanished or was deactivated
// mid-flight.
func (s *Service) Debit(ctx context.Context, userID string, amountUSD float64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		UpdateColumn("spent_usd", gorm.Expr("spent_usd + ?", amountUSD))
	if res.Error != nil {
		return false, fmt.Errorf("failed to debit account: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
