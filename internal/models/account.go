package models

type BudgetPeriod string

const (
	BudgetPeriodDaily   BudgetPeriod = "daily"
	BudgetPeriodWeekly  BudgetPeriod = "weekly"
	BudgetPeriodMonthly BudgetPeriod = "monthly"
	BudgetPeriodTotal   BudgetPeriod = "total"
)

// ValidBudgetPeriod reports whether p is one of the accepted period values.
func ValidBudgetPeriod(p BudgetPeriod) bool {
	switch p {
	case BudgetPeriodDaily, BudgetPeriodWeekly, BudgetPeriodMonthly, BudgetPeriodTotal:
		return true
	}
	return false
}

// Account is a billing tenant. Budget enforcement compares spent_usd against
// budget_usd; only the "total" period is functionally enforced, the other
// period values are stored and returned but never reset spent_usd.
type Account struct {
	BaseModel
	UserID       string       `gorm:"uniqueIndex;not null" json:"user_id"`
	AccountName  string       `json:"account_name,omitempty"`
	BudgetUSD    float64      `gorm:"not null;default:0" json:"budget_usd"`
	SpentUSD     float64      `gorm:"not null;default:0" json:"spent_usd"`
	BudgetPeriod BudgetPeriod `gorm:"type:varchar(16);default:'total'" json:"budget_period"`
	IsActive     bool         `gorm:"not null;default:true" json:"is_active"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) RemainingBudget() float64 {
	remaining := a.BudgetUSD - a.SpentUSD
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (a *Account) IsOverBudget() bool {
	return a.SpentUSD >= a.BudgetUSD
}

func (a *Account) CanSpend(amountUSD float64) bool {
	if !a.IsActive {
		return false
	}
	return a.SpentUSD+amountUSD <= a.BudgetUSD
}
