package database

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/amerfu/llmgate/internal/models"
	keygen "github.com/amerfu/llmgate/internal/services/key"
)

type Seeder struct {
	db *gorm.DB
}

func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// defaultPrices is the starter rate card, in USD per million tokens. Admins
// override or extend it through /admin/costs; seeding never clobbers a row
// that already exists.
var defaultPrices = []models.ModelPrice{
	{ModelName: "gpt-4o", Provider: "openai", InputRate: 2.50, OutputRate: 10.00, CacheReadRate: 1.25},
	{ModelName: "gpt-4o-mini", Provider: "openai", InputRate: 0.15, OutputRate: 0.60, CacheReadRate: 0.075},
	{ModelName: "gpt-4.1", Provider: "openai", InputRate: 2.00, OutputRate: 8.00, CacheReadRate: 0.50},
	{ModelName: "gpt-4.1-mini", Provider: "openai", InputRate: 0.40, OutputRate: 1.60, CacheReadRate: 0.10},
	{ModelName: "o3-mini", Provider: "openai", InputRate: 1.10, OutputRate: 4.40, CacheReadRate: 0.55},
	{ModelName: "claude-sonnet-4-20250514", Provider: "anthropic", InputRate: 3.00, OutputRate: 15.00, CacheReadRate: 0.30, CacheWriteRate: 3.75},
	{ModelName: "claude-3-5-haiku-20241022", Provider: "anthropic", InputRate: 0.80, OutputRate: 4.00, CacheReadRate: 0.08, CacheWriteRate: 1.00},
	{ModelName: "claude-opus-4-20250514", Provider: "anthropic", InputRate: 15.00, OutputRate: 75.00, CacheReadRate: 1.50, CacheWriteRate: 18.75},
}

// SeedAll seeds the price table and a demo tenant with one key.
func (s *Seeder) SeedAll() error {
	log.Println("Starting store seeding...")

	if err := s.SeedPrices(); err != nil {
		return fmt.Errorf("failed to seed prices: %w", err)
	}
	if err := s.SeedDemoAccount(); err != nil {
		return fmt.Errorf("failed to seed demo account: %w", err)
	}

	log.Println("Store seeding completed")
	return nil
}

// SeedPrices inserts the default rate cards, skipping models that already
// have one.
func (s *Seeder) SeedPrices() error {
	for _, price := range defaultPrices {
		var existing models.ModelPrice
		err := s.db.Where("model_name = ?", price.ModelName).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			p := price
			if err := s.db.Create(&p).Error; err != nil {
				return fmt.Errorf("failed to create price for %s: %w", p.ModelName, err)
			}
			log.Printf("Seeded price: %s (%s)", p.ModelName, p.Provider)
		case err != nil:
			return fmt.Errorf("failed to check price for %s: %w", price.ModelName, err)
		}
	}
	return nil
}

// SeedDemoAccount creates the demo tenant with a small budget. The generated
// key is printed once; it is not recoverable later except by reading the
// store directly.
func (s *Seeder) SeedDemoAccount() error {
	const demoUserID = "demo"

	var existing models.Account
	err := s.db.Where("user_id = ?", demoUserID).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to check demo account: %w", err)
	}

	account := &models.Account{
		UserID:       demoUserID,
		AccountName:  "Demo Account",
		BudgetUSD:    10.0,
		BudgetPeriod: models.BudgetPeriodTotal,
		IsActive:     true,
	}
	if err := s.db.Create(account).Error; err != nil {
		return fmt.Errorf("failed to create demo account: %w", err)
	}

	keyValue, err := keygen.Generate()
	if err != nil {
		return err
	}
	key := &models.Key{
		Key:      keyValue,
		UserID:   demoUserID,
		KeyName:  "demo-key",
		IsActive: true,
	}
	if err := s.db.Create(key).Error; err != nil {
		return fmt.Errorf("failed to create demo key: %w", err)
	}

	log.Printf("Seeded demo account %q with key: %s", demoUserID, keyValue)
	return nil
}
