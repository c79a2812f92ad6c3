package models

// ModelPrice holds the four billing rates for one model, in USD per million
// tokens. A model without a row prices at zero.
type ModelPrice struct {
	BaseModel
	ModelName      string  `gorm:"uniqueIndex;not null" json:"model_name"`
	Provider       string  `gorm:"index" json:"provider"`
	InputRate      float64 `gorm:"not null;default:0" json:"input_rate"`
	OutputRate     float64 `gorm:"not null;default:0" json:"output_rate"`
	CacheReadRate  float64 `gorm:"not null;default:0" json:"cache_read_rate"`
	CacheWriteRate float64 `gorm:"not null;default:0" json:"cache_write_rate"`
}

func (ModelPrice) TableName() string {
	return "model_prices"
}
