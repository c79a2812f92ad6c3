package models

import (
	"time"

	"gorm.io/datatypes"
)

// UsageLog is the immutable audit record written once per request that
// reached an upstream driver. Failed requests carry CostUSD 0 and an
// ErrorMessage; estimated token counts are flagged with IsEstimated.
type UsageLog struct {
	BaseModel
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Key       string    `gorm:"index;not null" json:"key"`
	Model     string    `gorm:"index" json:"model"`
	Endpoint  string    `json:"endpoint"`
	IPAddress string    `json:"ip_address,omitempty"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`

	InputTokens      int `gorm:"not null;default:0" json:"input_tokens"`
	OutputTokens     int `gorm:"not null;default:0" json:"output_tokens"`
	CacheReadTokens  int `gorm:"not null;default:0" json:"cache_read_tokens"`
	CacheWriteTokens int `gorm:"not null;default:0" json:"cache_write_tokens"`
	TotalTokens      int `gorm:"not null;default:0" json:"total_tokens"`

	CostUSD     float64 `gorm:"not null;default:0" json:"cost_usd"`
	IsCacheHit  bool    `gorm:"not null;default:false" json:"is_cache_hit"`
	IsEstimated bool    `gorm:"not null;default:false" json:"is_estimated"`

	ProcessingMS float64 `json:"processing_ms"`
	ErrorMessage string  `json:"error_message,omitempty"`

	RequestPayload  datatypes.JSON `json:"request_payload,omitempty"`
	ResponsePayload datatypes.JSON `json:"response_payload,omitempty"`
}

func (UsageLog) TableName() string {
	return "usage_logs"
}

// SetTokenCounts fills the token columns and keeps TotalTokens consistent.
func (u *UsageLog) SetTokenCounts(input, output, cacheRead, cacheWrite int) {
	u.InputTokens = input
	u.OutputTokens = output
	u.CacheReadTokens = cacheRead
	u.CacheWriteTokens = cacheWrite
	u.TotalTokens = input + output
}
