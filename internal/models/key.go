package models

import (
	"github.com/lib/pq"
)

// Key is a gateway-issued bearer credential. The key string itself is the
// secret; there is no separate hash column because keys are random opaque
// strings with no client-chosen content.
type Key struct {
	BaseModel
	Key           string         `gorm:"uniqueIndex;not null" json:"key"`
	UserID        string         `gorm:"index;not null" json:"user_id"`
	KeyName       string         `json:"key_name"`
	IsActive      bool           `gorm:"not null;default:true" json:"is_active"`
	AllowedModels pq.StringArray `gorm:"type:text[]" json:"allowed_models,omitempty"`
}

func (Key) TableName() string {
	return "keys"
}

// IsModelAllowed reports whether the key may address the named model.
// An empty allow-list admits every model.
func (k *Key) IsModelAllowed(model string) bool {
	if !k.IsActive {
		return false
	}
	if len(k.AllowedModels) == 0 {
		return true
	}
	for _, m := range k.AllowedModels {
		if m == model {
			return true
		}
	}
	return false
}
