package models

import (
	"encoding/json"
	"time"
)

// Setting is a named JSON value (delivery calendar, shipping rates).
type Setting struct {
	Key       string          `gorm:"column:key;primaryKey"`
	Value     json.RawMessage `gorm:"column:value;type:jsonb"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
