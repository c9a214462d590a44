// internal/model/telemetry.go
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TelemetrySample is one persisted sensor reading.
type TelemetrySample struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	DeviceIndex int             `json:"device_index" db:"device_index"`
	DeviceName  string          `json:"device_name" db:"device_name"`
	Sensor      string          `json:"sensor" db:"sensor"`
	Value       decimal.Decimal `json:"value" db:"value"`
	Unit        string          `json:"unit" db:"unit"`
	Valid       bool            `json:"valid" db:"valid"`
	SampledAt   time.Time       `json:"sampled_at" db:"sampled_at"`
}
