// internal/model/device.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// DeviceStatus is the service view of a card's reachability.
type DeviceStatus string

const (
	DeviceStatusOpen    DeviceStatus = "OPEN"
	DeviceStatusClosed  DeviceStatus = "CLOSED"
	DeviceStatusOffline DeviceStatus = "OFFLINE"
)

// DeviceSummary combines the sysfs card entry with the channel state.
type DeviceSummary struct {
	Index     int          `json:"index"`
	Name      string       `json:"name"`
	Type      string       `json:"type"`
	Status    DeviceStatus `json:"status"`
	Family    string       `json:"family,omitempty"`
	CardState string       `json:"card_state,omitempty"`
	Mode      string       `json:"mode,omitempty"`
	PostCode  string       `json:"post_code,omitempty"`
	LastError string       `json:"last_error,omitempty"`
}

// JSONObject type for PostgreSQL JSONB objects
type JSONObject map[string]interface{}

func (j *JSONObject) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONObject) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}
