// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventTelemetrySample    EventType = "TELEMETRY_SAMPLE"
	EventDeviceOpened       EventType = "DEVICE_OPENED"
	EventDeviceClosed       EventType = "DEVICE_CLOSED"
	EventDeviceAdded        EventType = "DEVICE_ADDED"
	EventDeviceRemoved      EventType = "DEVICE_REMOVED"
	EventDeviceError        EventType = "DEVICE_ERROR"
	EventOperationCompleted EventType = "OPERATION_COMPLETED"
)

// DeviceEvent is published on the event bus and pushed to websocket clients.
type DeviceEvent struct {
	ID          uuid.UUID   `json:"id"`
	EventType   EventType   `json:"event_type"`
	DeviceIndex int         `json:"device_index"`
	DeviceName  string      `json:"device_name"`
	Data        interface{} `json:"data,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
}

// NewDeviceEvent stamps a new event.
func NewDeviceEvent(eventType EventType, deviceIndex int, deviceName string, data interface{}) DeviceEvent {
	return DeviceEvent{
		ID:          uuid.New(),
		EventType:   eventType,
		DeviceIndex: deviceIndex,
		DeviceName:  deviceName,
		Data:        data,
		Timestamp:   time.Now(),
	}
}

// TelemetryEventData is the payload of EventTelemetrySample.
type TelemetryEventData struct {
	Samples []*TelemetrySample `json:"samples"`
}

// DeviceErrorEventData is the payload of EventDeviceError.
type DeviceErrorEventData struct {
	ResultCode   string `json:"result_code"`
	ErrorMessage string `json:"error_message"`
	Operation    string `json:"operation"`
}
