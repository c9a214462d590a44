// internal/service/device_service.go
package service

import (
	"context"
	"encoding/hex"
	"fmt"

	"go.uber.org/zap"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/device"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/utils"
	"micmgmt-service/pkg/micsdk"
)

// DeviceService serves card queries and channel lifecycle requests.
type DeviceService struct {
	manager   *device.Manager
	discovery *DiscoveryService
	eventBus  *EventBus
	config    *config.Config
	logger    *utils.ServiceLogger
}

// NewDeviceService creates a new device service instance
func NewDeviceService(
	manager *device.Manager,
	discovery *DiscoveryService,
	eventBus *EventBus,
	config *config.Config,
	logger *zap.Logger,
) *DeviceService {
	return &DeviceService{
		manager:   manager,
		discovery: discovery,
		eventBus:  eventBus,
		config:    config,
		logger:    utils.NewServiceLogger(logger, "device-service"),
	}
}

// MemoryReport combines card OS memory usage with the GDDR description.
type MemoryReport struct {
	Usage *device.MemoryUsage `json:"usage"`
	Info  *device.MemoryInfo  `json:"info"`
}

// ProcessorReport combines the processor description with its cores.
type ProcessorReport struct {
	Processor *device.ProcessorInfo `json:"processor"`
	Cores     *device.CoreInfo      `json:"cores"`
}

// SmcRegisterValue is the content of one SMC register.
type SmcRegisterValue struct {
	Offset uint8  `json:"offset"`
	Size   int    `json:"size"`
	Access string `json:"access"`
	Data   string `json:"data"`
}

// LedState is the current LED mode.
type LedState struct {
	Mode     uint32 `json:"mode"`
	Identify bool   `json:"identify"`
}

// ListDevices returns every managed card.
func (ds *DeviceService) ListDevices() []*model.DeviceSummary {
	devices := ds.manager.List()
	summaries := make([]*model.DeviceSummary, 0, len(devices))
	for _, dev := range devices {
		summaries = append(summaries, ds.summary(dev))
	}
	return summaries
}

// GetDevice returns the summary of one card.
func (ds *DeviceService) GetDevice(index int) (*model.DeviceSummary, error) {
	dev, err := ds.manager.Get(index)
	if err != nil {
		return nil, err
	}
	return ds.summary(dev), nil
}

func (ds *DeviceService) summary(dev *device.Device) *model.DeviceSummary {
	summary := &model.DeviceSummary{
		Index:     dev.Index(),
		Name:      dev.Name(),
		Type:      dev.Type(),
		Status:    model.DeviceStatusClosed,
		LastError: dev.ErrorText(),
	}
	if dev.IsOpen() {
		summary.Status = model.DeviceStatusOpen
	}
	if card := ds.discovery.Card(dev.Index()); card != nil {
		summary.Family = card.Family
		summary.CardState = card.State
		summary.Mode = card.Mode
		summary.PostCode = card.PostCode
		if !dev.IsOpen() && !card.Online() {
			summary.Status = model.DeviceStatusOffline
		}
	}
	return summary
}

// OpenDevice opens the channels of one card.
func (ds *DeviceService) OpenDevice(ctx context.Context, index int) error {
	dev, err := ds.manager.Get(index)
	if err != nil {
		return err
	}
	if err := dev.Open(ctx); err != nil {
		ds.publishError(dev, "open", err)
		return fmt.Errorf("failed to open %s: %w", dev.Name(), err)
	}
	ds.eventBus.Publish(model.NewDeviceEvent(model.EventDeviceOpened, dev.Index(), dev.Name(), nil))
	return nil
}

// CloseDevice closes the channels of one card.
func (ds *DeviceService) CloseDevice(index int) error {
	dev, err := ds.manager.Get(index)
	if err != nil {
		return err
	}
	if err := dev.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dev.Name(), err)
	}
	ds.eventBus.Publish(model.NewDeviceEvent(model.EventDeviceClosed, dev.Index(), dev.Name(), nil))
	return nil
}

// OpenAll opens every closed card, logging failures.
func (ds *DeviceService) OpenAll(ctx context.Context) error {
	err := ds.manager.OpenAll(ctx)
	if err != nil {
		ds.logger.Warn("Some devices failed to open", zap.Error(err))
	}
	return err
}

// CloseAll closes every card.
func (ds *DeviceService) CloseAll() error {
	return ds.manager.CloseAll()
}

func (ds *DeviceService) publishError(dev *device.Device, operation string, err error) {
	code := micsdk.CodeOf(err)
	ds.eventBus.Publish(model.NewDeviceEvent(model.EventDeviceError, dev.Index(), dev.Name(), &model.DeviceErrorEventData{
		ResultCode:   fmt.Sprintf("0x%02x", uint32(code)),
		ErrorMessage: err.Error(),
		Operation:    operation,
	}))
}

// queryDevice runs fn against card index.
func queryDevice[T any](ds *DeviceService, index int, operation string, fn func(*device.Device) (T, error)) (T, error) {
	var zero T
	dev, err := ds.manager.Get(index)
	if err != nil {
		return zero, err
	}
	result, err := fn(dev)
	if err != nil {
		ds.logger.Debug("Device query failed",
			zap.String("device", dev.Name()),
			zap.String("operation", operation),
			zap.Error(err),
		)
		return zero, err
	}
	return result, nil
}

func (ds *DeviceService) Thermal(index int) (*device.ThermalInfo, error) {
	return queryDevice(ds, index, "thermal", (*device.Device).ThermalInfo)
}

func (ds *DeviceService) Voltage(index int) (*device.VoltageInfo, error) {
	return queryDevice(ds, index, "voltage", (*device.Device).VoltageInfo)
}

func (ds *DeviceService) Power(index int) (*device.PowerUsage, error) {
	return queryDevice(ds, index, "power", (*device.Device).PowerUsage)
}

func (ds *DeviceService) PowerThresholds(index int) (*device.PowerThresholds, error) {
	return queryDevice(ds, index, "power_thresholds", (*device.Device).PowerThresholds)
}

func (ds *DeviceService) Memory(index int) (*MemoryReport, error) {
	return queryDevice(ds, index, "memory", func(dev *device.Device) (*MemoryReport, error) {
		usage, err := dev.MemoryUsage()
		if err != nil {
			return nil, err
		}
		info, err := dev.MemoryInfo()
		if err != nil {
			return nil, err
		}
		return &MemoryReport{Usage: usage, Info: info}, nil
	})
}

func (ds *DeviceService) Processor(index int) (*ProcessorReport, error) {
	return queryDevice(ds, index, "processor", func(dev *device.Device) (*ProcessorReport, error) {
		processor, err := dev.ProcessorInfo()
		if err != nil {
			return nil, err
		}
		cores, err := dev.CoreInfo()
		if err != nil {
			return nil, err
		}
		return &ProcessorReport{Processor: processor, Cores: cores}, nil
	})
}

func (ds *DeviceService) CoreUsage(index int) (*device.CoreUsage, error) {
	return queryDevice(ds, index, "core_usage", (*device.Device).CoreUsage)
}

func (ds *DeviceService) Platform(index int) (*device.PlatformInfo, error) {
	return queryDevice(ds, index, "platform", (*device.Device).PlatformInfo)
}

func (ds *DeviceService) Led(index int) (*LedState, error) {
	return queryDevice(ds, index, "led", func(dev *device.Device) (*LedState, error) {
		mode, err := dev.LedMode()
		if err != nil {
			return nil, err
		}
		return &LedState{Mode: mode, Identify: mode == device.LedIdentify}, nil
	})
}

func (ds *DeviceService) Turbo(index int) (*device.TurboState, error) {
	return queryDevice(ds, index, "turbo", (*device.Device).TurboState)
}

func (ds *DeviceService) Smba(index int) (*device.SmbaStatus, error) {
	return queryDevice(ds, index, "smba", (*device.Device).SmbaStatus)
}

func (ds *DeviceService) Hardware(index int) (*device.HardwareInfo, error) {
	return queryDevice(ds, index, "hardware", (*device.Device).HardwareInfo)
}

func (ds *DeviceService) Fan(index int) (*device.FanStatus, error) {
	return queryDevice(ds, index, "fan", (*device.Device).FanStatus)
}

// ReadSmcRegister reads one SMC register.
func (ds *DeviceService) ReadSmcRegister(index int, offset uint8) (*SmcRegisterValue, error) {
	return queryDevice(ds, index, "smc_read", func(dev *device.Device) (*SmcRegisterValue, error) {
		data, err := dev.ReadSmcRegister(offset)
		if err != nil {
			return nil, err
		}
		_, mode, _ := device.RegisterSize(offset)
		return &SmcRegisterValue{
			Offset: offset,
			Size:   len(data),
			Access: mode.String(),
			Data:   hex.EncodeToString(data),
		}, nil
	})
}
