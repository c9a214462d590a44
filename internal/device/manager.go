// internal/device/manager.go
package device

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"micmgmt-service/pkg/micsdk"
)

// Factory creates the device for a card index.
type Factory func(index int, config *Config, logger *zap.Logger) *Device

// Manager keeps one Device per installed card.
type Manager struct {
	devices map[int]*Device
	factory Factory
	config  *Config
	mu      sync.RWMutex
	logger  *zap.Logger
}

// NewManager creates an empty manager that builds devices with New.
func NewManager(config *Config, logger *zap.Logger) *Manager {
	if config == nil {
		config = DefaultConfig()
	}
	return &Manager{
		devices: make(map[int]*Device),
		factory: New,
		config:  config,
		logger:  logger.With(zap.String("component", "device_manager")),
	}
}

// SetFactory replaces the constructor used for newly registered cards.
func (m *Manager) SetFactory(factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factory = factory
}

// Register adds card index if it is not known yet and returns its device.
func (m *Manager) Register(index int) (*Device, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: %d", micsdk.InvalidDeviceNumber, index)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if dev, exists := m.devices[index]; exists {
		return dev, nil
	}
	dev := m.factory(index, m.config, m.logger)
	m.devices[index] = dev
	m.logger.Info("Device registered",
		zap.String("device", dev.Name()),
		zap.String("device_type", dev.Type()),
	)
	return dev, nil
}

// Sync registers every index in present and closes and forgets cards that
// disappeared. It returns the indices that were removed.
func (m *Manager) Sync(present []int) []int {
	for _, index := range present {
		if _, err := m.Register(index); err != nil {
			m.logger.Warn("Skipping card", zap.Int("index", index), zap.Error(err))
		}
	}

	m.mu.Lock()
	var gone []*Device
	for index, dev := range m.devices {
		if !slices.Contains(present, index) {
			gone = append(gone, dev)
			delete(m.devices, index)
		}
	}
	m.mu.Unlock()

	removed := make([]int, 0, len(gone))
	for _, dev := range gone {
		if err := dev.Close(); err != nil {
			m.logger.Warn("Failed to close removed device", zap.String("device", dev.Name()), zap.Error(err))
		}
		m.logger.Info("Device removed", zap.String("device", dev.Name()))
		removed = append(removed, dev.Index())
	}
	slices.Sort(removed)
	return removed
}

// Get returns the device for card index.
func (m *Manager) Get(index int) (*Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dev, exists := m.devices[index]
	if !exists {
		return nil, fmt.Errorf("%w: mic%d", micsdk.NoSuchDevice, index)
	}
	return dev, nil
}

// List returns all devices ordered by index.
func (m *Manager) List() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()

	devices := make([]*Device, 0, len(m.devices))
	for _, dev := range m.devices {
		devices = append(devices, dev)
	}
	slices.SortFunc(devices, func(a, b *Device) int { return a.Index() - b.Index() })
	return devices
}

// OpenAll opens every closed device. Failures are collected, not fatal.
func (m *Manager) OpenAll(ctx context.Context) error {
	var errs []error
	for _, dev := range m.List() {
		if dev.IsOpen() {
			continue
		}
		if err := dev.Open(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to open %s: %w", dev.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// CloseAll closes every device.
func (m *Manager) CloseAll() error {
	var errs []error
	for _, dev := range m.List() {
		if err := dev.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", dev.Name(), err))
		}
	}
	return errors.Join(errs...)
}
