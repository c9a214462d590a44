// internal/service/sampler.go
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/device"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/repository"
	"micmgmt-service/internal/utils"
)

const pruneInterval = time.Hour

// Sampler periodically reads thermal and power sensors of every open card,
// stores the readings and broadcasts them.
type Sampler struct {
	manager       *device.Manager
	discovery     *DiscoveryService
	devices       *DeviceService
	telemetryRepo repository.TelemetryRepository
	operationRepo repository.OperationRepository
	eventBus      *EventBus
	config        *config.Config
	logger        *utils.ServiceLogger
}

// NewSampler creates a new sampler
func NewSampler(
	manager *device.Manager,
	discovery *DiscoveryService,
	devices *DeviceService,
	telemetryRepo repository.TelemetryRepository,
	operationRepo repository.OperationRepository,
	eventBus *EventBus,
	config *config.Config,
	logger *zap.Logger,
) *Sampler {
	return &Sampler{
		manager:       manager,
		discovery:     discovery,
		devices:       devices,
		telemetryRepo: telemetryRepo,
		operationRepo: operationRepo,
		eventBus:      eventBus,
		config:        config,
		logger:        utils.NewServiceLogger(logger, "sampler"),
	}
}

// Run samples, rescans and prunes on their intervals until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	sampleTicker := time.NewTicker(s.config.Device.SampleInterval)
	defer sampleTicker.Stop()
	scanTicker := time.NewTicker(s.config.Device.ScanInterval)
	defer scanTicker.Stop()
	pruneTicker := time.NewTicker(pruneInterval)
	defer pruneTicker.Stop()

	s.logger.Info("Sampler started",
		zap.Duration("sample_interval", s.config.Device.SampleInterval),
		zap.Duration("scan_interval", s.config.Device.ScanInterval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sampler stopped")
			return
		case <-sampleTicker.C:
			s.SampleAll(ctx)
		case <-scanTicker.C:
			s.rescan(ctx)
		case <-pruneTicker.C:
			s.Prune(ctx)
		}
	}
}

func (s *Sampler) rescan(ctx context.Context) {
	result, err := s.discovery.Sync(ctx)
	if err != nil {
		s.logger.Warn("Card rescan failed", zap.Error(err))
		return
	}
	if !s.config.Device.OpenOnStart {
		return
	}
	for _, index := range result.Added {
		if err := s.devices.OpenDevice(ctx, index); err != nil {
			s.logger.Warn("Failed to open new card", zap.Int("index", index), zap.Error(err))
		}
	}
}

// SampleAll samples every open card once and returns the stored samples.
func (s *Sampler) SampleAll(ctx context.Context) []*model.TelemetrySample {
	started := time.Now()

	var all []*model.TelemetrySample
	for _, dev := range s.manager.List() {
		if ctx.Err() != nil {
			break
		}
		if !dev.IsOpen() {
			continue
		}
		samples, err := s.SampleDevice(dev)
		if err != nil {
			s.devices.publishError(dev, "sample", err)
			s.logger.Warn("Failed to sample device", zap.String("device", dev.Name()), zap.Error(err))
		}
		if len(samples) == 0 {
			continue
		}
		s.eventBus.Publish(model.NewDeviceEvent(model.EventTelemetrySample, dev.Index(), dev.Name(),
			&model.TelemetryEventData{Samples: samples}))
		all = append(all, samples...)
	}

	if err := s.telemetryRepo.InsertBatch(ctx, all); err != nil {
		s.logger.Error("Failed to store samples", zap.Error(err))
	}

	s.logger.Debug("Sampling cycle completed",
		zap.Int("samples", len(all)),
		zap.Duration("duration", time.Since(started)),
	)
	return all
}

// SampleDevice reads the thermal and power sensors of one card. Samples
// read before a failing query are still returned.
func (s *Sampler) SampleDevice(dev *device.Device) ([]*model.TelemetrySample, error) {
	now := time.Now()
	var samples []*model.TelemetrySample
	add := func(readings ...device.Sample) {
		for _, r := range readings {
			samples = append(samples, &model.TelemetrySample{
				ID:          uuid.New(),
				DeviceIndex: dev.Index(),
				DeviceName:  dev.Name(),
				Sensor:      r.Name,
				Value:       r.Value,
				Unit:        r.Unit,
				Valid:       r.Valid,
				SampledAt:   now,
			})
		}
	}

	thermal, err := dev.ThermalInfo()
	if err != nil {
		return samples, fmt.Errorf("failed to sample thermal info: %w", err)
	}
	add(thermal.Sensors...)
	add(thermal.FanRPM, thermal.FanPWM)

	power, err := dev.PowerUsage()
	if err != nil {
		return samples, fmt.Errorf("failed to sample power usage: %w", err)
	}
	add(power.Sensors...)

	return samples, nil
}

// History returns stored samples.
func (s *Sampler) History(ctx context.Context, filter *repository.SampleFilter) ([]*model.TelemetrySample, error) {
	samples, err := s.telemetryRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	return samples, nil
}

// Prune deletes samples and operations older than the retention period.
func (s *Sampler) Prune(ctx context.Context) {
	retention := s.config.Database.Retention
	if retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-retention)

	samples, err := s.telemetryRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to prune samples", zap.Error(err))
	}
	operations, err := s.operationRepo.DeleteOldOperations(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to prune operations", zap.Error(err))
	}
	if samples > 0 || operations > 0 {
		s.logger.Info("Pruned old records",
			zap.Int64("samples", samples),
			zap.Int64("operations", operations),
			zap.Time("cutoff", cutoff),
		)
	}
}
