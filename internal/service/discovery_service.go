// internal/service/discovery_service.go
package service

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/device"
	"micmgmt-service/internal/discovery"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/utils"
)

// DiscoveryService keeps the device manager in step with the installed cards.
type DiscoveryService struct {
	scanner  discovery.CardScanner
	manager  *device.Manager
	eventBus *EventBus
	config   *config.Config
	logger   *utils.ServiceLogger

	cards map[int]*discovery.DiscoveredCard
	mutex sync.RWMutex
}

// SyncResult lists the card indices a sync added and removed.
type SyncResult struct {
	Present []int `json:"present"`
	Added   []int `json:"added"`
	Removed []int `json:"removed"`
}

// NewDiscoveryService creates a new discovery service
func NewDiscoveryService(
	scanner discovery.CardScanner,
	manager *device.Manager,
	eventBus *EventBus,
	config *config.Config,
	logger *zap.Logger,
) *DiscoveryService {
	return &DiscoveryService{
		scanner:  scanner,
		manager:  manager,
		eventBus: eventBus,
		config:   config,
		logger:   utils.NewServiceLogger(logger, "discovery-service"),
		cards:    make(map[int]*discovery.DiscoveredCard),
	}
}

// Sync enumerates the cards and registers or forgets devices accordingly.
// A configured device list takes precedence over sysfs enumeration.
func (ds *DiscoveryService) Sync(ctx context.Context) (*SyncResult, error) {
	present, err := ds.presentCards(ctx)
	if err != nil {
		return nil, err
	}

	var known []int
	for _, dev := range ds.manager.List() {
		known = append(known, dev.Index())
	}

	removed := ds.manager.Sync(present)
	result := &SyncResult{Present: present, Removed: removed}
	for _, index := range present {
		if !slices.Contains(known, index) {
			result.Added = append(result.Added, index)
		}
	}

	for _, index := range result.Added {
		ds.eventBus.Publish(model.NewDeviceEvent(model.EventDeviceAdded, index, deviceName(index), ds.Card(index)))
	}
	for _, index := range result.Removed {
		ds.eventBus.Publish(model.NewDeviceEvent(model.EventDeviceRemoved, index, deviceName(index), nil))
	}

	if len(result.Added) > 0 || len(result.Removed) > 0 {
		ds.logger.Info("Card set changed",
			zap.Ints("present", present),
			zap.Ints("added", result.Added),
			zap.Ints("removed", result.Removed),
		)
	}
	return result, nil
}

func (ds *DiscoveryService) presentCards(ctx context.Context) ([]int, error) {
	cards, err := ds.scanner.Scan(ctx)
	if err != nil && len(ds.config.Device.Devices) == 0 {
		return nil, fmt.Errorf("failed to scan cards: %w", err)
	}
	if err != nil {
		ds.logger.Warn("Card scan failed, using configured device list", zap.Error(err))
	}

	ds.mutex.Lock()
	ds.cards = make(map[int]*discovery.DiscoveredCard, len(cards))
	for _, card := range cards {
		ds.cards[card.Index] = card
	}
	ds.mutex.Unlock()

	if len(ds.config.Device.Devices) > 0 {
		present := slices.Clone(ds.config.Device.Devices)
		slices.Sort(present)
		return slices.Compact(present), nil
	}
	return discovery.Indices(cards), nil
}

// DriverLoaded reports whether the host driver registered its device class.
func (ds *DiscoveryService) DriverLoaded() bool {
	return ds.scanner.IsAvailable()
}

// Card returns the last scanned sysfs entry for index, or nil.
func (ds *DiscoveryService) Card(index int) *discovery.DiscoveredCard {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()
	return ds.cards[index]
}

// Cards returns the last scan ordered by index.
func (ds *DiscoveryService) Cards() []*discovery.DiscoveredCard {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	cards := make([]*discovery.DiscoveredCard, 0, len(ds.cards))
	for _, card := range ds.cards {
		cards = append(cards, card)
	}
	slices.SortFunc(cards, func(a, b *discovery.DiscoveredCard) int { return a.Index - b.Index })
	return cards
}

func deviceName(index int) string {
	return fmt.Sprintf("mic%d", index)
}
