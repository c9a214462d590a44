// internal/service/fixture_test.go
package service

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/device"
	"micmgmt-service/internal/discovery"
	"micmgmt-service/internal/model"
	"micmgmt-service/internal/repository"
	"micmgmt-service/internal/scif/sciftest"
	"micmgmt-service/internal/systoolsd"
)

type fixture struct {
	cfg        *config.Config
	sysfs      string
	manager    *device.Manager
	bus        *EventBus
	discovery  *DiscoveryService
	devices    *DeviceService
	operations *OperationService
	sampler    *Sampler
	telemetry  *repository.MemoryTelemetryRepository
	opRepo     *repository.MemoryOperationRepository

	mu       sync.Mutex
	channels map[int]*sciftest.Channel
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Device.OpenRetries = 1
	cfg.Device.RetryDelay = time.Millisecond
	cfg.Device.SampleInterval = time.Second
	cfg.Device.ScanInterval = time.Second
	cfg.Database.Retention = time.Hour
	return cfg
}

// newFixture builds the service graph over scripted channels. Every listed
// card gets an "online" sysfs entry and starts with an open channel.
func newFixture(t *testing.T, cards ...int) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	f := &fixture{
		cfg:       testConfig(),
		sysfs:     t.TempDir(),
		bus:       NewEventBus(logger),
		telemetry: repository.NewMemoryTelemetryRepository(0),
		opRepo:    repository.NewMemoryOperationRepository(),
		channels:  make(map[int]*sciftest.Channel),
	}
	require.NoError(t, os.MkdirAll(filepath.Join(f.sysfs, "class", "mic"), 0o755))
	for _, index := range cards {
		f.addCard(t, index)
	}

	f.manager = device.NewManager(&device.Config{OpenRetries: 1, RetryDelay: time.Millisecond}, logger)
	f.manager.SetFactory(func(index int, cfg *device.Config, logger *zap.Logger) *device.Device {
		ch := sciftest.NewChannel(index)
		f.mu.Lock()
		f.channels[index] = ch
		f.mu.Unlock()
		return device.NewWithClients(index, systoolsd.NewConnectionWithChannel(ch, logger), nil, cfg, logger)
	})

	scanner := discovery.NewSysfsScanner(f.sysfs, logger)
	f.discovery = NewDiscoveryService(scanner, f.manager, f.bus, f.cfg, logger)
	f.devices = NewDeviceService(f.manager, f.discovery, f.bus, f.cfg, logger)
	f.operations = NewOperationService(f.manager, f.opRepo, f.bus, f.cfg, logger)
	f.sampler = NewSampler(f.manager, f.discovery, f.devices, f.telemetry, f.opRepo, f.bus, f.cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go f.bus.Start(ctx)

	_, err := f.discovery.Sync(ctx)
	require.NoError(t, err)
	return f
}

func (f *fixture) addCard(t *testing.T, index int) {
	t.Helper()
	dir := filepath.Join(f.sysfs, "class", "mic", "mic"+strconv.Itoa(index))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "state"), []byte("online\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "family"), []byte("x200\n"), 0o644))
}

func (f *fixture) removeCard(t *testing.T, index int) {
	t.Helper()
	require.NoError(t, os.RemoveAll(filepath.Join(f.sysfs, "class", "mic", "mic"+strconv.Itoa(index))))
}

func (f *fixture) channel(index int) *sciftest.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[index]
}

// reply scripts a systoolsd response on card index.
func (f *fixture) reply(t *testing.T, index int, cmd uint32, payload []byte) {
	t.Helper()
	header := systoolsd.Header{ReqType: uint16(cmd), Length: uint16(len(payload))}
	raw, err := header.MarshalBinary()
	require.NoError(t, err)
	f.channel(index).Queue(raw)
	if len(payload) > 0 {
		f.channel(index).Queue(payload)
	}
}

func (f *fixture) replySensors(t *testing.T, index int) {
	t.Helper()
	thermal, err := systoolsd.Encode(systoolsd.ThermalInfo{TempCPU: 60, FanTach: 3000, FanPwm: 40})
	require.NoError(t, err)
	power, err := systoolsd.Encode(systoolsd.PowerUsageInfo{PwrPcie: 75000000, InstPower: 120500000})
	require.NoError(t, err)
	f.reply(t, index, systoolsd.GetThermalInfo, thermal)
	f.reply(t, index, systoolsd.GetPowerUsage, power)
}

func waitEvent(t *testing.T, events <-chan model.DeviceEvent, eventType model.EventType) model.DeviceEvent {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case event, ok := <-events:
			require.True(t, ok, "event channel closed")
			if event.EventType == eventType {
				return event
			}
		case <-timeout:
			t.Fatalf("no %s event received", eventType)
			return model.DeviceEvent{}
		}
	}
}
