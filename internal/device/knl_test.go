// internal/device/knl_test.go
package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/ras"
	"micmgmt-service/internal/scif/sciftest"
	"micmgmt-service/internal/systoolsd"
	"micmgmt-service/pkg/micsdk"
)

type harness struct {
	dev     *Device
	control *sciftest.Channel
	monitor *sciftest.Channel
}

func newHarness(t *testing.T, withMonitor bool) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{control: sciftest.NewChannel(0)}

	var monitor MonitorClient
	if withMonitor {
		h.monitor = sciftest.NewChannel(0)
		monitor = ras.NewConnectionWithChannel(h.monitor, logger)
	}
	cfg := &Config{OpenRetries: 3, RetryDelay: time.Millisecond}
	h.dev = NewWithClients(0, systoolsd.NewConnectionWithChannel(h.control, logger), monitor, cfg, logger)
	return h
}

func encode[T systoolsd.Payload](t *testing.T, v T) []byte {
	t.Helper()
	data, err := systoolsd.Encode(v)
	require.NoError(t, err)
	return data
}

// reply scripts a systoolsd response header followed by its payload.
func (h *harness) reply(t *testing.T, cmd uint32, payload []byte) {
	t.Helper()
	header := systoolsd.Header{ReqType: uint16(cmd), Length: uint16(len(payload))}
	data, err := header.MarshalBinary()
	require.NoError(t, err)
	h.control.Queue(data)
	if len(payload) > 0 {
		h.control.Queue(payload)
	}
}

func (h *harness) smcReply(t *testing.T, data []byte) {
	t.Helper()
	header := systoolsd.Header{ReqType: uint16(systoolsd.ReadSmcReg), Length: uint16(len(data))}
	copy(header.Data[:], data)
	raw, err := header.MarshalBinary()
	require.NoError(t, err)
	h.control.Queue(raw)
}

func (h *harness) sentHeader(t *testing.T, i int) systoolsd.Header {
	t.Helper()
	sent := h.control.Sent()
	require.Greater(t, len(sent), i)
	var header systoolsd.Header
	require.NoError(t, header.UnmarshalBinary(sent[i]))
	return header
}

func TestOpenHandshake(t *testing.T) {
	h := newHarness(t, false)
	h.control.SetOpen(false)
	h.reply(t, systoolsd.GetSystoolsdInfo, encode(t, systoolsd.SystoolsdInfo{MajorVer: 2, MinorVer: 7}))

	require.NoError(t, h.dev.Open(context.Background()))

	assert.True(t, h.dev.IsOpen())
	assert.Equal(t, 1, h.control.OpenCount())
	assert.Equal(t, uint16(systoolsd.GetSystoolsdInfo), h.sentHeader(t, 0).ReqType)
	assert.Equal(t, "mic0", h.dev.Name())
	assert.Equal(t, "x200", h.dev.Type())
}

func TestOpenVersionMismatch(t *testing.T) {
	h := newHarness(t, false)
	h.control.SetOpen(false)
	h.reply(t, systoolsd.GetSystoolsdInfo, encode(t, systoolsd.SystoolsdInfo{MajorVer: 3, MinorVer: 7}))

	err := h.dev.Open(context.Background())

	assert.ErrorIs(t, err, micsdk.VersionMismatch)
	assert.False(t, h.dev.IsOpen())
	assert.Equal(t, 1, h.control.CloseCount())
}

func TestOpenHandshakeFailureLogsCloseError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	control := sciftest.NewChannel(0)
	control.SetOpen(false)
	control.CloseErr = errors.New("scif_close: bad descriptor")
	cfg := &Config{OpenRetries: 1, RetryDelay: time.Millisecond}
	dev := NewWithClients(0, systoolsd.NewConnectionWithChannel(control, zap.New(core)), nil, cfg, zap.New(core))

	payload := encode(t, systoolsd.SystoolsdInfo{MajorVer: 3, MinorVer: 7})
	header := systoolsd.Header{ReqType: uint16(systoolsd.GetSystoolsdInfo), Length: uint16(len(payload))}
	raw, err := header.MarshalBinary()
	require.NoError(t, err)
	control.Queue(raw, payload)

	assert.ErrorIs(t, dev.Open(context.Background()), micsdk.VersionMismatch)
	assert.False(t, dev.IsOpen())
	assert.Equal(t, 1, control.CloseCount())

	closeLogs := logs.FilterMessage("Failed to close control channel after handshake").All()
	require.Len(t, closeLogs, 1)
	assert.Equal(t, "scif_close: bad descriptor", closeLogs[0].ContextMap()["error"])
}

func TestOpenHandshakeIOError(t *testing.T) {
	h := newHarness(t, false)
	h.control.SetOpen(false)

	err := h.dev.Open(context.Background())

	assert.Equal(t, micsdk.DeviceIOError, micsdk.CodeOf(err))
	assert.False(t, h.dev.IsOpen())
}

func TestOpenRetriesThenFails(t *testing.T) {
	h := newHarness(t, false)
	h.control.SetOpen(false)
	h.control.OpenErr = micsdk.DeviceIOError

	err := h.dev.Open(context.Background())

	assert.Equal(t, micsdk.DeviceOpenFailed, micsdk.CodeOf(err))
	assert.Equal(t, 3, h.control.OpenCount())
	assert.Empty(t, h.control.Sent())
}

func TestOpenCancelledDuringRetryDelay(t *testing.T) {
	h := newHarness(t, false)
	h.dev.config.RetryDelay = time.Hour
	h.control.SetOpen(false)
	h.control.OpenErr = micsdk.DeviceIOError

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.dev.Open(ctx)

	assert.ErrorIs(t, err, micsdk.DeviceOpenFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, h.control.OpenCount())
}

func TestOpenAlreadyOpen(t *testing.T) {
	h := newHarness(t, false)
	assert.ErrorIs(t, h.dev.Open(context.Background()), micsdk.DeviceAlreadyOpen)
	assert.Zero(t, h.control.OpenCount())
}

func TestOpenMonitorBestEffort(t *testing.T) {
	h := newHarness(t, true)
	h.control.SetOpen(false)
	h.monitor.SetOpen(false)
	h.monitor.OpenErr = errors.New("no RAS")
	h.reply(t, systoolsd.GetSystoolsdInfo, encode(t, systoolsd.SystoolsdInfo{MajorVer: 2, MinorVer: 7}))

	require.NoError(t, h.dev.Open(context.Background()))

	_, err := h.dev.FanStatus()
	assert.ErrorIs(t, err, micsdk.DeviceNotOpen)
}

func TestCloseIsIdempotent(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.dev.Close())
	require.NoError(t, h.dev.Close())
	assert.Equal(t, 1, h.control.CloseCount())
}

func TestQueriesRequireOpenDevice(t *testing.T) {
	h := newHarness(t, false)
	h.control.SetOpen(false)

	_, err := h.dev.ThermalInfo()
	assert.Equal(t, micsdk.DeviceNotOpen, err)
	assert.Equal(t, micsdk.DeviceNotOpen, h.dev.SetLedMode(1))
	assert.Empty(t, h.control.Events())
}

func TestRequestFailureIsDeviceIOError(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetVoltageInfo, make([]byte, 4))

	_, err := h.dev.VoltageInfo()

	assert.Equal(t, micsdk.DeviceIOError, micsdk.CodeOf(err))
	assert.ErrorIs(t, err, micsdk.InternalError)
}

func TestThermalInfo(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetThermalInfo, encode(t, systoolsd.ThermalInfo{
		TempCPU:     55,
		TempExhaust: 40,
		TempEast:    33,
		FanTach:     0x00011234,
		FanPwm:      0xC0000050,
		FanPwmAdder: 0x00000105,
		Tcontrol:    90,
		Tcritical:   105,
	}))

	info, err := h.dev.ThermalInfo()
	require.NoError(t, err)

	require.Len(t, info.Sensors, 7)
	assert.Equal(t, "Die", info.Sensors[0].Name)
	assert.True(t, decimal.NewFromInt(55).Equal(info.Sensors[0].Value))
	assert.Equal(t, "East", info.Sensors[6].Name)
	assert.True(t, decimal.NewFromInt(0x1234).Equal(info.FanRPM.Value))
	assert.True(t, info.FanRPM.Valid)
	assert.False(t, info.FanPWM.Valid)
	assert.True(t, decimal.NewFromInt(5).Equal(info.FanAdder.Value))
	assert.True(t, decimal.NewFromInt(105).Equal(info.Critical.Value))
}

func TestVoltageAndPowerScaling(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetVoltageInfo, encode(t, systoolsd.VoltageInfo{VoltageVccp: 950, VoltageVpp: 2500}))
	h.reply(t, systoolsd.GetPowerUsage, encode(t, systoolsd.PowerUsageInfo{InstPower: 150000000, PowerNtb1: 1500}))

	volts, err := h.dev.VoltageInfo()
	require.NoError(t, err)
	require.Len(t, volts.Sensors, 12)
	assert.Equal(t, "0.95", volts.Sensors[0].Value.String())
	assert.Equal(t, "VPP", volts.Sensors[11].Name)
	assert.Equal(t, "2.5", volts.Sensors[11].Value.String())

	power, err := h.dev.PowerUsage()
	require.NoError(t, err)
	require.Len(t, power.Sensors, 12)
	assert.Equal(t, "Current", power.Sensors[4].Name)
	assert.Equal(t, "150", power.Sensors[4].Value.String())
	assert.Equal(t, "0.0015", power.Sensors[11].Value.String())
	assert.Equal(t, "W", power.Sensors[11].Unit)
}

func TestMemoryQueries(t *testing.T) {
	h := newHarness(t, false)
	info := systoolsd.MemoryInfo{TotalSize: 16384, EccEnabled: 1}
	copy(info.Manufacturer[:], "Micron")
	h.reply(t, systoolsd.GetMemoryInfo, encode(t, info))
	h.reply(t, systoolsd.GetMemoryUtilization, encode(t, systoolsd.MemoryUsageInfo{Total: 2, Free: 1}))

	mem, err := h.dev.MemoryInfo()
	require.NoError(t, err)
	assert.Equal(t, "Micron", mem.Vendor)
	assert.Equal(t, "MCDRAM", mem.Technology)
	assert.True(t, mem.ECC)

	usage, err := h.dev.MemoryUsage()
	require.NoError(t, err)
	assert.Equal(t, "2048", usage.Total.Value.String())
	assert.Equal(t, "1024", usage.Free.Value.String())
}

func TestCoreVoltageDecoding(t *testing.T) {
	tests := []struct {
		raw  uint8
		want uint32
	}{
		{0x80 | 12, 1200},
		{0x01, 5000},
		{0x02, 3300},
		{0x04, 2900},
		{0x06, 3300},
		{0x00, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coreVoltageMillivolts(tt.raw), "raw 0x%02x", tt.raw)
	}
}

func TestCoreUsage(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetCoresInfo, encode(t, systoolsd.CoresInfo{NumCores: 2, ThreadsPerCore: 2, CoresFreq: 1300}))

	payload := encode(t, systoolsd.CoreUsageInfo{NumCores: 2, ThreadsPerCore: 2, Ticks: 99, Frequency: 1300})
	for i := range 4 {
		payload = append(payload, encode(t, systoolsd.CoreCounters{User: uint64(i + 1), Total: 10})...)
	}
	h.reply(t, systoolsd.GetCoreUsage, payload)

	usage, err := h.dev.CoreUsage()
	require.NoError(t, err)

	assert.Equal(t, uint64(99), usage.TickCount)
	require.Len(t, usage.Threads, 4)
	assert.Equal(t, uint64(4), usage.Threads[3].User)
	assert.Equal(t, 66+4*40, h.control.ReceiveSizes()[3])
}

func TestCoreUsageZeroCores(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetCoresInfo, encode(t, systoolsd.CoresInfo{}))

	_, err := h.dev.CoreUsage()

	assert.ErrorIs(t, err, micsdk.InternalError)
	assert.Len(t, h.control.Sent(), 1)
}

func TestCoreUsageThreadMismatch(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetCoresInfo, encode(t, systoolsd.CoresInfo{NumCores: 1, ThreadsPerCore: 2}))
	payload := encode(t, systoolsd.CoreUsageInfo{NumCores: 1, ThreadsPerCore: 1})
	payload = append(payload, make([]byte, 2*40)...)
	h.reply(t, systoolsd.GetCoreUsage, payload)

	_, err := h.dev.CoreUsage()

	assert.ErrorIs(t, err, micsdk.InternalError)
}

func TestPlatformInfo(t *testing.T) {
	h := newHarness(t, false)
	info := systoolsd.DeviceInfo{
		BootFwVersion: 0x01020003,
		FwVersion:     0x030a0001,
		HwRevision:    0x00010102,
	}
	copy(info.SerialNo[:], "QSKL12345678")
	copy(info.PartNumber[:], "ABCDEFGHIJKL")
	h.reply(t, systoolsd.GetDeviceInfo, encode(t, info))

	platform, err := h.dev.PlatformInfo()
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", platform.SmcBootFirmware)
	assert.Equal(t, "3.10.1", platform.SmcFirmware)
	assert.Equal(t, "QSKL12345678", platform.SerialNumber)
	assert.Equal(t, "ABCDEFGH", platform.PartNumber)
	assert.Equal(t, "RPRD Fab B 300W", platform.FeatureSet)
}

func TestLedMode(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.SetLedBlink, nil)
	h.reply(t, systoolsd.GetDiagnosticsInfo, encode(t, systoolsd.DiagnosticsInfo{LedBlink: 1}))

	require.NoError(t, h.dev.SetLedMode(0xff))
	header := h.sentHeader(t, 0)
	assert.Equal(t, uint16(systoolsd.SetLedBlink), header.ReqType)
	assert.Equal(t, []byte{1, 0, 0, 0}, header.Data[:4])

	mode, err := h.dev.LedMode()
	require.NoError(t, err)
	assert.Equal(t, LedIdentify, mode)
}

func TestTurbo(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetTurboInfo, encode(t, systoolsd.TurboInfo{Enabled: 1, TurboPct: 0}))
	h.reply(t, systoolsd.SetTurbo, nil)

	state, err := h.dev.TurboState()
	require.NoError(t, err)
	assert.True(t, state.Enabled)
	assert.True(t, state.Available)
	assert.False(t, state.Active)

	require.NoError(t, h.dev.SetTurboEnabled(true))
	header := h.sentHeader(t, 1)
	assert.Equal(t, []byte{1, 0, 0, 0}, header.Data[:4])
}

func TestSetPowerThreshold(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.SetPthreshW1, nil)
	h.reply(t, systoolsd.SetPthreshW1, nil)

	require.NoError(t, h.dev.SetPowerThreshold(Window1, 200000000, 61<<4))

	header := h.sentHeader(t, 0)
	assert.Equal(t, uint16(systoolsd.SetPthreshW1), header.ReqType)
	assert.Equal(t, uint16(8), header.Length)
	assert.Equal(t, encode(t, systoolsd.PowerWindowInfo{Threshold: 200000000, TimeWindow: 61 << 4}), h.control.Sent()[1])
}

func TestSetPowerThresholdValidation(t *testing.T) {
	h := newHarness(t, false)

	assert.ErrorIs(t, h.dev.SetPowerThreshold(PowerWindow(2), 1, 61<<4), micsdk.InvalidArg)
	assert.ErrorIs(t, h.dev.SetPowerThreshold(Window0, 1, (61<<4)-1), micsdk.InvalidArg)
	assert.Empty(t, h.control.Events())
}

func TestRestartSmba(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetSmbaInfo, encode(t, systoolsd.SmbaInfo{}))
	h.reply(t, systoolsd.RestartSmba, nil)

	require.NoError(t, h.dev.RestartSmba(context.Background(), 0x1234))
	header := h.sentHeader(t, 1)
	assert.Equal(t, []byte{0x34, 0, 0, 0}, header.Data[:4])
}

func TestRestartSmbaBusy(t *testing.T) {
	h := newHarness(t, false)
	h.reply(t, systoolsd.GetSmbaInfo, encode(t, systoolsd.SmbaInfo{IsBusy: 1, MsRemaining: 1200}))

	err := h.dev.RestartSmba(context.Background(), 0)

	assert.ErrorIs(t, err, micsdk.DeviceBusy)
	assert.Len(t, h.control.Sent(), 1)
}

func TestMonitorQueries(t *testing.T) {
	h := newHarness(t, true)

	fan := []byte{0x10, 0x27, 80, 0, ras.ValueValid, ras.ValueUnknown}
	header := ras.Header{Cmd: uint16(ras.ReqFan) | ras.RespBit, Len: uint16(len(fan))}
	raw, err := header.MarshalBinary()
	require.NoError(t, err)
	h.monitor.Queue(raw, fan)

	status, err := h.dev.FanStatus()
	require.NoError(t, err)
	assert.Equal(t, uint16(10000), status.RPM)
	assert.Equal(t, uint8(80), status.PWM)
	assert.True(t, status.RPMValid)
	assert.False(t, status.PWMValid)
}

func TestMonitorDisabled(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.dev.HardwareInfo()
	assert.ErrorIs(t, err, micsdk.NotSupported)
}

func TestConfigFromSettings(t *testing.T) {
	settings := &config.Config{}
	settings.Device.OpenRetries = 5
	settings.Device.RetryDelay = time.Second
	settings.Device.EnableRAS = true
	settings.SCIF.LibraryName = "libscif"
	settings.SCIF.LibraryVersion = 0
	settings.SCIF.BindMode = "ephemeral"

	cfg := ConfigFromSettings(settings, true)

	assert.Equal(t, 5, cfg.OpenRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.True(t, cfg.EnableRAS)
	assert.Equal(t, "libscif", cfg.SCIF.LibraryName)
	assert.False(t, cfg.SCIF.PrivilegedBind)
}
