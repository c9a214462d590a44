// internal/device/knl.go
package device

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"micmgmt-service/internal/config"
	"micmgmt-service/internal/ras"
	"micmgmt-service/internal/scif"
	"micmgmt-service/internal/systoolsd"
	"micmgmt-service/internal/utils"
	"micmgmt-service/pkg/micsdk"
)

// DeviceType is the family string reported for Knights Landing cards.
const DeviceType = "x200"

// LED modes accepted by SetLedMode.
const (
	LedNormal   uint32 = 0
	LedIdentify uint32 = 1
	ledModeMask uint32 = 0x1
)

// PowerWindow selects one of the two power threshold windows.
type PowerWindow int

const (
	Window0 PowerWindow = 0
	Window1 PowerWindow = 1
)

// ControlClient is the systoolsd surface the device model uses.
type ControlClient interface {
	Open() error
	Close() error
	IsOpen() bool
	ErrorText() string
	Request(req *scif.Request) error
	SmcRequest(req *scif.Request) error
}

// MonitorClient is the RAS surface the device model uses.
type MonitorClient interface {
	Open() error
	Close() error
	IsOpen() bool
	ErrorText() string
	Request(req *scif.Request) error
}

// Config holds per card connection settings
type Config struct {
	OpenRetries int           `json:"open_retries"`
	RetryDelay  time.Duration `json:"retry_delay"`
	EnableRAS   bool          `json:"enable_ras"`
	SmbaWait    time.Duration `json:"smba_wait"`
	SCIF        *scif.Config  `json:"scif"`
}

// DefaultConfig returns the settings the card firmware expects: systoolsd
// can take a moment to come up after a reboot.
func DefaultConfig() *Config {
	return &Config{
		OpenRetries: 3,
		RetryDelay:  300 * time.Millisecond,
		SCIF:        scif.DefaultConfig(),
	}
}

// ConfigFromSettings builds the device configuration from the service
// settings. isRoot resolves the "auto" bind mode.
func ConfigFromSettings(cfg *config.Config, isRoot bool) *Config {
	return &Config{
		OpenRetries: cfg.Device.OpenRetries,
		RetryDelay:  cfg.Device.RetryDelay,
		EnableRAS:   cfg.Device.EnableRAS,
		SmbaWait:    cfg.Device.SmbaWait,
		SCIF: &scif.Config{
			LibraryName:    cfg.SCIF.LibraryName,
			LibraryVersion: cfg.SCIF.LibraryVersion,
			PrivilegedBind: cfg.PrivilegedBind(isRoot),
		},
	}
}

// Device is one KNL coprocessor reached over systoolsd and, optionally, RAS.
type Device struct {
	index     int
	config    *Config
	control   ControlClient
	monitor   MonitorClient
	logger    *utils.CardLogger
	registers RegisterLookup
	mutex     sync.Mutex
}

// New creates a device bound to card index using the SCIF transport.
func New(index int, config *Config, logger *zap.Logger) *Device {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var monitor MonitorClient
	if config.EnableRAS {
		monitor = ras.NewConnection(index, config.SCIF, logger)
	}
	return NewWithClients(index, systoolsd.NewConnection(index, config.SCIF, logger), monitor, config, logger)
}

// NewWithClients creates a device over existing protocol clients. monitor may
// be nil, in which case RAS queries report NotSupported.
func NewWithClients(index int, control ControlClient, monitor MonitorClient, config *Config, logger *zap.Logger) *Device {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Device{
		index:     index,
		config:    config,
		control:   control,
		monitor:   monitor,
		logger:    utils.NewCardLogger(logger, index),
		registers: RegisterSize,
	}
}

func (d *Device) Index() int {
	return d.index
}

// Name returns the card name, e.g. "mic0".
func (d *Device) Name() string {
	return fmt.Sprintf("mic%d", d.index)
}

func (d *Device) Type() string {
	return DeviceType
}

func (d *Device) IsOpen() bool {
	return d.control.IsOpen()
}

// ErrorText returns the last protocol diagnostic of the control channel.
func (d *Device) ErrorText() string {
	return d.control.ErrorText()
}

// Open connects to systoolsd, retrying while the daemon starts, and verifies
// the protocol version. The RAS channel is opened best effort afterwards.
func (d *Device) Open(ctx context.Context) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.control.IsOpen() {
		return micsdk.DeviceAlreadyOpen
	}

	retries := max(d.config.OpenRetries, 1)
	attempts := 0
	var err error
retry:
	for attempts < retries {
		attempts++
		if err = d.control.Open(); err == nil {
			break
		}
		d.logger.Debug("Open attempt failed",
			zap.Int("attempt", attempts),
			zap.String("error_text", d.control.ErrorText()),
			zap.Error(err))
		if attempts == retries {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		case <-time.After(d.config.RetryDelay):
		}
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", micsdk.DeviceOpenFailed, err)
		d.logger.LogOpen(attempts, err)
		return err
	}

	if err := d.handshake(); err != nil {
		if closeErr := d.control.Close(); closeErr != nil {
			d.logger.Warn("Failed to close control channel after handshake", zap.Error(closeErr))
		}
		d.logger.LogOpen(attempts, err)
		return err
	}

	if d.monitor != nil {
		if err := d.monitor.Open(); err != nil {
			d.logger.Warn("RAS channel unavailable",
				zap.String("error_text", d.monitor.ErrorText()),
				zap.Error(err))
		}
	}

	d.logger.LogOpen(attempts, nil)
	return nil
}

func (d *Device) handshake() error {
	info, err := query[systoolsd.SystoolsdInfo](d.control, systoolsd.GetSystoolsdInfo, "query systoolsd version")
	if err != nil {
		return err
	}
	if info.MajorVer != systoolsd.MajorVersion || info.MinorVer != systoolsd.MinorVersion {
		return fmt.Errorf("%w: card runs systoolsd %d.%d, host speaks %d.%d", micsdk.VersionMismatch,
			info.MajorVer, info.MinorVer, systoolsd.MajorVersion, systoolsd.MinorVersion)
	}
	return nil
}

// Close releases both channels. Closing a closed device is a no-op.
func (d *Device) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.monitor != nil && d.monitor.IsOpen() {
		if err := d.monitor.Close(); err != nil {
			d.logger.Warn("Failed to close RAS channel", zap.Error(err))
		}
	}
	if !d.control.IsOpen() {
		return nil
	}
	err := d.control.Close()
	d.logger.LogClose(err)
	return err
}

func (d *Device) ensureOpen() error {
	if !d.control.IsOpen() {
		return micsdk.DeviceNotOpen
	}
	return nil
}

func ioError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, micsdk.DeviceIOError, err)
}

// query issues a fixed size systoolsd query and decodes the reply.
func query[T systoolsd.Payload](c ControlClient, cmd uint32, op string) (T, error) {
	var zero T
	buf := make([]byte, systoolsd.SizeOf[T]())
	if err := c.Request(scif.NewQuery(cmd, 0, buf)); err != nil {
		return zero, ioError(op, err)
	}
	v, err := systoolsd.Decode[T](buf)
	if err != nil {
		return zero, fmt.Errorf("%w: %w", micsdk.InternalError, err)
	}
	return v, nil
}

// ThermalInfo holds die and board temperatures plus fan state.
type ThermalInfo struct {
	Sensors  []Sample `json:"sensors"`
	FanRPM   Sample   `json:"fan_rpm"`
	FanPWM   Sample   `json:"fan_pwm"`
	FanAdder Sample   `json:"fan_adder"`
	Control  Sample   `json:"control"`
	Critical Sample   `json:"critical"`
}

func (d *Device) ThermalInfo() (*ThermalInfo, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	t, err := query[systoolsd.ThermalInfo](d.control, systoolsd.GetThermalInfo, "query thermal info")
	if err != nil {
		return nil, err
	}

	raw := []uint32{t.TempCPU, t.TempExhaust, t.TempVccp, t.TempVccclr, t.TempVccmp, t.TempWest, t.TempEast}
	info := &ThermalInfo{
		Sensors:  make([]Sample, len(raw)),
		FanRPM:   fanReading("Fan RPM", t.FanTach, 0xFFFF, "rpm"),
		FanPWM:   fanReading("Fan PWM", t.FanPwm, 0xFF, "%"),
		FanAdder: fanReading("Fan PWM Adder", t.FanPwmAdder, 0xFF, "%"),
		Control:  celsius("Control", t.Tcontrol),
		Critical: celsius("Critical", t.Tcritical),
	}
	for i, v := range raw {
		info.Sensors[i] = celsius(temperatureSensors[i], v)
	}
	return info, nil
}

// VoltageInfo lists rail voltages.
type VoltageInfo struct {
	Sensors []Sample `json:"sensors"`
}

func (d *Device) VoltageInfo() (*VoltageInfo, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	v, err := query[systoolsd.VoltageInfo](d.control, systoolsd.GetVoltageInfo, "query voltage info")
	if err != nil {
		return nil, err
	}

	raw := []uint32{v.VoltageVccp, v.VoltageVccu, v.VoltageVccclr, v.VoltageVccmlb, v.VoltageVccmp,
		v.VoltageNtb1, v.VoltageVccpio, v.VoltageVccsfr, v.VoltagePch, v.VoltageVccmfuse,
		v.VoltageNtb2, v.VoltageVpp}
	info := &VoltageInfo{Sensors: make([]Sample, len(raw))}
	for i, mv := range raw {
		info.Sensors[i] = millivolts(voltageSensors[i], mv)
	}
	return info, nil
}

// PowerUsage lists connector and rail power draw.
type PowerUsage struct {
	Sensors []Sample `json:"sensors"`
}

func (d *Device) PowerUsage() (*PowerUsage, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := query[systoolsd.PowerUsageInfo](d.control, systoolsd.GetPowerUsage, "query power usage")
	if err != nil {
		return nil, err
	}

	raw := []uint32{p.PwrPcie, p.Pwr2x3, p.Pwr2x4, p.AvgPower0, p.InstPower, p.InstPowerMax,
		p.PowerVccp, p.PowerVccu, p.PowerVccclr, p.PowerVccmlb, p.PowerVccmp, p.PowerNtb1}
	usage := &PowerUsage{Sensors: make([]Sample, len(raw))}
	for i, uw := range raw {
		usage.Sensors[i] = microwatts(powerSensors[i], uw)
	}
	return usage, nil
}

// PowerWindowThreshold is one power limit window.
type PowerWindowThreshold struct {
	Threshold  Sample `json:"threshold"`
	TimeWindow uint32 `json:"time_window_us"`
}

// PowerThresholds holds the card power limits.
type PowerThresholds struct {
	Maximum Sample               `json:"maximum"`
	Low     Sample               `json:"low"`
	High    Sample               `json:"high"`
	Window0 PowerWindowThreshold `json:"window0"`
	Window1 PowerWindowThreshold `json:"window1"`
}

func (d *Device) PowerThresholds() (*PowerThresholds, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := query[systoolsd.PowerThresholdsInfo](d.control, systoolsd.GetPthreshInfo, "query power thresholds")
	if err != nil {
		return nil, err
	}
	return &PowerThresholds{
		Maximum: microwatts("Maximum", p.MaxPhysPower),
		Low:     microwatts("Low", p.LowThreshold),
		High:    microwatts("High", p.HiThreshold),
		Window0: PowerWindowThreshold{Threshold: microwatts("Window 0", p.W0.Threshold), TimeWindow: p.W0.TimeWindow},
		Window1: PowerWindowThreshold{Threshold: microwatts("Window 1", p.W1.Threshold), TimeWindow: p.W1.TimeWindow},
	}, nil
}

// SetPowerThreshold programs a power window. timeWindow is in microseconds
// and the card rounds it to (N*61)<<4 with N > 0.
func (d *Device) SetPowerThreshold(window PowerWindow, power, timeWindow uint32) error {
	var cmd uint32
	switch window {
	case Window0:
		cmd = systoolsd.SetPthreshW0
	case Window1:
		cmd = systoolsd.SetPthreshW1
	default:
		return fmt.Errorf("%w: unknown power window %d", micsdk.InvalidArg, window)
	}
	if (timeWindow>>4)/61 == 0 {
		return fmt.Errorf("%w: time window %d too short", micsdk.InvalidArg, timeWindow)
	}
	if err := d.ensureOpen(); err != nil {
		return err
	}

	payload, err := systoolsd.Encode(systoolsd.PowerWindowInfo{Threshold: power, TimeWindow: timeWindow})
	if err != nil {
		return fmt.Errorf("%w: %w", micsdk.InternalError, err)
	}

	start := time.Now()
	if err = d.control.Request(scif.NewSendRequest(cmd, 0, payload)); err != nil {
		err = ioError("set power threshold", err)
	}
	d.logger.LogControl("set_power_threshold", time.Since(start), err)
	return err
}

// MemoryUsage is the card OS memory accounting.
type MemoryUsage struct {
	Total   Sample `json:"total"`
	Used    Sample `json:"used"`
	Free    Sample `json:"free"`
	Buffers Sample `json:"buffers"`
	Cached  Sample `json:"cached"`
}

func (d *Device) MemoryUsage() (*MemoryUsage, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	m, err := query[systoolsd.MemoryUsageInfo](d.control, systoolsd.GetMemoryUtilization, "query memory usage")
	if err != nil {
		return nil, err
	}
	return &MemoryUsage{
		Total:   kibibytes("Total", m.Total),
		Used:    kibibytes("Used", m.Used),
		Free:    kibibytes("Free", m.Free),
		Buffers: kibibytes("Buffers", m.Buffers),
		Cached:  kibibytes("Cached", m.Cached),
	}, nil
}

// MemoryInfo describes the on package memory.
type MemoryInfo struct {
	Vendor     string `json:"vendor"`
	Type       string `json:"type"`
	Technology string `json:"technology"`
	Size       Sample `json:"size"`
	Speed      Sample `json:"speed"`
	Frequency  Sample `json:"frequency"`
	ECC        bool   `json:"ecc"`
}

func (d *Device) MemoryInfo() (*MemoryInfo, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	m, err := query[systoolsd.MemoryInfo](d.control, systoolsd.GetMemoryInfo, "query memory info")
	if err != nil {
		return nil, err
	}
	return &MemoryInfo{
		Vendor:     systoolsd.CString(m.Manufacturer[:]),
		Type:       "DRAM",
		Technology: "MCDRAM",
		Size:       newSample("Size", m.TotalSize, unitMega, "B"),
		Speed:      newSample("Speed", m.Speed, unitMega, "T/s"),
		Frequency:  megahertz("Frequency", m.Frequency),
		ECC:        m.EccEnabled != 0,
	}, nil
}

// EccMode reports whether ECC is enabled. ECC is always available on KNL.
func (d *Device) EccMode() (enabled, available bool, err error) {
	info, err := d.MemoryInfo()
	if err != nil {
		return false, false, err
	}
	return info.ECC, true, nil
}

// ProcessorInfo identifies the host processor of the card.
type ProcessorInfo struct {
	Model          uint16 `json:"model"`
	Family         uint16 `json:"family"`
	Type           uint16 `json:"type"`
	SteppingID     uint32 `json:"stepping_id"`
	Stepping       string `json:"stepping"`
	ThreadsPerCore uint8  `json:"threads_per_core"`
}

func (d *Device) ProcessorInfo() (*ProcessorInfo, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := query[systoolsd.ProcessorInfo](d.control, systoolsd.GetProcessorInfo, "query processor info")
	if err != nil {
		return nil, err
	}
	return &ProcessorInfo{
		Model:          p.Model,
		Family:         p.Family,
		Type:           p.Type,
		SteppingID:     p.SteppingID,
		Stepping:       systoolsd.CString(p.Stepping[:]),
		ThreadsPerCore: p.ThreadsPerCore,
	}, nil
}

// CoreInfo summarises the core complex.
type CoreInfo struct {
	Count          uint32 `json:"count"`
	ThreadsPerCore uint32 `json:"threads_per_core"`
	Frequency      Sample `json:"frequency"`
	Voltage        Sample `json:"voltage"`
}

func (d *Device) CoreInfo() (*CoreInfo, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	c, err := query[systoolsd.CoresInfo](d.control, systoolsd.GetCoresInfo, "query core info")
	if err != nil {
		return nil, err
	}
	return &CoreInfo{
		Count:          c.NumCores,
		ThreadsPerCore: c.ThreadsPerCore,
		Frequency:      megahertz("Core Frequency", c.CoresFreq),
		Voltage:        millivolts("Core Voltage", coreVoltageMillivolts(c.CoresVoltage)),
	}, nil
}

// CoreCounters are jiffy counters for one hardware thread or the sum.
type CoreCounters struct {
	User   uint64 `json:"user"`
	Nice   uint64 `json:"nice"`
	System uint64 `json:"system"`
	Idle   uint64 `json:"idle"`
	Total  uint64 `json:"total"`
}

// CoreUsage holds aggregate and per thread utilisation counters.
type CoreUsage struct {
	TickCount      uint64         `json:"tick_count"`
	TicksPerSecond uint64         `json:"ticks_per_second"`
	CoreCount      uint32         `json:"core_count"`
	ThreadsPerCore uint16         `json:"threads_per_core"`
	Frequency      Sample         `json:"frequency"`
	Sum            CoreCounters   `json:"sum"`
	Threads        []CoreCounters `json:"threads"`
}

// CoreUsage fetches utilisation counters. The reply size depends on the
// thread count, so core info is queried first.
func (d *Device) CoreUsage() (*CoreUsage, error) {
	cores, err := d.CoreInfo()
	if err != nil {
		return nil, err
	}
	if cores.Count == 0 {
		return nil, fmt.Errorf("%w: card reports zero cores", micsdk.InternalError)
	}

	threads := int(cores.Count) * int(cores.ThreadsPerCore)
	headerSize := systoolsd.SizeOf[systoolsd.CoreUsageInfo]()
	counterSize := systoolsd.SizeOf[systoolsd.CoreCounters]()
	buf := make([]byte, headerSize+counterSize*threads)
	if err := d.control.Request(scif.NewQuery(systoolsd.GetCoreUsage, 0, buf)); err != nil {
		return nil, ioError("query core usage", err)
	}

	header, err := systoolsd.Decode[systoolsd.CoreUsageInfo](buf[:headerSize])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", micsdk.InternalError, err)
	}
	if int(header.NumCores)*int(header.ThreadsPerCore) != threads {
		return nil, fmt.Errorf("%w: core usage reports %dx%d threads, expected %d", micsdk.InternalError,
			header.NumCores, header.ThreadsPerCore, threads)
	}

	usage := &CoreUsage{
		TickCount:      header.Ticks,
		TicksPerSecond: header.ClocksPerSec,
		CoreCount:      header.NumCores,
		ThreadsPerCore: header.ThreadsPerCore,
		Frequency:      megahertz("Core Frequency", header.Frequency),
		Sum:            CoreCounters(header.Sum),
		Threads:        make([]CoreCounters, threads),
	}
	for i := range threads {
		off := headerSize + i*counterSize
		c, err := systoolsd.Decode[systoolsd.CoreCounters](buf[off : off+counterSize])
		if err != nil {
			return nil, fmt.Errorf("%w: %w", micsdk.InternalError, err)
		}
		usage.Threads[i] = CoreCounters(c)
	}
	return usage, nil
}

// PlatformInfo is the board identity reported by the SMC.
type PlatformInfo struct {
	SerialNumber       string `json:"serial_number"`
	PartNumber         string `json:"part_number"`
	UUID               string `json:"uuid"`
	FeatureSet         string `json:"feature_set"`
	CoprocessorOS      string `json:"coprocessor_os"`
	BiosVersion        string `json:"bios_version"`
	BiosReleaseDate    string `json:"bios_release_date"`
	SmcFirmware        string `json:"smc_firmware"`
	SmcBootFirmware    string `json:"smc_boot_firmware"`
	CardTDP            uint32 `json:"card_tdp"`
	HardwareRevision   uint32 `json:"hardware_revision"`
	FlashUpdateCapable bool   `json:"flash_update_capable"`
}

func (d *Device) PlatformInfo() (*PlatformInfo, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	info, err := query[systoolsd.DeviceInfo](d.control, systoolsd.GetDeviceInfo, "query device info")
	if err != nil {
		return nil, err
	}

	// The part number field shrank to 8 bytes in later SMC firmware.
	return &PlatformInfo{
		SerialNumber:       systoolsd.CString(info.SerialNo[:]),
		PartNumber:         systoolsd.CString(info.PartNumber[:8]),
		UUID:               hex.EncodeToString(info.UUID[:]),
		FeatureSet:         featureSet(info.HwRevision),
		CoprocessorOS:      systoolsd.CString(info.OsVersion[:]),
		BiosVersion:        systoolsd.CString(info.BiosVersion[:]),
		BiosReleaseDate:    systoolsd.CString(info.BiosReleaseDate[:]),
		SmcFirmware:        firmwareVersion(info.FwVersion),
		SmcBootFirmware:    firmwareVersion(info.BootFwVersion),
		CardTDP:            info.CardTdp,
		HardwareRevision:   info.HwRevision,
		FlashUpdateCapable: info.FwuCap != 0,
	}, nil
}

// SmcBootFirmwareVersion returns the SMC boot loader version.
func (d *Device) SmcBootFirmwareVersion() (string, error) {
	info, err := d.PlatformInfo()
	if err != nil {
		return "", err
	}
	return info.SmcBootFirmware, nil
}

func firmwareVersion(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", v>>24&0xff, v>>16&0xff, v&0xffff)
}

func featureSet(rev uint32) string {
	var set string
	switch rev & 0x00030000 {
	case 0x00000000:
		set = "RP"
	case 0x00010000:
		set = "RPRD"
	case 0x00020000:
		set = "STHI"
	}
	switch rev & 0x00000300 {
	case 0x00000000:
		set += " Fab A"
	case 0x00000100:
		set += " Fab B"
	case 0x00000200:
		set += " Fab C"
	case 0x00000300:
		set += " Fab D"
	}
	if rev&0x2 != 0 {
		return set + " 300W"
	}
	return set + " 225W"
}

// LedMode returns the current LED blink mode.
func (d *Device) LedMode() (uint32, error) {
	if err := d.ensureOpen(); err != nil {
		return 0, err
	}
	diag, err := query[systoolsd.DiagnosticsInfo](d.control, systoolsd.GetDiagnosticsInfo, "query LED mode")
	if err != nil {
		return 0, err
	}
	return diag.LedBlink, nil
}

// SetLedMode sets the LED blink mode; only the low bit is significant.
func (d *Device) SetLedMode(mode uint32) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	start := time.Now()
	err := d.control.Request(scif.NewRequest(systoolsd.SetLedBlink, mode&ledModeMask))
	if err != nil {
		err = ioError("set LED mode", err)
	}
	d.logger.LogControl("set_led_mode", time.Since(start), err)
	return err
}

// TurboState reports turbo configuration. Active is a best guess: the card
// only reports the configured turbo percentage.
type TurboState struct {
	Enabled   bool `json:"enabled"`
	Available bool `json:"available"`
	Active    bool `json:"active"`
}

func (d *Device) TurboState() (*TurboState, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	t, err := query[systoolsd.TurboInfo](d.control, systoolsd.GetTurboInfo, "query turbo state")
	if err != nil {
		return nil, err
	}
	enabled := t.Enabled != 0
	return &TurboState{
		Enabled:   enabled,
		Available: true,
		Active:    enabled && t.TurboPct > 0,
	}, nil
}

func (d *Device) SetTurboEnabled(enabled bool) error {
	if err := d.ensureOpen(); err != nil {
		return err
	}
	var param uint32
	if enabled {
		param = 1
	}
	start := time.Now()
	err := d.control.Request(scif.NewRequest(systoolsd.SetTurbo, param))
	if err != nil {
		err = ioError("set turbo mode", err)
	}
	d.logger.LogControl("set_turbo", time.Since(start), err)
	return err
}

// SmbaStatus is the SMBus address training state.
type SmbaStatus struct {
	Busy        bool   `json:"busy"`
	MsRemaining uint32 `json:"ms_remaining"`
}

func (d *Device) SmbaStatus() (*SmbaStatus, error) {
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}
	s, err := query[systoolsd.SmbaInfo](d.control, systoolsd.GetSmbaInfo, "query SMBus training status")
	if err != nil {
		return nil, err
	}
	return &SmbaStatus{Busy: s.IsBusy != 0, MsRemaining: s.MsRemaining}, nil
}

// RestartSmba starts SMBus address training with the given address hint.
// A training run already in progress yields DeviceBusy. When the configured
// SmbaWait is positive the call blocks that long, or until ctx is done.
func (d *Device) RestartSmba(ctx context.Context, hint int) error {
	status, err := d.SmbaStatus()
	if err != nil {
		return err
	}
	if status.Busy {
		return fmt.Errorf("%w: SMBus training in progress, %d ms remaining", micsdk.DeviceBusy, status.MsRemaining)
	}

	start := time.Now()
	if err = d.control.Request(scif.NewRequest(systoolsd.RestartSmba, uint32(hint&0xff))); err != nil {
		err = ioError("restart SMBus training", err)
	}
	d.logger.LogControl("restart_smba", time.Since(start), err)
	if err != nil {
		return err
	}

	if d.config.SmbaWait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.config.SmbaWait):
		}
	}
	return nil
}

// HardwareInfo is the RAS view of the board.
type HardwareInfo struct {
	Board        uint8  `json:"board"`
	Fab          uint8  `json:"fab"`
	Sku          uint8  `json:"sku"`
	Slot         uint8  `json:"slot"`
	Revision     uint8  `json:"revision"`
	Stepping     uint8  `json:"stepping"`
	Substepping  uint8  `json:"substepping"`
	SerialNumber string `json:"serial_number"`
	GUID         string `json:"guid"`
}

func (d *Device) monitorQuery(cmd uint32, buf []byte, op string) error {
	if d.monitor == nil {
		return fmt.Errorf("%w: RAS channel disabled", micsdk.NotSupported)
	}
	if !d.monitor.IsOpen() {
		return fmt.Errorf("%w: RAS channel not open", micsdk.DeviceNotOpen)
	}
	if err := d.monitor.Request(scif.NewQuery(cmd, 0, buf)); err != nil {
		return ioError(op, err)
	}
	return nil
}

func (d *Device) HardwareInfo() (*HardwareInfo, error) {
	buf := make([]byte, ras.SizeOf[ras.HwInfo]())
	if err := d.monitorQuery(ras.ReqHwInf, buf, "query hardware info"); err != nil {
		return nil, err
	}
	hw, err := ras.Decode[ras.HwInfo](buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", micsdk.InternalError, err)
	}
	return &HardwareInfo{
		Board:        hw.Board,
		Fab:          hw.Fab,
		Sku:          hw.Sku,
		Slot:         hw.Slot,
		Revision:     hw.Rev,
		Stepping:     hw.Step,
		Substepping:  hw.Substep,
		SerialNumber: hw.SerialNumber(),
		GUID:         hex.EncodeToString(hw.GUID[:]),
	}, nil
}

// MonitorVersion returns the RAS API version string.
func (d *Device) MonitorVersion() (string, error) {
	buf := make([]byte, ras.SizeOf[ras.APIVersion]())
	if err := d.monitorQuery(ras.ReqPver, buf, "query RAS version"); err != nil {
		return "", err
	}
	v, err := ras.Decode[ras.APIVersion](buf)
	if err != nil {
		return "", fmt.Errorf("%w: %w", micsdk.InternalError, err)
	}
	return v.Version(), nil
}

// FanStatus is the RAS fan report.
type FanStatus struct {
	RPM      uint16 `json:"rpm"`
	PWM      uint8  `json:"pwm"`
	Override bool   `json:"override"`
	RPMValid bool   `json:"rpm_valid"`
	PWMValid bool   `json:"pwm_valid"`
}

func (d *Device) FanStatus() (*FanStatus, error) {
	buf := make([]byte, ras.SizeOf[ras.FanStatus]())
	if err := d.monitorQuery(ras.ReqFan, buf, "query fan status"); err != nil {
		return nil, err
	}
	f, err := ras.Decode[ras.FanStatus](buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", micsdk.InternalError, err)
	}
	return &FanStatus{
		RPM:      f.Rpm,
		PWM:      f.Pwm,
		Override: f.Override != 0,
		RPMValid: f.RVal == ras.ValueValid,
		PWMValid: f.PVal == ras.ValueValid,
	}, nil
}
