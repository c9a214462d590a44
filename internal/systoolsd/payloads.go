// internal/systoolsd/payloads.go
package systoolsd

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Payload structs mirror the packed little endian layouts systoolsd sends.

type SystoolsdInfo struct {
	MajorVer uint8
	MinorVer uint8
}

type MemoryUsageInfo struct {
	Total   uint32
	Used    uint32
	Free    uint32
	Buffers uint32
	Cached  uint32
}

type DeviceInfo struct {
	CardTdp         uint32
	FwuCap          uint32
	CPUID           uint32
	PciSmba         uint32
	FwVersion       uint32
	ExeDomain       uint32
	StsSelftest     uint32
	BootFwVersion   uint32
	HwRevision      uint32
	OsVersion       [64]byte
	BiosVersion     [64]byte
	BiosReleaseDate [64]byte
	UUID            [16]byte
	PartNumber      [16]byte
	ManufactureDate [6]byte
	SerialNo        [12]byte
}

type PowerUsageInfo struct {
	PwrPcie       uint32
	Pwr2x3        uint32
	Pwr2x4        uint32
	ForceThrottle uint32
	AvgPower0     uint32
	InstPower     uint32
	InstPowerMax  uint32
	PowerVccp     uint32
	PowerVccu     uint32
	PowerVccclr   uint32
	PowerVccmlb   uint32
	PowerVccd012  uint32
	PowerVccd345  uint32
	PowerVccmp    uint32
	PowerNtb1     uint32
}

type ThermalInfo struct {
	TempCPU                 uint32
	TempExhaust             uint32
	TempInlet               uint32
	TempVccp                uint32
	TempVccclr              uint32
	TempVccmp               uint32
	TempMid                 uint32
	TempWest                uint32
	TempEast                uint32
	FanTach                 uint32
	FanPwm                  uint32
	FanPwmAdder             uint32
	Tcritical               uint32
	Tcontrol                uint32
	ThermalThrottleDuration uint32
	ThermalThrottle         uint32
}

type VoltageInfo struct {
	VoltageVccp     uint32
	VoltageVccu     uint32
	VoltageVccclr   uint32
	VoltageVccmlb   uint32
	VoltageVccp012  uint32
	VoltageVccp345  uint32
	VoltageVccmp    uint32
	VoltageNtb1     uint32
	VoltageVccpio   uint32
	VoltageVccsfr   uint32
	VoltagePch      uint32
	VoltageVccmfuse uint32
	VoltageNtb2     uint32
	VoltageVpp      uint32
}

type DiagnosticsInfo struct {
	LedBlink uint32
}

type FwUpdateInfo struct {
	FwuSts uint32
	FwuCmd uint32
}

type MemoryInfo struct {
	TotalSize    uint32
	Speed        uint32
	Frequency    uint32
	Type         uint32
	EccEnabled   uint8
	Manufacturer [64]byte
	Voltage      uint16
}

type ProcessorInfo struct {
	SteppingID     uint32
	Model          uint16
	Family         uint16
	Type           uint16
	ThreadsPerCore uint8
	Stepping       [16]byte
}

type CoresInfo struct {
	NumCores       uint32
	CoresFreq      uint32
	ClocksPerSec   uint32
	ThreadsPerCore uint32
	CoresVoltage   uint8
}

type CoreCounters struct {
	User   uint64
	Nice   uint64
	System uint64
	Idle   uint64
	Total  uint64
}

type CoreUsageInfo struct {
	ClocksPerSec   uint64
	Ticks          uint64
	NumCores       uint32
	ThreadsPerCore uint16
	Frequency      uint32
	Sum            CoreCounters
}

type PowerWindowInfo struct {
	Threshold  uint32
	TimeWindow uint32
}

type PowerThresholdsInfo struct {
	MaxPhysPower uint32
	LowThreshold uint32
	HiThreshold  uint32
	W0           PowerWindowInfo
	W1           PowerWindowInfo
}

type SmbaInfo struct {
	IsBusy      uint8
	MsRemaining uint32
}

type TurboInfo struct {
	Enabled  uint8
	TurboPct uint8
}

// Payload lists the types Decode accepts.
type Payload interface {
	SystoolsdInfo | MemoryUsageInfo | DeviceInfo | PowerUsageInfo | ThermalInfo |
		VoltageInfo | DiagnosticsInfo | FwUpdateInfo | MemoryInfo | ProcessorInfo |
		CoresInfo | CoreCounters | CoreUsageInfo | PowerWindowInfo | PowerThresholdsInfo | SmbaInfo | TurboInfo
}

// SizeOf returns the packed wire size of payload type T.
func SizeOf[T Payload]() int {
	var v T
	return binary.Size(&v)
}

// Decode unpacks buf into a T. buf must be exactly SizeOf[T]() bytes.
func Decode[T Payload](buf []byte) (T, error) {
	var v T
	if size := binary.Size(&v); len(buf) != size {
		return v, fmt.Errorf("payload size mismatch: got %d bytes, want %d", len(buf), size)
	}
	err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &v)
	return v, err
}

// Encode packs a payload for an outbound request.
func Encode[T Payload](v T) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, binary.Size(&v)))
	if err := binary.Write(buf, binary.LittleEndian, &v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CString returns the NUL terminated prefix of b.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
