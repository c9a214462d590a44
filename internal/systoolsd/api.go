// internal/systoolsd/api.go
package systoolsd

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Protocol version the host speaks; GET_SYSTOOLSD_INFO must report it exactly.
const (
	MajorVersion = 2
	MinorVersion = 7
)

const (
	// Port is the card port systoolsd listens on.
	Port uint16 = 130

	// MaxDataLength is the size of the header data area.
	MaxDataLength = 16

	SmbaRestartWaitMs = 5000

	SetRequestMask = 1 << 7
)

// Request opcodes.
const (
	GetSystoolsdInfo     uint32 = 0x01
	GetMemoryUtilization uint32 = 0x02
	GetDeviceInfo        uint32 = 0x03
	GetPowerUsage        uint32 = 0x04
	GetThermalInfo       uint32 = 0x05
	GetVoltageInfo       uint32 = 0x06
	GetDiagnosticsInfo   uint32 = 0x07
	GetFwUpdateInfo      uint32 = 0x08
	GetMemoryInfo        uint32 = 0x09
	GetProcessorInfo     uint32 = 0x0a
	GetCoresInfo         uint32 = 0x0b
	GetCoreUsage         uint32 = 0x0c
	GetPthreshInfo       uint32 = 0x0d
	GetSmbaInfo          uint32 = 0x0e
	GetTurboInfo         uint32 = 0x0f
	ReadSmcReg           uint32 = 0x10
	MicBiosRequest       uint32 = 0x11

	SetForceThrottle uint32 = SetRequestMask | 0x01
	SetPwmAdder      uint32 = SetRequestMask | 0x02
	SetLedBlink      uint32 = SetRequestMask | 0x03
	SetPthreshW0     uint32 = SetRequestMask | 0x04
	SetPthreshW1     uint32 = SetRequestMask | 0x05
	SetTurbo         uint32 = SetRequestMask | 0x06
	RestartSmba      uint32 = SetRequestMask | 0x07
	WriteSmcReg      uint32 = SetRequestMask | 0x08
)

// CardError is the card_errno value systoolsd reports in a response header.
type CardError uint16

const (
	ErrUnknown                CardError = 0x01
	ErrUnsupportedReq         CardError = 0x02
	ErrInvalStruct            CardError = 0x03
	ErrInvalArgument          CardError = 0x04
	ErrTooBusy                CardError = 0x05
	ErrInsufficientPrivileges CardError = 0x06
	ErrDeviceBusy             CardError = 0x07
	ErrRestartInProgress      CardError = 0x08
	ErrSmc                    CardError = 0x09
	ErrIO                     CardError = 0x0a
	ErrInternal               CardError = 0x0b
	ErrScif                   CardError = 0x0c
)

var cardErrorText = map[CardError]string{
	ErrUnknown:                "unknown error",
	ErrUnsupportedReq:         "unsupported request",
	ErrInvalStruct:            "invalid structure",
	ErrInvalArgument:          "invalid argument",
	ErrTooBusy:                "too busy",
	ErrInsufficientPrivileges: "insufficient privileges",
	ErrDeviceBusy:             "device busy",
	ErrRestartInProgress:      "restart in progress",
	ErrSmc:                    "SMC error",
	ErrIO:                     "I/O error",
	ErrInternal:               "internal error",
	ErrScif:                   "SCIF error",
}

func (e CardError) Error() string {
	if text, ok := cardErrorText[e]; ok {
		return fmt.Sprintf("systoolsd: %s", text)
	}
	return fmt.Sprintf("systoolsd: error 0x%x", uint16(e))
}

// HeaderSize is the packed size of Header on the wire.
const HeaderSize = 26

// Header is the fixed frame exchanged first in every transaction.
type Header struct {
	ReqType   uint16
	Length    uint16
	CardErrno uint16
	Extra     uint32
	Data      [MaxDataLength]byte
}

func (h *Header) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("systoolsd header too short: %d bytes", len(data))
	}
	return binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, h)
}

// SetParameter stores param little endian in the first four data bytes.
func (h *Header) SetParameter(param uint32) {
	binary.LittleEndian.PutUint32(h.Data[:4], param)
}
