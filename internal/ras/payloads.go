// internal/ras/payloads.go
package ras

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Valid bit values reported alongside sensor readings.
const (
	ValueValid   = 0
	ValueUnknown = 1
)

type HwInfo struct {
	GUID    [16]uint8
	Board   uint8
	Fab     uint8
	Sku     uint8
	Slot    uint8
	Rev     uint8
	Step    uint8
	Substep uint8
	Serial  [12]uint8
}

type APIVersion struct {
	API [8]byte
}

type FanStatus struct {
	Rpm      uint16
	Pwm      uint8
	Override uint8
	RVal     uint8
	PVal     uint8
}

type PowerLimit struct {
	Phys uint32
	Hmrk uint32
	Lmrk uint32
}

type CoreList struct {
	Count uint16
	Thr   uint16
}

type EccMode struct {
	Enable uint32
}

type TraceLevel struct {
	Lvl uint32
}

type TurboStatus struct {
	Set   uint8
	State uint8
	Avail uint8
	Pad   uint8
}

type LedMode struct {
	Led uint32
}

type OverclockStatus struct {
	Freq uint32
}

// Payload lists the types Decode accepts.
type Payload interface {
	HwInfo | APIVersion | FanStatus | PowerLimit | CoreList | EccMode |
		TraceLevel | TurboStatus | LedMode | OverclockStatus
}

// SizeOf returns the wire size of payload type T.
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

// Version returns the NUL terminated API version string.
func (v APIVersion) Version() string {
	b := v.API[:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// SerialNumber returns the NUL terminated serial number.
func (h HwInfo) SerialNumber() string {
	b := h.Serial[:]
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
