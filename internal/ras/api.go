// internal/ras/api.go
package ras

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Port is the card port the RAS monitor listens on.
const Port uint16 = 100

const (
	RespBit  = 1 << 14
	ErrorBit = 1 << 15
	OpMask   = RespBit - 1
)

// Request opcodes.
const (
	ReqHwInf   uint32 = 1
	ReqVers    uint32 = 2
	ReqCfreq   uint32 = 3
	SetCfreq   uint32 = 4
	ReqCvolt   uint32 = 5
	SetCvolt   uint32 = 6
	ReqPwr     uint32 = 7
	ReqPlim    uint32 = 8
	SetPlim    uint32 = 9
	ReqClst    uint32 = 10
	EnbCore    uint32 = 11
	DisCore    uint32 = 12
	ReqGddr    uint32 = 13
	ReqGfreq   uint32 = 14
	SetGfreq   uint32 = 15
	ReqGvolt   uint32 = 16
	SetGvolt   uint32 = 17
	ReqTemp    uint32 = 18
	ReqFan     uint32 = 19
	SetFan     uint32 = 20
	ReqEcc     uint32 = 21
	SetEcc     uint32 = 22
	ReqTrc     uint32 = 23
	SetTrc     uint32 = 24
	ReqTrbo    uint32 = 25
	SetTrbo    uint32 = 26
	ReqOclk    uint32 = 27
	SetOclk    uint32 = 28
	ReqCutl    uint32 = 29
	ReqMem     uint32 = 30
	ReqOS      uint32 = 31
	ReqProc    uint32 = 32
	ReqThrd    uint32 = 33
	ReqPver    uint32 = 34
	CmdPkill   uint32 = 35
	CmdUkill   uint32 = 36
	GetSmc     uint32 = 37
	SetSmc     uint32 = 38
	ReqPmcfg   uint32 = 39
	ReqLed     uint32 = 40
	SetLed     uint32 = 41
	ReqProchot uint32 = 42
	SetProchot uint32 = 43
	ReqPwralt  uint32 = 44
	SetPwralt  uint32 = 45
	ReqPerst   uint32 = 46
	SetPerst   uint32 = 47
	ReqTTL     uint32 = 48
	ReqMax     uint32 = 48
)

// MonitorError is the err field of an error record sent by the card.
type MonitorError uint16

const (
	ErrInvOp   MonitorError = 1
	ErrInvLen  MonitorError = 2
	ErrInvAux  MonitorError = 3
	ErrInvData MonitorError = 4
	ErrPerm    MonitorError = 5
	ErrNoMem   MonitorError = 6
	ErrSmc     MonitorError = 7
	ErrNoVal   MonitorError = 8
	ErrUnsup   MonitorError = 9
	ErrRange   MonitorError = 10
	ErrPend    MonitorError = 11
)

var monitorErrorText = map[MonitorError]string{
	ErrInvOp:   "command/opcode invalid",
	ErrInvLen:  "length not valid for opcode",
	ErrInvAux:  "parameter not valid for opcode",
	ErrInvData: "content of data block invalid",
	ErrPerm:    "privileged command",
	ErrNoMem:   "out of memory",
	ErrSmc:     "SMC communication failure",
	ErrNoVal:   "no valid value to report",
	ErrUnsup:   "not implemented",
	ErrRange:   "parameter out of range",
	ErrPend:    "pending",
}

func (e MonitorError) Error() string {
	if text, ok := monitorErrorText[e]; ok {
		return "ras: " + text
	}
	return fmt.Sprintf("ras: error 0x%x", uint16(e))
}

// HeaderSize is the wire size of Header.
const HeaderSize = 24

// Header is the mr_hdr frame leading every RAS message.
type Header struct {
	Cmd   uint16
	Len   uint16
	Parm  uint32
	Stamp uint64
	Spent uint64
}

// Opcode strips the response and error bits.
func (h *Header) Opcode() uint16 {
	return h.Cmd & OpMask
}

func (h *Header) IsError() bool {
	return h.Cmd&ErrorBit != 0
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
		return fmt.Errorf("ras header too short: %d bytes", len(data))
	}
	return binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, h)
}

// ErrorRecordSize is the wire size of ErrorRecord.
const ErrorRecordSize = 4

// ErrorRecord is the mr_err payload following an error header.
type ErrorRecord struct {
	Err uint16
	Len uint16
}
