// internal/device/smc.go
package device

import (
	"fmt"
	"time"

	"micmgmt-service/internal/scif"
	"micmgmt-service/internal/systoolsd"
	"micmgmt-service/pkg/micsdk"
)

// AccessMode is the host's permission on an SMC register.
type AccessMode int

const (
	NoAccess AccessMode = iota
	ReadOnly
	WriteOnly
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "RO"
	case WriteOnly:
		return "WO"
	case ReadWrite:
		return "RW"
	default:
		return "NA"
	}
}

// CanRead reports whether reads are allowed.
func (m AccessMode) CanRead() bool {
	return m == ReadOnly || m == ReadWrite
}

// CanWrite reports whether writes are allowed.
func (m AccessMode) CanWrite() bool {
	return m == WriteOnly || m == ReadWrite
}

type smcRegister struct {
	size int
	mode AccessMode
}

// SEL entry selection register; its effective size depends on the command
// byte currently latched in it.
const selEntrySelectionRegister uint8 = 0x20

var smcRegisters = map[uint8]smcRegister{
	0x10: {16, ReadOnly},
	0x11: {4, ReadOnly},
	0x12: {4, ReadOnly},
	0x13: {4, ReadOnly},
	0x14: {4, ReadOnly},
	0x15: {12, ReadOnly},
	0x16: {4, ReadOnly},
	0x18: {16, ReadOnly},
	0x19: {6, ReadOnly},
	0x1a: {4, ReadWrite},
	0x1c: {4, ReadOnly},
	0x1d: {1, ReadWrite},
	0x1e: {4, ReadOnly},
	0x20: {1, ReadWrite},
	0x21: {4, ReadOnly},
	0x22: {4, ReadWrite},
	0x23: {4, ReadOnly},
	0x28: {4, ReadOnly},
	0x29: {4, ReadOnly},
	0x2a: {4, ReadOnly},
	0x2b: {4, ReadWrite},
	0x35: {4, ReadOnly},
	0x3a: {4, ReadOnly},
	0x3b: {4, ReadOnly},
	0x40: {4, ReadOnly},
	0x41: {4, ReadOnly},
	0x43: {4, ReadOnly},
	0x44: {4, ReadOnly},
	0x45: {4, ReadOnly},
	0x47: {4, ReadOnly},
	0x48: {4, ReadOnly},
	0x49: {4, ReadOnly},
	0x4a: {4, ReadOnly},
	0x4b: {4, ReadWrite},
	0x4c: {4, ReadOnly},
	0x4d: {4, ReadOnly},
	0x4e: {4, ReadOnly},
	0x4f: {4, ReadOnly},
	0x50: {4, ReadOnly},
	0x51: {4, ReadOnly},
	0x52: {4, ReadOnly},
	0x53: {4, ReadOnly},
	0x56: {4, ReadOnly},
	0x57: {4, ReadOnly},
	0x58: {4, ReadOnly},
	0x59: {4, ReadOnly},
	0x5a: {4, ReadOnly},
	0x5b: {4, ReadOnly},
	0x5c: {4, ReadOnly},
	0x5d: {4, ReadOnly},
	0x60: {4, ReadWrite},
	0x70: {4, ReadOnly},
	0x71: {4, ReadOnly},
	0x72: {4, ReadOnly},
	0x73: {4, ReadOnly},
	0x76: {4, ReadOnly},
	0x77: {4, ReadOnly},
}

// RegisterSize returns the byte width and access mode of an SMC register.
// ok is false for offsets the table does not know.
func RegisterSize(offset uint8) (size int, mode AccessMode, ok bool) {
	reg, ok := smcRegisters[offset]
	if !ok {
		return -1, NoAccess, false
	}
	return reg.size, reg.mode, true
}

// RegisterLookup resolves an SMC register offset to its size and access mode.
type RegisterLookup func(offset uint8) (size int, mode AccessMode, ok bool)

// SetRegisterLookup replaces the register table consulted before SMC access.
// A nil lookup restores the built in KNL table.
func (d *Device) SetRegisterLookup(lookup RegisterLookup) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if lookup == nil {
		lookup = RegisterSize
	}
	d.registers = lookup
}

// checkSmcAccess applies the register policy; no I/O happens on rejection.
func (d *Device) checkSmcAccess(offset uint8, write bool) (int, error) {
	d.mutex.Lock()
	lookup := d.registers
	d.mutex.Unlock()

	size, mode, ok := lookup(offset)
	if !ok {
		return 0, fmt.Errorf("%w: 0x%02x", micsdk.InvalidSmcRegOffset, offset)
	}
	allowed := mode.CanRead()
	if write {
		allowed = mode.CanWrite()
	}
	if !allowed {
		return 0, fmt.Errorf("%w: register 0x%02x is %s", micsdk.SmcOpNotPermitted, offset, mode)
	}
	return size, nil
}

// SmcRegisterSize reports how many bytes a read of offset returns. For the
// SEL entry selection register the latched command byte is read from the card
// and the size of its request arguments added.
func (d *Device) SmcRegisterSize(offset uint8) (int, error) {
	size, err := d.checkSmcAccess(offset, false)
	if err != nil {
		return 0, err
	}
	if offset != selEntrySelectionRegister {
		return size, nil
	}
	if err := d.ensureOpen(); err != nil {
		return 0, err
	}

	cmd := make([]byte, 1)
	if err := d.control.SmcRequest(scif.NewQuery(systoolsd.ReadSmcReg, uint32(offset), cmd)); err != nil {
		return 0, ioError("read SEL entry selection register", err)
	}

	size = 1
	switch cmd[0] {
	case 0x43, 0x47: // get entry, clear
		size += 6
	case 0x44: // add entry
		size += 16
	case 0x49: // set time
		size += 4
	}
	return size, nil
}

// ReadSmcRegister returns the register contents.
func (d *Device) ReadSmcRegister(offset uint8) ([]byte, error) {
	size, err := d.checkSmcAccess(offset, false)
	if err != nil {
		return nil, err
	}
	if err := d.ensureOpen(); err != nil {
		return nil, err
	}

	buf := make([]byte, size)
	if err := d.control.SmcRequest(scif.NewQuery(systoolsd.ReadSmcReg, uint32(offset), buf)); err != nil {
		return nil, ioError(fmt.Sprintf("read SMC register 0x%02x", offset), err)
	}
	return buf, nil
}

// WriteSmcRegister writes data to a writable register.
func (d *Device) WriteSmcRegister(offset uint8, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty SMC register data", micsdk.InvalidArg)
	}
	if _, err := d.checkSmcAccess(offset, true); err != nil {
		return err
	}
	if err := d.ensureOpen(); err != nil {
		return err
	}

	start := time.Now()
	err := d.control.SmcRequest(scif.NewSendRequest(systoolsd.WriteSmcReg, uint32(offset), data))
	if err != nil {
		err = ioError(fmt.Sprintf("write SMC register 0x%02x", offset), err)
	}
	d.logger.LogControl("smc_write", time.Since(start), err)
	return err
}
