// pkg/micsdk/errors.go
package micsdk

import (
	"errors"
	"fmt"
)

// Code is the unified result code returned by device and protocol operations.
// A Code is an error; Success is never returned as an error, callers get nil.
type Code uint32

const (
	Success              Code = 0x00
	InvalidArg           Code = 0x01
	NoMpssStack          Code = 0x02
	DriverNotLoaded      Code = 0x03
	DriverNotInitialized Code = 0x04
	SystemNotInitialized Code = 0x05
	NoDevices            Code = 0x06
	UnknownDeviceType    Code = 0x07
	DeviceOpenFailed     Code = 0x08
	InvalidDeviceNumber  Code = 0x09
	DeviceNotOpen        Code = 0x0a
	DeviceNotOnline      Code = 0x0b
	DeviceIOError        Code = 0x0c
	PropertyNotFound     Code = 0x0d
	InternalError        Code = 0x0e
	NotSupported         Code = 0x0f
	NoAccess             Code = 0x10
	FileIOError          Code = 0x11
	DeviceBusy           Code = 0x12
	NoSuchDevice         Code = 0x13
	DeviceNotReady       Code = 0x14
	InvalidBootImage     Code = 0x15
	InvalidFlashImage    Code = 0x16
	SharedLibraryError   Code = 0x17
	BufferTooSmall       Code = 0x18
	InvalidSmcRegOffset  Code = 0x19
	SmcOpNotPermitted    Code = 0x1a
	Timeout              Code = 0x1b
	InvalidConfiguration Code = 0x1c
	NoMemory             Code = 0x1d
	DeviceAlreadyOpen    Code = 0x1e
	VersionMismatch      Code = 0x1f
)

var codeText = map[Code]string{
	Success:              "Success",
	InvalidArg:           "Invalid argument",
	NoMpssStack:          "No MPSS stack found",
	DriverNotLoaded:      "Driver not loaded",
	DriverNotInitialized: "Driver not initialized",
	SystemNotInitialized: "System not initialized",
	NoDevices:            "No devices available",
	UnknownDeviceType:    "Unknown device type",
	DeviceOpenFailed:     "Failed to open device",
	InvalidDeviceNumber:  "Invalid device number",
	DeviceNotOpen:        "Device not open",
	DeviceNotOnline:      "Device not online",
	DeviceIOError:        "Device I/O error",
	PropertyNotFound:     "Property not found",
	InternalError:        "Internal error",
	NotSupported:         "Operation not supported",
	NoAccess:             "No access rights",
	FileIOError:          "File I/O error",
	DeviceBusy:           "Device busy",
	NoSuchDevice:         "No such device",
	DeviceNotReady:       "Device not ready",
	InvalidBootImage:     "Invalid boot image",
	InvalidFlashImage:    "Invalid flash image",
	SharedLibraryError:   "Shared library error",
	BufferTooSmall:       "Buffer too small",
	InvalidSmcRegOffset:  "Invalid SMC register offset",
	SmcOpNotPermitted:    "SMC operation not permitted",
	Timeout:              "Operation timed out",
	InvalidConfiguration: "Invalid configuration detected",
	NoMemory:             "Out of memory",
	DeviceAlreadyOpen:    "Device already open",
	VersionMismatch:      "Version mismatch",
}

// Text returns the human readable description of the code.
func (c Code) Text() string {
	if text, ok := codeText[c]; ok {
		return text
	}
	return "Unknown error"
}

// Error implements the error interface.
func (c Code) Error() string {
	return c.Text()
}

// String returns the code in "0x0c: Device I/O error" form.
func (c Code) String() string {
	return fmt.Sprintf("0x%02x: %s", uint32(c), c.Text())
}

// IsError reports whether the code denotes a failure.
func (c Code) IsError() bool {
	return c != Success
}

// CodeOf extracts the result code carried by err. A nil error is Success and
// an error that carries no code is reported as InternalError.
func CodeOf(err error) Code {
	if err == nil {
		return Success
	}
	var code Code
	if errors.As(err, &code) {
		return code
	}
	return InternalError
}
