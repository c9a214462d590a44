// internal/scif/functions.go
package scif

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Endpoint is a transport endpoint descriptor as returned by scif_open.
type Endpoint int32

// PortID addresses a port on a SCIF node. Layout matches struct scif_portID.
type PortID struct {
	Node uint16
	Port uint16
}

// Flags accepted by Send and Recv.
const (
	SendBlock = 1
	RecvBlock = 1
)

// HostNode is the SCIF node id of the host. Card N is node N+1.
const HostNode = 0

// Functions is the table of six transport entry points a Connection drives.
// Failures are reported as unix.Errno values so callers can match them with
// errors.Is.
type Functions interface {
	Open() (Endpoint, error)
	Close(epd Endpoint) error
	Bind(epd Endpoint, port uint16) (int, error)
	Connect(epd Endpoint, dst PortID) (int, error)
	Send(epd Endpoint, msg []byte, flags int) (int, error)
	Recv(epd Endpoint, msg []byte, flags int) (int, error)
}

// FuncTable adapts plain functions to Functions. Nil entries fail with ENOSYS.
type FuncTable struct {
	OpenFunc    func() (Endpoint, error)
	CloseFunc   func(epd Endpoint) error
	BindFunc    func(epd Endpoint, port uint16) (int, error)
	ConnectFunc func(epd Endpoint, dst PortID) (int, error)
	SendFunc    func(epd Endpoint, msg []byte, flags int) (int, error)
	RecvFunc    func(epd Endpoint, msg []byte, flags int) (int, error)
}

func (t *FuncTable) Open() (Endpoint, error) {
	if t.OpenFunc == nil {
		return -1, unix.ENOSYS
	}
	return t.OpenFunc()
}

func (t *FuncTable) Close(epd Endpoint) error {
	if t.CloseFunc == nil {
		return unix.ENOSYS
	}
	return t.CloseFunc(epd)
}

func (t *FuncTable) Bind(epd Endpoint, port uint16) (int, error) {
	if t.BindFunc == nil {
		return -1, unix.ENOSYS
	}
	return t.BindFunc(epd, port)
}

func (t *FuncTable) Connect(epd Endpoint, dst PortID) (int, error) {
	if t.ConnectFunc == nil {
		return -1, unix.ENOSYS
	}
	return t.ConnectFunc(epd, dst)
}

func (t *FuncTable) Send(epd Endpoint, msg []byte, flags int) (int, error) {
	if t.SendFunc == nil {
		return -1, unix.ENOSYS
	}
	return t.SendFunc(epd, msg, flags)
}

func (t *FuncTable) Recv(epd Endpoint, msg []byte, flags int) (int, error) {
	if t.RecvFunc == nil {
		return -1, unix.ENOSYS
	}
	return t.RecvFunc(epd, msg, flags)
}

// errnoOf returns the errno carried by err, or 0.
func errnoOf(err error) int {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}

var errUnknownErrno = errors.New("scif call failed without errno")

func unixErrno(errno int32) error {
	return unix.Errno(errno)
}
