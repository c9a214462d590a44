// internal/systoolsd/connection.go
package systoolsd

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"micmgmt-service/internal/scif"
	"micmgmt-service/pkg/micsdk"
)

// Connection is a systoolsd protocol client bound to one card.
type Connection struct {
	channel scif.Channel
	logger  *zap.Logger
}

// NewConnection creates a client for card devNum on the systoolsd port.
func NewConnection(devNum int, config *scif.Config, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn := scif.NewConnection(devNum, config, logger)
	conn.SetPortNum(Port)
	return NewConnectionWithChannel(conn, logger)
}

// NewConnectionWithChannel creates a client over an existing channel.
func NewConnectionWithChannel(channel scif.Channel, logger *zap.Logger) *Connection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		channel: channel,
		logger:  logger.With(zap.String("protocol", "systoolsd"), zap.Int("device", channel.DeviceNum())),
	}
}

func (c *Connection) Open() error {
	return c.channel.Open()
}

func (c *Connection) Close() error {
	return c.channel.Close()
}

func (c *Connection) IsOpen() bool {
	return c.channel.IsOpen()
}

func (c *Connection) DeviceNum() int {
	return c.channel.DeviceNum()
}

func (c *Connection) ErrorText() string {
	return c.channel.ErrorText()
}

// Channel returns the underlying byte channel.
func (c *Connection) Channel() scif.Channel {
	return c.channel
}

// Request runs one exchange. Inbound requests receive exactly ByteCount bytes
// after the response header. Outbound requests send the payload after the
// first response header and then wait for a second header as acknowledgement.
func (c *Connection) Request(req *scif.Request) error {
	if !c.channel.IsOpen() {
		return micsdk.DeviceNotOpen
	}
	if req == nil {
		return micsdk.InvalidArg
	}
	// The header length field is 16 bits wide.
	if req.IsSendRequest() && (req.ByteCount() == 0 || req.ByteCount() > math.MaxUint16) {
		return micsdk.InvalidArg
	}

	c.channel.Lock()
	defer c.channel.Unlock()

	header := Header{ReqType: uint16(req.Command())}
	if req.Parameter() != 0 {
		header.SetParameter(req.Parameter())
	}
	if req.IsSendRequest() {
		header.Length = uint16(req.ByteCount())
	}

	if err := c.sendHeader(&header); err != nil {
		c.channel.SetErrorText(fmt.Sprintf("scif_send: cmd 0x%x: Len 0x%x", header.ReqType, HeaderSize), 0)
		return ioFailure(err)
	}

	response, err := c.receiveHeader()
	if err != nil {
		c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Len 0x%x", header.ReqType, HeaderSize), 0)
		return ioFailure(err)
	}
	if response.CardErrno != 0 {
		return c.cardFailure(req, &header, response, "Error")
	}

	if req.IsSendRequest() {
		if err := c.channel.Send(req.Buffer()); err != nil {
			c.channel.SetErrorText(fmt.Sprintf("scif_send: cmd 0x%x: Data Len 0x%x", header.ReqType, req.ByteCount()), 0)
			return ioFailure(err)
		}

		response, err = c.receiveHeader()
		if err != nil {
			c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Data Len 0x%x", header.ReqType, req.ByteCount()), 0)
			return ioFailure(err)
		}
		if response.CardErrno != 0 {
			return c.cardFailure(req, &header, response, "Data Error")
		}
	} else {
		if int(response.Length) != req.ByteCount() {
			c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Response payload len 0x%x: Expected 0x%x",
				header.ReqType, response.Length, req.ByteCount()), 0)
			return micsdk.InternalError
		}
		if req.ByteCount() > 0 {
			if err := c.channel.Receive(req.Buffer()); err != nil {
				c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Response failed", header.ReqType), 0)
				return ioFailure(err)
			}
		}
	}

	req.ClearError()
	return nil
}

// SmcRequest reads or writes an SMC register. The register offset travels in
// the header extra field and write data in the header data area, so the whole
// exchange is one header each way. Access mode is the caller's concern.
func (c *Connection) SmcRequest(req *scif.Request) error {
	if !c.channel.IsOpen() {
		return micsdk.DeviceNotOpen
	}
	if req == nil || req.ByteCount() == 0 {
		return micsdk.InvalidArg
	}

	write := req.Command() == WriteSmcReg
	if write && req.ByteCount() > MaxDataLength {
		return micsdk.InvalidArg
	}
	if req.Command() != ReadSmcReg && req.Command() != WriteSmcReg {
		return micsdk.InvalidArg
	}

	header := Header{
		ReqType: uint16(req.Command()),
		Extra:   uint32(uint8(req.Parameter())),
		Length:  uint16(req.ByteCount()),
	}
	if write {
		copy(header.Data[:], req.Buffer())
	}

	c.channel.Lock()
	defer c.channel.Unlock()

	if err := c.sendHeader(&header); err != nil {
		c.channel.SetErrorText(fmt.Sprintf("scif_send: cmd 0x%x: Len 0x%x", header.ReqType, HeaderSize), 0)
		return ioFailure(err)
	}

	response, err := c.receiveHeader()
	if err != nil {
		c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Len 0x%x", header.ReqType, HeaderSize), 0)
		return ioFailure(err)
	}
	if response.CardErrno != 0 {
		req.SetError(int(response.CardErrno))
		c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x, Error 0x%x", header.ReqType, response.CardErrno), 0)
		return fmt.Errorf("%w: %w", micsdk.InternalError, CardError(response.CardErrno))
	}

	if !write {
		copy(req.Buffer(), response.Data[:])
	}

	req.ClearError()
	return nil
}

func (c *Connection) sendHeader(header *Header) error {
	data, err := header.MarshalBinary()
	if err != nil {
		return err
	}
	return c.channel.Send(data)
}

func (c *Connection) receiveHeader() (*Header, error) {
	buf := make([]byte, HeaderSize)
	if err := c.channel.Receive(buf); err != nil {
		return nil, err
	}
	response := &Header{}
	if err := response.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return response, nil
}

// cardFailure drains any error payload the card sent so the next exchange
// starts on a frame boundary.
func (c *Connection) cardFailure(req *scif.Request, header, response *Header, label string) error {
	if response.Length > 0 {
		garbage := make([]byte, response.Length)
		if err := c.channel.Receive(garbage); err != nil {
			c.logger.Debug("Failed to flush card error payload",
				zap.Uint16("cmd", header.ReqType),
				zap.Int("length", len(garbage)),
				zap.Error(err))
		}
	}
	req.SetError(int(response.CardErrno))
	c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x, %s 0x%x", header.ReqType, label, response.CardErrno), 0)
	return fmt.Errorf("%w: %w", micsdk.InternalError, CardError(response.CardErrno))
}

func ioFailure(err error) error {
	if micsdk.CodeOf(err) == micsdk.DeviceIOError {
		return err
	}
	return fmt.Errorf("%w: %w", micsdk.DeviceIOError, err)
}
