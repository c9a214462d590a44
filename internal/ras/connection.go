// internal/ras/connection.go
package ras

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"

	"micmgmt-service/internal/scif"
	"micmgmt-service/pkg/micsdk"
)

// Connection is a RAS monitor client bound to one card.
type Connection struct {
	channel scif.Channel
	logger  *zap.Logger
}

// NewConnection creates a client for card devNum on the RAS monitor port.
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
		logger:  logger.With(zap.String("protocol", "ras"), zap.Int("device", channel.DeviceNum())),
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

// Request sends a RAS command and receives exactly ByteCount bytes of reply.
// An error reply whose length matches an error record is decoded into the
// request error code; any other error payload is drained.
func (c *Connection) Request(req *scif.Request) error {
	if !c.channel.IsOpen() {
		return micsdk.DeviceNotOpen
	}
	if req == nil {
		return micsdk.InvalidArg
	}

	c.channel.Lock()
	defer c.channel.Unlock()

	header := Header{
		Cmd:  uint16(req.Command()),
		Parm: req.Parameter(),
	}
	data, err := header.MarshalBinary()
	if err == nil {
		err = c.channel.Send(data)
	}
	if err != nil {
		c.channel.SetErrorText(fmt.Sprintf("scif_send: cmd 0x%x: Len 0x%x", header.Cmd, HeaderSize), 0)
		return ioFailure(err)
	}

	buf := make([]byte, HeaderSize)
	if err := c.channel.Receive(buf); err != nil {
		c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Len 0x%x", header.Cmd, HeaderSize), 0)
		return ioFailure(err)
	}
	var response Header
	if err := response.UnmarshalBinary(buf); err != nil {
		return fmt.Errorf("%w: %w", micsdk.InternalError, err)
	}

	if response.IsError() {
		return c.errorResponse(req, &header, &response)
	}

	if int(response.Len) != req.ByteCount() {
		c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Response payload len 0x%x: Expected 0x%x",
			header.Cmd, response.Len, req.ByteCount()), 0)
		return micsdk.InternalError
	}

	if req.ByteCount() > 0 {
		if err := c.channel.Receive(req.Buffer()); err != nil {
			c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Response failed", header.Cmd), 0)
			return ioFailure(err)
		}
	}

	req.ClearError()
	return nil
}

func (c *Connection) errorResponse(req *scif.Request, header, response *Header) error {
	if response.Opcode() != header.Cmd {
		c.channel.SetErrorText(fmt.Sprintf("scif_recv: Unexpected opcode 0x%x: Expected 0x%x",
			response.Opcode(), header.Cmd), 0)
		return micsdk.InternalError
	}

	if response.Len == ErrorRecordSize {
		buf := make([]byte, ErrorRecordSize)
		if err := c.channel.Receive(buf); err != nil {
			c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Failed error record: Len 0x%x",
				header.Cmd, ErrorRecordSize), 0)
			return ioFailure(err)
		}
		var record ErrorRecord
		if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &record); err != nil {
			return fmt.Errorf("%w: %w", micsdk.InternalError, err)
		}
		req.SetError(int(record.Err))
		c.channel.SetErrorText(fmt.Sprintf("RAS: cmd 0x%x: Error 0x%x", header.Cmd, record.Err), 0)
		return fmt.Errorf("%w: %w", micsdk.InternalError, MonitorError(record.Err))
	}

	if response.Len > 0 {
		garbage := make([]byte, response.Len)
		if err := c.channel.Receive(garbage); err != nil {
			c.logger.Debug("Failed to flush error payload",
				zap.Uint16("cmd", header.Cmd),
				zap.Int("length", len(garbage)),
				zap.Error(err))
		}
	}
	c.channel.SetErrorText(fmt.Sprintf("scif_recv: cmd 0x%x: Unknown error: Len 0x%x", header.Cmd, response.Len), 0)
	return micsdk.InternalError
}

func ioFailure(err error) error {
	if micsdk.CodeOf(err) == micsdk.DeviceIOError {
		return err
	}
	return fmt.Errorf("%w: %w", micsdk.DeviceIOError, err)
}
