// internal/scif/connection.go
package scif

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"micmgmt-service/pkg/micsdk"
)

// DefaultPort is the card port a Connection targets until SetPortNum is called.
const DefaultPort uint16 = 100

const maxPrivilegedPort = 1023

// Channel is the locked byte channel protocol clients exchange frames over.
type Channel interface {
	Open() error
	Close() error
	IsOpen() bool
	DeviceNum() int
	Lock()
	Unlock()
	Send(data []byte) error
	Receive(buf []byte) error
	SetErrorText(text string, errno int)
	ErrorText() string
}

// Config controls how a Connection resolves the transport and binds.
type Config struct {
	LibraryName    string `json:"library_name"`
	LibraryVersion int    `json:"library_version"`
	PrivilegedBind bool   `json:"privileged_bind"`
}

// DefaultConfig binds privileged ports only when running as root.
func DefaultConfig() *Config {
	return &Config{
		LibraryName:    DefaultLibraryName,
		LibraryVersion: DefaultLibraryVersion,
		PrivilegedBind: IsAdministrator(),
	}
}

// IsAdministrator reports whether the process runs with effective uid 0.
func IsAdministrator() bool {
	return unix.Geteuid() == 0
}

// Stats provides connection-level statistics
type Stats struct {
	BytesWritten   int64     `json:"bytes_written"`
	BytesRead      int64     `json:"bytes_read"`
	OperationCount int64     `json:"operation_count"`
	ErrorCount     int64     `json:"error_count"`
	Reconnects     int64     `json:"reconnects"`
	LastActivity   time.Time `json:"last_activity"`
	IsConnected    bool      `json:"is_connected"`
}

// Connection is one SCIF channel to one card.
type Connection struct {
	devNum int
	config *Config
	logger *zap.Logger

	// exchange serializes request/response sequences; see Lock.
	exchange sync.Mutex

	mutex     sync.RWMutex
	portNum   uint16
	functions Functions
	injected  bool
	loader    Loader
	handle    Endpoint
	online    bool
	errorText string
	stats     Stats
}

// NewConnection creates a closed connection to card devNum. The transport
// library is resolved on the first Open.
func NewConnection(devNum int, config *Config, logger *zap.Logger) *Connection {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connection{
		devNum:  devNum,
		config:  config,
		logger:  logger.With(zap.String("component", "scif"), zap.Int("device", devNum)),
		portNum: DefaultPort,
	}
}

// NewConnectionWithFunctions creates a connection driving fns directly
// instead of a loaded library.
func NewConnectionWithFunctions(devNum int, fns Functions, config *Config, logger *zap.Logger) *Connection {
	c := NewConnection(devNum, config, logger)
	c.functions = fns
	c.injected = fns != nil
	return c
}

func (c *Connection) DeviceNum() int {
	return c.devNum
}

func (c *Connection) PortNum() uint16 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.portNum
}

// SetPortNum changes the card port used by the next Open.
func (c *Connection) SetPortNum(port uint16) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.portNum = port
}

// SetLoader replaces the library loader. Ignored for injected functions.
func (c *Connection) SetLoader(loader Loader) error {
	if loader == nil {
		return micsdk.InvalidArg
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.loader = loader
	if !c.injected && c.handle == 0 {
		c.functions = nil
	}
	return nil
}

func (c *Connection) IsOpen() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.handle != 0
}

func (c *Connection) Online() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.online
}

func (c *Connection) SetOnline(online bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.online = online
}

// Lock acquires the exchange lock. Every multi-step exchange must hold it
// from the first send to the last receive. Not reentrant.
func (c *Connection) Lock() {
	c.exchange.Lock()
}

func (c *Connection) Unlock() {
	c.exchange.Unlock()
}

// Open resolves the transport if needed, then opens, binds and connects.
// Any failure leaves the connection closed.
func (c *Connection) Open() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.open()
}

func (c *Connection) open() error {
	if c.handle != 0 {
		return nil
	}
	if c.functions == nil {
		if err := c.loadLibrary(); err != nil {
			return err
		}
	}

	epd, err := c.functions.Open()
	if err != nil || epd < 0 {
		c.setErrorText("SCIF open failed.", errnoOf(err))
		return withCode(micsdk.DeviceIOError, err)
	}

	if err := c.bind(epd); err != nil {
		c.setErrorText("SCIF bind failed.", errnoOf(err))
		_ = c.functions.Close(epd)
		return withCode(micsdk.DeviceIOError, err)
	}

	dst := PortID{Node: uint16(c.devNum + 1), Port: c.portNum}
	if ret, err := c.functions.Connect(epd, dst); err != nil || ret < 0 {
		errno := errnoOf(err)
		if errno == int(unix.ECONNREFUSED) {
			c.setErrorText("SCIF connection refused.", errno)
		} else {
			c.setErrorText("SCIF connection failed.", errno)
		}
		_ = c.functions.Close(epd)
		return withCode(micsdk.DeviceIOError, err)
	}

	c.handle = epd
	c.online = true
	c.stats.IsConnected = true
	c.stats.LastActivity = time.Now()
	c.logger.Debug("SCIF connection opened", zap.Uint16("port", c.portNum))
	return nil
}

func (c *Connection) bind(epd Endpoint) error {
	if !c.config.PrivilegedBind {
		ret, err := c.functions.Bind(epd, 0)
		if err != nil {
			return err
		}
		if ret < 0 {
			return errUnknownErrno
		}
		return nil
	}

	var lastErr error
	for port := maxPrivilegedPort; port > 0; port-- {
		ret, err := c.functions.Bind(epd, uint16(port))
		if err == nil && ret == port {
			return nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errUnknownErrno
	}
	return lastErr
}

func (c *Connection) loadLibrary() error {
	if c.loader == nil {
		c.loader = NewDynamicLoader(c.config.LibraryName, c.config.LibraryVersion)
	}
	if !c.loader.IsLoaded() {
		c.loader.SetFileName(c.config.LibraryName)
		c.loader.SetVersion(c.config.LibraryVersion)
		if err := c.loader.Load(); err != nil {
			c.errorText = c.loader.ErrorText()
			return withCode(micsdk.SharedLibraryError, err)
		}
	}

	fns, err := resolveFunctions(c.loader)
	if err != nil {
		c.errorText = "Could not resolve all SCIF library symbols"
		_ = c.loader.Unload()
		return withCode(micsdk.SharedLibraryError, err)
	}
	c.functions = fns
	c.logger.Debug("SCIF library loaded")
	return nil
}

// Close closes the channel if open. The handle is reset even when the
// transport close fails.
func (c *Connection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.close()
}

func (c *Connection) close() error {
	if c.handle == 0 {
		return nil
	}
	err := c.functions.Close(c.handle)
	c.handle = 0
	c.online = false
	c.stats.IsConnected = false
	c.logger.Debug("SCIF connection closed")
	if err != nil {
		return withCode(micsdk.DeviceIOError, err)
	}
	return nil
}

// Send transmits all of data. A send failing with ECONNRESET triggers one
// close, reopen and resend of the remaining bytes.
func (c *Connection) Send(data []byte) error {
	fns, epd, err := c.endpoint()
	if err != nil {
		return err
	}

	remaining := data
	for len(remaining) > 0 {
		n, err := fns.Send(epd, remaining, SendBlock)
		if err != nil && errors.Is(err, unix.ECONNRESET) {
			fns, epd, err = c.reconnect()
			if err != nil {
				c.recordError()
				return err
			}
			n, err = fns.Send(epd, remaining, SendBlock)
		}
		if err == nil && n <= 0 {
			err = io.ErrShortWrite
		}
		if err != nil {
			c.recordError()
			return withCode(micsdk.DeviceIOError, err)
		}
		if n > len(remaining) {
			n = len(remaining)
		}
		remaining = remaining[n:]
		c.recordTransfer(int64(n), 0)
	}
	c.recordOperation()
	return nil
}

// Receive fills buf completely. There is no retry on failure.
func (c *Connection) Receive(buf []byte) error {
	fns, epd, err := c.endpoint()
	if err != nil {
		return err
	}

	remaining := buf
	for len(remaining) > 0 {
		n, err := fns.Recv(epd, remaining, RecvBlock)
		if err == nil && n <= 0 {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			c.recordError()
			return withCode(micsdk.DeviceIOError, err)
		}
		if n > len(remaining) {
			n = len(remaining)
		}
		remaining = remaining[n:]
		c.recordTransfer(0, int64(n))
	}
	c.recordOperation()
	return nil
}

func (c *Connection) endpoint() (Functions, Endpoint, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.handle == 0 {
		return nil, 0, micsdk.DeviceNotOpen
	}
	return c.functions, c.handle, nil
}

func (c *Connection) reconnect() (Functions, Endpoint, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.logger.Debug("SCIF connection reset by peer, reconnecting")
	c.stats.Reconnects++
	_ = c.close()
	if err := c.open(); err != nil {
		return nil, 0, err
	}
	return c.functions, c.handle, nil
}

// SetErrorText stores text, with " Errno=N" appended when errno is nonzero.
func (c *Connection) SetErrorText(text string, errno int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.setErrorText(text, errno)
}

func (c *Connection) setErrorText(text string, errno int) {
	if errno != 0 {
		text = fmt.Sprintf("%s Errno=%d", text, errno)
	}
	c.errorText = text
}

func (c *Connection) ErrorText() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.errorText
}

// Stats returns a snapshot of the connection counters.
func (c *Connection) Stats() Stats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stats
}

func (c *Connection) recordTransfer(written, read int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stats.BytesWritten += written
	c.stats.BytesRead += read
	c.stats.LastActivity = time.Now()
}

func (c *Connection) recordOperation() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stats.OperationCount++
}

func (c *Connection) recordError() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.stats.ErrorCount++
}

// withCode attaches code to err unless err already carries it.
func withCode(code micsdk.Code, err error) error {
	if err == nil {
		return code
	}
	if errors.Is(err, code) {
		return err
	}
	return fmt.Errorf("%w: %w", code, err)
}

var _ Channel = (*Connection)(nil)
