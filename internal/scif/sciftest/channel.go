// internal/scif/sciftest/channel.go

// Package sciftest provides a scripted scif.Channel for protocol tests.
package sciftest

import (
	"fmt"
	"sync"

	"micmgmt-service/internal/scif"
	"micmgmt-service/pkg/micsdk"
)

// Channel is an instrumented in-memory scif.Channel. Receive serves the
// queued responses in order and every call is recorded.
type Channel struct {
	DevNum int

	// OpenErr is returned by Open while set.
	OpenErr error
	// CloseErr is returned by Close while set. The channel still closes.
	CloseErr error
	// SendErr and RecvErr, when set, are consulted with the 1-based call
	// number and may fail that call.
	SendErr func(call int) error
	RecvErr func(call int) error

	mutex        sync.Mutex
	exchange     sync.Mutex
	open         bool
	responses    [][]byte
	sent         [][]byte
	receiveSizes []int
	locks        int
	unlocks      int
	held         bool
	unlockedIO   int
	opens        int
	closes       int
	errorText    string
	events       []string
}

// NewChannel returns an open channel for devNum.
func NewChannel(devNum int) *Channel {
	return &Channel{DevNum: devNum, open: true}
}

// Queue appends responses served by subsequent Receive calls.
func (c *Channel) Queue(responses ...[]byte) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.responses = append(c.responses, responses...)
}

func (c *Channel) Open() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.opens++
	if c.OpenErr != nil {
		return c.OpenErr
	}
	c.open = true
	return nil
}

func (c *Channel) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.open {
		c.closes++
	}
	c.open = false
	return c.CloseErr
}

func (c *Channel) SetOpen(open bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.open = open
}

func (c *Channel) IsOpen() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.open
}

func (c *Channel) DeviceNum() int {
	return c.DevNum
}

func (c *Channel) Lock() {
	c.exchange.Lock()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.locks++
	c.held = true
	c.events = append(c.events, "lock")
}

func (c *Channel) Unlock() {
	c.mutex.Lock()
	c.unlocks++
	c.held = false
	c.events = append(c.events, "unlock")
	c.mutex.Unlock()
	c.exchange.Unlock()
}

func (c *Channel) Send(data []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.held {
		c.unlockedIO++
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	c.events = append(c.events, fmt.Sprintf("send:%d", len(data)))
	if c.SendErr != nil {
		if err := c.SendErr(len(c.sent)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) Receive(buf []byte) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.held {
		c.unlockedIO++
	}
	c.receiveSizes = append(c.receiveSizes, len(buf))
	c.events = append(c.events, fmt.Sprintf("recv:%d", len(buf)))
	if c.RecvErr != nil {
		if err := c.RecvErr(len(c.receiveSizes)); err != nil {
			return err
		}
	}
	if len(c.responses) == 0 {
		return fmt.Errorf("%w: no scripted response", micsdk.DeviceIOError)
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	copy(buf, next)
	return nil
}

func (c *Channel) SetErrorText(text string, errno int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if errno != 0 {
		text = fmt.Sprintf("%s Errno=%d", text, errno)
	}
	c.errorText = text
}

func (c *Channel) ErrorText() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.errorText
}

// Sent returns copies of every buffer passed to Send.
func (c *Channel) Sent() [][]byte {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([][]byte(nil), c.sent...)
}

// ReceiveSizes returns the buffer length of every Receive call.
func (c *Channel) ReceiveSizes() []int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]int(nil), c.receiveSizes...)
}

// Events returns the ordered lock, unlock, send and receive calls.
func (c *Channel) Events() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]string(nil), c.events...)
}

func (c *Channel) LockCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.locks
}

func (c *Channel) UnlockCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.unlocks
}

// UnlockedIO counts sends and receives made without holding the lock.
func (c *Channel) UnlockedIO() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.unlockedIO
}

func (c *Channel) OpenCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.opens
}

func (c *Channel) CloseCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.closes
}

// Pending reports how many queued responses were not consumed.
func (c *Channel) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.responses)
}

var _ scif.Channel = (*Channel)(nil)
