// internal/scif/connection_test.go
package scif

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sys/unix"

	"micmgmt-service/pkg/micsdk"
)

type fakeTransport struct {
	opens, closes, sends, recvs int
	boundPorts                  []uint16
	connected                   []PortID

	openErr    error
	bindErr    func(port uint16) error
	connectErr error
	sendErrs   []error
	recvErr    error
	sendChunk  int
	sent       []byte
}

func (f *fakeTransport) table() *FuncTable {
	return &FuncTable{
		OpenFunc: func() (Endpoint, error) {
			f.opens++
			if f.openErr != nil {
				return -1, f.openErr
			}
			return Endpoint(7), nil
		},
		CloseFunc: func(Endpoint) error {
			f.closes++
			return nil
		},
		BindFunc: func(_ Endpoint, port uint16) (int, error) {
			f.boundPorts = append(f.boundPorts, port)
			if f.bindErr != nil {
				if err := f.bindErr(port); err != nil {
					return -1, err
				}
			}
			if port == 0 {
				return 2048, nil
			}
			return int(port), nil
		},
		ConnectFunc: func(_ Endpoint, dst PortID) (int, error) {
			f.connected = append(f.connected, dst)
			if f.connectErr != nil {
				return -1, f.connectErr
			}
			return 0, nil
		},
		SendFunc: func(_ Endpoint, msg []byte, _ int) (int, error) {
			f.sends++
			if len(f.sendErrs) > 0 {
				err := f.sendErrs[0]
				f.sendErrs = f.sendErrs[1:]
				if err != nil {
					return -1, err
				}
			}
			n := len(msg)
			if f.sendChunk > 0 && n > f.sendChunk {
				n = f.sendChunk
			}
			f.sent = append(f.sent, msg[:n]...)
			return n, nil
		},
		RecvFunc: func(_ Endpoint, msg []byte, _ int) (int, error) {
			f.recvs++
			if f.recvErr != nil {
				return -1, f.recvErr
			}
			for i := range msg {
				msg[i] = byte(i)
			}
			return len(msg), nil
		},
	}
}

func newTestConnection(t *testing.T, f *fakeTransport, privileged bool) *Connection {
	t.Helper()
	cfg := &Config{LibraryName: DefaultLibraryName, PrivilegedBind: privileged}
	return NewConnectionWithFunctions(2, f.table(), cfg, zaptest.NewLogger(t))
}

func TestConnectionOpen(t *testing.T) {
	f := &fakeTransport{}
	conn := newTestConnection(t, f, false)

	require.NoError(t, conn.Open())
	assert.True(t, conn.IsOpen())
	assert.True(t, conn.Online())
	assert.Equal(t, 2, conn.DeviceNum())
	assert.Equal(t, []uint16{0}, f.boundPorts)
	require.Len(t, f.connected, 1)
	assert.Equal(t, PortID{Node: 3, Port: DefaultPort}, f.connected[0])

	require.NoError(t, conn.Open())
	assert.Equal(t, 1, f.opens)
	assert.True(t, conn.Stats().IsConnected)
}

func TestConnectionOpenUsesPortNum(t *testing.T) {
	f := &fakeTransport{}
	conn := newTestConnection(t, f, false)
	conn.SetPortNum(130)

	require.NoError(t, conn.Open())
	assert.Equal(t, uint16(130), f.connected[0].Port)
}

func TestConnectionPrivilegedBind(t *testing.T) {
	f := &fakeTransport{
		bindErr: func(port uint16) error {
			if port > 1021 {
				return unix.EADDRINUSE
			}
			return nil
		},
	}
	conn := newTestConnection(t, f, true)

	require.NoError(t, conn.Open())
	assert.Equal(t, []uint16{1023, 1022, 1021}, f.boundPorts)
}

func TestConnectionOpenFailures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fakeTransport)
		wantText string
		closes   int
	}{
		{
			name:     "open",
			setup:    func(f *fakeTransport) { f.openErr = unix.EACCES },
			wantText: fmt.Sprintf("SCIF open failed. Errno=%d", int(unix.EACCES)),
		},
		{
			name: "bind",
			setup: func(f *fakeTransport) {
				f.bindErr = func(uint16) error { return unix.EINVAL }
			},
			wantText: fmt.Sprintf("SCIF bind failed. Errno=%d", int(unix.EINVAL)),
			closes:   1,
		},
		{
			name:     "connect refused",
			setup:    func(f *fakeTransport) { f.connectErr = unix.ECONNREFUSED },
			wantText: fmt.Sprintf("SCIF connection refused. Errno=%d", int(unix.ECONNREFUSED)),
			closes:   1,
		},
		{
			name:     "connect failed",
			setup:    func(f *fakeTransport) { f.connectErr = unix.EIO },
			wantText: fmt.Sprintf("SCIF connection failed. Errno=%d", int(unix.EIO)),
			closes:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeTransport{}
			tt.setup(f)
			conn := newTestConnection(t, f, false)

			err := conn.Open()
			require.Error(t, err)
			assert.Equal(t, micsdk.DeviceIOError, micsdk.CodeOf(err))
			assert.False(t, conn.IsOpen())
			assert.False(t, conn.Online())
			assert.Equal(t, tt.wantText, conn.ErrorText())
			assert.Equal(t, tt.closes, f.closes)
		})
	}
}

func TestConnectionCloseIsIdempotent(t *testing.T) {
	f := &fakeTransport{}
	conn := newTestConnection(t, f, false)

	require.NoError(t, conn.Close())
	assert.Equal(t, 0, f.closes)
	assert.False(t, conn.IsOpen())

	require.NoError(t, conn.Open())
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, f.closes)
	assert.False(t, conn.IsOpen())
}

func TestConnectionSendNotOpen(t *testing.T) {
	conn := newTestConnection(t, &fakeTransport{}, false)

	err := conn.Send([]byte{1})
	assert.Equal(t, micsdk.DeviceNotOpen, micsdk.CodeOf(err))
	err = conn.Receive(make([]byte, 1))
	assert.Equal(t, micsdk.DeviceNotOpen, micsdk.CodeOf(err))
}

func TestConnectionSendLoopsOverPartialWrites(t *testing.T) {
	f := &fakeTransport{sendChunk: 2}
	conn := newTestConnection(t, f, false)
	require.NoError(t, conn.Open())

	require.NoError(t, conn.Send([]byte{1, 2, 3, 4, 5}))
	assert.Equal(t, 3, f.sends)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, f.sent)
	assert.Equal(t, int64(5), conn.Stats().BytesWritten)
}

func TestConnectionSendReconnectsOnReset(t *testing.T) {
	f := &fakeTransport{sendErrs: []error{unix.ECONNRESET}}
	conn := newTestConnection(t, f, false)
	require.NoError(t, conn.Open())

	require.NoError(t, conn.Send([]byte{1, 2, 3}))
	assert.Equal(t, 2, f.opens)
	assert.Equal(t, 1, f.closes)
	assert.Equal(t, 2, f.sends)
	assert.True(t, conn.IsOpen())
	assert.Equal(t, int64(1), conn.Stats().Reconnects)
}

func TestConnectionSendRetriesOnlyOnce(t *testing.T) {
	f := &fakeTransport{sendErrs: []error{unix.ECONNRESET, unix.ECONNRESET, unix.ECONNRESET}}
	conn := newTestConnection(t, f, false)
	require.NoError(t, conn.Open())

	err := conn.Send([]byte{1, 2, 3})
	require.Error(t, err)
	assert.Equal(t, micsdk.DeviceIOError, micsdk.CodeOf(err))
	assert.True(t, errors.Is(err, unix.ECONNRESET))
	assert.Equal(t, 2, f.opens)
	assert.Equal(t, 2, f.sends)
}

func TestConnectionSendReconnectFails(t *testing.T) {
	f := &fakeTransport{sendErrs: []error{unix.ECONNRESET}}
	conn := newTestConnection(t, f, false)
	require.NoError(t, conn.Open())
	f.connectErr = unix.ECONNREFUSED

	err := conn.Send([]byte{1})
	assert.Equal(t, micsdk.DeviceIOError, micsdk.CodeOf(err))
	assert.Equal(t, 1, f.sends)
	assert.False(t, conn.IsOpen())
}

func TestConnectionSendOtherErrorDoesNotReconnect(t *testing.T) {
	f := &fakeTransport{sendErrs: []error{unix.EIO}}
	conn := newTestConnection(t, f, false)
	require.NoError(t, conn.Open())

	err := conn.Send([]byte{1})
	assert.Equal(t, micsdk.DeviceIOError, micsdk.CodeOf(err))
	assert.Equal(t, 1, f.opens)
	assert.Equal(t, int64(1), conn.Stats().ErrorCount)
}

func TestConnectionReceiveDoesNotRetry(t *testing.T) {
	f := &fakeTransport{recvErr: unix.ECONNRESET}
	conn := newTestConnection(t, f, false)
	require.NoError(t, conn.Open())

	err := conn.Receive(make([]byte, 4))
	assert.Equal(t, micsdk.DeviceIOError, micsdk.CodeOf(err))
	assert.Equal(t, 1, f.opens)
	assert.Equal(t, 1, f.recvs)
}

func TestConnectionReceive(t *testing.T) {
	f := &fakeTransport{}
	conn := newTestConnection(t, f, false)
	require.NoError(t, conn.Open())

	buf := make([]byte, 4)
	require.NoError(t, conn.Receive(buf))
	assert.Equal(t, []byte{0, 1, 2, 3}, buf)
	assert.Equal(t, int64(4), conn.Stats().BytesRead)
}

func TestSetErrorText(t *testing.T) {
	conn := newTestConnection(t, &fakeTransport{}, false)

	conn.SetErrorText("scif_recv: cmd 0x3, Error 0x2", 0)
	assert.Equal(t, "scif_recv: cmd 0x3, Error 0x2", conn.ErrorText())
	conn.SetErrorText("SCIF open failed.", 19)
	assert.Equal(t, "SCIF open failed. Errno=19", conn.ErrorText())
}

type fakeLoader struct {
	loaded   bool
	loadErr  error
	unloads  int
	name     string
	version  int
	errText  string
	lookedUp []string
}

func (l *fakeLoader) IsLoaded() bool { return l.loaded }
func (l *fakeLoader) SetFileName(name string) { l.name = name }
func (l *fakeLoader) SetVersion(version int) { l.version = version }
func (l *fakeLoader) ErrorText() string { return l.errText }
func (l *fakeLoader) Unload() error {
	l.unloads++
	l.loaded = false
	return nil
}
func (l *fakeLoader) Load() error {
	if l.loadErr != nil {
		l.errText = l.loadErr.Error()
		return l.loadErr
	}
	l.loaded = true
	return nil
}
func (l *fakeLoader) Lookup(name string) (uintptr, error) {
	l.lookedUp = append(l.lookedUp, name)
	return 0, errors.New("undefined symbol: " + name)
}

func TestConnectionLibraryLoadFailure(t *testing.T) {
	loader := &fakeLoader{loadErr: errors.New("libscif.so.0: cannot open shared object file")}
	conn := NewConnection(0, &Config{LibraryName: "libscif", LibraryVersion: 0}, zaptest.NewLogger(t))
	require.NoError(t, conn.SetLoader(loader))

	err := conn.Open()
	assert.Equal(t, micsdk.SharedLibraryError, micsdk.CodeOf(err))
	assert.Equal(t, "libscif.so.0: cannot open shared object file", conn.ErrorText())
	assert.Equal(t, "libscif", loader.name)
	assert.False(t, conn.IsOpen())
}

func TestConnectionMissingSymbol(t *testing.T) {
	loader := &fakeLoader{}
	conn := NewConnection(0, &Config{LibraryName: "libscif"}, zaptest.NewLogger(t))
	require.NoError(t, conn.SetLoader(loader))

	err := conn.Open()
	assert.Equal(t, micsdk.SharedLibraryError, micsdk.CodeOf(err))
	assert.Equal(t, "Could not resolve all SCIF library symbols", conn.ErrorText())
	assert.Equal(t, []string{"scif_open"}, loader.lookedUp)
	assert.Equal(t, 1, loader.unloads)
}

func TestSetLoaderRejectsNil(t *testing.T) {
	conn := NewConnection(0, nil, nil)
	assert.Equal(t, micsdk.InvalidArg, conn.SetLoader(nil))
}

func TestDynamicLoaderPath(t *testing.T) {
	loader := NewDynamicLoader("libscif", 0)
	assert.False(t, loader.IsLoaded())
	assert.Contains(t, loader.Path(), "libscif.")
	assert.NoError(t, loader.Unload())

	_, err := loader.Lookup("scif_open")
	assert.Equal(t, micsdk.SharedLibraryError, micsdk.CodeOf(err))
}
