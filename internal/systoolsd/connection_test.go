// internal/systoolsd/connection_test.go
package systoolsd

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"micmgmt-service/internal/scif"
	"micmgmt-service/internal/scif/sciftest"
	"micmgmt-service/pkg/micsdk"
)

func headerBytes(t *testing.T, h Header) []byte {
	t.Helper()
	data, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, HeaderSize)
	return data
}

func decodeHeader(t *testing.T, data []byte) Header {
	t.Helper()
	var h Header
	require.NoError(t, h.UnmarshalBinary(data))
	return h
}

func newTestClient(t *testing.T) (*Connection, *sciftest.Channel) {
	t.Helper()
	ch := sciftest.NewChannel(0)
	return NewConnectionWithChannel(ch, zaptest.NewLogger(t)), ch
}

func assertLockBalanced(t *testing.T, ch *sciftest.Channel) {
	t.Helper()
	assert.Equal(t, ch.LockCount(), ch.UnlockCount())
	assert.Zero(t, ch.UnlockedIO())
}

func TestRequestPreconditions(t *testing.T) {
	client, ch := newTestClient(t)

	t.Run("nil request", func(t *testing.T) {
		assert.Equal(t, micsdk.InvalidArg, client.Request(nil))
	})

	t.Run("send request without buffer", func(t *testing.T) {
		err := client.Request(scif.NewSendRequest(SetPthreshW0, 0, nil))
		assert.Equal(t, micsdk.InvalidArg, err)
	})

	t.Run("not open", func(t *testing.T) {
		ch.SetOpen(false)
		defer ch.SetOpen(true)
		err := client.Request(scif.NewQuery(GetThermalInfo, 0, make([]byte, 4)))
		assert.Equal(t, micsdk.DeviceNotOpen, err)
	})

	assert.Empty(t, ch.Sent())
	assert.Empty(t, ch.ReceiveSizes())
	assert.Zero(t, ch.LockCount())
}

func TestRequestInbound(t *testing.T) {
	client, ch := newTestClient(t)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	ch.Queue(headerBytes(t, Header{ReqType: uint16(GetFwUpdateInfo), Length: 8}), payload)

	buf := make([]byte, 8)
	req := scif.NewQuery(GetFwUpdateInfo, 0xa1b2c3d4, buf)
	require.NoError(t, client.Request(req))

	assert.Equal(t, payload, buf)
	assert.True(t, req.IsValid())
	assert.Equal(t, []string{"lock", "send:26", "recv:26", "recv:8", "unlock"}, ch.Events())

	sent := decodeHeader(t, ch.Sent()[0])
	assert.Equal(t, uint16(GetFwUpdateInfo), sent.ReqType)
	assert.Equal(t, uint32(0xa1b2c3d4), binary.LittleEndian.Uint32(sent.Data[:4]))
	assert.Zero(t, sent.Length)
	assertLockBalanced(t, ch)
}

func TestRequestInboundLengthMismatch(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(headerBytes(t, Header{ReqType: uint16(GetThermalInfo), Length: 4}))

	req := scif.NewQuery(GetThermalInfo, 0, make([]byte, 8))
	err := client.Request(req)

	assert.Equal(t, micsdk.InternalError, err)
	assert.Equal(t, []int{HeaderSize}, ch.ReceiveSizes())
	assert.Equal(t, "scif_recv: cmd 0x5: Response payload len 0x4: Expected 0x8", ch.ErrorText())
	assert.False(t, req.IsValid())
	assertLockBalanced(t, ch)
}

func TestRequestCardErrorFlushesPayload(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(
		headerBytes(t, Header{CardErrno: uint16(ErrInvalArgument), Length: 12}),
		make([]byte, 12),
	)

	req := scif.NewQuery(GetDeviceInfo, 0, make([]byte, SizeOf[DeviceInfo]()))
	err := client.Request(req)

	require.Error(t, err)
	assert.Equal(t, micsdk.InternalError, micsdk.CodeOf(err))
	var cardErr CardError
	require.True(t, errors.As(err, &cardErr))
	assert.Equal(t, ErrInvalArgument, cardErr)
	assert.Equal(t, int(ErrInvalArgument), req.ErrorCode())
	assert.Equal(t, []int{HeaderSize, 12}, ch.ReceiveSizes())
	assert.Equal(t, "scif_recv: cmd 0x3, Error 0x4", ch.ErrorText())
	assert.Zero(t, ch.Pending())
	assertLockBalanced(t, ch)
}

func TestRequestCardErrorWithoutPayload(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(headerBytes(t, Header{CardErrno: uint16(ErrDeviceBusy)}))

	err := client.Request(scif.NewRequest(RestartSmba, 0))

	assert.Equal(t, micsdk.InternalError, micsdk.CodeOf(err))
	assert.Equal(t, []int{HeaderSize}, ch.ReceiveSizes())
	assertLockBalanced(t, ch)
}

func TestRequestOutbound(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(headerBytes(t, Header{}), headerBytes(t, Header{}))

	payload, err := Encode(PowerWindowInfo{Threshold: 215000000, TimeWindow: 50000})
	require.NoError(t, err)
	req := scif.NewSendRequest(SetPthreshW1, 0, payload)
	require.NoError(t, client.Request(req))

	assert.Equal(t, []string{"lock", "send:26", "recv:26", "send:8", "recv:26", "unlock"}, ch.Events())
	sent := ch.Sent()
	require.Len(t, sent, 2)
	header := decodeHeader(t, sent[0])
	assert.Equal(t, uint16(SetPthreshW1), header.ReqType)
	assert.Equal(t, uint16(8), header.Length)
	assert.Equal(t, payload, sent[1])
	assert.True(t, req.IsValid())
	assertLockBalanced(t, ch)
}

func TestRequestOutboundLengthLimit(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(headerBytes(t, Header{}), headerBytes(t, Header{}))

	err := client.Request(scif.NewSendRequest(GetSystoolsdInfo, 0, make([]byte, 65546)))
	assert.Equal(t, micsdk.InvalidArg, err)
	assert.Empty(t, ch.Events())
	assert.Empty(t, ch.Sent())
	assert.Equal(t, 2, ch.Pending())
	assert.Zero(t, ch.LockCount())
	assertLockBalanced(t, ch)

	require.NoError(t, client.Request(scif.NewSendRequest(GetSystoolsdInfo, 0, make([]byte, 65535))))
	sent := ch.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, uint16(65535), decodeHeader(t, sent[0]).Length)
	assert.Len(t, sent[1], 65535)
	assertLockBalanced(t, ch)
}

func TestRequestOutboundAckError(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(
		headerBytes(t, Header{}),
		headerBytes(t, Header{CardErrno: uint16(ErrInvalStruct), Length: 3}),
		make([]byte, 3),
	)

	req := scif.NewSendRequest(SetPthreshW0, 0, make([]byte, 8))
	err := client.Request(req)

	assert.Equal(t, micsdk.InternalError, micsdk.CodeOf(err))
	assert.Equal(t, []int{HeaderSize, HeaderSize, 3}, ch.ReceiveSizes())
	assert.Equal(t, "scif_recv: cmd 0x84, Data Error 0x3", ch.ErrorText())
	assertLockBalanced(t, ch)
}

func TestRequestOutboundFirstHeaderErrorSkipsPayload(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(headerBytes(t, Header{CardErrno: uint16(ErrInsufficientPrivileges)}))

	err := client.Request(scif.NewSendRequest(SetPthreshW0, 0, make([]byte, 8)))

	assert.Equal(t, micsdk.InternalError, micsdk.CodeOf(err))
	assert.Len(t, ch.Sent(), 1)
	assertLockBalanced(t, ch)
}

func TestRequestTransportFailures(t *testing.T) {
	ioErr := errors.New("link down")
	tests := []struct {
		name     string
		send     bool
		sendErr  func(call int) error
		recvErr  func(call int) error
		wantText string
	}{
		{
			name:     "header send",
			sendErr:  func(int) error { return ioErr },
			wantText: "scif_send: cmd 0x5: Len 0x1a",
		},
		{
			name:     "header receive",
			recvErr:  func(int) error { return ioErr },
			wantText: "scif_recv: cmd 0x5: Len 0x1a",
		},
		{
			name: "payload receive",
			recvErr: func(call int) error {
				if call == 2 {
					return ioErr
				}
				return nil
			},
			wantText: "scif_recv: cmd 0x5: Response failed",
		},
		{
			name: "payload send",
			send: true,
			sendErr: func(call int) error {
				if call == 2 {
					return ioErr
				}
				return nil
			},
			wantText: "scif_send: cmd 0x5: Data Len 0x4",
		},
		{
			name: "ack receive",
			send: true,
			recvErr: func(call int) error {
				if call == 2 {
					return ioErr
				}
				return nil
			},
			wantText: "scif_recv: cmd 0x5: Data Len 0x4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, ch := newTestClient(t)
			ch.SendErr = tt.sendErr
			ch.RecvErr = tt.recvErr
			ch.Queue(headerBytes(t, Header{Length: 4}), make([]byte, 4), headerBytes(t, Header{}))

			req := scif.NewQuery(GetThermalInfo, 0, make([]byte, 4))
			if tt.send {
				req = scif.NewSendRequest(GetThermalInfo, 0, make([]byte, 4))
			}
			err := client.Request(req)

			require.Error(t, err)
			assert.Equal(t, micsdk.DeviceIOError, micsdk.CodeOf(err))
			assert.True(t, errors.Is(err, ioErr))
			assert.Equal(t, tt.wantText, ch.ErrorText())
			assertLockBalanced(t, ch)
			assert.Equal(t, 1, ch.LockCount())
		})
	}
}

func TestSmcRequestValidation(t *testing.T) {
	client, ch := newTestClient(t)

	tests := []struct {
		name string
		req  *scif.Request
	}{
		{"nil request", nil},
		{"empty buffer", scif.NewQuery(ReadSmcReg, 0x28, nil)},
		{"write over max payload", scif.NewSendRequest(WriteSmcReg, 0x60, make([]byte, MaxDataLength+1))},
		{"wrong opcode", scif.NewQuery(GetThermalInfo, 0x28, make([]byte, 4))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, micsdk.InvalidArg, client.SmcRequest(tt.req))
		})
	}

	assert.Empty(t, ch.Sent())
	assert.Empty(t, ch.ReceiveSizes())
	assert.Zero(t, ch.LockCount())
}

func TestSmcRequestRead(t *testing.T) {
	client, ch := newTestClient(t)
	response := Header{ReqType: uint16(ReadSmcReg), Length: 4}
	copy(response.Data[:], []byte{0xde, 0xad, 0xbe, 0xef, 0x55})
	ch.Queue(headerBytes(t, response))

	buf := make([]byte, 4)
	req := scif.NewQuery(ReadSmcReg, 0x128, buf)
	require.NoError(t, client.SmcRequest(req))

	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, buf)
	assert.Equal(t, []string{"lock", "send:26", "recv:26", "unlock"}, ch.Events())
	sent := decodeHeader(t, ch.Sent()[0])
	assert.Equal(t, uint32(0x28), sent.Extra)
	assert.Equal(t, uint16(4), sent.Length)
	assertLockBalanced(t, ch)
}

func TestSmcRequestWrite(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(headerBytes(t, Header{}))

	data := make([]byte, MaxDataLength)
	for i := range data {
		data[i] = byte(i + 1)
	}
	require.NoError(t, client.SmcRequest(scif.NewSendRequest(WriteSmcReg, 0x60, data)))

	sent := ch.Sent()
	require.Len(t, sent, 1)
	header := decodeHeader(t, sent[0])
	assert.Equal(t, uint16(WriteSmcReg), header.ReqType)
	assert.Equal(t, uint32(0x60), header.Extra)
	assert.Equal(t, data, header.Data[:])
	assertLockBalanced(t, ch)
}

func TestSmcRequestCardError(t *testing.T) {
	client, ch := newTestClient(t)
	ch.Queue(headerBytes(t, Header{CardErrno: uint16(ErrSmc), Length: 4}))

	req := scif.NewQuery(ReadSmcReg, 0x28, make([]byte, 4))
	err := client.SmcRequest(req)

	assert.Equal(t, micsdk.InternalError, micsdk.CodeOf(err))
	assert.Equal(t, []int{HeaderSize}, ch.ReceiveSizes())
	assert.Equal(t, "scif_recv: cmd 0x10, Error 0x9", ch.ErrorText())
	assertLockBalanced(t, ch)
}

func TestNewConnectionUsesSystoolsdPort(t *testing.T) {
	client := NewConnection(1, &scif.Config{LibraryName: "libscif"}, zaptest.NewLogger(t))

	conn, ok := client.Channel().(*scif.Connection)
	require.True(t, ok)
	assert.Equal(t, Port, conn.PortNum())
	assert.Equal(t, 1, client.DeviceNum())
	assert.False(t, client.IsOpen())
}
