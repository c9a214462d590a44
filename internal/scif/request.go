// internal/scif/request.go
package scif

// Request describes one protocol exchange: direction, command, parameter,
// the payload buffer and the card error code sink.
type Request struct {
	send      bool
	command   uint32
	parameter uint32
	buffer    []byte
	errorCode int
}

// NewRequest creates an inbound request without payload.
func NewRequest(command, parameter uint32) *Request {
	return &Request{command: command, parameter: parameter, errorCode: -1}
}

// NewQuery creates an inbound request that expects exactly len(buf) bytes.
func NewQuery(command, parameter uint32, buf []byte) *Request {
	return &Request{command: command, parameter: parameter, buffer: buf, errorCode: -1}
}

// NewSendRequest creates an outbound request carrying buf to the card.
func NewSendRequest(command, parameter uint32, buf []byte) *Request {
	return &Request{send: true, command: command, parameter: parameter, buffer: buf, errorCode: -1}
}

func (r *Request) IsSendRequest() bool { return r.send }

func (r *Request) SetSendRequest(send bool) { r.send = send }

func (r *Request) Command() uint32 { return r.command }

func (r *Request) Parameter() uint32 { return r.parameter }

func (r *Request) Buffer() []byte { return r.buffer }

func (r *Request) ByteCount() int { return len(r.buffer) }

// ErrorCode is -1 until the request completes, 0 on success, otherwise the
// card reported error.
func (r *Request) ErrorCode() int { return r.errorCode }

func (r *Request) SetError(code int) { r.errorCode = code }

func (r *Request) ClearError() { r.errorCode = 0 }

func (r *Request) IsValid() bool { return r.errorCode == 0 }

func (r *Request) IsError() bool { return r.errorCode != 0 }
