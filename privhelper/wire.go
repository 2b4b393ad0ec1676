// Package privhelper implements the privilege-helper wire protocol: an
// unprivileged daemon process asks a small privileged helper to perform
// mount/unmount and other operations that require elevated rights, over
// a length-prefixed binary protocol.
//
// Framing and the tag-free length-prefixed body encoding mirror
// channel/wire's fixed-size reply structs in spirit (every field has a
// statically known decode order, no self-describing tags), grounded on
// the same "encode into a growable byte buffer, decode with a cursor"
// style as kernelops/parse.go.
package privhelper

import (
	"encoding/binary"

	"github.com/edenfs/kernelchannel/errorkind"
)

const (
	protoVersion      = uint32(1)
	headerWireSize    = 4 + 4 + 4 + 4 // version, metadata-length, transaction-id, message-type
)

// MessageType identifies the body layout of a request or response.
type MessageType uint32

const (
	MsgFuseMount MessageType = iota
	MsgNFSMount
	MsgFuseUnmount
	MsgNFSUnmount
	MsgTakeoverShutdown
	MsgTakeoverStartup
	MsgBindMount
	MsgBindUnmount
	MsgSetLogFile
	MsgSetDaemonTimeout
	MsgSetUseProductDevice
	MsgGetPID
	MsgStartFileAccessMonitor
	MsgStopFileAccessMonitor
	MsgSetMemoryPriority
	MsgError
)

// UnmountFlags composes the option bits for an unmount request.
type UnmountFlags uint32

const (
	UnmountForce  UnmountFlags = 1
	UnmountDetach UnmountFlags = 2
	UnmountExpire UnmountFlags = 4
)

// Header is the fixed preamble of every request and response.
type Header struct {
	Version       uint32
	TransactionID uint32
	Type          MessageType
}

// Encode renders header followed by body as one wire message. The
// metadata-length field records the header's own size, matching the
// framing style used for takeover frames.
func Encode(header Header, body []byte) []byte {
	buf := make([]byte, headerWireSize+len(body))
	binary.LittleEndian.PutUint32(buf[0:4], header.Version)
	binary.LittleEndian.PutUint32(buf[4:8], headerWireSize)
	binary.LittleEndian.PutUint32(buf[8:12], header.TransactionID)
	binary.LittleEndian.PutUint32(buf[12:16], uint32(header.Type))
	copy(buf[headerWireSize:], body)
	return buf
}

// DecodeHeader parses the preamble and returns the header plus the
// remaining body bytes. A version mismatch against want is a fatal
// protocol error.
func DecodeHeader(buf []byte, want uint32) (Header, []byte, error) {
	if len(buf) < headerWireSize {
		return Header{}, nil, errorkind.New(errorkind.KindPrivhelperProtocol, "privhelper: truncated header: got %d bytes, want >= %d", len(buf), headerWireSize)
	}
	version := binary.LittleEndian.Uint32(buf[0:4])
	metaLen := binary.LittleEndian.Uint32(buf[4:8])
	txnID := binary.LittleEndian.Uint32(buf[8:12])
	msgType := binary.LittleEndian.Uint32(buf[12:16])
	if version != want {
		return Header{}, nil, errorkind.New(errorkind.KindPrivhelperProtocol, "privhelper: version mismatch: got %d, want %d", version, want)
	}
	if int(metaLen) < headerWireSize || int(metaLen) > len(buf) {
		return Header{}, nil, errorkind.New(errorkind.KindPrivhelperProtocol, "privhelper: invalid metadata-length %d", metaLen)
	}
	return Header{Version: version, TransactionID: txnID, Type: MessageType(msgType)}, buf[metaLen:], nil
}

// NewHeader builds a request header at the protocol's current version.
func NewHeader(txnID uint32, typ MessageType) Header {
	return Header{Version: protoVersion, TransactionID: txnID, Type: typ}
}

// writer accumulates a typed body using the protocol's tag-free
// length-prefixed encoding.
type writer struct{ buf []byte }

func (w *writer) Bool(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *writer) U16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *writer) U32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *writer) String(s string) {
	w.U32(uint32(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) OptionalString(s *string) {
	w.Bool(s != nil)
	if s != nil {
		w.String(*s)
	}
}

func (w *writer) SocketAddress(addr SocketAddress) {
	w.Bool(addr.IsInet)
	if addr.IsInet {
		w.String(addr.Host)
		w.U16(addr.Port)
		return
	}
	w.String(addr.Path)
}

func (w *writer) Bytes() []byte { return w.buf }

// reader parses a typed body written by writer, consuming fields in the
// same order they were appended.
type reader struct{ buf []byte }

func (r *reader) Bool() (bool, error) {
	if len(r.buf) < 1 {
		return false, errorkind.New(errorkind.KindPrivhelperProtocol, "privhelper: truncated bool")
	}
	v := r.buf[0] != 0
	r.buf = r.buf[1:]
	return v, nil
}

func (r *reader) U16() (uint16, error) {
	if len(r.buf) < 2 {
		return 0, errorkind.New(errorkind.KindPrivhelperProtocol, "privhelper: truncated u16")
	}
	v := binary.LittleEndian.Uint16(r.buf[:2])
	r.buf = r.buf[2:]
	return v, nil
}

func (r *reader) U32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, errorkind.New(errorkind.KindPrivhelperProtocol, "privhelper: truncated u32")
	}
	v := binary.LittleEndian.Uint32(r.buf[:4])
	r.buf = r.buf[4:]
	return v, nil
}

func (r *reader) String() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	if uint64(len(r.buf)) < uint64(n) {
		return "", errorkind.New(errorkind.KindPrivhelperProtocol, "privhelper: truncated string: want %d bytes, have %d", n, len(r.buf))
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s, nil
}

func (r *reader) OptionalString() (*string, error) {
	present, err := r.Bool()
	if err != nil || !present {
		return nil, err
	}
	s, err := r.String()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *reader) SocketAddress() (SocketAddress, error) {
	isInet, err := r.Bool()
	if err != nil {
		return SocketAddress{}, err
	}
	if isInet {
		host, err := r.String()
		if err != nil {
			return SocketAddress{}, err
		}
		port, err := r.U16()
		if err != nil {
			return SocketAddress{}, err
		}
		return SocketAddress{IsInet: true, Host: host, Port: port}, nil
	}
	path, err := r.String()
	if err != nil {
		return SocketAddress{}, err
	}
	return SocketAddress{IsInet: false, Path: path}, nil
}

func (r *reader) StringList() ([]string, error) {
	n, err := r.U32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.String()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (w *writer) StringList(ss []string) {
	w.U32(uint32(len(ss)))
	for _, s := range ss {
		w.String(s)
	}
}

// SocketAddress is either an inet host/port pair or a Unix socket path.
type SocketAddress struct {
	IsInet bool
	Host   string
	Port   uint16
	Path   string
}

// ErrorReply is the body of an MsgError response.
type ErrorReply struct {
	ErrorNumber   uint32
	Message       string
	ExceptionType string
}

// Encode renders e as a typed body.
func (e ErrorReply) Encode() []byte {
	w := &writer{}
	w.U32(e.ErrorNumber)
	w.String(e.Message)
	w.String(e.ExceptionType)
	return w.Bytes()
}

// DecodeErrorReply parses the body of an MsgError response.
func DecodeErrorReply(body []byte) (ErrorReply, error) {
	r := &reader{buf: body}
	errNum, err := r.U32()
	if err != nil {
		return ErrorReply{}, err
	}
	msg, err := r.String()
	if err != nil {
		return ErrorReply{}, err
	}
	exc, err := r.String()
	if err != nil {
		return ErrorReply{}, err
	}
	return ErrorReply{ErrorNumber: errNum, Message: msg, ExceptionType: exc}, nil
}
