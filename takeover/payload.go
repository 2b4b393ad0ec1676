package takeover

import (
	"encoding/binary"

	"github.com/edenfs/kernelchannel/errorkind"
)

// ProtocolVariant distinguishes the per-mount connection parameters
// carried in a MountState payload.
type ProtocolVariant uint32

const (
	ProtocolFuse ProtocolVariant = iota
	ProtocolNFS
)

// MountState is one mount's worth of takeover payload: everything the
// incoming process needs to resume serving the mount without the
// application observing an interruption.
type MountState struct {
	MountPath      string
	StateDirectory string
	Variant        ProtocolVariant
	InodeMapBlob   []byte
	// ConnectionParams is the binary connection parameters as negotiated
	// for the FUSE variant (e.g. the kernel's INIT reply fields); empty
	// for NFS mounts.
	ConnectionParams []byte
	// FDOrder names, in the order they must be read off the SCM_RIGHTS
	// control message, which descriptor each slot is (e.g. "fuse-device",
	// "mountd-socket", "nfsd-socket").
	FDOrder []string
}

func appendString(buf []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, s...)
}

func readString(buf []byte) (string, []byte, error) {
	if len(buf) < 4 {
		return "", nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: truncated string length")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint64(len(buf)) < uint64(n) {
		return "", nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: truncated string body: want %d bytes, have %d", n, len(buf))
	}
	return string(buf[:n]), buf[n:], nil
}

func appendBytes(buf []byte, b []byte) []byte {
	return appendString(buf, string(b))
}

func readBytes(buf []byte) ([]byte, []byte, error) {
	s, rest, err := readString(buf)
	if err != nil {
		return nil, nil, err
	}
	return []byte(s), rest, nil
}

// EncodeMountState serializes m in the tag-free, length-prefixed style
// used throughout the protocol's typed bodies.
func EncodeMountState(m MountState) []byte {
	var buf []byte
	buf = appendString(buf, m.MountPath)
	buf = appendString(buf, m.StateDirectory)
	var variantBuf [4]byte
	binary.LittleEndian.PutUint32(variantBuf[:], uint32(m.Variant))
	buf = append(buf, variantBuf[:]...)
	buf = appendBytes(buf, m.InodeMapBlob)
	buf = appendBytes(buf, m.ConnectionParams)

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(m.FDOrder)))
	buf = append(buf, countBuf[:]...)
	for _, name := range m.FDOrder {
		buf = appendString(buf, name)
	}
	return buf
}

// DecodeMountState is the inverse of EncodeMountState:
// DecodeMountState(EncodeMountState(m)) must equal m for every
// capability bitmask both sides accept; this package's wire format does
// not vary with capabilities, so the property holds unconditionally.
func DecodeMountState(buf []byte) (MountState, error) {
	var m MountState
	var err error

	m.MountPath, buf, err = readString(buf)
	if err != nil {
		return MountState{}, err
	}
	m.StateDirectory, buf, err = readString(buf)
	if err != nil {
		return MountState{}, err
	}
	if len(buf) < 4 {
		return MountState{}, errorkind.New(errorkind.KindKernelProtocol, "takeover: truncated variant tag")
	}
	m.Variant = ProtocolVariant(binary.LittleEndian.Uint32(buf[:4]))
	buf = buf[4:]

	m.InodeMapBlob, buf, err = readBytes(buf)
	if err != nil {
		return MountState{}, err
	}
	m.ConnectionParams, buf, err = readBytes(buf)
	if err != nil {
		return MountState{}, err
	}

	if len(buf) < 4 {
		return MountState{}, errorkind.New(errorkind.KindKernelProtocol, "takeover: truncated fd-order count")
	}
	count := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	m.FDOrder = make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var name string
		name, buf, err = readString(buf)
		if err != nil {
			return MountState{}, err
		}
		m.FDOrder = append(m.FDOrder, name)
	}
	return m, nil
}

// messageType distinguishes ping from a state payload at the Frame
// level; it is the first byte of every Frame.Payload.
type messageType byte

const (
	msgTypePing messageType = iota
	msgTypeState
)

// EncodePing builds the zero-body ping payload used by the outgoing
// side to verify the incoming side is responsive before committing.
func EncodePing() []byte {
	return []byte{byte(msgTypePing)}
}

// IsPing reports whether payload is a ping message.
func IsPing(payload []byte) bool {
	return len(payload) == 1 && messageType(payload[0]) == msgTypePing
}

// EncodeStatePayload wraps one or more serialized MountStates behind the
// state message-type tag.
func EncodeStatePayload(mounts []MountState) []byte {
	buf := []byte{byte(msgTypeState)}
	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(mounts)))
	buf = append(buf, countBuf[:]...)
	for _, m := range mounts {
		buf = appendBytes(buf, EncodeMountState(m))
	}
	return buf
}

// DecodeStatePayload is the inverse of EncodeStatePayload.
func DecodeStatePayload(payload []byte) ([]MountState, error) {
	if len(payload) < 1 || messageType(payload[0]) != msgTypeState {
		return nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: payload is not a state message")
	}
	buf := payload[1:]
	if len(buf) < 4 {
		return nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: truncated mount count")
	}
	count := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]

	mounts := make([]MountState, 0, count)
	for i := uint32(0); i < count; i++ {
		var raw []byte
		var err error
		raw, buf, err = readBytes(buf)
		if err != nil {
			return nil, err
		}
		m, err := DecodeMountState(raw)
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}
