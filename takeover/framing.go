// Package takeover implements the protocol for handing the live kernel
// connection, Thrift server socket, lock file, and
// per-mount inode snapshots from an outgoing process to an incoming one
// without applications observing an interruption.
//
// Message framing and the FD-out-of-band-via-SCM_RIGHTS convention are
// grounded on jacobsa-fuse's mount_linux.go, which already builds and
// parses a Unix-socket control message to receive the kernel FD from
// fusermount; this package generalizes that single-FD receive into an
// ordered multi-FD send/receive pair plus a length-prefixed payload.
package takeover

import (
	"encoding/binary"

	"github.com/edenfs/kernelchannel/errorkind"
)

// Capability is one bit of the negotiated capability bitmask. Each bit
// enables one protocol feature; the two sides negotiate down to their
// intersection rather than aborting on a mismatch, so long as both sides
// share CapBaseSerialization.
type Capability uint64

const (
	CapBaseSerialization Capability = 1 << iota
	CapOrderedFDs
	CapOptionalMountdSocket
	CapChunkedMessage
	CapThriftSerialization
)

// Negotiate returns the intersection of the two sides' claimed
// capabilities, downgrading CapOptionalMountdSocket off when
// CapOrderedFDs is not present in the result: an optional mountd socket
// is only meaningful when FD order is guaranteed.
func Negotiate(local, remote Capability) (Capability, error) {
	caps := local & remote
	if caps&CapBaseSerialization == 0 {
		return 0, errorkind.New(errorkind.KindKernelProtocol, "takeover: no shared base serialization capability")
	}
	if caps&CapOrderedFDs == 0 {
		caps &^= CapOptionalMountdSocket
	}
	return caps, nil
}

const (
	headerSize   = 4 + 4 + 8 // version, header-size, capability-bitmask
	protoVersion = uint32(1)
)

// Frame is one on-wire takeover message: the version/header-size/
// capability-bitmask preamble plus an opaque serialized payload.
type Frame struct {
	Version      uint32
	Capabilities Capability
	Payload      []byte
}

// Encode renders f in the protocol's wire byte order.
func (f Frame) Encode() []byte {
	buf := make([]byte, headerSize+len(f.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], f.Version)
	binary.LittleEndian.PutUint32(buf[4:8], headerSize)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(f.Capabilities))
	copy(buf[headerSize:], f.Payload)
	return buf
}

// DecodeFrame parses the preamble and returns a Frame referencing the
// remaining bytes of buf as its payload (aliased, not copied).
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < headerSize {
		return Frame{}, errorkind.New(errorkind.KindKernelProtocol, "takeover: truncated frame header: got %d bytes, want >= %d", len(buf), headerSize)
	}
	version := binary.LittleEndian.Uint32(buf[0:4])
	hdrSize := binary.LittleEndian.Uint32(buf[4:8])
	caps := binary.LittleEndian.Uint64(buf[8:16])
	if int(hdrSize) < headerSize || int(hdrSize) > len(buf) {
		return Frame{}, errorkind.New(errorkind.KindKernelProtocol, "takeover: invalid header-size %d in frame of %d bytes", hdrSize, len(buf))
	}
	return Frame{
		Version:      version,
		Capabilities: Capability(caps),
		Payload:      buf[hdrSize:],
	}, nil
}
