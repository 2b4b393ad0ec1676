package wire

import (
	"encoding/binary"
	"fmt"
)

// The structs below are the fixed-size reply bodies each opcode's
// kernelResponse appends to an OutMessage, grounded on the struct shapes
// implied by github.com/jacobsa/fuse's fuseops/ops.go (EntryOutSize,
// AttrOutSize, OpenOut, WriteOut, InitOut, StatfsOut).

// EntryOut is the reply to lookup/mkdir/symlink/create/mknod/link: the
// child's identity and cache-expiration policy.
type EntryOut struct {
	NodeID         uint64
	Generation     uint64
	EntryValid     uint64
	AttrValid      uint64
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           Attr
}

const entryOutSize = 8 + 8 + 8 + 8 + 4 + 4 + attrSize

// EntryOutSize returns the wire size of an EntryOut, mirroring
// fusekernel.EntryOutSize(protocol) in jacobsa-fuse (there, protocol
// version changes padding; here it is constant since this module speaks
// one wire shape).
func EntryOutSize() int { return entryOutSize }

// Attr mirrors the inode attributes the kernel expects back from
// getattr/setattr/lookup.
type Attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Nlink     uint32
	UID       uint32
	GID       uint32
	Rdev      uint32
	BlkSize   uint32
	Padding   uint32
}

const attrSize = 8*6 + 4*10

func encodeAttr(a Attr) []byte {
	b := make([]byte, attrSize)
	o := 0
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(b[o:o+8], v); o += 8 }
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(b[o:o+4], v); o += 4 }

	putU64(a.Ino)
	putU64(a.Size)
	putU64(a.Blocks)
	putU64(a.Atime)
	putU64(a.Mtime)
	putU64(a.Ctime)
	putU32(a.AtimeNsec)
	putU32(a.MtimeNsec)
	putU32(a.CtimeNsec)
	putU32(a.Mode)
	putU32(a.Nlink)
	putU32(a.UID)
	putU32(a.GID)
	putU32(a.Rdev)
	putU32(a.BlkSize)
	putU32(a.Padding)

	return b
}

func (e EntryOut) Encode() []byte {
	b := make([]byte, entryOutSize)
	o := 0
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(b[o:o+8], v); o += 8 }
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(b[o:o+4], v); o += 4 }

	putU64(e.NodeID)
	putU64(e.Generation)
	putU64(e.EntryValid)
	putU64(e.AttrValid)
	putU32(e.EntryValidNsec)
	putU32(e.AttrValidNsec)
	copy(b[o:], encodeAttr(e.Attr))

	return b
}

// AttrOut is the reply to getattr/setattr alone (no entry-cache fields).
type AttrOut struct {
	AttrValid     uint64
	AttrValidNsec uint32
	Padding       uint32
	Attr          Attr
}

func AttrOutSize() int { return 8 + 4 + 4 + attrSize }

func (a AttrOut) Encode() []byte {
	b := make([]byte, AttrOutSize())
	binary.LittleEndian.PutUint64(b[0:8], a.AttrValid)
	binary.LittleEndian.PutUint32(b[8:12], a.AttrValidNsec)
	copy(b[16:], encodeAttr(a.Attr))
	return b
}

// OpenOut is the reply to open/opendir/create: the file handle.
type OpenOut struct {
	Fh        uint64
	OpenFlags uint32
	Padding   uint32
}

func (o OpenOut) Encode() []byte {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], o.Fh)
	binary.LittleEndian.PutUint32(b[8:12], o.OpenFlags)
	return b
}

// WriteOut is the reply to write: bytes accepted.
type WriteOut struct {
	Size uint32
}

func (w WriteOut) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b[0:4], w.Size)
	return b
}

// InitOut is the reply to the handshake's init op.
type InitOut struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        uint32
	MaxWrite     uint32
	MaxPages     uint16
}

const initOutSize = 24

// InitOutSize returns the wire size of an InitOut.
func InitOutSize() int { return initOutSize }

func (i InitOut) Encode() []byte {
	b := make([]byte, initOutSize)
	binary.LittleEndian.PutUint32(b[0:4], i.Major)
	binary.LittleEndian.PutUint32(b[4:8], i.Minor)
	binary.LittleEndian.PutUint32(b[8:12], i.MaxReadahead)
	binary.LittleEndian.PutUint32(b[12:16], i.Flags)
	binary.LittleEndian.PutUint32(b[16:20], i.MaxWrite)
	binary.LittleEndian.PutUint16(b[20:22], i.MaxPages)
	return b
}

// DecodeInitOut parses a previously encoded InitOut. Used by
// InitializeFromTakeover to adopt a predecessor's already-negotiated
// handshake instead of asking the kernel again.
func DecodeInitOut(b []byte) (InitOut, error) {
	if len(b) < initOutSize {
		return InitOut{}, fmt.Errorf("truncated init params: got %d bytes, need %d", len(b), initOutSize)
	}
	return InitOut{
		Major:        binary.LittleEndian.Uint32(b[0:4]),
		Minor:        binary.LittleEndian.Uint32(b[4:8]),
		MaxReadahead: binary.LittleEndian.Uint32(b[8:12]),
		Flags:        binary.LittleEndian.Uint32(b[12:16]),
		MaxWrite:     binary.LittleEndian.Uint32(b[16:20]),
		MaxPages:     binary.LittleEndian.Uint16(b[20:22]),
	}, nil
}

// InitIn is the kernel's handshake request body: the protocol version it
// speaks, the readahead it proposes, and its own capability flags.
type InitIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        InitFlags
}

const initInSize = 16

// DecodeInitIn parses the fixed-size init request body out of the
// message's remaining (post-header) bytes.
func DecodeInitIn(m *InMessage) (InitIn, error) {
	b := m.ConsumeBytes(initInSize)
	if b == nil {
		return InitIn{}, fmt.Errorf("truncated init request: need %d bytes, have %d", initInSize, m.Remaining())
	}
	return InitIn{
		Major:        binary.LittleEndian.Uint32(b[0:4]),
		Minor:        binary.LittleEndian.Uint32(b[4:8]),
		MaxReadahead: binary.LittleEndian.Uint32(b[8:12]),
		Flags:        InitFlags(binary.LittleEndian.Uint32(b[12:16])),
	}, nil
}

// InitFlags is the capability bitmask exchanged during the handshake.
// Bit positions follow the historical Linux FUSE protocol assignments
// closely enough to round-trip what this module negotiates; as with
// Opcode, they are not claimed to be byte-identical to any one kernel
// version.
type InitFlags uint32

const (
	InitAsyncRead      InitFlags = 1 << 0
	InitBigWrites      InitFlags = 1 << 5
	InitWritebackCache InitFlags = 1 << 16
	InitMaxPagesFlag   InitFlags = 1 << 22
)

// Handshake constants this module advertises in InitOut: the protocol
// version it speaks and the write/page limits it enforces.
const (
	ProtoMajor      uint32 = 7
	ProtoMinor      uint32 = 31
	MaxWriteSize    uint32 = 1 << 20
	DefaultMaxPages uint16 = 256
)

// StatfsOut is the reply to statfs.
type StatfsOut struct {
	Blocks, Bfree, Bavail, Files, Ffree uint64
	Bsize, Namelen, Frsize              uint32
}

func (s StatfsOut) Encode() []byte {
	b := make([]byte, 80)
	o := 0
	putU64 := func(v uint64) { binary.LittleEndian.PutUint64(b[o:o+8], v); o += 8 }
	putU32 := func(v uint32) { binary.LittleEndian.PutUint32(b[o:o+4], v); o += 4 }
	putU64(s.Blocks)
	putU64(s.Bfree)
	putU64(s.Bavail)
	putU64(s.Files)
	putU64(s.Ffree)
	putU32(s.Bsize)
	putU32(s.Namelen)
	putU32(s.Frsize)
	return b
}
