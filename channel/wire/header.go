// Package wire implements the binary message framing spoken to the host
// kernel driver: fixed-size request/reply headers, a growable OutMessage
// buffer for scatter/gather replies, and the opcode table the dispatcher
// keys off of.
//
// The shapes here are grounded on github.com/jacobsa/fuse's
// internal/buffer package (InMessage/OutMessage, grown by Grow/Append) and
// the kernelResponse methods in that project's ops.go (EntryOut, AttrOut,
// OpenOut, WriteOut, InitOut sizes). Unlike jacobsa-fuse, which type-puns
// raw memory with unsafe.Pointer arithmetic against a vendored
// internal/fusekernel package this pack does not carry, this package uses
// encoding/binary over plain byte slices: same wire shapes, memory-safe
// construction.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Opcode identifies a request kind in a kernel-protocol header. The
// numeric values follow the Linux FUSE protocol's historical opcode
// space closely enough to round-trip the opcodes this module dispatches;
// they are not claimed to be byte-identical to any particular kernel
// version.
type Opcode uint32

const (
	OpLookup Opcode = iota + 1
	OpForget
	OpGetattr
	OpSetattr
	OpReadlink
	OpSymlink
	OpMknod
	OpMkdir
	OpUnlink
	OpRmdir
	OpRename
	OpLink
	OpOpen
	OpRead
	OpWrite
	OpStatfs
	OpRelease
	OpFsync
	OpSetxattr
	OpGetxattr
	OpListxattr
	OpRemovexattr
	OpFlush
	OpInit
	OpOpendir
	OpReaddir
	OpReleasedir
	OpFsyncdir
	OpGetlk
	OpSetlk
	OpSetlkw
	OpAccess
	OpCreate
	OpInterrupt
	OpBmap
	OpDestroy
	OpBatchForget
	OpFallocate
)

var opcodeNames = map[Opcode]string{
	OpLookup:      "LOOKUP",
	OpForget:      "FORGET",
	OpGetattr:     "GETATTR",
	OpSetattr:     "SETATTR",
	OpReadlink:    "READLINK",
	OpSymlink:     "SYMLINK",
	OpMknod:       "MKNOD",
	OpMkdir:       "MKDIR",
	OpUnlink:      "UNLINK",
	OpRmdir:       "RMDIR",
	OpRename:      "RENAME",
	OpLink:        "LINK",
	OpOpen:        "OPEN",
	OpRead:        "READ",
	OpWrite:       "WRITE",
	OpStatfs:      "STATFS",
	OpRelease:     "RELEASE",
	OpFsync:       "FSYNC",
	OpSetxattr:    "SETXATTR",
	OpGetxattr:    "GETXATTR",
	OpListxattr:   "LISTXATTR",
	OpRemovexattr: "REMOVEXATTR",
	OpFlush:       "FLUSH",
	OpInit:        "INIT",
	OpOpendir:     "OPENDIR",
	OpReaddir:     "READDIR",
	OpReleasedir:  "RELEASEDIR",
	OpFsyncdir:    "FSYNCDIR",
	OpGetlk:       "GETLK",
	OpSetlk:       "SETLK",
	OpSetlkw:      "SETLKW",
	OpAccess:      "ACCESS",
	OpCreate:      "CREATE",
	OpInterrupt:   "INTERRUPT",
	OpBmap:        "BMAP",
	OpDestroy:     "DESTROY",
	OpBatchForget: "BATCH_FORGET",
	OpFallocate:   "FALLOCATE",
}

func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return fmt.Sprintf("opcode(%d)", uint32(o))
}

// InHeaderSize is the byte size of InHeader on the wire.
const InHeaderSize = 40

// InHeader is the fixed-size header prefixing every request read from the
// kernel FD. Field order matches the on-the-wire layout.
type InHeader struct {
	Len     uint32
	Opcode  Opcode
	Unique  uint64
	Nodeid  uint64 // the "inode" the kernel addresses this request to
	Uid     uint32
	Gid     uint32
	Pid     uint32
	Padding uint32
}

// DecodeInHeader parses the fixed header prefix of a request. It reports
// a kernel-protocol error (truncated header) if fewer than InHeaderSize
// bytes are available.
func DecodeInHeader(b []byte) (InHeader, error) {
	var h InHeader
	if len(b) < InHeaderSize {
		return h, fmt.Errorf("truncated header: got %d bytes, need %d", len(b), InHeaderSize)
	}
	h.Len = binary.LittleEndian.Uint32(b[0:4])
	h.Opcode = Opcode(binary.LittleEndian.Uint32(b[4:8]))
	h.Unique = binary.LittleEndian.Uint64(b[8:16])
	h.Nodeid = binary.LittleEndian.Uint64(b[16:24])
	h.Uid = binary.LittleEndian.Uint32(b[24:28])
	h.Gid = binary.LittleEndian.Uint32(b[28:32])
	h.Pid = binary.LittleEndian.Uint32(b[32:36])
	h.Padding = binary.LittleEndian.Uint32(b[36:40])
	return h, nil
}

// OutHeaderSize is the byte size of OutHeader on the wire.
const OutHeaderSize = 16

// OutHeader is the fixed-size header prefixing every reply written to the
// kernel FD.
type OutHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

// Encode renders the header in wire byte order.
func (h OutHeader) Encode() []byte {
	b := make([]byte, OutHeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Len)
	binary.LittleEndian.PutUint32(b[4:8], uint32(h.Error))
	binary.LittleEndian.PutUint64(b[8:16], h.Unique)
	return b
}
