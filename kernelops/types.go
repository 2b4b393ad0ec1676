// Package kernelops implements the request dispatcher: for every
// protocol opcode, a handler of shape
// (request-context, header, argument-bytes) -> (reply, error), keyed in
// a per-opcode table alongside display name, stats counter, and
// access-type classification.
//
// Handlers are grounded on github.com/jacobsa/fuse's fuseops/ops.go and
// fuseops/common_op.go: each jacobsa-fuse *Op type (LookUpInodeOp,
// MkDirOp, ...) becomes one handler function here that parses its own
// argument bytes with the wire.InMessage cursor, calls into Backend (the
// generalization of jacobsa-fuse's embedding FileSystem interface, now
// fronting this module's store/glob/inode layer instead of a concrete
// backing filesystem), and renders its own reply via wire.OutMessage.
package kernelops

import (
	"context"
	"time"

	"github.com/edenfs/kernelchannel/channel/wire"
	"github.com/edenfs/kernelchannel/errorkind"
)

// InodeID is the kernel-facing inode identifier. The root inode is a
// reserved constant.
type InodeID uint64

// RootInodeID is the reserved root inode number.
const RootInodeID InodeID = 1

// HandleID identifies an open file or directory handle.
type HandleID uint64

// DirOffset is an opaque directory-stream cursor, meaningful only to the
// ReadDir call that produced it.
type DirOffset uint64

// EntryKind classifies a tree entry, mirroring store.EntryKind (kept as
// a distinct type here so kernelops does not need to import store for
// its public surface, matching jacobsa-fuse's fuseops.Filetype pattern of
// a small local enum with its own String()).
type EntryKind int

const (
	KindRegular EntryKind = iota
	KindExecutable
	KindSymlink
	KindDirectory
)

func (k EntryKind) String() string {
	switch k {
	case KindRegular:
		return "file"
	case KindExecutable:
		return "executable"
	case KindSymlink:
		return "symlink"
	case KindDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// Attributes mirrors the subset of inode metadata the kernel cares
// about, analogous to fuseops.InodeAttributes.
type Attributes struct {
	Size   uint64
	Nlink  uint32
	Mode   uint32
	UID    uint32
	GID    uint32
	Atime  time.Time
	Mtime  time.Time
	Ctime  time.Time
	Crtime time.Time
}

// ChildInodeEntry is returned by any opcode that mints or re-resolves a
// child inode (lookup, mkdir, create, symlink, mknod, link), mirroring
// fuseops.ChildInodeEntry.
type ChildInodeEntry struct {
	Child                InodeID
	Generation           uint64
	Attributes           Attributes
	AttributesExpiration time.Time
	EntryExpiration      time.Time
}

// OpHeader carries the per-request identity threaded through every
// handler, mirroring jacobsa-fuse's commonOp.Header()/bazilReq.Hdr().
type OpHeader struct {
	Unique uint64
	Inode  InodeID
	UID    uint32
	GID    uint32
	PID    uint32
	Opcode wire.Opcode
}

// Backend is the contract a Dispatcher calls into: the inode/object
// layer sitting on top of the glob engine and backing-store stack. It
// generalizes jacobsa-fuse's FileSystem interface (file_system.go) away
// from a single concrete implementation so this module can be tested
// against a fake.
type Backend interface {
	LookUpInode(ctx context.Context, parent InodeID, name string) (ChildInodeEntry, error)
	GetInodeAttributes(ctx context.Context, inode InodeID) (Attributes, time.Time, error)
	SetInodeAttributes(ctx context.Context, inode InodeID, req SetAttrRequest) (Attributes, time.Time, error)
	ForgetInode(ctx context.Context, inode InodeID, n uint64) error
	BatchForgetInodes(ctx context.Context, forgets map[InodeID]uint64) error

	MkDir(ctx context.Context, parent InodeID, name string, mode uint32) (ChildInodeEntry, error)
	MkNod(ctx context.Context, parent InodeID, name string, mode uint32, rdev uint32) (ChildInodeEntry, error)
	CreateFile(ctx context.Context, parent InodeID, name string, mode uint32, flags uint32) (ChildInodeEntry, HandleID, error)
	CreateSymlink(ctx context.Context, parent InodeID, name, target string) (ChildInodeEntry, error)
	CreateLink(ctx context.Context, parent InodeID, name string, target InodeID) (ChildInodeEntry, error)

	RmDir(ctx context.Context, parent InodeID, name string) error
	Unlink(ctx context.Context, parent InodeID, name string) error
	Rename(ctx context.Context, oldParent InodeID, oldName string, newParent InodeID, newName string) error

	ReadLink(ctx context.Context, inode InodeID) (string, error)

	OpenDir(ctx context.Context, inode InodeID) (HandleID, error)
	ReadDir(ctx context.Context, inode InodeID, handle HandleID, offset DirOffset, size int) ([]byte, error)
	ReleaseDirHandle(ctx context.Context, handle HandleID) error
	FsyncDir(ctx context.Context, inode InodeID, handle HandleID) error

	OpenFile(ctx context.Context, inode InodeID, flags uint32) (HandleID, error)
	ReadFile(ctx context.Context, inode InodeID, handle HandleID, offset int64, size int) ([]byte, error)
	WriteFile(ctx context.Context, inode InodeID, handle HandleID, offset int64, data []byte) (int, error)
	ReleaseFileHandle(ctx context.Context, handle HandleID) error
	SyncFile(ctx context.Context, inode InodeID, handle HandleID) error
	FlushFile(ctx context.Context, inode InodeID, handle HandleID) error
	FallocateFile(ctx context.Context, inode InodeID, handle HandleID, mode uint32, offset, length int64) error

	StatFS(ctx context.Context) (StatFSResult, error)
	Access(ctx context.Context, inode InodeID, mask uint32) error
	Bmap(ctx context.Context, inode InodeID, blockSize uint32, block uint64) (uint64, error)

	GetXattr(ctx context.Context, inode InodeID, name string, size int) ([]byte, error)
	SetXattr(ctx context.Context, inode InodeID, name string, value []byte, flags uint32) error
	ListXattr(ctx context.Context, inode InodeID, size int) ([]byte, error)
	RemoveXattr(ctx context.Context, inode InodeID, name string) error
}

// SetAttrRequest carries the optional fields setattr may update; nil
// means "leave unchanged", mirroring fuseops.SetInodeAttributesOp's
// pointer fields.
type SetAttrRequest struct {
	Size  *uint64
	Mode  *uint32
	Atime *time.Time
	Mtime *time.Time
}

// StatFSResult is the reply payload for statfs.
type StatFSResult struct {
	Blocks, BlocksFree, BlocksAvail uint64
	Files, FilesFree                uint64
	BlockSize, NameLen, FragSize    uint32
}

// wellKnownXattrs are answered "no data" by handleGetxattr's
// security-cap/ACL fast path without ever reaching Backend.
var wellKnownXattrs = map[string]bool{
	"security.capability": true,
	"system.posix_acl_access":  true,
	"system.posix_acl_default": true,
}

// IsFastPathXattr reports whether name is handled by handleGetxattr's
// fast path.
func IsFastPathXattr(name string) bool {
	return wellKnownXattrs[name]
}

// errNotImplemented is the shared reply for opcodes intentionally left
// unhandled (lock opcodes; fallocate with non-default mode bits).
var errNotImplemented = errorkind.Errno(errnoNOSYS, "not implemented")
