package kernelops

import (
	"context"
	"sync/atomic"

	"github.com/edenfs/kernelchannel/channel/wire"
	"github.com/edenfs/kernelchannel/errorkind"
)

// AccessType classifies a handler for telemetry sampling, mirroring
// jacobsa-fuse's per-opcode handler-table entry.
type AccessType int

const (
	AccessRead AccessType = iota
	AccessWrite
	AccessOther
)

// Stats is the per-opcode counter pair kept in the handler table.
type Stats struct {
	Requests int64
	Errors   int64
}

func (s *Stats) recordSuccess() { atomic.AddInt64(&s.Requests, 1) }
func (s *Stats) recordError() {
	atomic.AddInt64(&s.Requests, 1)
	atomic.AddInt64(&s.Errors, 1)
}

// HandlerFunc parses argument bytes out of args, calls Backend, and
// writes a reply into reply. It returns a structured error instead of
// throwing, per the Design Notes' "result types" guidance.
type HandlerFunc func(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error

// HandlerEntry is one row of the per-opcode handler table: display
// name, handler, an argument renderer for trace logs, a stats
// counter, and an access-type classification.
type HandlerEntry struct {
	Name        string
	Handler     HandlerFunc
	AccessType  AccessType
	Stats       Stats
	DescribeArg func(args []byte) string
}

// Options configures parsing behavior that is a per-mount property, not
// a per-request one: UTF-8 enforcement and case sensitivity (the latter
// is consumed by the glob/inode layer, not this package, but is threaded
// through Options for handlers that need to log it).
type Options struct {
	EnforceUTF8     bool
	CaseInsensitive bool
}

// Dispatcher holds the opcode -> HandlerEntry table.
type Dispatcher struct {
	table map[wire.Opcode]*HandlerEntry
}

// NewDispatcher builds the full opcode table. The three lock opcodes
// are registered to handleNotImplemented, which answers ENOSYS so the
// kernel handles locking locally.
//
// OpInit is registered too, but only to answer a stray INIT arriving
// after the handshake: the channel consumes the real first INIT
// directly off the device during its handshake, before any worker ever
// reaches Dispatch.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		table: make(map[wire.Opcode]*HandlerEntry),
	}
	d.register(wire.OpInit, "init", AccessOther, handleUnexpectedInit)
	d.register(wire.OpLookup, "lookup", AccessRead, handleLookup)
	d.register(wire.OpForget, "forget", AccessOther, handleForget)
	d.register(wire.OpBatchForget, "batch-forget", AccessOther, handleBatchForget)
	d.register(wire.OpGetattr, "getattr", AccessRead, handleGetattr)
	d.register(wire.OpSetattr, "setattr", AccessWrite, handleSetattr)
	d.register(wire.OpReadlink, "readlink", AccessRead, handleReadlink)
	d.register(wire.OpSymlink, "symlink", AccessWrite, handleSymlink)
	d.register(wire.OpMknod, "mknod", AccessWrite, handleMknod)
	d.register(wire.OpMkdir, "mkdir", AccessWrite, handleMkdir)
	d.register(wire.OpUnlink, "unlink", AccessWrite, handleUnlink)
	d.register(wire.OpRmdir, "rmdir", AccessWrite, handleRmdir)
	d.register(wire.OpRename, "rename", AccessWrite, handleRename)
	d.register(wire.OpLink, "link", AccessWrite, handleLink)
	d.register(wire.OpOpen, "open", AccessRead, handleOpen)
	d.register(wire.OpRead, "read", AccessRead, handleRead)
	d.register(wire.OpWrite, "write", AccessWrite, handleWrite)
	d.register(wire.OpStatfs, "statfs", AccessOther, handleStatfs)
	d.register(wire.OpRelease, "release", AccessOther, handleRelease)
	d.register(wire.OpFsync, "fsync", AccessOther, handleFsync)
	d.register(wire.OpSetxattr, "set-xattr", AccessWrite, handleSetxattr)
	d.register(wire.OpGetxattr, "get-xattr", AccessRead, handleGetxattr)
	d.register(wire.OpListxattr, "list-xattr", AccessRead, handleListxattr)
	d.register(wire.OpRemovexattr, "remove-xattr", AccessWrite, handleRemovexattr)
	d.register(wire.OpFlush, "flush", AccessOther, handleFlush)
	d.register(wire.OpOpendir, "opendir", AccessRead, handleOpendir)
	d.register(wire.OpReaddir, "readdir", AccessRead, handleReaddir)
	d.register(wire.OpReleasedir, "releasedir", AccessOther, handleReleasedir)
	d.register(wire.OpFsyncdir, "fsyncdir", AccessOther, handleFsyncdir)
	d.register(wire.OpAccess, "access", AccessRead, handleAccess)
	d.register(wire.OpCreate, "create", AccessWrite, handleCreate)
	d.register(wire.OpBmap, "bmap", AccessRead, handleBmap)
	d.register(wire.OpFallocate, "fallocate", AccessWrite, handleFallocate)

	// Lock opcodes intentionally return "not implemented" so the kernel
	// falls back to local locking.
	d.register(wire.OpGetlk, "getlk", AccessOther, handleNotImplemented)
	d.register(wire.OpSetlk, "setlk", AccessOther, handleNotImplemented)
	d.register(wire.OpSetlkw, "setlkw", AccessOther, handleNotImplemented)

	return d
}

func (d *Dispatcher) register(op wire.Opcode, name string, at AccessType, h HandlerFunc) {
	d.table[op] = &HandlerEntry{Name: name, Handler: h, AccessType: at}
}

// Lookup returns the handler entry for op, or nil if op is not
// recognized.
func (d *Dispatcher) Lookup(op wire.Opcode) *HandlerEntry {
	return d.table[op]
}

// Dispatch parses and executes one request. It never panics or corrupts
// the channel: every path below either fills reply with a well-formed
// success payload or returns a non-nil *errorkind.Error for the channel
// to convert into an error reply.
func (d *Dispatcher) Dispatch(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	entry := d.table[hdr.Opcode]
	if entry == nil {
		return errorkind.Errno(errnoNOSYS, "unrecognized opcode %v", hdr.Opcode)
	}

	err := entry.Handler(ctx, hdr, args, reply, backend, opts)
	if err != nil {
		entry.Stats.recordError()
		return err
	}
	entry.Stats.recordSuccess()
	return nil
}

func handleNotImplemented(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	return errNotImplemented
}

// handleUnexpectedInit answers an INIT request reaching the regular
// dispatch table: the channel already intercepted the real handshake
// INIT before starting its workers, so one reaching here means the
// kernel (or a misbehaving peer) sent a second INIT out of order.
func handleUnexpectedInit(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	return errorkind.Errno(errnoINVAL, "unexpected INIT after handshake")
}
