package kernelops

import (
	"context"
	"encoding/binary"

	"github.com/edenfs/kernelchannel/channel/wire"
	"github.com/edenfs/kernelchannel/errorkind"
)

func handleSetxattr(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	size, e1 := c.readU32()
	flags, e2 := c.readU32()
	if e1 != nil || e2 != nil {
		return errorkind.Errno(errnoINVAL, "set-xattr: truncated fixed fields")
	}
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "set-xattr name: %v", err)
	}
	value, verr := c.readBytes(int(size))
	if verr != nil {
		return errorkind.Errno(errnoINVAL, "set-xattr value: %v", verr)
	}
	if serr := backend.SetXattr(ctx, hdr.Inode, name, value, flags); serr != nil {
		return errorkind.Errno(errorkind.AsErrno(serr), "set-xattr %s %s: %v", idStr(hdr.Inode), name, serr)
	}
	return nil
}

// handleGetxattr answers the kernel's well-known security/ACL attribute
// probes with "no data" directly, without involving Backend at all: the
// store layer has no notion of POSIX ACLs or Linux capabilities, and
// routing these through a tree lookup on every stat-heavy workload would
// be pure overhead.
func handleGetxattr(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	size, e1 := c.readU32()
	if e1 != nil {
		return errorkind.Errno(errnoINVAL, "get-xattr: truncated fixed fields")
	}
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "get-xattr name: %v", err)
	}
	if IsFastPathXattr(name) {
		return errorkind.Errno(errnoNODATA, "get-xattr %s: no data", name)
	}
	value, gerr := backend.GetXattr(ctx, hdr.Inode, name, int(size))
	if gerr != nil {
		return errorkind.Errno(errorkind.AsErrno(gerr), "get-xattr %s %s: %v", idStr(hdr.Inode), name, gerr)
	}
	if size == 0 {
		// A zero-size probe asks only for the value's length.
		b := reply.Grow(4)
		binary.LittleEndian.PutUint32(b, uint32(len(value)))
		return nil
	}
	if len(value) > int(size) {
		return errorkind.Errno(errnoRANGE, "get-xattr %s: buffer too small", name)
	}
	reply.Append(value)
	return nil
}

func handleListxattr(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	size, err := c.readU32()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "list-xattr: %v", err)
	}
	names, lerr := backend.ListXattr(ctx, hdr.Inode, int(size))
	if lerr != nil {
		return errorkind.Errno(errorkind.AsErrno(lerr), "list-xattr %s: %v", idStr(hdr.Inode), lerr)
	}
	if size == 0 {
		b := reply.Grow(4)
		binary.LittleEndian.PutUint32(b, uint32(len(names)))
		return nil
	}
	if len(names) > int(size) {
		return errorkind.Errno(errnoRANGE, "list-xattr %s: buffer too small", idStr(hdr.Inode))
	}
	reply.Append(names)
	return nil
}

func handleRemovexattr(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "remove-xattr: %v", err)
	}
	if rerr := backend.RemoveXattr(ctx, hdr.Inode, name); rerr != nil {
		return errorkind.Errno(errorkind.AsErrno(rerr), "remove-xattr %s %s: %v", idStr(hdr.Inode), name, rerr)
	}
	return nil
}
