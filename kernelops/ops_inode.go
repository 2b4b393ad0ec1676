package kernelops

import (
	"context"
	"encoding/binary"
	"strconv"
	"time"

	"github.com/edenfs/kernelchannel/channel/wire"
	"github.com/edenfs/kernelchannel/errorkind"
)

// toAttr converts the Backend-facing Attributes into the wire Attr
// struct, mirroring fuseops/convert.go's convertAttributes.
func toAttr(inode InodeID, a Attributes) wire.Attr {
	return wire.Attr{
		Ino:     uint64(inode),
		Size:    a.Size,
		Mode:    a.Mode,
		Nlink:   a.Nlink,
		UID:     a.UID,
		GID:     a.GID,
		Atime:   uint64(a.Atime.Unix()),
		Mtime:   uint64(a.Mtime.Unix()),
		Ctime:   uint64(a.Ctime.Unix()),
	}
}

func expirySeconds(t time.Time) (uint64, uint32) {
	d := time.Until(t)
	if d < 0 {
		return 0, 0
	}
	return uint64(d / time.Second), uint32(d % time.Second / time.Nanosecond)
}

func writeEntryOut(reply *wire.OutMessage, e ChildInodeEntry) {
	valid, validNsec := expirySeconds(e.EntryExpiration)
	attrValid, attrValidNsec := expirySeconds(e.AttributesExpiration)
	out := wire.EntryOut{
		NodeID:         uint64(e.Child),
		Generation:     e.Generation,
		EntryValid:     valid,
		AttrValid:      attrValid,
		EntryValidNsec: validNsec,
		AttrValidNsec:  attrValidNsec,
		Attr:           toAttr(e.Child, e.Attributes),
	}
	reply.Append(out.Encode())
}

func handleLookup(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "lookup: %v", err)
	}
	entry, lerr := backend.LookUpInode(ctx, hdr.Inode, name)
	if lerr != nil {
		return errorkind.Errno(errorkind.AsErrno(lerr), "lookup %s/%s: %v", idStr(hdr.Inode), name, lerr)
	}
	writeEntryOut(reply, entry)
	return nil
}

func idStr(i InodeID) string { return strconv.FormatUint(uint64(i), 10) }

func handleGetattr(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	attr, expiry, err := backend.GetInodeAttributes(ctx, hdr.Inode)
	if err != nil {
		return errorkind.Errno(errorkind.AsErrno(err), "getattr %s: %v", idStr(hdr.Inode), err)
	}
	valid, validNsec := expirySeconds(expiry)
	out := wire.AttrOut{AttrValid: valid, AttrValidNsec: validNsec, Attr: toAttr(hdr.Inode, attr)}
	reply.Append(out.Encode())
	return nil
}

func handleSetattr(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	valid, err := c.readU32()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "setattr: %v", err)
	}
	var req SetAttrRequest
	const (
		setSize = 1 << 3
		setMode = 1 << 1
		setAtime = 1 << 7
		setMtime = 1 << 8
	)
	if valid&setSize != 0 {
		v, e := c.readU64()
		if e != nil {
			return errorkind.Errno(errnoINVAL, "setattr size: %v", e)
		}
		req.Size = &v
	}
	if valid&setMode != 0 {
		v, e := c.readU32()
		if e != nil {
			return errorkind.Errno(errnoINVAL, "setattr mode: %v", e)
		}
		req.Mode = &v
	}
	if valid&setAtime != 0 {
		v, e := c.readI64()
		if e != nil {
			return errorkind.Errno(errnoINVAL, "setattr atime: %v", e)
		}
		t := time.Unix(v, 0)
		req.Atime = &t
	}
	if valid&setMtime != 0 {
		v, e := c.readI64()
		if e != nil {
			return errorkind.Errno(errnoINVAL, "setattr mtime: %v", e)
		}
		t := time.Unix(v, 0)
		req.Mtime = &t
	}

	attr, expiry, serr := backend.SetInodeAttributes(ctx, hdr.Inode, req)
	if serr != nil {
		return errorkind.Errno(errorkind.AsErrno(serr), "setattr %s: %v", idStr(hdr.Inode), serr)
	}
	validSec, validNsec := expirySeconds(expiry)
	out := wire.AttrOut{AttrValid: validSec, AttrValidNsec: validNsec, Attr: toAttr(hdr.Inode, attr)}
	reply.Append(out.Encode())
	return nil
}

func handleForget(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	n, err := c.readU64()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "forget: %v", err)
	}
	// Forget has no reply: the kernel does not wait for one.
	if ferr := backend.ForgetInode(ctx, hdr.Inode, n); ferr != nil {
		return errorkind.Errno(errorkind.AsErrno(ferr), "forget %s: %v", idStr(hdr.Inode), ferr)
	}
	return nil
}

func handleBatchForget(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	count, err := c.readU32()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "batch-forget: %v", err)
	}
	forgets := make(map[InodeID]uint64, count)
	for i := uint32(0); i < count; i++ {
		ino, e1 := c.readU64()
		n, e2 := c.readU64()
		if e1 != nil || e2 != nil {
			return errorkind.Errno(errnoINVAL, "batch-forget: truncated entry %d", i)
		}
		forgets[InodeID(ino)] = n
	}
	if ferr := backend.BatchForgetInodes(ctx, forgets); ferr != nil {
		return errorkind.Errno(errorkind.AsErrno(ferr), "batch-forget: %v", ferr)
	}
	return nil
}

func handleReadlink(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	target, err := backend.ReadLink(ctx, hdr.Inode)
	if err != nil {
		return errorkind.Errno(errorkind.AsErrno(err), "readlink %s: %v", idStr(hdr.Inode), err)
	}
	reply.AppendString(target)
	return nil
}

func handleSymlink(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "symlink: %v", err)
	}
	target, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "symlink target: %v", err)
	}
	entry, serr := backend.CreateSymlink(ctx, hdr.Inode, name, target)
	if serr != nil {
		return errorkind.Errno(errorkind.AsErrno(serr), "symlink %s/%s: %v", idStr(hdr.Inode), name, serr)
	}
	writeEntryOut(reply, entry)
	return nil
}

func handleMknod(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	mode, e1 := c.readU32()
	rdev, e2 := c.readU32()
	_, _ = c.readU32() // umask, unused by the in-memory inode layer
	_, _ = c.readU32() // padding
	if e1 != nil || e2 != nil {
		return errorkind.Errno(errnoINVAL, "mknod: truncated fixed fields")
	}
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "mknod: %v", err)
	}
	entry, merr := backend.MkNod(ctx, hdr.Inode, name, mode, rdev)
	if merr != nil {
		return errorkind.Errno(errorkind.AsErrno(merr), "mknod %s/%s: %v", idStr(hdr.Inode), name, merr)
	}
	writeEntryOut(reply, entry)
	return nil
}

func handleMkdir(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	mode, e1 := c.readU32()
	_, _ = c.readU32() // umask
	if e1 != nil {
		return errorkind.Errno(errnoINVAL, "mkdir: truncated fixed fields")
	}
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "mkdir: %v", err)
	}
	entry, merr := backend.MkDir(ctx, hdr.Inode, name, mode)
	if merr != nil {
		return errorkind.Errno(errorkind.AsErrno(merr), "mkdir %s/%s: %v", idStr(hdr.Inode), name, merr)
	}
	writeEntryOut(reply, entry)
	return nil
}

func handleUnlink(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "unlink: %v", err)
	}
	if uerr := backend.Unlink(ctx, hdr.Inode, name); uerr != nil {
		return errorkind.Errno(errorkind.AsErrno(uerr), "unlink %s/%s: %v", idStr(hdr.Inode), name, uerr)
	}
	return nil
}

func handleRmdir(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "rmdir: %v", err)
	}
	if rerr := backend.RmDir(ctx, hdr.Inode, name); rerr != nil {
		return errorkind.Errno(errorkind.AsErrno(rerr), "rmdir %s/%s: %v", idStr(hdr.Inode), name, rerr)
	}
	return nil
}

// handleRename parses the (newdir u64, oldname, newname) layout. The
// renameat2 variant inserts a flags u32 after newdir; that opcode is not
// wired into the table above and falls through to ENOSYS instead of
// being misparsed here.
//
// One host variant transmits newdir in a packed field that some builds
// zero out instead, which empties both name slices when parsed under
// the layout above (the NUL right after the zeroed newdir is read as an
// empty oldname, and so is whatever follows). When that happens, rewind
// and reparse the same bytes under a two-u64 layout (newdir, an
// alternative packed field) followed by the two names.
func handleRename(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	mark := c.mark()

	newParent, err := c.readU64()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "rename: %v", err)
	}
	oldName, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "rename oldname: %v", err)
	}
	newName, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "rename newname: %v", err)
	}

	if oldName == "" && newName == "" {
		c.reset(mark)
		newParent, err = c.readU64()
		if err != nil {
			return errorkind.Errno(errnoINVAL, "rename (alt layout): %v", err)
		}
		if _, err := c.readU64(); err != nil {
			return errorkind.Errno(errnoINVAL, "rename (alt layout) packed field: %v", err)
		}
		oldName, err = c.readString()
		if err != nil {
			return errorkind.Errno(errnoINVAL, "rename (alt layout) oldname: %v", err)
		}
		newName, err = c.readString()
		if err != nil {
			return errorkind.Errno(errnoINVAL, "rename (alt layout) newname: %v", err)
		}
	}

	if rerr := backend.Rename(ctx, hdr.Inode, oldName, InodeID(newParent), newName); rerr != nil {
		return errorkind.Errno(errorkind.AsErrno(rerr), "rename %s/%s -> %d/%s: %v", idStr(hdr.Inode), oldName, newParent, newName, rerr)
	}
	return nil
}

func handleLink(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	target, e1 := c.readU64()
	if e1 != nil {
		return errorkind.Errno(errnoINVAL, "link: %v", e1)
	}
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "link name: %v", err)
	}
	entry, lerr := backend.CreateLink(ctx, hdr.Inode, name, InodeID(target))
	if lerr != nil {
		return errorkind.Errno(errorkind.AsErrno(lerr), "link %s/%s -> %d: %v", idStr(hdr.Inode), name, target, lerr)
	}
	writeEntryOut(reply, entry)
	return nil
}

func handleAccess(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	mask, err := c.readU32()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "access: %v", err)
	}
	if aerr := backend.Access(ctx, hdr.Inode, mask); aerr != nil {
		return errorkind.Errno(errorkind.AsErrno(aerr), "access %s: %v", idStr(hdr.Inode), aerr)
	}
	return nil
}

func handleBmap(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	blockSize, e1 := c.readU64()
	block, e2 := c.readU64()
	if e1 != nil || e2 != nil {
		return errorkind.Errno(errnoINVAL, "bmap: truncated fields")
	}
	phys, berr := backend.Bmap(ctx, hdr.Inode, uint32(blockSize), block)
	if berr != nil {
		return errorkind.Errno(errorkind.AsErrno(berr), "bmap %s: %v", idStr(hdr.Inode), berr)
	}
	b := reply.Grow(8)
	binary.LittleEndian.PutUint64(b, phys)
	return nil
}
