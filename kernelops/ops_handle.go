package kernelops

import (
	"context"

	"github.com/edenfs/kernelchannel/channel/wire"
	"github.com/edenfs/kernelchannel/errorkind"
)

func handleOpen(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	flags, err := c.readU32()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "open: %v", err)
	}
	handle, oerr := backend.OpenFile(ctx, hdr.Inode, flags)
	if oerr != nil {
		return errorkind.Errno(errorkind.AsErrno(oerr), "open %s: %v", idStr(hdr.Inode), oerr)
	}
	out := wire.OpenOut{Fh: uint64(handle)}
	reply.Append(out.Encode())
	return nil
}

func handleRead(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, e1 := c.readU64()
	offset, e2 := c.readI64()
	size, e3 := c.readU32()
	if e1 != nil || e2 != nil || e3 != nil {
		return errorkind.Errno(errnoINVAL, "read: truncated fixed fields")
	}
	data, rerr := backend.ReadFile(ctx, hdr.Inode, HandleID(fh), offset, int(size))
	if rerr != nil {
		return errorkind.Errno(errorkind.AsErrno(rerr), "read %s fh=%d: %v", idStr(hdr.Inode), fh, rerr)
	}
	// The data buffer is appended to Sglist rather than copied into the
	// fixed payload, so a large read rides in its own writev segment
	// (mirrors jacobsa-fuse's ReadFileOp reply convention).
	reply.Sglist = append(reply.Sglist, data)
	return nil
}

func handleWrite(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, e1 := c.readU64()
	offset, e2 := c.readI64()
	size, e3 := c.readU32()
	_, _ = c.readU32() // write flags, unused
	if e1 != nil || e2 != nil || e3 != nil {
		return errorkind.Errno(errnoINVAL, "write: truncated fixed fields")
	}
	data, derr := c.readBytes(int(size))
	if derr != nil {
		return errorkind.Errno(errnoINVAL, "write: %v", derr)
	}
	n, werr := backend.WriteFile(ctx, hdr.Inode, HandleID(fh), offset, data)
	if werr != nil {
		return errorkind.Errno(errorkind.AsErrno(werr), "write %s fh=%d: %v", idStr(hdr.Inode), fh, werr)
	}
	out := wire.WriteOut{Size: uint32(n)}
	reply.Append(out.Encode())
	return nil
}

func handleRelease(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, err := c.readU64()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "release: %v", err)
	}
	if rerr := backend.ReleaseFileHandle(ctx, HandleID(fh)); rerr != nil {
		return errorkind.Errno(errorkind.AsErrno(rerr), "release fh=%d: %v", fh, rerr)
	}
	return nil
}

func handleFsync(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, err := c.readU64()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "fsync: %v", err)
	}
	if serr := backend.SyncFile(ctx, hdr.Inode, HandleID(fh)); serr != nil {
		return errorkind.Errno(errorkind.AsErrno(serr), "fsync %s fh=%d: %v", idStr(hdr.Inode), fh, serr)
	}
	return nil
}

func handleFlush(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, err := c.readU64()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "flush: %v", err)
	}
	if ferr := backend.FlushFile(ctx, hdr.Inode, HandleID(fh)); ferr != nil {
		return errorkind.Errno(errorkind.AsErrno(ferr), "flush %s fh=%d: %v", idStr(hdr.Inode), fh, ferr)
	}
	return nil
}

func handleFallocate(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, e1 := c.readU64()
	offset, e2 := c.readI64()
	length, e3 := c.readI64()
	mode, e4 := c.readU32()
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
		return errorkind.Errno(errnoINVAL, "fallocate: truncated fixed fields")
	}
	// Only the default (zero) mode is supported; any of the punch-hole,
	// keep-size, collapse-range etc. bits fall back to not-implemented so
	// the kernel returns ENOSYS for the fancy modes rather than silently
	// no-op'ing them.
	if mode != 0 {
		return errNotImplemented
	}
	if ferr := backend.FallocateFile(ctx, hdr.Inode, HandleID(fh), mode, offset, length); ferr != nil {
		return errorkind.Errno(errorkind.AsErrno(ferr), "fallocate %s fh=%d: %v", idStr(hdr.Inode), fh, ferr)
	}
	return nil
}

func handleStatfs(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	res, err := backend.StatFS(ctx)
	if err != nil {
		return errorkind.Errno(errorkind.AsErrno(err), "statfs: %v", err)
	}
	out := wire.StatfsOut{
		Blocks:  res.Blocks,
		Bfree:   res.BlocksFree,
		Bavail:  res.BlocksAvail,
		Files:   res.Files,
		Ffree:   res.FilesFree,
		Bsize:   res.BlockSize,
		Namelen: res.NameLen,
		Frsize:  res.FragSize,
	}
	reply.Append(out.Encode())
	return nil
}

func handleOpendir(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	handle, err := backend.OpenDir(ctx, hdr.Inode)
	if err != nil {
		return errorkind.Errno(errorkind.AsErrno(err), "opendir %s: %v", idStr(hdr.Inode), err)
	}
	out := wire.OpenOut{Fh: uint64(handle)}
	reply.Append(out.Encode())
	return nil
}

func handleReaddir(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, e1 := c.readU64()
	offset, e2 := c.readU64()
	size, e3 := c.readU32()
	if e1 != nil || e2 != nil || e3 != nil {
		return errorkind.Errno(errnoINVAL, "readdir: truncated fixed fields")
	}
	// The Backend pre-serializes each directory's listing into kernel
	// dirent wire format so this handler only has to splice the buffer,
	// matching jacobsa-fuse's ReadDirOp.Data convention.
	buf, rerr := backend.ReadDir(ctx, hdr.Inode, HandleID(fh), DirOffset(offset), int(size))
	if rerr != nil {
		return errorkind.Errno(errorkind.AsErrno(rerr), "readdir %s fh=%d: %v", idStr(hdr.Inode), fh, rerr)
	}
	reply.Sglist = append(reply.Sglist, buf)
	return nil
}

func handleReleasedir(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, err := c.readU64()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "releasedir: %v", err)
	}
	if rerr := backend.ReleaseDirHandle(ctx, HandleID(fh)); rerr != nil {
		return errorkind.Errno(errorkind.AsErrno(rerr), "releasedir fh=%d: %v", fh, rerr)
	}
	return nil
}

func handleFsyncdir(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	fh, err := c.readU64()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "fsyncdir: %v", err)
	}
	if serr := backend.FsyncDir(ctx, hdr.Inode, HandleID(fh)); serr != nil {
		return errorkind.Errno(errorkind.AsErrno(serr), "fsyncdir %s fh=%d: %v", idStr(hdr.Inode), fh, serr)
	}
	return nil
}

// handleCreate replies with EntryOut immediately followed by OpenOut, a
// concatenated two-struct scatter/gather reply mirroring jacobsa-fuse's
// createFileOp.kernelResponse (fusekernel.EntryOutSize + OpenOut sized
// buffer, with convertChildInodeEntry filling the first and Fh the
// second).
func handleCreate(ctx context.Context, hdr OpHeader, args *wire.InMessage, reply *wire.OutMessage, backend Backend, opts Options) *errorkind.Error {
	c := newArgCursor(args, opts.EnforceUTF8)
	flags, e1 := c.readU32()
	mode, e2 := c.readU32()
	_, _ = c.readU32() // umask
	_, _ = c.readU32() // padding
	if e1 != nil || e2 != nil {
		return errorkind.Errno(errnoINVAL, "create: truncated fixed fields")
	}
	name, err := c.readString()
	if err != nil {
		return errorkind.Errno(errnoINVAL, "create: %v", err)
	}
	entry, handle, cerr := backend.CreateFile(ctx, hdr.Inode, name, mode, flags)
	if cerr != nil {
		return errorkind.Errno(errorkind.AsErrno(cerr), "create %s/%s: %v", idStr(hdr.Inode), name, cerr)
	}
	writeEntryOut(reply, entry)
	reply.Append(wire.OpenOut{Fh: uint64(handle)}.Encode())
	return nil
}
