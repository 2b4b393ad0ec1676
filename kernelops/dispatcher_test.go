package kernelops

import (
	"context"
	"testing"
	"time"

	"github.com/edenfs/kernelchannel/channel/wire"
	"github.com/edenfs/kernelchannel/errorkind"
)

// fakeBackend implements Backend with just enough behavior to exercise
// the dispatcher's parse/encode plumbing: LookUpInode calls the
// per-test lookUpInode field (and panics if it is unset); every other
// method returns zero values and a nil error.
type fakeBackend struct {
	lookUpInode func(ctx context.Context, parent InodeID, name string) (ChildInodeEntry, error)
}

func (f *fakeBackend) LookUpInode(ctx context.Context, parent InodeID, name string) (ChildInodeEntry, error) {
	return f.lookUpInode(ctx, parent, name)
}
func (f *fakeBackend) GetInodeAttributes(ctx context.Context, inode InodeID) (Attributes, time.Time, error) {
	return Attributes{}, time.Time{}, nil
}
func (f *fakeBackend) SetInodeAttributes(ctx context.Context, inode InodeID, req SetAttrRequest) (Attributes, time.Time, error) {
	return Attributes{}, time.Time{}, nil
}
func (f *fakeBackend) ForgetInode(ctx context.Context, inode InodeID, n uint64) error { return nil }
func (f *fakeBackend) BatchForgetInodes(ctx context.Context, forgets map[InodeID]uint64) error {
	return nil
}
func (f *fakeBackend) MkDir(ctx context.Context, parent InodeID, name string, mode uint32) (ChildInodeEntry, error) {
	return ChildInodeEntry{}, nil
}
func (f *fakeBackend) MkNod(ctx context.Context, parent InodeID, name string, mode uint32, rdev uint32) (ChildInodeEntry, error) {
	return ChildInodeEntry{}, nil
}
func (f *fakeBackend) CreateFile(ctx context.Context, parent InodeID, name string, mode uint32, flags uint32) (ChildInodeEntry, HandleID, error) {
	return ChildInodeEntry{}, 0, nil
}
func (f *fakeBackend) CreateSymlink(ctx context.Context, parent InodeID, name, target string) (ChildInodeEntry, error) {
	return ChildInodeEntry{}, nil
}
func (f *fakeBackend) CreateLink(ctx context.Context, parent InodeID, name string, target InodeID) (ChildInodeEntry, error) {
	return ChildInodeEntry{}, nil
}
func (f *fakeBackend) RmDir(ctx context.Context, parent InodeID, name string) error   { return nil }
func (f *fakeBackend) Unlink(ctx context.Context, parent InodeID, name string) error  { return nil }
func (f *fakeBackend) Rename(ctx context.Context, oldParent InodeID, oldName string, newParent InodeID, newName string) error {
	return nil
}
func (f *fakeBackend) ReadLink(ctx context.Context, inode InodeID) (string, error) { return "", nil }
func (f *fakeBackend) OpenDir(ctx context.Context, inode InodeID) (HandleID, error) {
	return 0, nil
}
func (f *fakeBackend) ReadDir(ctx context.Context, inode InodeID, handle HandleID, offset DirOffset, size int) ([]byte, error) {
	return nil, nil
}
func (f *fakeBackend) ReleaseDirHandle(ctx context.Context, handle HandleID) error { return nil }
func (f *fakeBackend) FsyncDir(ctx context.Context, inode InodeID, handle HandleID) error {
	return nil
}
func (f *fakeBackend) OpenFile(ctx context.Context, inode InodeID, flags uint32) (HandleID, error) {
	return 0, nil
}
func (f *fakeBackend) ReadFile(ctx context.Context, inode InodeID, handle HandleID, offset int64, size int) ([]byte, error) {
	return nil, nil
}
func (f *fakeBackend) WriteFile(ctx context.Context, inode InodeID, handle HandleID, offset int64, data []byte) (int, error) {
	return len(data), nil
}
func (f *fakeBackend) ReleaseFileHandle(ctx context.Context, handle HandleID) error { return nil }
func (f *fakeBackend) SyncFile(ctx context.Context, inode InodeID, handle HandleID) error {
	return nil
}
func (f *fakeBackend) FlushFile(ctx context.Context, inode InodeID, handle HandleID) error {
	return nil
}
func (f *fakeBackend) FallocateFile(ctx context.Context, inode InodeID, handle HandleID, mode uint32, offset, length int64) error {
	return nil
}
func (f *fakeBackend) StatFS(ctx context.Context) (StatFSResult, error) { return StatFSResult{}, nil }
func (f *fakeBackend) Access(ctx context.Context, inode InodeID, mask uint32) error { return nil }
func (f *fakeBackend) Bmap(ctx context.Context, inode InodeID, blockSize uint32, block uint64) (uint64, error) {
	return 0, nil
}
func (f *fakeBackend) GetXattr(ctx context.Context, inode InodeID, name string, size int) ([]byte, error) {
	return nil, nil
}
func (f *fakeBackend) SetXattr(ctx context.Context, inode InodeID, name string, value []byte, flags uint32) error {
	return nil
}
func (f *fakeBackend) ListXattr(ctx context.Context, inode InodeID, size int) ([]byte, error) {
	return nil, nil
}
func (f *fakeBackend) RemoveXattr(ctx context.Context, inode InodeID, name string) error { return nil }

func nulTerminated(s string) []byte { return append([]byte(s), 0) }

func TestDispatchLookupSuccess(t *testing.T) {
	backend := &fakeBackend{
		lookUpInode: func(ctx context.Context, parent InodeID, name string) (ChildInodeEntry, error) {
			if parent != RootInodeID || name != "foo" {
				t.Fatalf("unexpected lookup args: %d %q", parent, name)
			}
			return ChildInodeEntry{Child: 42}, nil
		},
	}
	d := NewDispatcher()

	in := wire.NewInMessage()
	raw := make([]byte, wire.InHeaderSize)
	raw[4] = byte(wire.OpLookup)
	raw = append(raw, nulTerminated("foo")...)
	if err := in.Init(newReader(raw)); err != nil {
		t.Fatalf("Init: %v", err)
	}

	reply := wire.NewOutMessage(1, 128)
	hdr := OpHeader{Opcode: wire.OpLookup, Inode: RootInodeID}
	derr := d.Dispatch(context.Background(), hdr, in, reply, backend, Options{})
	if derr != nil {
		t.Fatalf("Dispatch: %v", derr)
	}
	if reply.Len() != wire.OutHeaderSize+wire.EntryOutSize() {
		t.Fatalf("unexpected reply length %d", reply.Len())
	}
}

func TestDispatchUnknownOpcode(t *testing.T) {
	d := NewDispatcher()
	in := wire.NewInMessage()
	raw := make([]byte, wire.InHeaderSize)
	if err := in.Init(newReader(raw)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	reply := wire.NewOutMessage(1, 0)
	derr := d.Dispatch(context.Background(), OpHeader{Opcode: wire.Opcode(9999)}, in, reply, &fakeBackend{}, Options{})
	if derr == nil {
		t.Fatal("expected error for unrecognized opcode")
	}
}

func TestDispatchLockOpcodesNotImplemented(t *testing.T) {
	d := NewDispatcher()
	in := wire.NewInMessage()
	raw := make([]byte, wire.InHeaderSize)
	if err := in.Init(newReader(raw)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	reply := wire.NewOutMessage(1, 0)
	for _, op := range []wire.Opcode{wire.OpGetlk, wire.OpSetlk, wire.OpSetlkw} {
		derr := d.Dispatch(context.Background(), OpHeader{Opcode: op}, in, reply, &fakeBackend{}, Options{})
		if derr == nil || errorkind.AsErrno(derr) != errnoNOSYS {
			t.Fatalf("opcode %v: expected ENOSYS, got %v", op, derr)
		}
	}
}

type byteReader struct {
	b []byte
}

func newReader(b []byte) *byteReader { return &byteReader{b: b} }

func (r *byteReader) Read(p []byte) (int, error) {
	n := copy(p, r.b)
	r.b = r.b[n:]
	if n == 0 {
		return 0, errEOF
	}
	return n, nil
}

var errEOF = errorkind.New(errorkind.KindKernelProtocol, "EOF")
