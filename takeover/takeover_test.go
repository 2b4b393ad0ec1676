package takeover

import (
	"bytes"
	"net"
	"os"
	"syscall"
	"testing"
)

func socketPair(t *testing.T) (*net.UnixConn, *net.UnixConn) {
	t.Helper()
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	toConn := func(fd int) *net.UnixConn {
		f := os.NewFile(uintptr(fd), "takeover-test-socket")
		c, err := net.FileConn(f)
		if err != nil {
			t.Fatalf("FileConn: %v", err)
		}
		f.Close()
		return c.(*net.UnixConn)
	}
	return toConn(fds[0]), toConn(fds[1])
}

// TestTakeoverRoundTrip serializes a single-mount NFS state with
// capabilities
// {thrift-serialization, ordered-FDs, chunked-message}, one mountd
// socket FD and one NFSd socket FD. Expected: the receiving side's
// deserialized payload is byte-identical and the FDs arrive in the
// declared order.
func TestTakeoverRoundTrip(t *testing.T) {
	caps := CapThriftSerialization | CapOrderedFDs | CapChunkedMessage | CapBaseSerialization

	mount := MountState{
		MountPath:        "/home/bob/www",
		StateDirectory:   "/home/bob/.eden/clients/www",
		Variant:          ProtocolNFS,
		InodeMapBlob:     []byte{1, 2, 3, 4},
		ConnectionParams: nil,
		FDOrder:          []string{"mountd-socket", "nfsd-socket"},
	}
	payload := EncodeStatePayload([]MountState{mount})
	frame := Frame{Version: protoVersion, Capabilities: caps, Payload: payload}
	wire := frame.Encode()

	sender, receiver := socketPair(t)
	defer sender.Close()
	defer receiver.Close()

	mountdR, mountdW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer mountdR.Close()
	defer mountdW.Close()
	nfsdR, nfsdW, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer nfsdR.Close()
	defer nfsdW.Close()

	done := make(chan error, 1)
	go func() {
		done <- SendFrame(sender, wire, []*os.File{mountdW, nfsdW})
	}()

	body, fds, err := RecvFrame(receiver, 1<<16, 4)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	for _, f := range fds {
		defer f.Close()
	}

	gotFrame, err := DecodeFrame(body)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if gotFrame.Capabilities != caps {
		t.Fatalf("got capabilities %v, want %v", gotFrame.Capabilities, caps)
	}
	gotMounts, err := DecodeStatePayload(gotFrame.Payload)
	if err != nil {
		t.Fatalf("DecodeStatePayload: %v", err)
	}
	if len(gotMounts) != 1 {
		t.Fatalf("got %d mounts, want 1", len(gotMounts))
	}
	got := gotMounts[0]
	if got.MountPath != mount.MountPath || got.StateDirectory != mount.StateDirectory ||
		got.Variant != mount.Variant || !bytes.Equal(got.InodeMapBlob, mount.InodeMapBlob) {
		t.Fatalf("round-tripped mount state mismatch: got %+v, want %+v", got, mount)
	}
	if len(got.FDOrder) != 2 || got.FDOrder[0] != "mountd-socket" || got.FDOrder[1] != "nfsd-socket" {
		t.Fatalf("got FDOrder %v, want [mountd-socket nfsd-socket]", got.FDOrder)
	}

	if len(fds) != 2 {
		t.Fatalf("got %d fds, want 2", len(fds))
	}
	if _, err := fds[0].Write([]byte("M")); err != nil {
		t.Fatalf("write via first received fd: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := mountdR.Read(buf); err != nil || buf[0] != 'M' {
		t.Fatalf("first received fd was not the mountd-socket writer: %v %q", err, buf)
	}
}

func TestNegotiateDowngradesOptionalMountdWithoutOrderedFDs(t *testing.T) {
	local := CapBaseSerialization | CapOptionalMountdSocket
	remote := CapBaseSerialization | CapOptionalMountdSocket
	caps, err := Negotiate(local, remote)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if caps&CapOptionalMountdSocket != 0 {
		t.Fatal("expected CapOptionalMountdSocket to be downgraded off without CapOrderedFDs")
	}
}

func TestNegotiateRequiresSharedBaseSerialization(t *testing.T) {
	if _, err := Negotiate(CapOrderedFDs, CapChunkedMessage); err == nil {
		t.Fatal("expected an error when neither side shares CapBaseSerialization")
	}
}

func TestChunkSplitAndReassemble(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 25)
	chunks := Split(payload, 10)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if !chunks[0].First || chunks[0].Last {
		t.Fatal("expected only the first chunk to carry the First sentinel")
	}
	if !chunks[len(chunks)-1].Last || chunks[len(chunks)-1].First {
		t.Fatal("expected only the last chunk to carry the Last sentinel")
	}

	got, err := Reassemble(chunks)
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("reassembled payload did not match original")
	}
}

func TestChunkSingleChunkCarriesBothSentinels(t *testing.T) {
	chunks := Split([]byte("small"), 1<<20)
	if len(chunks) != 1 || !chunks[0].First || !chunks[0].Last {
		t.Fatalf("expected a single chunk carrying both sentinels, got %+v", chunks)
	}
}

func TestPingRoundTrip(t *testing.T) {
	if !IsPing(EncodePing()) {
		t.Fatal("expected EncodePing's output to be recognized by IsPing")
	}
	if IsPing(EncodeStatePayload(nil)) {
		t.Fatal("a state payload must not be mistaken for a ping")
	}
}
