package privhelper

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	req := FuseMountRequest{MountPath: "/home/bob/www"}
	header := NewHeader(42, MsgFuseMount)
	wire := Encode(header, req.Encode())

	gotHeader, body, err := DecodeHeader(wire, protoVersion)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if gotHeader.TransactionID != 42 || gotHeader.Type != MsgFuseMount {
		t.Fatalf("got header %+v, want TransactionID=42 Type=MsgFuseMount", gotHeader)
	}
	got, err := DecodeFuseMountRequest(body)
	if err != nil {
		t.Fatalf("DecodeFuseMountRequest: %v", err)
	}
	if got != req {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestVersionMismatchIsFatal(t *testing.T) {
	header := Header{Version: 99, TransactionID: 1, Type: MsgGetPID}
	wire := Encode(header, nil)
	if _, _, err := DecodeHeader(wire, protoVersion); err == nil {
		t.Fatal("expected an error decoding a header with a mismatched version")
	}
}

func TestUnmountRequestRoundTrip(t *testing.T) {
	req := UnmountRequest{MountPath: "/home/bob/www", Flags: UnmountForce | UnmountDetach}
	body := req.Encode()
	got, err := DecodeUnmountRequest(body)
	if err != nil {
		t.Fatalf("DecodeUnmountRequest: %v", err)
	}
	if got != req {
		t.Fatalf("got %+v, want %+v", got, req)
	}
	if got.Flags&UnmountExpire != 0 {
		t.Fatal("expected UnmountExpire bit to be unset")
	}
}

func TestTakeoverStartupRequestRoundTrip(t *testing.T) {
	req := TakeoverStartupRequest{
		MountPath:  "/home/bob/www",
		BindMounts: []string{"/home/bob/www/.hg", "/home/bob/www/buck-out"},
	}
	body := req.Encode()
	got, err := DecodeTakeoverStartupRequest(body)
	if err != nil {
		t.Fatalf("DecodeTakeoverStartupRequest: %v", err)
	}
	if got.MountPath != req.MountPath || len(got.BindMounts) != 2 ||
		got.BindMounts[0] != req.BindMounts[0] || got.BindMounts[1] != req.BindMounts[1] {
		t.Fatalf("got %+v, want %+v", got, req)
	}
}

func TestSocketAddressRoundTripInetAndUnix(t *testing.T) {
	w := &writer{}
	inet := SocketAddress{IsInet: true, Host: "localhost", Port: 8080}
	unix := SocketAddress{IsInet: false, Path: "/tmp/eden.sock"}
	w.SocketAddress(inet)
	w.SocketAddress(unix)

	r := &reader{buf: w.Bytes()}
	gotInet, err := r.SocketAddress()
	if err != nil {
		t.Fatalf("SocketAddress (inet): %v", err)
	}
	if gotInet != inet {
		t.Fatalf("got %+v, want %+v", gotInet, inet)
	}
	gotUnix, err := r.SocketAddress()
	if err != nil {
		t.Fatalf("SocketAddress (unix): %v", err)
	}
	if gotUnix != unix {
		t.Fatalf("got %+v, want %+v", gotUnix, unix)
	}
}

func TestErrorReplyRoundTrip(t *testing.T) {
	e := ErrorReply{ErrorNumber: 13, Message: "permission denied", ExceptionType: "PermissionError"}
	got, err := DecodeErrorReply(e.Encode())
	if err != nil {
		t.Fatalf("DecodeErrorReply: %v", err)
	}
	if got != e {
		t.Fatalf("got %+v, want %+v", got, e)
	}
}

func TestOptionalStringPresentAndAbsent(t *testing.T) {
	w := &writer{}
	present := "present"
	w.OptionalString(&present)
	w.OptionalString(nil)

	r := &reader{buf: w.Bytes()}
	got, err := r.OptionalString()
	if err != nil {
		t.Fatalf("OptionalString (present): %v", err)
	}
	if got == nil || *got != present {
		t.Fatalf("got %v, want %q", got, present)
	}
	got, err = r.OptionalString()
	if err != nil {
		t.Fatalf("OptionalString (absent): %v", err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}
