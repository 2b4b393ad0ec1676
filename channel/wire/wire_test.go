package wire

import (
	"bytes"
	"testing"
)

func TestDecodeInHeaderTruncated(t *testing.T) {
	_, err := DecodeInHeader(make([]byte, InHeaderSize-1))
	if err == nil {
		t.Fatal("expected truncated-header error")
	}
}

func TestInMessageConsumeBytes(t *testing.T) {
	hdr := make([]byte, InHeaderSize)
	hdr[4] = byte(OpLookup)
	body := append(hdr, []byte("hello\x00world\x00")...)

	m := NewInMessage()
	if err := m.Init(bytes.NewReader(body)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if m.Header().Opcode != OpLookup {
		t.Fatalf("got opcode %v", m.Header().Opcode)
	}

	s, ok := m.ConsumeNullTerminatedString()
	if !ok || s != "hello" {
		t.Fatalf("got %q, %v", s, ok)
	}
	s, ok = m.ConsumeNullTerminatedString()
	if !ok || s != "world" {
		t.Fatalf("got %q, %v", s, ok)
	}
	if m.Remaining() != 0 {
		t.Fatalf("expected no bytes remaining, got %d", m.Remaining())
	}
}

func TestInMessageConsumeBytesUnderflow(t *testing.T) {
	hdr := make([]byte, InHeaderSize)
	m := NewInMessage()
	if err := m.Init(bytes.NewReader(hdr)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if b := m.ConsumeBytes(8); b != nil {
		t.Fatalf("expected nil on underflow, got %v", b)
	}
}

func TestOutMessageIovecs(t *testing.T) {
	m := NewOutMessage(42, 0)
	m.Append([]byte("abc"))
	m.Sglist = append(m.Sglist, []byte("def"))

	segs := m.Iovecs()
	if len(segs) != 3 {
		t.Fatalf("got %d segments", len(segs))
	}
	total := 0
	for _, s := range segs {
		total += len(s)
	}
	if total != m.Len() {
		t.Fatalf("Len()=%d but segments sum to %d", m.Len(), total)
	}
}

func TestEntryOutEncodeSize(t *testing.T) {
	e := EntryOut{NodeID: 7}
	b := e.Encode()
	if len(b) != EntryOutSize() {
		t.Fatalf("got %d bytes, want %d", len(b), EntryOutSize())
	}
}
