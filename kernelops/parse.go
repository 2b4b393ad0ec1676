package kernelops

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/edenfs/kernelchannel/channel/wire"
)

// argCursor wraps a wire.InMessage with fixed-width little-endian field
// reads and a null-terminated string read, each bounds-checked and
// returning an error on underflow. Fields are decoded byte by byte with
// encoding/binary; no alignment check, compile-time or runtime, is
// performed.
type argCursor struct {
	m               *wire.InMessage
	enforceUTF8     bool
	skipSanityCheck bool
}

func newArgCursor(m *wire.InMessage, enforceUTF8 bool) *argCursor {
	return &argCursor{m: m, enforceUTF8: enforceUTF8}
}

// readU32 reads a little-endian uint32, returning a truncated-argument
// error if fewer than 4 bytes remain.
func (c *argCursor) readU32() (uint32, error) {
	b := c.m.ConsumeBytes(4)
	if b == nil {
		return 0, fmt.Errorf("truncated argument: need 4 bytes for u32")
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *argCursor) readU64() (uint64, error) {
	b := c.m.ConsumeBytes(8)
	if b == nil {
		return 0, fmt.Errorf("truncated argument: need 8 bytes for u64")
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (c *argCursor) readI64() (int64, error) {
	v, err := c.readU64()
	return int64(v), err
}

// readString reads a NUL-terminated path-component string. Path bytes
// are UTF-8 validated only when the mount demands it (enforceUTF8); the
// "skip-sanity-check" escape accepts raw bytes otherwise.
func (c *argCursor) readString() (string, error) {
	s, ok := c.m.ConsumeNullTerminatedString()
	if !ok {
		return "", fmt.Errorf("truncated argument: unterminated string")
	}
	if c.enforceUTF8 && !c.skipSanityCheck {
		if !utf8.ValidString(s) {
			return "", fmt.Errorf("argument is not valid UTF-8: %q", s)
		}
	}
	return s, nil
}

func (c *argCursor) readBytes(n int) ([]byte, error) {
	b := c.m.ConsumeBytes(n)
	if b == nil {
		return nil, fmt.Errorf("truncated argument: need %d bytes", n)
	}
	return b, nil
}

// rest returns every remaining unconsumed byte. The setxattr and write
// handlers read their payloads with readBytes and their declared sizes
// instead.
func (c *argCursor) rest() []byte {
	return c.m.ConsumeBytes(c.m.Remaining())
}

// mark and reset let a handler reparse the same argument bytes under an
// alternative field layout once its first attempt proves inconsistent,
// e.g. rename's packed-parent-inode fallback.
func (c *argCursor) mark() int      { return c.m.Mark() }
func (c *argCursor) reset(mark int) { c.m.Reset(mark) }
