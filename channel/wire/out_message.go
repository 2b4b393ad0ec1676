package wire

// OutMessage builds a single contiguous (or scatter/gather) reply:
// header followed by zero or more payload segments. Grounded on
// jacobsa-fuse's internal/buffer.OutMessage: Reset/Grow/Append/Bytes,
// kept byte-slice based rather than unsafe-pointer based.
type OutMessage struct {
	unique  uint64
	payload []byte

	// Sglist holds additional segments to be written after payload via
	// writev, e.g. readdir's pre-serialized listing buffer or create's
	// concatenated entry+open reply. Nil means payload alone is the body.
	Sglist [][]byte
}

// NewOutMessage starts a reply for the request with the given unique id,
// with room to grow by approximately sizeHint bytes.
func NewOutMessage(unique uint64, sizeHint int) *OutMessage {
	return &OutMessage{unique: unique, payload: make([]byte, 0, sizeHint)}
}

// Grow appends n zeroed bytes to the payload and returns a slice over
// them for the caller to fill in.
func (m *OutMessage) Grow(n int) []byte {
	start := len(m.payload)
	m.payload = append(m.payload, make([]byte, n)...)
	return m.payload[start : start+n]
}

// Append copies src onto the end of the payload.
func (m *OutMessage) Append(src []byte) {
	m.payload = append(m.payload, src...)
}

// AppendString is like Append for a string.
func (m *OutMessage) AppendString(src string) {
	m.payload = append(m.payload, src...)
}

// Len returns the total reply size, header included.
func (m *OutMessage) Len() int {
	n := OutHeaderSize + len(m.payload)
	for _, seg := range m.Sglist {
		n += len(seg)
	}
	return n
}

// FinalizeError builds the final wire bytes for an error reply: header
// only, with Error set to the negative errno (or 0 for a bare-success
// reply with no payload).
func (m *OutMessage) FinalizeError(errno int32) []byte {
	h := OutHeader{Len: uint32(OutHeaderSize), Error: -errno, Unique: m.unique}
	return h.Encode()
}

// OutHeaderBytes renders the header-plus-payload as a single contiguous
// slice. The channel's own writes use Iovecs instead.
func (m *OutMessage) OutHeaderBytes() []byte {
	h := OutHeader{Len: uint32(m.Len()), Unique: m.unique}
	out := h.Encode()
	out = append(out, m.payload...)
	for _, seg := range m.Sglist {
		out = append(out, seg...)
	}
	return out
}

// Iovecs returns the segments to hand to a writev-style call: the header
// first, then the payload, then any Sglist segments.
func (m *OutMessage) Iovecs() [][]byte {
	h := OutHeader{Len: uint32(m.Len()), Unique: m.unique}
	segs := make([][]byte, 0, 2+len(m.Sglist))
	segs = append(segs, h.Encode())
	if len(m.payload) > 0 {
		segs = append(segs, m.payload)
	}
	segs = append(segs, m.Sglist...)
	return segs
}
