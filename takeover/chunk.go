package takeover

import "github.com/edenfs/kernelchannel/errorkind"

const (
	flagFirst byte = 1 << 0
	flagLast  byte = 1 << 1
)

// Chunk is one piece of a payload split for transmission under
// CapChunkedMessage: a first-chunk sentinel, zero or more body chunks,
// then a last-chunk sentinel. A payload that fits in a single chunk sets
// both First and Last.
type Chunk struct {
	First bool
	Last  bool
	Data  []byte
}

// Encode renders c as a Frame payload: one flags byte followed by data.
func (c Chunk) Encode() []byte {
	var flags byte
	if c.First {
		flags |= flagFirst
	}
	if c.Last {
		flags |= flagLast
	}
	buf := make([]byte, 1+len(c.Data))
	buf[0] = flags
	copy(buf[1:], c.Data)
	return buf
}

// DecodeChunk is the inverse of Chunk.Encode.
func DecodeChunk(buf []byte) (Chunk, error) {
	if len(buf) < 1 {
		return Chunk{}, errorkind.New(errorkind.KindKernelProtocol, "takeover: empty chunk frame")
	}
	return Chunk{
		First: buf[0]&flagFirst != 0,
		Last:  buf[0]&flagLast != 0,
		Data:  buf[1:],
	}, nil
}

// Split breaks payload into chunks no larger than maxChunkSize, tagging
// the first and last with their sentinels. maxChunkSize <= 0 means "do
// not chunk", which Split expresses as a single First+Last chunk.
func Split(payload []byte, maxChunkSize int) []Chunk {
	if maxChunkSize <= 0 || len(payload) <= maxChunkSize {
		return []Chunk{{First: true, Last: true, Data: payload}}
	}

	var chunks []Chunk
	for offset := 0; offset < len(payload); offset += maxChunkSize {
		end := offset + maxChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		chunks = append(chunks, Chunk{Data: payload[offset:end]})
	}
	chunks[0].First = true
	chunks[len(chunks)-1].Last = true
	return chunks
}

// Reassemble concatenates chunks in receipt order after validating that
// the sequence begins with a First chunk, ends with a Last chunk, and
// (in the single-chunk case) the same chunk carries both sentinels. The
// receiver is expected to buffer chunks in arrival order and call this
// once the Last chunk has arrived.
func Reassemble(chunks []Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: no chunks to reassemble")
	}
	if !chunks[0].First {
		return nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: first chunk missing First sentinel")
	}
	if !chunks[len(chunks)-1].Last {
		return nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: last chunk missing Last sentinel")
	}
	for i, c := range chunks {
		if i != 0 && c.First {
			return nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: unexpected First sentinel mid-sequence")
		}
		if i != len(chunks)-1 && c.Last {
			return nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: unexpected Last sentinel mid-sequence")
		}
	}

	var total int
	for _, c := range chunks {
		total += len(c.Data)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c.Data...)
	}
	return out, nil
}
