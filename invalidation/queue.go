// Package invalidation implements a single-threaded sender of
// unsolicited kernel notifications (inode content invalidation,
// directory entry invalidation, and flush barriers), fed by a FIFO that
// any number of producer goroutines may push onto without ever blocking
// behind the sender's I/O.
//
// Grounded on jacobsa-fuse's connection.go writeOutMessage/writeMessage
// (the writev-vs-write choice this package reuses for its own sends) and
// on its debugLog/mu discipline for a condvar-guarded FIFO: no caller of
// InvalidateInode/InvalidateEntry/Flush ever holds the queue's lock
// while performing I/O.
package invalidation

import (
	"errors"
	"sync"
	"syscall"

	"github.com/edenfs/kernelchannel/channel/wire"
	"github.com/edenfs/kernelchannel/errorkind"
	"github.com/edenfs/kernelchannel/internal/telemetry"
)

const errnoNOENT = syscall.ENOENT

// Sender writes one already-framed notification to the kernel device.
// channel.Channel implements this by wrapping its writev-capable device
// write; tests supply a recording fake.
type Sender interface {
	SendNotification(segs [][]byte) error
}

// entryKind distinguishes the three notification shapes this queue can
// carry.
type entryKind int

const (
	kindInode entryKind = iota
	kindEntry
	kindBarrier
)

type item struct {
	kind   entryKind
	inode  uint64
	parent uint64
	name   string
	done   chan struct{} // non-nil only for kindBarrier
}

// Queue is the single-threaded invalidation sender. Zero value is not
// usable; construct with New.
type Queue struct {
	sender  Sender
	metrics *telemetry.Metrics

	mu       sync.Mutex
	cond     *sync.Cond
	items    []item
	closed   bool
	stopped  chan struct{}
}

// New starts the queue's sender goroutine, which runs until Shutdown is
// called. sender performs the actual kernel write.
func New(sender Sender) *Queue {
	q := &Queue{sender: sender, stopped: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// WithMetrics attaches m so every push and pop updates QueueDepth, a
// successful send increments InvalidationSent, and a send failing with
// ENOENT increments InvalidationDrop; other send failures are not
// counted. Called once,
// before the queue sees traffic; nil disables metrics (the default).
func (q *Queue) WithMetrics(m *telemetry.Metrics) *Queue {
	q.metrics = m
	return q
}

// InvalidateInode enqueues a content invalidation for inode. Never
// blocks on I/O; returns as soon as the item is queued.
func (q *Queue) InvalidateInode(inode uint64) {
	q.push(item{kind: kindInode, inode: inode})
}

// InvalidateEntry enqueues a directory-entry invalidation for
// (parent, name). Never blocks on I/O.
func (q *Queue) InvalidateEntry(parent uint64, name string) {
	q.push(item{kind: kindEntry, parent: parent, name: name})
}

// Flush enqueues a barrier and blocks until every item enqueued before
// it has been sent to the kernel: callers use this to know their prior
// invalidations have actually left the process before proceeding (e.g.
// before replying to the request that triggered them).
func (q *Queue) Flush() {
	done := make(chan struct{})
	q.push(item{kind: kindBarrier, done: done})
	<-done
}

func (q *Queue) push(it item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		if it.done != nil {
			// Nothing is left to send, so a barrier is already satisfied.
			close(it.done)
		}
		return
	}
	q.items = append(q.items, it)
	depth := len(q.items)
	q.cond.Signal()
	if q.metrics != nil {
		q.metrics.QueueDepth.Set(float64(depth))
	}
}

// Shutdown drains any queued items, then stops the sender goroutine:
// it first lets the queue drain (so invalidations racing with channel
// teardown are not silently dropped) and only then refuses further
// pushes.
func (q *Queue) Shutdown() {
	q.Flush()
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
	<-q.stopped
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		it := q.items[0]
		q.items = q.items[1:]
		depth := len(q.items)
		q.mu.Unlock()
		if q.metrics != nil {
			q.metrics.QueueDepth.Set(float64(depth))
		}

		q.send(it)
	}
}

func (q *Queue) send(it item) {
	switch it.kind {
	case kindBarrier:
		close(it.done)
		return
	case kindInode:
		segs := encodeInvalInode(it.inode)
		q.sendAndCount(segs)
	case kindEntry:
		segs := encodeInvalEntry(it.parent, it.name)
		q.sendAndCount(segs)
	}
}

func (q *Queue) sendAndCount(segs [][]byte) {
	err := q.sender.SendNotification(segs)
	if err != nil {
		// ENOENT means the kernel already dropped the inode; not an
		// error worth propagating since the goal (cache drop) is
		// already satisfied, but still worth distinguishing from a
		// successful send in the metrics.
		if errors.Is(err, errnoNOENT) || errorkind.AsErrno(err) == errnoNOENT {
			if q.metrics != nil {
				q.metrics.InvalidationDrop.Inc()
			}
			return
		}
		return
	}
	if q.metrics != nil {
		q.metrics.InvalidationSent.Inc()
	}
}

// encodeInvalInode builds the 2-iov notification body: a fixed header
// naming the inode, no name segment.
func encodeInvalInode(inode uint64) [][]byte {
	h := wire.OutHeader{Len: uint32(wire.OutHeaderSize + 8), Error: notifyCodeInvalInode, Unique: 0}
	body := make([]byte, 8)
	putU64LE(body, inode)
	return [][]byte{h.Encode(), body}
}

// encodeInvalEntry builds the 3-segment notification body: header, fixed
// parent-inode field, and the name with its terminating NUL in one
// segment.
func encodeInvalEntry(parent uint64, name string) [][]byte {
	nameBytes := append([]byte(name), 0)
	fixed := make([]byte, 8+4+4)
	putU64LE(fixed, parent)
	h := wire.OutHeader{Len: uint32(wire.OutHeaderSize + len(fixed) + len(nameBytes)), Error: notifyCodeInvalEntry, Unique: 0}
	return [][]byte{h.Encode(), fixed, nameBytes}
}

func putU64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

const (
	notifyCodeInvalInode = -2
	notifyCodeInvalEntry = -3
)
