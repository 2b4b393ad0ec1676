package invalidation

import (
	"sync"
	"testing"
)

type recordingSender struct {
	mu    sync.Mutex
	sends [][][]byte
}

func (r *recordingSender) SendNotification(segs [][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, segs)
	return nil
}

// TestFlushOrdering is the scenario-4 ordering test: an inode
// invalidation for ino=7, an entry invalidation for parent=1/name="a", a
// flush barrier, then an inode invalidation for ino=9 must be observed
// by the sender in exactly that order even though producers never hold
// a lock across the sends.
func TestFlushOrdering(t *testing.T) {
	sender := &recordingSender{}
	q := New(sender)

	q.InvalidateInode(7)
	q.InvalidateEntry(1, "a")
	q.Flush()
	q.InvalidateInode(9)
	q.Flush()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sends) != 3 {
		t.Fatalf("got %d sends, want 3", len(sender.sends))
	}
	// First send: inode invalidation for 7 (2 segments: header + body).
	if len(sender.sends[0]) != 2 {
		t.Fatalf("send 0: got %d segments, want 2", len(sender.sends[0]))
	}
	// Second send: entry invalidation for (1, "a") (3 segments).
	if len(sender.sends[1]) != 3 {
		t.Fatalf("send 1: got %d segments, want 3", len(sender.sends[1]))
	}
	// Third send: inode invalidation for 9.
	if len(sender.sends[2]) != 2 {
		t.Fatalf("send 2: got %d segments, want 2", len(sender.sends[2]))
	}

	q.Shutdown()
}

func TestShutdownDrainsBeforeClosing(t *testing.T) {
	sender := &recordingSender{}
	q := New(sender)
	q.InvalidateInode(1)
	q.InvalidateInode(2)
	q.Shutdown()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sends) != 2 {
		t.Fatalf("got %d sends after shutdown, want 2", len(sender.sends))
	}
}
