package channel

import (
	"os"
	"testing"
)

func TestStateTransitions(t *testing.T) {
	if !canTransition(StateInitializing, StateRunning) {
		t.Fatal("initializing -> running should be legal")
	}
	if canTransition(StateRunning, StateInitializing) {
		t.Fatal("running -> initializing should be illegal")
	}
	if !canTransition(StateDraining, StateStopped) {
		t.Fatal("draining -> stopped should be legal")
	}
	if canTransition(StateStopped, StateRunning) {
		t.Fatal("stopped is terminal")
	}
}

func TestWriteSegmentsSingleAndMulti(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if err := writeSegments(w, [][]byte{[]byte("abc")}); err != nil {
		t.Fatalf("single-segment write: %v", err)
	}
	buf := make([]byte, 3)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(buf) != "abc" {
		t.Fatalf("got %q", buf)
	}

	if err := writeSegments(w, [][]byte{[]byte("de"), []byte("fgh")}); err != nil {
		t.Fatalf("multi-segment write: %v", err)
	}
	buf = make([]byte, 5)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(buf) != "defgh" {
		t.Fatalf("got %q", buf)
	}
}
