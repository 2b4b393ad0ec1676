package mount

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/edenfs/kernelchannel/channel"
	"github.com/edenfs/kernelchannel/kernelops"
)

type stubBackend struct{ kernelops.Backend }

func TestStartAndJoin(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()

	s := Start("/mnt/eden/www", channel.Config{
		Device:  r,
		Backend: stubBackend{},
		Workers: 1,
		Logger:  zap.NewNop(),
	})

	if s.Dir() != "/mnt/eden/www" {
		t.Fatalf("got Dir() = %q, want /mnt/eden/www", s.Dir())
	}
	if s.Channel() == nil {
		t.Fatal("expected a non-nil Channel")
	}

	// Closing the write end before any INIT request arrives makes Run's
	// handshake read return EOF; Run stops and returns that error, so
	// Join completes and reports it without needing a real kernel device.
	w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Join(ctx); !errors.Is(err, io.EOF) {
		t.Fatalf("Join: got %v, want the handshake's EOF error", err)
	}
}

func TestJoinRespectsContextCancellation(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	s := Start("/mnt/eden/www", channel.Config{
		Device:  r,
		Backend: stubBackend{},
		Workers: 1,
		Logger:  zap.NewNop(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Join(ctx); err == nil {
		t.Fatal("expected Join to report context deadline exceeded while the pipe stays open")
	}
}
