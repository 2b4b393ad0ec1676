// Package mount tracks one mount's lifecycle: the directory it is
// mounted on, the Channel serving it, and a Join method callers use to
// wait for the mount to finish, grounded on jacobsa-fuse's
// MountedFileSystem (mounted_file_system.go)'s dir/joinStatus/
// joinStatusAvailable pattern, generalized from a single bazilfuse
// connection to this module's channel.Channel.
package mount

import (
	"context"
	"sync"

	"github.com/edenfs/kernelchannel/channel"
)

// State is one mount's lifecycle record: where it is mounted, the
// channel serving it, and the eventual join status.
type State struct {
	dir string
	ch  *channel.Channel

	mu                  sync.Mutex
	joinStatus          error
	joinStatusAvailable chan struct{}
}

// Dir returns the directory this mount is served on.
func (s *State) Dir() string { return s.dir }

// Channel returns the underlying Channel, e.g. to call
// InvalidateInode/InvalidateEntry or inspect State().
func (s *State) Channel() *channel.Channel { return s.ch }

// Start constructs a State around cfg, already pointed at an opened
// kernel device fd (obtained out-of-band via the privhelper protocol
// for privileged mount setup), and begins serving it in the background.
// It returns immediately; callers wait for completion with Join.
func Start(dir string, cfg channel.Config) *State {
	s := &State{
		dir:                 dir,
		ch:                  channel.New(cfg),
		joinStatusAvailable: make(chan struct{}),
	}

	go func() {
		err := s.ch.Run()
		s.mu.Lock()
		s.joinStatus = err
		s.mu.Unlock()
		close(s.joinStatusAvailable)
	}()

	return s
}

// Join blocks until the mount's channel has stopped, or ctx is done,
// whichever comes first. It may be called multiple times.
func (s *State) Join(ctx context.Context) error {
	select {
	case <-s.joinStatusAvailable:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.joinStatus
	case <-ctx.Done():
		return ctx.Err()
	}
}
