// Package channel drives a FUSE kernel device file descriptor with a
// pool of worker goroutines, plus the
// single-threaded invalidation sender that must never block behind a
// request worker.
//
// Grounded on github.com/jacobsa/fuse's connection.go (ReadOp/Reply,
// beginOp/finishOp cancellation bookkeeping, readMessage's EINTR/ENODEV
// handling, writeOutMessage's writev-vs-write choice) and on
// soitun-go-fuse's server_linux.go/server_unix.go worker-goroutine-pool
// idiom. The wire framing lives in channel/wire rather than an
// unsafe-pointer buffer package, since this module speaks one protocol
// shape rather than negotiating with fusekernel.Protocol.
package channel

import "os"

// State is the lifecycle of a Channel.
type State int

const (
	// StateInitializing is before the kernel's INIT handshake completes.
	StateInitializing State = iota

	// StateRunning is the steady state: workers dispatch requests and the
	// invalidation goroutine may send unsolicited notifications.
	StateRunning

	// StateDraining follows the kernel hanging up (ENODEV) or a local
	// requestSessionExit call: outstanding requests finish, but no new
	// reads are issued. The invalidation goroutine keeps sending until Run
	// shuts it down after the workers have exited.
	StateDraining

	// StateStopped is terminal: the device is closed and all goroutines
	// have exited.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// transitions lists the state changes setState accepts; any other pair
// passed to setState is an invariant violation. The shutdown paths
// (RequestSessionExit, RequestTakeover, a worker's ENODEV handling, and
// finish, which moves to StateStopped from any state) assign the state
// directly without consulting this table.
var transitions = map[State][]State{
	StateInitializing: {StateRunning, StateDraining},
	StateRunning:       {StateDraining},
	StateDraining:      {StateStopped},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StopReason classifies why a Channel reached StateStopped, carried in
// the StopData it yields.
type StopReason int

const (
	// stopReasonUnset is StopReason's zero value: Run has not yet stopped,
	// or stopped without anything recording a more specific reason.
	stopReasonUnset StopReason = iota

	// StopUnmounted means Destroy was called locally: the kernel fd was
	// closed on purpose and will not be reused.
	StopUnmounted

	// StopRemoteUnmount means a worker's read returned ENODEV: the kernel
	// hung up first, e.g. because the mount was force-unmounted.
	StopRemoteUnmount

	// StopRequested means RequestSessionExit was called: a cooperative,
	// local shutdown request.
	StopRequested

	// StopTakeover means RequestTakeover was called: Run drained for a
	// handoff rather than a final stop, and StopData carries the
	// still-open kernel fd for a successor to adopt.
	StopTakeover
)

func (r StopReason) String() string {
	switch r {
	case StopUnmounted:
		return "unmounted"
	case StopRemoteUnmount:
		return "remote-unmount"
	case StopRequested:
		return "requested"
	case StopTakeover:
		return "takeover"
	default:
		return "unset"
	}
}

// StopData is what a Channel yields once Run has returned: why it
// stopped and, for a takeover handoff, the still-open kernel fd a
// successor process should adopt via InitializeFromTakeover instead of
// performing a fresh mount. Kernel fds are scoped to the Channel that
// owns them: on takeover the fd is moved here instead of closed; on
// every other stop it has already been closed by the time StopData is
// delivered.
type StopData struct {
	Reason     StopReason
	TakeoverFD *os.File
}
