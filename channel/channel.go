package channel

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jacobsa/timeutil"
	"go.uber.org/zap"

	"github.com/edenfs/kernelchannel/channel/wire"
	"github.com/edenfs/kernelchannel/errorkind"
	"github.com/edenfs/kernelchannel/internal/telemetry"
	"github.com/edenfs/kernelchannel/invalidation"
	"github.com/edenfs/kernelchannel/kernelops"
)

// Config is everything a Channel needs at construction time, mirroring
// jacobsa-fuse's Connection fields (dev, protocol, cfg) generalized past
// a single concrete backing filesystem.
type Config struct {
	Device  *os.File
	Backend kernelops.Backend
	Workers int

	Logger  *zap.Logger
	Clock   timeutil.Clock
	Metrics *telemetry.Metrics

	EnforceUTF8    bool
	RequestTimeout time.Duration

	// OwnPID, when non-zero, is compared against each request's reporting
	// PID; a match is a self-request loop (e.g. the daemon accessing its
	// own mount) and is rejected without reaching Backend.
	OwnPID uint32
}

// Channel owns the kernel device fd, the worker pool that reads and
// dispatches requests, and the invalidation queue that sends unsolicited
// notifications on the same fd.
type Channel struct {
	cfg        Config
	dispatcher *kernelops.Dispatcher
	inval      *invalidation.Queue

	mu                sync.Mutex
	state             State
	cancelFuncs       map[uint64]context.CancelFunc
	loggedUnknown     map[wire.Opcode]bool
	negotiated        wire.InitOut
	stopReason        StopReason
	takeoverRequested bool

	// stopRequested is polled by worker before each read; set by
	// RequestSessionExit/RequestTakeover. A worker already blocked in a
	// read sees it only after that read returns.
	stopRequested atomic.Bool

	writeMu sync.Mutex // serializes writes to cfg.Device across workers and invalidation

	wg         sync.WaitGroup
	stopDataCh chan StopData
	stopOnce   sync.Once
}

// New constructs a Channel in StateInitializing. Call Run to start the
// worker pool and transition to StateRunning.
func New(cfg Config) *Channel {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock()
	}
	ch := &Channel{
		cfg:           cfg,
		dispatcher:    kernelops.NewDispatcher(),
		cancelFuncs:   make(map[uint64]context.CancelFunc),
		loggedUnknown: make(map[wire.Opcode]bool),
		state:         StateInitializing,
		stopDataCh:    make(chan StopData, 1),
	}
	ch.inval = invalidation.New(ch)
	if cfg.Metrics != nil {
		ch.inval.WithMetrics(cfg.Metrics)
	}
	return ch
}

// SendNotification implements invalidation.Sender by writing segs with
// the same writev-or-write choice jacobsa-fuse's writeOutMessage makes,
// serialized against request-reply writes on the same fd.
func (ch *Channel) SendNotification(segs [][]byte) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	return writeSegments(ch.cfg.Device, segs)
}

// InvalidateInode enqueues a content invalidation; see invalidation.Queue.
func (ch *Channel) InvalidateInode(inode uint64) { ch.inval.InvalidateInode(inode) }

// InvalidateEntry enqueues a directory-entry invalidation.
func (ch *Channel) InvalidateEntry(parent uint64, name string) {
	ch.inval.InvalidateEntry(parent, name)
}

// FlushInvalidations blocks until every invalidation enqueued so far has
// been sent to the kernel.
func (ch *Channel) FlushInvalidations() { ch.inval.Flush() }

func (ch *Channel) setState(to State) *errorkind.Error {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if !canTransition(ch.state, to) {
		return errorkind.Invariant("illegal channel state transition %s -> %s", ch.state, to)
	}
	ch.state = to
	return nil
}

// State returns the channel's current lifecycle state.
func (ch *Channel) State() State {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

// Run performs the kernel INIT handshake (unless InitializeFromTakeover
// already moved the channel to StateRunning), starts the configured
// number of worker goroutines, each looping readMessage -> Dispatch ->
// reply, and blocks until every worker has exited (the device read
// returned ENODEV, or Destroy/RequestSessionExit/RequestTakeover was
// called). Once Run returns, StopData yields the disposition of the
// kernel fd.
func (ch *Channel) Run() error {
	if ch.State() == StateInitializing {
		if err := ch.Initialize(context.Background()); err != nil {
			ch.mu.Lock()
			if ch.state != StateStopped {
				ch.state = StateDraining
			}
			if ch.stopReason == stopReasonUnset {
				ch.stopReason = StopUnmounted
			}
			ch.mu.Unlock()
			ch.inval.Shutdown()
			ch.finish()
			return err
		}
	}

	ch.wg.Add(ch.cfg.Workers)
	for i := 0; i < ch.cfg.Workers; i++ {
		go func() {
			defer ch.wg.Done()
			ch.worker()
		}()
	}
	ch.wg.Wait()

	ch.inval.Shutdown()
	ch.finish()
	return nil
}

// finish transitions to StateStopped and disposes of the kernel fd:
// closed on every stop except a requested takeover, where it is left
// open and handed into StopData for a successor to adopt.
func (ch *Channel) finish() {
	ch.mu.Lock()
	ch.state = StateStopped
	reason := ch.stopReason
	takeover := ch.takeoverRequested
	ch.mu.Unlock()

	sd := StopData{Reason: reason}
	if takeover {
		sd.TakeoverFD = ch.cfg.Device
	} else {
		_ = ch.cfg.Device.Close()
	}

	ch.stopOnce.Do(func() { ch.stopDataCh <- sd })
}

// Destroy requests that the channel stop serving for good: the kernel
// fd is closed immediately, so the workers' reads fail and each worker
// exits; Run then moves the channel to StateStopped. Destroy itself does
// not set StateDraining.
// Grounded on jacobsa-fuse's close()/destroy handling in connection.go
// and server.go.
func (ch *Channel) Destroy() {
	ch.mu.Lock()
	if ch.stopReason == stopReasonUnset {
		ch.stopReason = StopUnmounted
	}
	ch.mu.Unlock()
	_ = ch.cfg.Device.Close()
}

// StopData reports why Run stopped and, for a takeover, the fd a
// successor should adopt. The channel is sent exactly once, after Run
// has returned and the invalidation queue has drained.
func (ch *Channel) StopData() <-chan StopData { return ch.stopDataCh }

func (ch *Channel) worker() {
	in := wire.NewInMessage()
	for {
		if ch.stopRequested.Load() {
			return
		}

		err := in.Init(ch.cfg.Device)
		if err != nil {
			if pe, ok := err.(*os.PathError); ok {
				switch pe.Err {
				case syscall.EINTR, syscall.EAGAIN, syscall.ENOENT:
					// Transient OS condition; retry immediately.
					continue
				case syscall.ENODEV:
					// The kernel hung up. Move to Draining and let every
					// worker observe the same transition exactly once.
					ch.mu.Lock()
					if ch.state != StateDraining && ch.state != StateStopped {
						ch.state = StateDraining
					}
					if ch.stopReason == stopReasonUnset {
						ch.stopReason = StopRemoteUnmount
					}
					ch.mu.Unlock()
					return
				}
			}
			ch.cfg.Logger.Error("kernel channel read failed", zap.Error(err))
			return
		}

		ch.dispatchOne(in)
	}
}

func (ch *Channel) dispatchOne(in *wire.InMessage) {
	hdr := in.Header()

	if ch.cfg.OwnPID != 0 && in.ReportingPID() == ch.cfg.OwnPID {
		ch.cfg.Logger.Error("rejecting self-originated request", zap.Uint32("pid", ch.cfg.OwnPID), zap.Stringer("opcode", hdr.Opcode))
		ch.replyError(hdr.Unique, errnoEIO)
		return
	}

	entry := ch.dispatcher.Lookup(hdr.Opcode)
	if entry == nil {
		ch.mu.Lock()
		firstTime := !ch.loggedUnknown[hdr.Opcode]
		ch.loggedUnknown[hdr.Opcode] = true
		ch.mu.Unlock()
		if firstTime {
			ch.cfg.Logger.Warn("unrecognized opcode", zap.Stringer("opcode", hdr.Opcode))
		}
		ch.replyError(hdr.Unique, errnoNOSYS)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	if ch.cfg.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, ch.cfg.RequestTimeout)
	}
	ch.mu.Lock()
	ch.cancelFuncs[hdr.Unique] = cancel
	ch.mu.Unlock()
	defer func() {
		ch.mu.Lock()
		delete(ch.cancelFuncs, hdr.Unique)
		ch.mu.Unlock()
		cancel()
	}()

	opHdr := kernelops.OpHeader{
		Unique: hdr.Unique,
		Inode:  kernelops.InodeID(hdr.Nodeid),
		UID:    hdr.Uid,
		GID:    hdr.Gid,
		PID:    hdr.Pid,
		Opcode: hdr.Opcode,
	}
	reply := wire.NewOutMessage(hdr.Unique, 256)
	opts := kernelops.Options{EnforceUTF8: ch.cfg.EnforceUTF8}

	opcode := hdr.Opcode.String()
	start := ch.cfg.Clock.Now()
	derr := ch.dispatcher.Dispatch(ctx, opHdr, in, reply, ch.cfg.Backend, opts)
	if ch.cfg.Metrics != nil {
		ch.cfg.Metrics.RequestsTotal.WithLabelValues(opcode).Inc()
		ch.cfg.Metrics.RequestDuration.WithLabelValues(opcode).Observe(ch.cfg.Clock.Now().Sub(start).Seconds())
	}
	if derr != nil {
		if ch.cfg.Metrics != nil {
			ch.cfg.Metrics.RequestErrors.WithLabelValues(opcode).Inc()
		}
		ch.replyError(hdr.Unique, int32(errorkind.AsErrno(derr)))
		return
	}
	if hdr.Opcode == wire.OpForget || hdr.Opcode == wire.OpBatchForget {
		// The kernel does not wait for a reply to a forget.
		return
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := writeSegments(ch.cfg.Device, reply.Iovecs()); err != nil {
		ch.cfg.Logger.Error("reply write failed", zap.Error(err), zap.Stringer("opcode", hdr.Opcode))
	}
}

func (ch *Channel) replyError(unique uint64, errno int32) {
	m := wire.NewOutMessage(unique, 0)
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := writeSegments(ch.cfg.Device, [][]byte{m.FinalizeError(errno)}); err != nil {
		ch.cfg.Logger.Error("error reply write failed", zap.Error(err))
	}
}

var (
	errnoEIO    = int32(syscall.EIO)
	errnoNOSYS  = int32(syscall.ENOSYS)
	errnoEPROTO = int32(syscall.EPROTO)
	errnoEINVAL = int32(syscall.EINVAL)
)
