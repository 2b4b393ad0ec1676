package channel

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/edenfs/kernelchannel/channel/wire"
)

// Initialize performs the kernel's INIT handshake: it blocks for the
// first message on the device, requires it to be an INIT request,
// negotiates capability flags with negotiateInitFlags, and writes back
// an InitOut reply before transitioning to StateRunning. Grounded on
// jacobsa-fuse's Connection.Init (connection.go), generalized past a
// single hard-coded protocol pair. Run calls this itself when starting
// fresh; callers only need it directly in tests.
func (ch *Channel) Initialize(ctx context.Context) error {
	in := wire.NewInMessage()
	if err := in.Init(ch.cfg.Device); err != nil {
		return fmt.Errorf("reading init request: %w", err)
	}
	hdr := in.Header()

	if hdr.Opcode != wire.OpInit {
		ch.replyError(hdr.Unique, errnoEPROTO)
		return fmt.Errorf("expected INIT request first, got %v", hdr.Opcode)
	}

	initIn, err := wire.DecodeInitIn(in)
	if err != nil {
		ch.replyError(hdr.Unique, errnoEINVAL)
		return fmt.Errorf("decoding init request: %w", err)
	}

	out := wire.InitOut{
		Major:        wire.ProtoMajor,
		Minor:        wire.ProtoMinor,
		MaxReadahead: initIn.MaxReadahead,
		Flags:        uint32(negotiateInitFlags(initIn.Flags)),
		MaxWrite:     wire.MaxWriteSize,
		MaxPages:     wire.DefaultMaxPages,
	}

	reply := wire.NewOutMessage(hdr.Unique, wire.InitOutSize())
	reply.Append(out.Encode())

	ch.writeMu.Lock()
	werr := writeSegments(ch.cfg.Device, reply.Iovecs())
	ch.writeMu.Unlock()
	if werr != nil {
		return fmt.Errorf("writing init reply: %w", werr)
	}

	ch.mu.Lock()
	ch.negotiated = out
	ch.mu.Unlock()

	if err := ch.setState(StateRunning); err != nil {
		return err
	}
	ch.cfg.Logger.Info("kernel handshake complete",
		zap.Uint32("major", out.Major), zap.Uint32("minor", out.Minor),
		zap.Uint32("max_write", out.MaxWrite))
	return nil
}

// negotiateInitFlags computes the flags this module grants in InitOut:
// it always asks for big writes and the larger max-pages ceiling, and
// grants async reads / writeback caching only when the kernel itself
// advertised support for them, mirroring jacobsa-fuse's Connection.Init
// capability-intersection policy in connection.go.
func negotiateInitFlags(kernel wire.InitFlags) wire.InitFlags {
	out := wire.InitBigWrites | wire.InitMaxPagesFlag
	if kernel&wire.InitAsyncRead != 0 {
		out |= wire.InitAsyncRead
	}
	if kernel&wire.InitWritebackCache != 0 {
		out |= wire.InitWritebackCache
	}
	return out
}

// InitializeFromTakeover adopts a connection already negotiated by a
// predecessor process instead of reading a fresh INIT request:
// connParams is the predecessor's encoded InitOut, as carried in a
// takeover.MountState's ConnectionParams field. The channel moves
// directly to StateRunning; Run then skips Initialize and starts its
// worker pool straight away.
func (ch *Channel) InitializeFromTakeover(connParams []byte) error {
	out, err := wire.DecodeInitOut(connParams)
	if err != nil {
		return fmt.Errorf("decoding handed-off init params: %w", err)
	}
	ch.mu.Lock()
	ch.negotiated = out
	ch.mu.Unlock()
	return ch.setState(StateRunning)
}

// RequestSessionExit asks every worker to stop issuing new reads once
// its current dispatch completes; in-flight requests still finish and
// the invalidation queue still drains before Run returns. reason is
// logged for operators and carried nowhere else.
func (ch *Channel) RequestSessionExit(reason string) {
	ch.mu.Lock()
	if ch.stopReason == stopReasonUnset {
		ch.stopReason = StopRequested
	}
	if ch.state == StateRunning {
		ch.state = StateDraining
	}
	ch.mu.Unlock()
	ch.cfg.Logger.Info("session exit requested", zap.String("reason", reason))
	ch.stopRequested.Store(true)
}

// RequestTakeover asks the channel to drain for a handoff instead of a
// final stop: once Run returns, the kernel fd is left open in StopData
// for a successor process to adopt via InitializeFromTakeover instead
// of being closed.
func (ch *Channel) RequestTakeover(reason string) {
	ch.mu.Lock()
	ch.stopReason = StopTakeover
	ch.takeoverRequested = true
	if ch.state == StateRunning {
		ch.state = StateDraining
	}
	ch.mu.Unlock()
	ch.cfg.Logger.Info("takeover requested", zap.String("reason", reason))
	ch.stopRequested.Store(true)
}
