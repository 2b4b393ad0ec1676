// Package errorkind implements the structured error type shared by every
// component of the kernel-channel core.
//
// jacobsa-fuse's bazilfuse-era code propagated failures as bare Go errors
// (sometimes as bazilfuse.Errno values) and relied on panics for
// programming errors. This package replaces both with one closed sum
// type: a Kind, an optional kernel errno, and an optional human-readable
// message. The channel's reply writer is the single place that converts
// an Error into a wire reply.
package errorkind

import (
	"fmt"
	"syscall"
)

// Kind classifies the error into the closed set this module's reply
// writers and callers switch on.
type Kind int

const (
	// KindUnknown is the zero value and must never be returned deliberately.
	KindUnknown Kind = iota

	// KindKernelProtocol is a truncated header, unknown version, or
	// self-loop. Fatal to the channel.
	KindKernelProtocol

	// KindTransientOS is EINTR/EAGAIN/ENOENT on a read. Callers retry.
	KindTransientOS

	// KindRemoteUnmount is ENODEV: the kernel hung up. Not fatal to the
	// process; the channel transitions to Draining.
	KindRemoteUnmount

	// KindRequest is a per-request failure. Converted to an error-number
	// reply; the channel continues serving other requests.
	KindRequest

	// KindConfig is a malformed TOML document or invalid key. The
	// offending option is logged and ignored; defaults stand.
	KindConfig

	// KindPatternCompile is a malformed glob/ignore pattern. Only the
	// offending rule is dropped, not the whole rule file.
	KindPatternCompile

	// KindPrivhelperProtocol is a version mismatch or unexpected response
	// type on the privhelper wire protocol. Fatal to that connection.
	KindPrivhelperProtocol

	// KindInvariant is an internal invariant violation. Logged critical;
	// in debug builds the process crashes, in production builds it
	// propagates to the caller of initialize/stop.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindKernelProtocol:
		return "kernel-protocol"
	case KindTransientOS:
		return "transient-os"
	case KindRemoteUnmount:
		return "remote-unmount"
	case KindRequest:
		return "request"
	case KindConfig:
		return "config"
	case KindPatternCompile:
		return "pattern-compile"
	case KindPrivhelperProtocol:
		return "privhelper-protocol"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Error is the structured error carried through every component
// boundary in this module in place of exceptions.
type Error struct {
	Kind    Kind
	Errno   syscall.Errno // valid only when non-zero
	Message string
}

func (e *Error) Error() string {
	if e.Errno != 0 {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Errno)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Errno)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.String()
}

// New builds an Error with a message and no errno.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Errno builds a per-request Error carrying a kernel errno, the shape
// that the channel's reply writer turns directly into a wire reply.
func Errno(errno syscall.Errno, format string, args ...interface{}) *Error {
	return &Error{Kind: KindRequest, Errno: errno, Message: fmt.Sprintf(format, args...)}
}

// Invariant builds a KindInvariant error. It is returned to the caller
// like any other Error; nothing in this module crashes on it.
func Invariant(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvariant, Message: fmt.Sprintf(format, args...)}
}

// AsErrno extracts the kernel errno to report for err, defaulting to
// EIO for anything that isn't a *Error carrying its own errno. This is
// the one conversion site the design notes call for.
func AsErrno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	if e, ok := err.(*Error); ok && e.Errno != 0 {
		return e.Errno
	}
	return syscall.EIO
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
