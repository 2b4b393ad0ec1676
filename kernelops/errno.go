package kernelops

import "syscall"

// Local aliases keep the handler bodies below readable without an
// explicit "syscall." prefix on every return, matching jacobsa-fuse's
// top-level EIO/ENOENT/ENOSYS/ENOTEMPTY re-exports in errors.go.
const (
	errnoNOSYS    = syscall.ENOSYS
	errnoIO       = syscall.EIO
	errnoNOENT    = syscall.ENOENT
	errnoNOTEMPTY = syscall.ENOTEMPTY
	errnoNODATA   = syscall.ENODATA
	errnoRANGE    = syscall.ERANGE
	errnoEXIST    = syscall.EEXIST
	errnoINVAL    = syscall.EINVAL
)
