package privhelper

import "os"

// FuseMountRequest asks the helper to perform the privileged portion of
// a FUSE mount: opening /dev/fuse (or equivalent) and invoking the
// platform mount syscall with mountPath as the target.
type FuseMountRequest struct {
	MountPath string
}

func (r FuseMountRequest) Encode() []byte {
	w := &writer{}
	w.String(r.MountPath)
	return w.Bytes()
}

func DecodeFuseMountRequest(body []byte) (FuseMountRequest, error) {
	r := &reader{buf: body}
	path, err := r.String()
	if err != nil {
		return FuseMountRequest{}, err
	}
	return FuseMountRequest{MountPath: path}, nil
}

// NFSMountRequest asks the helper to perform the privileged portion of
// an NFS mount.
type NFSMountRequest struct {
	MountPath string
}

func (r NFSMountRequest) Encode() []byte {
	w := &writer{}
	w.String(r.MountPath)
	return w.Bytes()
}

func DecodeNFSMountRequest(body []byte) (NFSMountRequest, error) {
	r := &reader{buf: body}
	path, err := r.String()
	if err != nil {
		return NFSMountRequest{}, err
	}
	return NFSMountRequest{MountPath: path}, nil
}

// UnmountRequest asks the helper to unmount mountPath, composing zero or
// more UnmountFlags bits. It serves both the FUSE and NFS unmount
// message types -- they share an identical body shape and differ only
// in MessageType.
type UnmountRequest struct {
	MountPath string
	Flags     UnmountFlags
}

func (r UnmountRequest) Encode() []byte {
	w := &writer{}
	w.String(r.MountPath)
	w.U32(uint32(r.Flags))
	return w.Bytes()
}

func DecodeUnmountRequest(body []byte) (UnmountRequest, error) {
	r := &reader{buf: body}
	path, err := r.String()
	if err != nil {
		return UnmountRequest{}, err
	}
	flags, err := r.U32()
	if err != nil {
		return UnmountRequest{}, err
	}
	return UnmountRequest{MountPath: path, Flags: UnmountFlags(flags)}, nil
}

// TakeoverShutdownRequest asks the helper to prepare mountPath's kernel
// connection for handoff to an incoming process without unmounting it.
type TakeoverShutdownRequest struct {
	MountPath string
}

func (r TakeoverShutdownRequest) Encode() []byte {
	w := &writer{}
	w.String(r.MountPath)
	return w.Bytes()
}

func DecodeTakeoverShutdownRequest(body []byte) (TakeoverShutdownRequest, error) {
	r := &reader{buf: body}
	path, err := r.String()
	if err != nil {
		return TakeoverShutdownRequest{}, err
	}
	return TakeoverShutdownRequest{MountPath: path}, nil
}

// TakeoverStartupRequest asks the helper to resume ownership of
// mountPath after an incoming process receives its kernel connection,
// rebinding any additional BindMounts layered on top of it.
type TakeoverStartupRequest struct {
	MountPath  string
	BindMounts []string
}

func (r TakeoverStartupRequest) Encode() []byte {
	w := &writer{}
	w.String(r.MountPath)
	w.StringList(r.BindMounts)
	return w.Bytes()
}

func DecodeTakeoverStartupRequest(body []byte) (TakeoverStartupRequest, error) {
	r := &reader{buf: body}
	path, err := r.String()
	if err != nil {
		return TakeoverStartupRequest{}, err
	}
	binds, err := r.StringList()
	if err != nil {
		return TakeoverStartupRequest{}, err
	}
	return TakeoverStartupRequest{MountPath: path, BindMounts: binds}, nil
}

// BindMountRequest asks the helper to bind-mount clientPath onto
// mountPath.
type BindMountRequest struct {
	ClientPath string
	MountPath  string
}

func (r BindMountRequest) Encode() []byte {
	w := &writer{}
	w.String(r.ClientPath)
	w.String(r.MountPath)
	return w.Bytes()
}

func DecodeBindMountRequest(body []byte) (BindMountRequest, error) {
	r := &reader{buf: body}
	client, err := r.String()
	if err != nil {
		return BindMountRequest{}, err
	}
	mount, err := r.String()
	if err != nil {
		return BindMountRequest{}, err
	}
	return BindMountRequest{ClientPath: client, MountPath: mount}, nil
}

// BindUnmountRequest asks the helper to remove a previously bind-mounted
// path.
type BindUnmountRequest struct {
	MountPath string
}

func (r BindUnmountRequest) Encode() []byte {
	w := &writer{}
	w.String(r.MountPath)
	return w.Bytes()
}

func DecodeBindUnmountRequest(body []byte) (BindUnmountRequest, error) {
	r := &reader{buf: body}
	path, err := r.String()
	if err != nil {
		return BindUnmountRequest{}, err
	}
	return BindUnmountRequest{MountPath: path}, nil
}

// SetLogFileRequest carries an FD-transferring request: the encoded
// body is empty, and the FD itself travels out-of-band via SCM_RIGHTS,
// as in the takeover protocol.
type SetLogFileRequest struct {
	// FD is populated by the transport layer after receiving the
	// accompanying SCM_RIGHTS control message; it is not part of the
	// typed body itself.
	FD *os.File
}

func (r SetLogFileRequest) Encode() []byte {
	return (&writer{}).Bytes()
}

func DecodeSetLogFileRequest(body []byte) (SetLogFileRequest, error) {
	return SetLogFileRequest{}, nil
}

// SetDaemonTimeoutRequest sets the helper's timeout for how long it
// waits for the daemon to respond before considering it dead.
type SetDaemonTimeoutRequest struct {
	TimeoutSeconds uint32
}

func (r SetDaemonTimeoutRequest) Encode() []byte {
	w := &writer{}
	w.U32(r.TimeoutSeconds)
	return w.Bytes()
}

func DecodeSetDaemonTimeoutRequest(body []byte) (SetDaemonTimeoutRequest, error) {
	r := &reader{buf: body}
	secs, err := r.U32()
	if err != nil {
		return SetDaemonTimeoutRequest{}, err
	}
	return SetDaemonTimeoutRequest{TimeoutSeconds: secs}, nil
}

// SetUseProductDeviceRequest toggles whether the helper should mount
// through the product-specific device node instead of the generic one.
type SetUseProductDeviceRequest struct {
	Use bool
}

func (r SetUseProductDeviceRequest) Encode() []byte {
	w := &writer{}
	w.Bool(r.Use)
	return w.Bytes()
}

func DecodeSetUseProductDeviceRequest(body []byte) (SetUseProductDeviceRequest, error) {
	r := &reader{buf: body}
	use, err := r.Bool()
	if err != nil {
		return SetUseProductDeviceRequest{}, err
	}
	return SetUseProductDeviceRequest{Use: use}, nil
}

// GetPIDReply carries the helper's own process id, used by the daemon
// to confirm the helper it is talking to is the one it spawned.
type GetPIDReply struct {
	PID uint32
}

func (r GetPIDReply) Encode() []byte {
	w := &writer{}
	w.U32(r.PID)
	return w.Bytes()
}

func DecodeGetPIDReply(body []byte) (GetPIDReply, error) {
	r := &reader{buf: body}
	pid, err := r.U32()
	if err != nil {
		return GetPIDReply{}, err
	}
	return GetPIDReply{PID: pid}, nil
}

// FileAccessMonitorRequest starts or stops file-access monitoring
// (message type distinguishes the two); outputPath names where the
// helper should write its trace.
type FileAccessMonitorRequest struct {
	Paths      []string
	OutputPath *string
}

func (r FileAccessMonitorRequest) Encode() []byte {
	w := &writer{}
	w.StringList(r.Paths)
	w.OptionalString(r.OutputPath)
	return w.Bytes()
}

func DecodeFileAccessMonitorRequest(body []byte) (FileAccessMonitorRequest, error) {
	r := &reader{buf: body}
	paths, err := r.StringList()
	if err != nil {
		return FileAccessMonitorRequest{}, err
	}
	out, err := r.OptionalString()
	if err != nil {
		return FileAccessMonitorRequest{}, err
	}
	return FileAccessMonitorRequest{Paths: paths, OutputPath: out}, nil
}

// SetMemoryPriorityRequest adjusts the OOM-killer priority of the
// daemon process the helper supervises.
type SetMemoryPriorityRequest struct {
	Priority int32
}

func (r SetMemoryPriorityRequest) Encode() []byte {
	w := &writer{}
	w.U32(uint32(r.Priority))
	return w.Bytes()
}

func DecodeSetMemoryPriorityRequest(body []byte) (SetMemoryPriorityRequest, error) {
	r := &reader{buf: body}
	v, err := r.U32()
	if err != nil {
		return SetMemoryPriorityRequest{}, err
	}
	return SetMemoryPriorityRequest{Priority: int32(v)}, nil
}
