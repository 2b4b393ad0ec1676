package takeover

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/edenfs/kernelchannel/errorkind"
)

// SendFrame writes a length-prefixed frame body to conn, then sends fds
// out-of-band over the same socket via SCM_RIGHTS in the order given.
// The order fds are passed in must match the FDOrder names recorded in
// the corresponding MountState, since UnixRights packs them positionally
// with no embedded names.
func SendFrame(conn *net.UnixConn, body []byte, fds []*os.File) error {
	raw := make([]int, len(fds))
	for i, f := range fds {
		raw[i] = int(f.Fd())
	}

	var oob []byte
	if len(raw) > 0 {
		oob = unix.UnixRights(raw...)
	}

	n, oobn, err := conn.WriteMsgUnix(body, oob, nil)
	if err != nil {
		return errorkind.New(errorkind.KindKernelProtocol, "takeover: WriteMsgUnix: %v", err)
	}
	if n != len(body) || oobn != len(oob) {
		return errorkind.New(errorkind.KindKernelProtocol, "takeover: short write: wrote %d/%d bytes, %d/%d oob bytes", n, len(body), oobn, len(oob))
	}
	return nil
}

// RecvFrame reads one frame body plus any fds carried alongside it via
// SCM_RIGHTS. maxBody and maxFDs bound the read buffers; a legitimate
// takeover payload never approaches them.
func RecvFrame(conn *net.UnixConn, maxBody, maxFDs int) ([]byte, []*os.File, error) {
	body := make([]byte, maxBody)
	oob := make([]byte, unix.CmsgSpace(maxFDs*4))

	n, oobn, _, _, err := conn.ReadMsgUnix(body, oob)
	if err != nil {
		return nil, nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: ReadMsgUnix: %v", err)
	}

	var files []*os.File
	if oobn > 0 {
		scms, err := unix.ParseSocketControlMessage(oob[:oobn])
		if err != nil {
			return nil, nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: parsing control message: %v", err)
		}
		for _, scm := range scms {
			fds, err := unix.ParseUnixRights(&scm)
			if err != nil {
				return nil, nil, errorkind.New(errorkind.KindKernelProtocol, "takeover: parsing SCM_RIGHTS: %v", err)
			}
			for _, fd := range fds {
				files = append(files, os.NewFile(uintptr(fd), "takeover-fd"))
			}
		}
	}
	return body[:n], files, nil
}
