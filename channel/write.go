package channel

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// writeSegments writes segs to dev, using a single writev(2) call when
// there is more than one segment and a plain write(2) otherwise, the
// same choice jacobsa-fuse's writeOutMessage makes between Sglist and a
// flat OutHeaderBytes buffer.
func writeSegments(dev *os.File, segs [][]byte) error {
	if len(segs) == 0 {
		return nil
	}
	if len(segs) == 1 {
		return writeAll(dev, segs[0])
	}

	n, err := unix.Writev(int(dev.Fd()), segs)
	if err != nil {
		return err
	}
	want := 0
	for _, s := range segs {
		want += len(s)
	}
	if n != want {
		return fmt.Errorf("writev: wrote %d bytes, expected %d", n, want)
	}
	return nil
}

// writeAll bypasses os.File.Write's internal retry loop, matching
// jacobsa-fuse's writeMessage: a short write here is a protocol error,
// not something to paper over by looping.
func writeAll(dev *os.File, msg []byte) error {
	n, err := unix.Write(int(dev.Fd()), msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("write: wrote %d bytes, expected %d", n, len(msg))
	}
	return nil
}
