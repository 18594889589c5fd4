//go:build unix

package broadcast

import (
	"net"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// client is a subscribed TCP connection. It is only dropped when a write
// fails; a client that half-closes its side keeps receiving. pending holds
// the unsent tail of a frame after a partial write; it is flushed before any
// new frame so the stream stays line aligned, and new frames are skipped
// until it is empty.
type client struct {
	id      string
	conn    *net.TCPConn
	raw     syscall.RawConn
	pending []byte
}

func newClient(id string, conn *net.TCPConn) (*client, error) {
	if err := conn.SetNoDelay(true); err != nil {
		return nil, errors.Wrap(err, "unable to disable send coalescing")
	}
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, errors.Wrap(err, "unable to access raw connection")
	}
	return &client{
		id:   id,
		conn: conn,
		raw:  raw,
	}, nil
}

func (c *client) write(frame []byte) error {
	if len(c.pending) > 0 {
		n, err := c.send(c.pending)
		if err != nil {
			return err
		}
		c.pending = c.pending[n:]
		if len(c.pending) > 0 {
			return nil
		}
	}
	n, err := c.send(frame)
	if err != nil {
		return err
	}
	if n < len(frame) {
		c.pending = append(c.pending[:0], frame[n:]...)
	}
	return nil
}

// send performs a single non-blocking write. A full socket buffer is not an
// error and reports the bytes written so far.
func (c *client) send(b []byte) (int, error) {
	var n int
	var werr error
	err := c.raw.Write(func(fd uintptr) bool {
		n, werr = unix.Write(int(fd), b)
		return true
	})
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	switch werr {
	case nil:
		return n, nil
	case unix.EAGAIN, unix.EINTR:
		return n, nil
	}
	return n, werr
}

func (c *client) close() {
	if err := c.conn.Close(); err != nil {
		log.WithField("client", c.id).
			WithField("err", err).
			Debug("unable to close client connection")
	}
}
