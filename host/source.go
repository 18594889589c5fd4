package host

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	maxTickSize     = 64 * 1024
	readPollTimeout = time.Second
)

// UDPSource receives tick buffers from the simulator plugin. Every datagram
// carries the encoded messages of exactly one tick.
type UDPSource struct {
	Addr string

	conn   net.PacketConn
	buf    []byte
	onTick func(raw []byte)
}

func NewUDPSource(addr string, onTick func(raw []byte)) *UDPSource {
	return &UDPSource{
		Addr:   addr,
		buf:    make([]byte, maxTickSize),
		onTick: onTick,
	}
}

func (s *UDPSource) Name() string {
	return "udp-source"
}

func (s *UDPSource) Open() error {
	conn, err := net.ListenPacket("udp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "unable to listen for ticks on %s", s.Addr)
	}
	log.WithField("addr", conn.LocalAddr().String()).Info("listening for simulator ticks")
	s.conn = conn
	return nil
}

func (s *UDPSource) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

// LocalAddr is the bound address, nil until Open succeeded.
func (s *UDPSource) LocalAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Start delivers datagrams to the tick callback until ctx is cancelled or a
// read fails. The read deadline is renewed periodically so cancellation is
// noticed even when the simulator is paused.
func (s *UDPSource) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(readPollTimeout)); err != nil {
			return errors.Wrap(err, "unable to set read deadline")
		}
		n, _, err := s.conn.ReadFrom(s.buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return errors.Wrap(err, "unable to read tick datagram")
		}
		s.onTick(s.buf[:n])
	}
}

// Ingest receives ticks over UDP on addr until ctx is cancelled, reopening
// the socket after failures.
func Ingest(ctx context.Context, addr string, onTick func(raw []byte)) error {
	src := NewUDPSource(addr, onTick)
	defer src.Close()
	return retry(ctx, src)
}
