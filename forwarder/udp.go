package forwarder

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const maxFrameSize = 4096

type UDPConfig struct {
	Server string
	Port   int
}

func (c UDPConfig) Enabled() bool {
	return c.Server != "" && c.Port > 0
}

// UDPForwarder sends every frame as one datagram to a fixed target. Frames
// are handed over through a single slot; a frame that arrives while the
// previous one is still queued is dropped.
type UDPForwarder struct {
	Config UDPConfig

	conn    net.Conn
	fwdChan chan []byte
	dropped atomic.Uint64
}

func NewUDPForwarder(config UDPConfig) (*UDPForwarder, error) {
	udp := &UDPForwarder{
		Config:  config,
		fwdChan: make(chan []byte, 1),
	}
	if err := udp.connect(); err != nil {
		return nil, err
	}
	return udp, nil
}

func (udp *UDPForwarder) Close() error {
	return udp.conn.Close()
}

// Mirror copies frame and queues it for sending without blocking.
func (udp *UDPForwarder) Mirror(frame []byte) {
	// copy frame as we're sending it on another go-routine
	frameCopy := append([]byte(nil), frame...)
	select {
	case udp.fwdChan <- frameCopy:
	default:
		// if channel is full, skip
		udp.dropped.Add(1)
	}
}

// Dropped returns the number of frames skipped because the previous frame
// had not been sent yet.
func (udp *UDPForwarder) Dropped() uint64 {
	return udp.dropped.Load()
}

// Start sends queued frames until ctx is cancelled.
func (udp *UDPForwarder) Start(ctx context.Context) error {
	for {
		select {
		case frame := <-udp.fwdChan:
			if err := udp.forward(frame); err != nil {
				log.WithField("err", err).Debug("unable to forward frame over udp")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (udp *UDPForwarder) forward(frame []byte) error {
	_, err := udp.conn.Write(frame)
	return errors.Wrap(err, "unable to write udp datagram")
}

func (udp *UDPForwarder) connect() error {
	writeBufSize := maxFrameSize * 2

	conn, err := net.Dial("udp", fmt.Sprintf("%s:%d",
		udp.Config.Server,
		udp.Config.Port))
	if err != nil {
		return errors.Wrapf(err, "unable to dial udp target %s:%d", udp.Config.Server, udp.Config.Port)
	}
	udpConn := conn.(*net.UDPConn)
	if err = udpConn.SetWriteBuffer(writeBufSize); err != nil {
		_ = conn.Close()
		return errors.Wrapf(err, "unable to set OS write buffer to %v", writeBufSize)
	}

	udp.conn = conn
	return nil
}
