//go:build unix

// Package host wires ingestion, the snapshot publisher and the output
// channels together and owns their lifecycle.
package host

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/jd3nn1s/flightreader"
	"github.com/jd3nn1s/flightreader/broadcast"
	"github.com/jd3nn1s/flightreader/config"
	"github.com/jd3nn1s/flightreader/forwarder"
	"github.com/jd3nn1s/flightreader/message"
	"github.com/jd3nn1s/flightreader/shm"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var ErrNoOutput = errors.New("no output channel available")

// seams for tests
var (
	createRegion = shm.Create
	startServer  = func(s *broadcast.Server, port int) error { return s.Start(port) }
)

// Reader is the single producer of a process. It is created by Initialize,
// fed by OnTick from one goroutine and torn down by Shutdown.
type Reader struct {
	region    *shm.Region
	publisher *flightreader.Publisher
	server    *broadcast.Server
	udp       *forwarder.UDPForwarder
	ws        *forwarder.WebSocketFeed

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	shutdownOnce sync.Once

	ticks        atomic.Uint64
	messages     atomic.Uint64
	decodeErrors atomic.Uint64
}

type Stats struct {
	Ticks        uint64
	Messages     uint64
	DecodeErrors uint64
	Publisher    flightreader.PublisherStats
	Frames       uint64
	Clients      int
	SHM          bool
	TCP          bool
}

// Initialize creates the memory-mapped region and starts the broadcast
// server. The two fail independently; an error is only returned when neither
// is available. Mirrors are optional and never fail initialization.
func Initialize(cfg config.Config) (*Reader, error) {
	r := &Reader{}

	dir := cfg.SHMDir
	if dir == "" {
		dir = shm.DefaultDir()
	}
	region, shmErr := createRegion(dir, cfg.SHMName)
	if shmErr != nil {
		log.WithField("err", shmErr).Error("memory-mapped region unavailable")
		r.publisher = flightreader.NewPublisher(nil)
	} else {
		log.WithField("path", region.Path()).Info("memory-mapped region created")
		r.region = region
		r.publisher = flightreader.NewPublisher(region)
	}

	r.server = broadcast.NewServer(cfg.BroadcastInterval())
	tcpErr := startServer(r.server, cfg.TCPPort)
	if tcpErr != nil {
		log.WithField("err", tcpErr).Error("broadcast server unavailable")
	}

	if shmErr != nil && tcpErr != nil {
		return nil, errors.Wrapf(ErrNoOutput, "shm: %v, tcp: %v", shmErr, tcpErr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.addMirrors(ctx, cfg)
	return r, nil
}

func (r *Reader) addMirrors(ctx context.Context, cfg config.Config) {
	udpConfig := forwarder.UDPConfig{Server: cfg.UDP.Server, Port: cfg.UDP.Port}
	if udpConfig.Enabled() {
		fwd, err := forwarder.NewUDPForwarder(udpConfig)
		if err != nil {
			log.WithField("err", err).Warn("unable to create udp forwarder")
		} else {
			r.udp = fwd
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				_ = fwd.Start(ctx)
			}()
			r.server.AddMirror(fwd)
		}
	}

	if cfg.WebSocket.Port > 0 {
		feed := forwarder.NewWebSocketFeed(cfg.WebSocket.Path)
		if err := feed.Start(cfg.WebSocket.Port); err != nil {
			log.WithField("err", err).Warn("unable to start websocket feed")
		} else {
			r.ws = feed
			r.server.AddMirror(feed)
		}
	}
}

// OnTick decodes one tick worth of messages, applies them to the snapshot
// and gives the broadcast server a chance to send a frame. A malformed
// buffer only loses the messages from the first bad one onwards.
func (r *Reader) OnTick(raw []byte) {
	msgs, err := message.Decode(raw)
	if err != nil {
		r.decodeErrors.Add(1)
		log.WithField("err", err).
			WithField("decoded", len(msgs)).
			Debug("dropping remainder of tick buffer")
	}
	r.ticks.Add(1)
	r.messages.Add(uint64(len(msgs)))

	r.publisher.ApplyBatch(msgs)
	r.server.Broadcast(r.publisher)
}

func (r *Reader) Snapshot() flightreader.Snapshot {
	return r.publisher.Snapshot()
}

func (r *Reader) Stats() Stats {
	return Stats{
		Ticks:        r.ticks.Load(),
		Messages:     r.messages.Load(),
		DecodeErrors: r.decodeErrors.Load(),
		Publisher:    r.publisher.Stats(),
		Frames:       r.server.Frames(),
		Clients:      r.server.ClientCount(),
		SHM:          r.region != nil,
		TCP:          r.server.State() == broadcast.Listening,
	}
}

// Shutdown stops every output and must only be called once OnTick has
// returned for the last time. The region is closed last so no frame can be
// published into an unmapped view.
func (r *Reader) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.server.Stop()
		r.cancel()
		if r.ws != nil {
			r.ws.Stop()
		}
		r.wg.Wait()
		if r.udp != nil {
			if err := r.udp.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close udp forwarder")
			}
		}
		if r.region != nil {
			if err := r.region.Close(); err != nil {
				log.WithField("err", err).Warn("unable to close memory-mapped region")
			}
		}
		log.Info("flightreader shut down")
	})
}
