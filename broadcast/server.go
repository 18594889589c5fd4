//go:build unix

package broadcast

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jd3nn1s/flightreader"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPort     = 12345
	DefaultInterval = 20 * time.Millisecond
	MinInterval     = 5 * time.Millisecond

	acceptPollTimeout = time.Second
	acceptErrorDelay  = 50 * time.Millisecond
)

var ErrServerRunning = errors.New("broadcast server already started")

type State int32

const (
	Stopped State = iota
	Starting
	Listening
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Listening:
		return "listening"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// Mirror receives every frame sent to the TCP clients. The frame is reused
// after Mirror returns so implementations must copy it.
type Mirror interface {
	Mirror(frame []byte)
}

// Server streams JSON snapshots to every connected TCP client. Broadcast is
// called from the tick goroutine only; the accept loop runs on its own
// goroutine between Start and Stop.
type Server struct {
	interval    time.Duration
	pollTimeout time.Duration
	now         func() time.Time

	state    atomic.Int32
	listener *net.TCPListener
	stop     chan struct{}
	wg       sync.WaitGroup

	mu      sync.Mutex
	clients map[*client]struct{}

	mirrors       []Mirror
	lastBroadcast time.Time
	snap          flightreader.Snapshot
	enc           Encoder
	targets       []*client
	failed        []*client
	frames        atomic.Uint64
}

// NewServer creates a stopped server. Intervals below MinInterval are
// clamped.
func NewServer(interval time.Duration) *Server {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Server{
		interval:    interval,
		pollTimeout: acceptPollTimeout,
		now:         time.Now,
		clients:     make(map[*client]struct{}),
	}
}

func (s *Server) Interval() time.Duration {
	return s.interval
}

func (s *Server) State() State {
	return State(s.state.Load())
}

// AddMirror registers a secondary sink. It must be called before the first
// Broadcast.
func (s *Server) AddMirror(m Mirror) {
	s.mirrors = append(s.mirrors, m)
}

// Start binds port on all interfaces and starts the accept loop. On failure
// the server stays stopped.
func (s *Server) Start(port int) error {
	if !s.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		return ErrServerRunning
	}
	l, err := net.ListenTCP("tcp", &net.TCPAddr{Port: port})
	if err != nil {
		s.state.Store(int32(Stopped))
		return errors.Wrapf(err, "unable to listen on tcp port %d", port)
	}
	s.listener = l
	s.stop = make(chan struct{})
	s.state.Store(int32(Listening))

	s.wg.Add(1)
	go s.acceptLoop(l, s.stop)

	log.WithField("addr", l.Addr().String()).
		WithField("interval", s.interval).
		Info("broadcast server listening")
	return nil
}

// Addr returns the listening address, or nil when the server is not
// listening.
func (s *Server) Addr() net.Addr {
	if s.State() != Listening {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every client and waits for the accept loop to
// exit. It is a no-op unless the server is listening.
func (s *Server) Stop() {
	if !s.state.CompareAndSwap(int32(Listening), int32(Stopping)) {
		return
	}
	close(s.stop)
	if err := s.listener.Close(); err != nil {
		log.WithField("err", err).Warn("unable to close broadcast listener")
	}

	s.mu.Lock()
	closing := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		closing = append(closing, c)
	}
	clear(s.clients)
	s.mu.Unlock()

	for _, c := range closing {
		c.close()
	}
	s.wg.Wait()
	s.state.Store(int32(Stopped))
	log.WithField("clients", len(closing)).Info("broadcast server stopped")
}

func (s *Server) acceptLoop(l *net.TCPListener, stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := l.SetDeadline(time.Now().Add(s.pollTimeout)); err != nil {
			log.WithField("err", err).Debug("unable to set accept deadline")
		}
		conn, err := l.AcceptTCP()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			select {
			case <-stop:
				return
			default:
			}
			log.WithField("err", err).Warn("accept failed")
			time.Sleep(acceptErrorDelay)
			continue
		}
		s.addClient(conn)
	}
}

func (s *Server) addClient(conn *net.TCPConn) {
	c, err := newClient(uuid.NewString(), conn)
	if err != nil {
		log.WithField("err", err).Warn("unable to configure client connection")
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	if s.State() != Listening {
		s.mu.Unlock()
		c.close()
		return
	}
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	log.WithField("client", c.id).
		WithField("remote", conn.RemoteAddr().String()).
		WithField("clients", count).
		Info("client connected")
}

func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Frames returns the number of frames emitted so far.
func (s *Server) Frames() uint64 {
	return s.frames.Load()
}

// Broadcast sends the current snapshot of src to every client if at least
// the configured interval has passed since the previous frame. It reports
// whether a frame was emitted. Writes never block: a client that cannot take
// the frame right now misses it, a client whose write fails is dropped.
func (s *Server) Broadcast(src flightreader.SnapshotSource) bool {
	if s.State() != Listening && len(s.mirrors) == 0 {
		return false
	}
	now := s.now()
	if !s.lastBroadcast.IsZero() && now.Sub(s.lastBroadcast) < s.interval {
		return false
	}
	s.lastBroadcast = now

	src.CopySnapshot(&s.snap)
	frame := s.enc.Encode(&s.snap)
	s.frames.Add(1)

	s.mu.Lock()
	s.targets = s.targets[:0]
	for c := range s.clients {
		s.targets = append(s.targets, c)
	}
	s.mu.Unlock()

	s.failed = s.failed[:0]
	for _, c := range s.targets {
		if err := c.write(frame); err != nil {
			log.WithField("client", c.id).
				WithField("err", err).
				Info("client disconnected")
			s.failed = append(s.failed, c)
		}
	}
	if len(s.failed) > 0 {
		s.removeClients(s.failed)
	}
	clear(s.targets)

	for _, m := range s.mirrors {
		m.Mirror(frame)
	}
	return true
}

func (s *Server) removeClients(failed []*client) {
	s.mu.Lock()
	n := 0
	for _, c := range failed {
		if _, ok := s.clients[c]; ok {
			delete(s.clients, c)
			failed[n] = c
			n++
		}
	}
	s.mu.Unlock()

	// clients already removed by Stop were closed there
	for _, c := range failed[:n] {
		c.close()
	}
	clear(failed)
}
