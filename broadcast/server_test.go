//go:build unix

package broadcast

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/jd3nn1s/flightreader"
	"github.com/jd3nn1s/flightreader/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type mirrorStub struct {
	frames [][]byte
}

func (m *mirrorStub) Mirror(frame []byte) {
	m.frames = append(m.frames, append([]byte(nil), frame...))
}

func newTestServer(t *testing.T) (*Server, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewServer(DefaultInterval)
	s.now = clock.now
	s.pollTimeout = 20 * time.Millisecond
	require.NoError(t, s.Start(0))
	t.Cleanup(s.Stop)
	return s, clock
}

func dial(t *testing.T, s *Server) net.Conn {
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, s *Server, n int) {
	assert.Eventually(t, func() bool {
		return s.ClientCount() == n
	}, 3*time.Second, 5*time.Millisecond)
}

func TestNewServerClampsInterval(t *testing.T) {
	assert.Equal(t, MinInterval, NewServer(time.Millisecond).Interval())
	assert.Equal(t, MinInterval, NewServer(0).Interval())
	assert.Equal(t, 50*time.Millisecond, NewServer(50*time.Millisecond).Interval())
}

func TestStartStop(t *testing.T) {
	s := NewServer(DefaultInterval)
	s.pollTimeout = 10 * time.Millisecond
	assert.Equal(t, Stopped, s.State())
	assert.Nil(t, s.Addr())

	require.NoError(t, s.Start(0))
	assert.Equal(t, Listening, s.State())
	assert.ErrorIs(t, s.Start(0), ErrServerRunning)

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, s, 1)

	s.Stop()
	assert.Equal(t, Stopped, s.State())
	assert.Equal(t, 0, s.ClientCount())

	// the client sees the connection closed
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)

	// stop twice is harmless and the server can be restarted
	s.Stop()
	require.NoError(t, s.Start(0))
	s.Stop()
}

func TestStartBindFailure(t *testing.T) {
	l, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer l.Close()

	s := NewServer(DefaultInterval)
	err = s.Start(l.Addr().(*net.TCPAddr).Port)
	assert.Error(t, err)
	assert.Equal(t, Stopped, s.State())
}

func TestBroadcastToClients(t *testing.T) {
	s, _ := newTestServer(t)
	a := dial(t, s)
	b := dial(t, s)
	waitForClients(t, s, 2)

	p := flightreader.NewPublisher(nil)
	p.ApplyBatch([]message.Message{
		message.Double(message.AircraftLatitude, 0.8),
		message.Double(message.AircraftAltitude, 5280.0),
	})
	assert.True(t, s.Broadcast(p))

	for _, conn := range []net.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		line, err := bufio.NewReader(conn).ReadBytes('\n')
		require.NoError(t, err)
		assert.Contains(t, string(line), `"latitude":0.800000,`)
		assert.Contains(t, string(line), `"altitude":5280.000000,`)

		doc := map[string]interface{}{}
		require.NoError(t, json.Unmarshal(line, &doc))
		assert.Equal(t, float64(1), doc["update_counter"])
		assert.Equal(t, true, doc["data_valid"])
	}
}

func TestBroadcastThrottle(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	s := NewServer(20 * time.Millisecond)
	s.now = clock.now
	mirror := &mirrorStub{}
	s.AddMirror(mirror)
	p := flightreader.NewPublisher(nil)

	assert.True(t, s.Broadcast(p), "first tick at T broadcasts")
	clock.advance(5 * time.Millisecond)
	assert.False(t, s.Broadcast(p), "tick at T+5ms is throttled")
	clock.advance(14 * time.Millisecond)
	assert.False(t, s.Broadcast(p), "tick at T+19ms is throttled")
	clock.advance(6 * time.Millisecond)
	assert.True(t, s.Broadcast(p), "tick at T+25ms broadcasts")
	clock.advance(19 * time.Millisecond)
	assert.False(t, s.Broadcast(p), "interval restarts at the last broadcast")
	clock.advance(time.Millisecond)
	assert.True(t, s.Broadcast(p))

	assert.Len(t, mirror.frames, 3)
	assert.Equal(t, uint64(3), s.Frames())
}

func TestBroadcastNoopWhenStopped(t *testing.T) {
	s := NewServer(DefaultInterval)
	assert.False(t, s.Broadcast(flightreader.NewPublisher(nil)))
	assert.Equal(t, uint64(0), s.Frames())
}

func TestBroadcastDropsDisconnectedClient(t *testing.T) {
	s, clock := newTestServer(t)
	stay := dial(t, s)
	leave := dial(t, s)
	waitForClients(t, s, 2)

	require.NoError(t, leave.Close())
	p := flightreader.NewPublisher(nil)

	// the first writes after the close still succeed, the peer answers them
	// with a reset and a later write fails
	assert.Eventually(t, func() bool {
		clock.advance(DefaultInterval)
		assert.True(t, s.Broadcast(p))
		return s.ClientCount() == 1
	}, 3*time.Second, 5*time.Millisecond)

	// later broadcasts still reach the remaining client
	clock.advance(DefaultInterval)
	assert.True(t, s.Broadcast(p))
	require.NoError(t, stay.SetReadDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(stay)
	_, err := r.ReadBytes('\n')
	assert.NoError(t, err)
}

func TestBroadcastKeepsHalfClosedClient(t *testing.T) {
	s, clock := newTestServer(t)
	conn := dial(t, s)
	waitForClients(t, s, 1)

	// the client stops sending but keeps reading
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())
	p := flightreader.NewPublisher(nil)

	r := bufio.NewReader(conn)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for i := 0; i < 3; i++ {
		// give the FIN time to arrive before broadcasting
		time.Sleep(20 * time.Millisecond)
		clock.advance(DefaultInterval)
		assert.True(t, s.Broadcast(p))
		assert.Equal(t, 1, s.ClientCount())

		line, err := r.ReadBytes('\n')
		require.NoError(t, err)
		assert.True(t, json.Valid(line))
	}
}

func TestBroadcastSlowClientDoesNotBlock(t *testing.T) {
	s, clock := newTestServer(t)
	slow := dial(t, s)
	waitForClients(t, s, 1)

	p := flightreader.NewPublisher(nil)
	p.ApplyBatch([]message.Message{message.String(message.AircraftName, "Extra 330")})

	// never read from the client: the socket buffers fill up, frames are
	// dropped and Broadcast keeps returning promptly
	start := time.Now()
	for i := 0; i < 20000; i++ {
		clock.advance(DefaultInterval)
		s.Broadcast(p)
	}
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, 1, s.ClientCount(), "a full buffer is not a failure")

	// whatever arrives is still whole lines
	require.NoError(t, slow.SetReadDeadline(time.Now().Add(3*time.Second)))
	r := bufio.NewReader(slow)
	for i := 0; i < 10; i++ {
		line, err := r.ReadBytes('\n')
		require.NoError(t, err)
		assert.True(t, json.Valid(line))
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "listening", Listening.String())
	assert.Equal(t, "unknown", State(42).String())
}
