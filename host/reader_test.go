//go:build unix

package host

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jd3nn1s/flightreader/broadcast"
	"github.com/jd3nn1s/flightreader/config"
	"github.com/jd3nn1s/flightreader/message"
	"github.com/jd3nn1s/flightreader/shm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	cfg := config.Default()
	cfg.TCPPort = 0
	cfg.SHMDir = t.TempDir()
	cfg.SHMName = "FlightReaderTest"
	return cfg
}

func initialize(t *testing.T, cfg config.Config) *Reader {
	r, err := Initialize(cfg)
	require.NoError(t, err)
	t.Cleanup(r.Shutdown)
	return r
}

func TestEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	r := initialize(t, cfg)

	conn, err := net.Dial("tcp", r.server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	assert.Eventually(t, func() bool {
		return r.server.ClientCount() == 1
	}, 3*time.Second, 5*time.Millisecond)

	before := r.Snapshot()
	r.OnTick(message.Encode(
		message.Double(message.AircraftLatitude, 0.8),
		message.Double(message.AircraftAltitude, 5280.0),
	))

	after := r.Snapshot()
	assert.Equal(t, 0.8, after.Latitude)
	assert.Equal(t, 5280.0, after.Altitude)
	assert.Equal(t, before.UpdateCounter+1, after.UpdateCounter)
	assert.True(t, after.Valid())
	assert.Equal(t, before.Longitude, after.Longitude)
	assert.Equal(t, before.AircraftNameString(), after.AircraftNameString())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)
	assert.Contains(t, string(line), `"latitude":0.800000,`)
	assert.Contains(t, string(line), `"altitude":5280.000000,`)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(line, &doc))
	assert.Equal(t, true, doc["data_valid"])
	assert.Equal(t, float64(after.UpdateCounter), doc["update_counter"])

	// the same values are visible through the memory-mapped region
	mapped, err := shm.Open(cfg.SHMDir, cfg.SHMName)
	require.NoError(t, err)
	defer mapped.Close()
	snap, ok, err := mapped.Read()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.8, snap.Latitude)
	assert.Equal(t, 5280.0, snap.Altitude)
	assert.Equal(t, after.UpdateCounter, snap.UpdateCounter)

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.Ticks)
	assert.Equal(t, uint64(2), stats.Messages)
	assert.Equal(t, uint64(1), stats.Frames)
	assert.True(t, stats.SHM)
	assert.True(t, stats.TCP)
}

func TestOnTickMalformed(t *testing.T) {
	r := initialize(t, testConfig(t))

	raw := message.Encode(message.Double(message.AircraftPitch, 0.1))
	raw = append(raw, message.Encode(message.Double(message.AircraftBank, 0.2))[:5]...)
	r.OnTick(raw)

	snap := r.Snapshot()
	assert.Equal(t, 0.1, snap.Pitch)
	assert.Equal(t, 0.0, snap.Bank)
	assert.True(t, snap.Valid())

	stats := r.Stats()
	assert.Equal(t, uint64(1), stats.DecodeErrors)
	assert.Equal(t, uint64(1), stats.Messages)
	assert.Equal(t, uint64(1), stats.Publisher.Batches)
}

func TestInitializeWithoutRegion(t *testing.T) {
	origCreate := createRegion
	defer func() { createRegion = origCreate }()
	createRegion = func(dir, name string) (*shm.Region, error) {
		return nil, errors.New("no shared memory")
	}

	r := initialize(t, testConfig(t))
	r.OnTick(message.Encode(message.Double(message.AircraftLatitude, 0.5)))
	assert.Equal(t, 0.5, r.Snapshot().Latitude)

	stats := r.Stats()
	assert.False(t, stats.SHM)
	assert.True(t, stats.TCP)
}

func TestInitializeWithoutServer(t *testing.T) {
	origStart := startServer
	defer func() { startServer = origStart }()
	startServer = func(s *broadcast.Server, port int) error {
		return errors.New("address in use")
	}

	cfg := testConfig(t)
	r := initialize(t, cfg)
	r.OnTick(message.Encode(message.Double(message.AircraftLatitude, 0.5)))

	stats := r.Stats()
	assert.True(t, stats.SHM)
	assert.False(t, stats.TCP)
	assert.Equal(t, uint64(0), stats.Frames)

	mapped, err := shm.Open(cfg.SHMDir, cfg.SHMName)
	require.NoError(t, err)
	defer mapped.Close()
	snap, _, err := mapped.Read()
	require.NoError(t, err)
	assert.Equal(t, 0.5, snap.Latitude)
}

func TestInitializeNoOutput(t *testing.T) {
	origCreate, origStart := createRegion, startServer
	defer func() { createRegion, startServer = origCreate, origStart }()
	createRegion = func(dir, name string) (*shm.Region, error) {
		return nil, errors.New("no shared memory")
	}
	startServer = func(s *broadcast.Server, port int) error {
		return errors.New("address in use")
	}

	_, err := Initialize(testConfig(t))
	assert.True(t, errors.Is(err, ErrNoOutput))
}

func TestShutdown(t *testing.T) {
	cfg := testConfig(t)
	cfg.UDP = config.UDPConfig{Server: "127.0.0.1", Port: 9}
	cfg.WebSocket.Port = freePort(t)

	r, err := Initialize(cfg)
	require.NoError(t, err)
	require.NotNil(t, r.udp)
	require.NotNil(t, r.ws)

	r.Shutdown()
	assert.Equal(t, broadcast.Stopped, r.server.State())
	assert.NoFileExists(t, r.region.Path())

	// a second call is a no-op
	r.Shutdown()
}

func TestIngest(t *testing.T) {
	r := initialize(t, testConfig(t))
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(freeUDPPort(t)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- Ingest(ctx, addr, r.OnTick)
	}()

	buf := message.Encode(message.Double(message.AircraftGroundSpeed, 42))
	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// the source may not be listening yet, keep sending until a tick lands
	assert.Eventually(t, func() bool {
		_, _ = conn.Write(buf)
		return r.Snapshot().GroundSpeed == 42
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.Equal(t, context.Canceled, err)
	case <-time.After(3 * time.Second):
		t.Fatal("ingest did not stop")
	}
}

func TestRunTestMode(t *testing.T) {
	r := initialize(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunTestMode(ctx, r.OnTick)
		close(done)
	}()
	// ticks must stop before Shutdown unmaps the region
	defer func() {
		cancel()
		<-done
	}()

	assert.Eventually(t, func() bool {
		return r.Stats().Ticks >= 3
	}, 3*time.Second, 10*time.Millisecond)
	snap := r.Snapshot()
	assert.Equal(t, "Test Flight", snap.AircraftNameString())
	assert.Greater(t, snap.Altitude, 0.0)
	assert.Equal(t, uint64(0), r.Stats().DecodeErrors)
}
