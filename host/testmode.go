package host

import (
	"context"
	"time"

	"github.com/jd3nn1s/flightreader/message"
)

const testTickInterval = 20 * time.Millisecond

// testFlight produces a synthetic climb and descent so the outputs can be
// exercised without a simulator.
type testFlight struct {
	latitude  float64
	longitude float64
	altitude  float64
	speed     float64
	heading   float64
	rpm       float64
	down      bool

	buf []byte
}

func newTestFlight() *testFlight {
	return &testFlight{
		latitude:  0.6593,
		longitude: -2.1366,
	}
}

// next advances the flight by one tick and returns the encoded messages. The
// returned slice is reused by the following call.
func (f *testFlight) next() []byte {
	if f.down {
		f.altitude -= 10
		f.speed -= 0.5
		f.latitude -= 0.000001
		f.longitude -= 0.000001
	} else {
		f.altitude += 10
		f.speed += 0.5
		f.latitude += 0.000001
		f.longitude += 0.000001
	}
	f.heading += 0.001
	if f.heading >= 6.283185 {
		f.heading = 0
	}
	f.rpm = 1800 + f.speed*4

	if f.altitude <= 0 {
		f.down = false
	} else if f.altitude >= 10000 {
		f.down = true
	}

	onGround := 0.0
	if f.altitude <= 0 {
		onGround = 1
	}

	f.buf = f.buf[:0]
	for _, m := range []message.Message{
		message.Double(message.AircraftLatitude, f.latitude),
		message.Double(message.AircraftLongitude, f.longitude),
		message.Double(message.AircraftAltitude, f.altitude),
		message.Double(message.AircraftTrueHeading, f.heading),
		message.Double(message.AircraftIndicatedAirspeed, f.speed),
		message.Double(message.AircraftGroundSpeed, f.speed),
		message.Double(message.AircraftOnGround, onGround),
		message.Double(message.AircraftEngineRunning1, 1),
		message.Double(message.AircraftEngineThrottle1, f.rpm/2700),
		message.Vec3(message.AircraftWind, message.Vector3{X: 2, Y: 0, Z: -1}),
		message.String8(message.AircraftName, "Test Flight"),
		message.String8(message.AircraftNearestAirportIdentifier, "KSEA"),
	} {
		f.buf = message.Append(f.buf, m)
	}
	return f.buf
}

// RunTestMode feeds synthetic ticks into onTick until ctx is cancelled.
func RunTestMode(ctx context.Context, onTick func(raw []byte)) {
	flight := newTestFlight()
	ticker := time.NewTicker(testTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
		onTick(flight.next())
	}
}
