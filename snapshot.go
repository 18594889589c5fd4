package flightreader

import (
	"bytes"
	"unsafe"

	"github.com/jd3nn1s/flightreader/message"
)

const (
	AircraftNameSize       = 32
	NearestAirportIDSize   = 8
	NearestAirportNameSize = 64

	DefaultAircraftName       = "Unknown"
	DefaultNearestAirportID   = "----"
	DefaultNearestAirportName = "Unknown"
)

// Snapshot holds the latest known value of every tracked variable. Its field
// order and sizes define the memory-mapped layout: every field is naturally
// aligned so the struct has no padding, see SnapshotSize.
type Snapshot struct {
	TimestampUS   uint64
	DataValid     uint32
	UpdateCounter uint32

	Latitude        float64
	Longitude       float64
	Altitude        float64
	Height          float64
	Pitch           float64
	Bank            float64
	TrueHeading     float64
	MagneticHeading float64

	IndicatedAirspeed float64
	GroundSpeed       float64
	VerticalSpeed     float64
	MachNumber        float64
	AngleOfAttack     float64

	Position     message.Vector3
	Velocity     message.Vector3
	Acceleration message.Vector3
	Wind         message.Vector3

	OnGround     float64
	Gear         float64
	Flaps        float64
	Throttle     float64
	ParkingBrake float64

	EngineRunning1  float64
	EngineRunning2  float64
	EngineThrottle1 float64
	EngineThrottle2 float64

	NAV1Frequency   float64
	NAV2Frequency   float64
	COM1Frequency   float64
	COM2Frequency   float64
	SelectedCourse1 float64
	SelectedCourse2 float64

	AutopilotMaster        float64
	AutopilotHeading       float64
	AutopilotAltitude      float64
	AutopilotVerticalSpeed float64
	AutopilotSpeed         float64

	VS0 float64
	VS1 float64
	VFE float64
	VNO float64
	VNE float64

	NearestAirportElevation float64
	NearestAirportLocation  message.Vector2

	AircraftName       [AircraftNameSize]byte
	NearestAirportID   [NearestAirportIDSize]byte
	NearestAirportName [NearestAirportNameSize]byte
}

// SnapshotSize is the byte size of the packed snapshot layout.
const SnapshotSize = int(unsafe.Sizeof(Snapshot{}))

// NewSnapshot returns a zeroed snapshot with the text defaults applied and
// DataValid unset.
func NewSnapshot() *Snapshot {
	s := &Snapshot{}
	s.Reset()
	return s
}

func (s *Snapshot) Reset() {
	*s = Snapshot{}
	setText(s.AircraftName[:], DefaultAircraftName)
	setText(s.NearestAirportID[:], DefaultNearestAirportID)
	setText(s.NearestAirportName[:], DefaultNearestAirportName)
}

func (s *Snapshot) Valid() bool {
	return s.DataValid != 0
}

func (s *Snapshot) AircraftNameString() string {
	return cString(s.AircraftName[:])
}

func (s *Snapshot) NearestAirportIDString() string {
	return cString(s.NearestAirportID[:])
}

func (s *Snapshot) NearestAirportNameString() string {
	return cString(s.NearestAirportName[:])
}

// assignText stores value into dst as a null terminated string. Empty values
// and values that do not fit together with the terminator are replaced by def.
func assignText(dst []byte, value, def string) {
	if value == "" || len(value) >= len(dst) {
		value = def
	}
	setText(dst, value)
}

func setText(dst []byte, value string) {
	if len(dst) == 0 {
		return
	}
	n := copy(dst[:len(dst)-1], value)
	clear(dst[n:])
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
