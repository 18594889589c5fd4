package flightreader

import (
	"github.com/jd3nn1s/flightreader/message"
	log "github.com/sirupsen/logrus"
)

// Handler writes the payload of one message into a snapshot field.
type Handler func(s *Snapshot, m message.Message)

// DispatchTable maps message identifiers to the handler for their field. It
// is built once and is read-only afterwards.
type DispatchTable map[message.ID]Handler

func doubleField(field func(*Snapshot) *float64) Handler {
	return func(s *Snapshot, m message.Message) {
		if typeMismatch(m, message.TypeDouble) {
			return
		}
		*field(s) = m.Double()
	}
}

func vector3Field(field func(*Snapshot) *message.Vector3) Handler {
	return func(s *Snapshot, m message.Message) {
		if typeMismatch(m, message.TypeVector3d) {
			return
		}
		*field(s) = m.Vector3()
	}
}

func vector2Field(field func(*Snapshot) *message.Vector2) Handler {
	return func(s *Snapshot, m message.Message) {
		if typeMismatch(m, message.TypeVector2d) {
			return
		}
		*field(s) = m.Vector2()
	}
}

// typeMismatch reports a numeric message whose payload kind does not match
// its field. The field keeps its last value.
func typeMismatch(m message.Message, want message.DataType) bool {
	if m.Type == want {
		return false
	}
	log.WithField("variable", message.Name(m.ID)).
		WithField("type", m.Type).
		Debug("ignoring message with unexpected type")
	return true
}

// textField only accepts string-like payloads; anything else, including a
// payload that fails to decode, stores the default.
func textField(field func(*Snapshot) []byte, def string) Handler {
	return func(s *Snapshot, m message.Message) {
		value, err := m.Text()
		if err != nil {
			log.WithField("err", err).Debug("using default for text field")
			value = def
		}
		assignText(field(s), value, def)
	}
}

// NewDispatchTable registers one handler per tracked simulator variable.
func NewDispatchTable() DispatchTable {
	return DispatchTable{
		message.AircraftLatitude:        doubleField(func(s *Snapshot) *float64 { return &s.Latitude }),
		message.AircraftLongitude:       doubleField(func(s *Snapshot) *float64 { return &s.Longitude }),
		message.AircraftAltitude:        doubleField(func(s *Snapshot) *float64 { return &s.Altitude }),
		message.AircraftHeight:          doubleField(func(s *Snapshot) *float64 { return &s.Height }),
		message.AircraftPitch:           doubleField(func(s *Snapshot) *float64 { return &s.Pitch }),
		message.AircraftBank:            doubleField(func(s *Snapshot) *float64 { return &s.Bank }),
		message.AircraftTrueHeading:     doubleField(func(s *Snapshot) *float64 { return &s.TrueHeading }),
		message.AircraftMagneticHeading: doubleField(func(s *Snapshot) *float64 { return &s.MagneticHeading }),

		message.AircraftIndicatedAirspeed: doubleField(func(s *Snapshot) *float64 { return &s.IndicatedAirspeed }),
		message.AircraftGroundSpeed:       doubleField(func(s *Snapshot) *float64 { return &s.GroundSpeed }),
		message.AircraftVerticalSpeed:     doubleField(func(s *Snapshot) *float64 { return &s.VerticalSpeed }),
		message.AircraftMachNumber:        doubleField(func(s *Snapshot) *float64 { return &s.MachNumber }),
		message.AircraftAngleOfAttack:     doubleField(func(s *Snapshot) *float64 { return &s.AngleOfAttack }),

		message.AircraftPosition:     vector3Field(func(s *Snapshot) *message.Vector3 { return &s.Position }),
		message.AircraftVelocity:     vector3Field(func(s *Snapshot) *message.Vector3 { return &s.Velocity }),
		message.AircraftAcceleration: vector3Field(func(s *Snapshot) *message.Vector3 { return &s.Acceleration }),
		message.AircraftWind:         vector3Field(func(s *Snapshot) *message.Vector3 { return &s.Wind }),

		message.AircraftOnGround:     doubleField(func(s *Snapshot) *float64 { return &s.OnGround }),
		message.AircraftGear:         doubleField(func(s *Snapshot) *float64 { return &s.Gear }),
		message.AircraftFlaps:        doubleField(func(s *Snapshot) *float64 { return &s.Flaps }),
		message.AircraftThrottle:     doubleField(func(s *Snapshot) *float64 { return &s.Throttle }),
		message.AircraftParkingBrake: doubleField(func(s *Snapshot) *float64 { return &s.ParkingBrake }),

		message.AircraftEngineRunning1:  doubleField(func(s *Snapshot) *float64 { return &s.EngineRunning1 }),
		message.AircraftEngineRunning2:  doubleField(func(s *Snapshot) *float64 { return &s.EngineRunning2 }),
		message.AircraftEngineThrottle1: doubleField(func(s *Snapshot) *float64 { return &s.EngineThrottle1 }),
		message.AircraftEngineThrottle2: doubleField(func(s *Snapshot) *float64 { return &s.EngineThrottle2 }),

		message.NavigationNAV1Frequency:    doubleField(func(s *Snapshot) *float64 { return &s.NAV1Frequency }),
		message.NavigationNAV2Frequency:    doubleField(func(s *Snapshot) *float64 { return &s.NAV2Frequency }),
		message.CommunicationCOM1Frequency: doubleField(func(s *Snapshot) *float64 { return &s.COM1Frequency }),
		message.CommunicationCOM2Frequency: doubleField(func(s *Snapshot) *float64 { return &s.COM2Frequency }),
		message.NavigationSelectedCourse1:  doubleField(func(s *Snapshot) *float64 { return &s.SelectedCourse1 }),
		message.NavigationSelectedCourse2:  doubleField(func(s *Snapshot) *float64 { return &s.SelectedCourse2 }),

		message.AutopilotMaster:                doubleField(func(s *Snapshot) *float64 { return &s.AutopilotMaster }),
		message.AutopilotHeading:               doubleField(func(s *Snapshot) *float64 { return &s.AutopilotHeading }),
		message.AutopilotSelectedAltitude:      doubleField(func(s *Snapshot) *float64 { return &s.AutopilotAltitude }),
		message.AutopilotSelectedVerticalSpeed: doubleField(func(s *Snapshot) *float64 { return &s.AutopilotVerticalSpeed }),
		message.AutopilotSelectedSpeed:         doubleField(func(s *Snapshot) *float64 { return &s.AutopilotSpeed }),

		message.PerformanceSpeedVS0: doubleField(func(s *Snapshot) *float64 { return &s.VS0 }),
		message.PerformanceSpeedVS1: doubleField(func(s *Snapshot) *float64 { return &s.VS1 }),
		message.PerformanceSpeedVFE: doubleField(func(s *Snapshot) *float64 { return &s.VFE }),
		message.PerformanceSpeedVNO: doubleField(func(s *Snapshot) *float64 { return &s.VNO }),
		message.PerformanceSpeedVNE: doubleField(func(s *Snapshot) *float64 { return &s.VNE }),

		message.AircraftNearestAirportElevation: doubleField(func(s *Snapshot) *float64 { return &s.NearestAirportElevation }),
		message.AircraftNearestAirportLocation:  vector2Field(func(s *Snapshot) *message.Vector2 { return &s.NearestAirportLocation }),

		message.AircraftName: textField(func(s *Snapshot) []byte {
			return s.AircraftName[:]
		}, DefaultAircraftName),
		message.AircraftNearestAirportIdentifier: textField(func(s *Snapshot) []byte {
			return s.NearestAirportID[:]
		}, DefaultNearestAirportID),
		message.AircraftNearestAirportName: textField(func(s *Snapshot) []byte {
			return s.NearestAirportName[:]
		}, DefaultNearestAirportName),
	}
}

// Apply runs the handler registered for m. Unknown identifiers are ignored
// and reported as false.
func (t DispatchTable) Apply(s *Snapshot, m message.Message) bool {
	h, ok := t[m.ID]
	if !ok {
		return false
	}
	h(s, m)
	return true
}
