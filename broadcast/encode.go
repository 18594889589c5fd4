package broadcast

import (
	"bytes"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/jd3nn1s/flightreader"
	"github.com/jd3nn1s/flightreader/message"
)

const (
	Schema        = "flightreader-telemetry"
	SchemaVersion = 1

	floatPrecision = 6
)

// Encoder renders snapshots as newline terminated JSON objects. The returned
// slice aliases an internal buffer that is overwritten by the next call.
type Encoder struct {
	buf []byte
}

func (e *Encoder) Encode(s *flightreader.Snapshot) []byte {
	b := e.buf[:0]
	b = append(b, `{"schema":"`+Schema+`"`...)
	b = append(b, `,"schema_version":`...)
	b = strconv.AppendInt(b, SchemaVersion, 10)
	b = append(b, `,"timestamp":`...)
	b = strconv.AppendUint(b, s.TimestampUS, 10)
	b = append(b, `,"data_valid":`...)
	b = strconv.AppendBool(b, s.Valid())
	b = append(b, `,"update_counter":`...)
	b = strconv.AppendUint(b, uint64(s.UpdateCounter), 10)

	b = appendFloat(b, "latitude", s.Latitude)
	b = appendFloat(b, "longitude", s.Longitude)
	b = appendFloat(b, "altitude", s.Altitude)
	b = appendFloat(b, "height", s.Height)
	b = appendFloat(b, "pitch", s.Pitch)
	b = appendFloat(b, "bank", s.Bank)
	b = appendFloat(b, "true_heading", s.TrueHeading)
	b = appendFloat(b, "magnetic_heading", s.MagneticHeading)

	b = appendFloat(b, "indicated_airspeed", s.IndicatedAirspeed)
	b = appendFloat(b, "ground_speed", s.GroundSpeed)
	b = appendFloat(b, "vertical_speed", s.VerticalSpeed)
	b = appendFloat(b, "mach_number", s.MachNumber)
	b = appendFloat(b, "angle_of_attack", s.AngleOfAttack)

	b = appendVector3(b, "position", s.Position)
	b = appendVector3(b, "velocity", s.Velocity)
	b = appendVector3(b, "acceleration", s.Acceleration)
	b = appendVector3(b, "wind", s.Wind)

	b = appendFloat(b, "on_ground", s.OnGround)
	b = appendFloat(b, "gear", s.Gear)
	b = appendFloat(b, "flaps", s.Flaps)
	b = appendFloat(b, "throttle", s.Throttle)
	b = appendFloat(b, "parking_brake", s.ParkingBrake)

	b = appendFloat(b, "engine_running_1", s.EngineRunning1)
	b = appendFloat(b, "engine_running_2", s.EngineRunning2)
	b = appendFloat(b, "engine_throttle_1", s.EngineThrottle1)
	b = appendFloat(b, "engine_throttle_2", s.EngineThrottle2)

	b = appendFloat(b, "nav1_frequency", s.NAV1Frequency)
	b = appendFloat(b, "nav2_frequency", s.NAV2Frequency)
	b = appendFloat(b, "com1_frequency", s.COM1Frequency)
	b = appendFloat(b, "com2_frequency", s.COM2Frequency)
	b = appendFloat(b, "selected_course_1", s.SelectedCourse1)
	b = appendFloat(b, "selected_course_2", s.SelectedCourse2)

	b = appendFloat(b, "autopilot_master", s.AutopilotMaster)
	b = appendFloat(b, "autopilot_heading", s.AutopilotHeading)
	b = appendFloat(b, "autopilot_altitude", s.AutopilotAltitude)
	b = appendFloat(b, "autopilot_vertical_speed", s.AutopilotVerticalSpeed)
	b = appendFloat(b, "autopilot_speed", s.AutopilotSpeed)

	b = appendFloat(b, "vs0", s.VS0)
	b = appendFloat(b, "vs1", s.VS1)
	b = appendFloat(b, "vfe", s.VFE)
	b = appendFloat(b, "vno", s.VNO)
	b = appendFloat(b, "vne", s.VNE)

	b = appendFloat(b, "nearest_airport_elevation", s.NearestAirportElevation)
	b = appendKey(b, "nearest_airport_location")
	b = append(b, `{"x":`...)
	b = appendNumber(b, s.NearestAirportLocation.X)
	b = append(b, `,"y":`...)
	b = appendNumber(b, s.NearestAirportLocation.Y)
	b = append(b, '}')

	b = appendKey(b, "aircraft_name")
	b = appendString(b, text(s.AircraftName[:]))
	b = appendKey(b, "nearest_airport_id")
	b = appendString(b, text(s.NearestAirportID[:]))
	b = appendKey(b, "nearest_airport_name")
	b = appendString(b, text(s.NearestAirportName[:]))

	b = append(b, '}', '\n')
	e.buf = b
	return b
}

// sanitize maps NaN and infinities to 0 so the document stays valid JSON.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func appendKey(b []byte, key string) []byte {
	b = append(b, ',', '"')
	b = append(b, key...)
	return append(b, '"', ':')
}

func appendNumber(b []byte, v float64) []byte {
	return strconv.AppendFloat(b, sanitize(v), 'f', floatPrecision, 64)
}

func appendFloat(b []byte, key string, v float64) []byte {
	return appendNumber(appendKey(b, key), v)
}

func appendVector3(b []byte, key string, v message.Vector3) []byte {
	b = appendKey(b, key)
	b = append(b, `{"x":`...)
	b = appendNumber(b, v.X)
	b = append(b, `,"y":`...)
	b = appendNumber(b, v.Y)
	b = append(b, `,"z":`...)
	b = appendNumber(b, v.Z)
	return append(b, '}')
}

// text returns the bytes of a null terminated buffer up to the terminator.
func text(buf []byte) []byte {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return buf[:i]
	}
	return buf
}

const hex = "0123456789abcdef"

// appendString writes s as a JSON string, escaping quotes, backslashes and
// control characters. Invalid UTF-8 is replaced with U+FFFD.
func appendString(b, s []byte) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch {
			case c == '"' || c == '\\':
				b = append(b, '\\', c)
			case c == '\n':
				b = append(b, '\\', 'n')
			case c == '\r':
				b = append(b, '\\', 'r')
			case c == '\t':
				b = append(b, '\\', 't')
			case c < 0x20 || c == 0x7f:
				b = append(b, '\\', 'u', '0', '0', hex[c>>4], hex[c&0xf])
			default:
				b = append(b, c)
			}
			i++
			continue
		}
		r, size := utf8.DecodeRune(s[i:])
		if r == utf8.RuneError && size == 1 {
			b = append(b, `�`...)
		} else {
			b = append(b, s[i:i+size]...)
		}
		i += size
	}
	return append(b, '"')
}
