package broadcast

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/jd3nn1s/flightreader"
	"github.com/jd3nn1s/flightreader/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDocument(t *testing.T) {
	s := flightreader.NewSnapshot()
	s.TimestampUS = 123456
	s.DataValid = 1
	s.UpdateCounter = 42
	s.Latitude = 0.8
	s.Altitude = 5280.0
	s.Wind = message.Vector3{X: 1.5, Y: -2, Z: 0.25}
	s.NearestAirportLocation = message.Vector2{X: 0.65, Y: -2.13}

	enc := Encoder{}
	out := enc.Encode(s)
	require.True(t, bytes.HasSuffix(out, []byte("}\n")))
	assert.Equal(t, 1, bytes.Count(out, []byte("\n")))
	assert.True(t, json.Valid(out))

	doc := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, Schema, doc["schema"])
	assert.Equal(t, float64(SchemaVersion), doc["schema_version"])
	assert.Equal(t, float64(123456), doc["timestamp"])
	assert.Equal(t, true, doc["data_valid"])
	assert.Equal(t, float64(42), doc["update_counter"])
	assert.Equal(t, 0.8, doc["latitude"])
	assert.Equal(t, map[string]interface{}{"x": 1.5, "y": -2.0, "z": 0.25}, doc["wind"])
	assert.Equal(t, map[string]interface{}{"x": 0.65, "y": -2.13}, doc["nearest_airport_location"])
	assert.Equal(t, flightreader.DefaultAircraftName, doc["aircraft_name"])
	assert.Equal(t, flightreader.DefaultNearestAirportID, doc["nearest_airport_id"])
	assert.Equal(t, flightreader.DefaultNearestAirportName, doc["nearest_airport_name"])

	// every snapshot field is present
	assert.Len(t, doc, 5+47)

	assert.Contains(t, string(out), `"latitude":0.800000,`)
	assert.Contains(t, string(out), `"altitude":5280.000000,`)
}

func TestEncodeSanitizesNonFinite(t *testing.T) {
	s := flightreader.NewSnapshot()
	s.Latitude = math.NaN()
	s.Longitude = math.Inf(1)
	s.Altitude = math.Inf(-1)
	s.Velocity = message.Vector3{X: math.NaN(), Y: 1, Z: math.Inf(1)}

	out := (&Encoder{}).Encode(s)
	assert.True(t, json.Valid(out))
	str := string(out)
	assert.Contains(t, str, `"latitude":0.000000,`)
	assert.Contains(t, str, `"longitude":0.000000,`)
	assert.Contains(t, str, `"altitude":0.000000,`)
	assert.Contains(t, str, `"velocity":{"x":0.000000,"y":1.000000,"z":0.000000}`)
	assert.NotContains(t, str, "NaN")
	assert.NotContains(t, str, "Inf")
}

func TestEncodeIdempotent(t *testing.T) {
	s := flightreader.NewSnapshot()
	s.GroundSpeed = 61.73
	s.UpdateCounter = 9

	enc := Encoder{}
	first := append([]byte(nil), enc.Encode(s)...)
	second := enc.Encode(s)
	assert.Equal(t, first, second)

	other := Encoder{}
	assert.Equal(t, first, other.Encode(s))
}

func TestEncodeReusesBuffer(t *testing.T) {
	s := flightreader.NewSnapshot()
	enc := Encoder{}
	first := enc.Encode(s)
	second := enc.Encode(s)
	assert.Equal(t, &first[0], &second[0])

	allocs := testing.AllocsPerRun(10, func() {
		enc.Encode(s)
	})
	assert.Equal(t, 0.0, allocs)
}

func TestAppendString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"KSFO", `"KSFO"`},
		{`say "hi"`, `"say \"hi\""`},
		{`back\slash`, `"back\\slash"`},
		{"tab\there", `"tab\there"`},
		{"bell\x07", `"bell\u0007"`},
		{"Zürich", `"Zürich"`},
		{"bad\xff", `"bad�"`},
	}
	for _, tt := range tests {
		out := appendString(nil, []byte(tt.in))
		assert.Equal(t, tt.want, string(out), tt.in)
		assert.True(t, json.Valid(out), tt.in)

		var decoded string
		require.NoError(t, json.Unmarshal(out, &decoded))
		if !strings.Contains(tt.in, "\xff") {
			assert.Equal(t, tt.in, decoded)
		}
	}
}
