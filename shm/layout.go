// Package shm exposes the telemetry snapshot through a named memory-mapped
// file so that other processes on the same machine can read it without a
// network round trip.
//
// The region is exactly flightreader.SnapshotSize bytes, little endian, with
// no padding:
//
//	offset  size  field
//	     0     8  timestamp_us (uint64, microseconds since producer start)
//	     8     4  data_valid (uint32, 1 = complete, 0 = update in progress)
//	    12     4  update_counter (uint32, wraps)
//	    16   104  latitude .. angle_of_attack (13 x float64)
//	   120    96  position, velocity, acceleration, wind (4 x 3 x float64)
//	   216    40  on_ground, gear, flaps, throttle, parking_brake
//	   256    32  engine_running_1/2, engine_throttle_1/2
//	   288    48  nav1, nav2, com1, com2 frequencies, selected_course_1/2
//	   336    40  autopilot master, heading, altitude, vertical speed, speed
//	   376    40  vs0, vs1, vfe, vno, vne
//	   416     8  nearest_airport_elevation
//	   424    16  nearest_airport_location (2 x float64)
//	   440    32  aircraft_name (null terminated)
//	   472     8  nearest_airport_id (null terminated)
//	   480    64  nearest_airport_name (null terminated)
//
// Readers that do not share the producer's lock can observe a torn snapshot.
// The producer clears data_valid before touching the body, writes the body,
// then stores update_counter and finally data_valid. A reader should load
// data_valid and update_counter, copy the region, and load both again; the
// copy is consistent only if data_valid was 1 both times and the counter did
// not move. This is a best-effort check, not a guarantee.
package shm

const (
	offsetTimestamp     = 0
	offsetDataValid     = 8
	offsetUpdateCounter = 12
	offsetBody          = 16
)
