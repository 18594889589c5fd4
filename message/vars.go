package message

import "fmt"

var names = map[ID]string{}

func register(name string) ID {
	id := NewID(name)
	if prev, ok := names[id]; ok {
		panic(fmt.Sprintf("message id collision between %q and %q", prev, name))
	}
	names[id] = name
	return id
}

// Name returns the dotted variable name for id, or its hex value when the
// identifier is not tracked.
func Name(id ID) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("0x%016x", uint64(id))
}

var (
	AircraftLatitude        = register("Aircraft.Latitude")
	AircraftLongitude       = register("Aircraft.Longitude")
	AircraftAltitude        = register("Aircraft.Altitude")
	AircraftHeight          = register("Aircraft.Height")
	AircraftPitch           = register("Aircraft.Pitch")
	AircraftBank            = register("Aircraft.Bank")
	AircraftTrueHeading     = register("Aircraft.TrueHeading")
	AircraftMagneticHeading = register("Aircraft.MagneticHeading")

	AircraftIndicatedAirspeed = register("Aircraft.IndicatedAirspeed")
	AircraftGroundSpeed       = register("Aircraft.GroundSpeed")
	AircraftVerticalSpeed     = register("Aircraft.VerticalSpeed")
	AircraftMachNumber        = register("Aircraft.MachNumber")
	AircraftAngleOfAttack     = register("Aircraft.AngleOfAttack")

	AircraftPosition     = register("Aircraft.Position")
	AircraftVelocity     = register("Aircraft.Velocity")
	AircraftAcceleration = register("Aircraft.Acceleration")
	AircraftWind         = register("Aircraft.Wind")

	AircraftOnGround     = register("Aircraft.OnGround")
	AircraftGear         = register("Aircraft.Gear")
	AircraftFlaps        = register("Aircraft.Flaps")
	AircraftThrottle     = register("Aircraft.Throttle")
	AircraftParkingBrake = register("Aircraft.ParkingBrake")

	AircraftEngineRunning1  = register("Aircraft.EngineRunning1")
	AircraftEngineRunning2  = register("Aircraft.EngineRunning2")
	AircraftEngineThrottle1 = register("Aircraft.EngineThrottle1")
	AircraftEngineThrottle2 = register("Aircraft.EngineThrottle2")

	NavigationNAV1Frequency    = register("Navigation.NAV1Frequency")
	NavigationNAV2Frequency    = register("Navigation.NAV2Frequency")
	CommunicationCOM1Frequency = register("Communication.COM1Frequency")
	CommunicationCOM2Frequency = register("Communication.COM2Frequency")
	NavigationSelectedCourse1  = register("Navigation.SelectedCourse1")
	NavigationSelectedCourse2  = register("Navigation.SelectedCourse2")

	AutopilotMaster                = register("Autopilot.Master")
	AutopilotHeading               = register("Autopilot.Heading")
	AutopilotSelectedAltitude      = register("Autopilot.SelectedAltitude")
	AutopilotSelectedVerticalSpeed = register("Autopilot.SelectedVerticalSpeed")
	AutopilotSelectedSpeed         = register("Autopilot.SelectedSpeed")

	PerformanceSpeedVS0 = register("Performance.Speed.VS0")
	PerformanceSpeedVS1 = register("Performance.Speed.VS1")
	PerformanceSpeedVFE = register("Performance.Speed.VFE")
	PerformanceSpeedVNO = register("Performance.Speed.VNO")
	PerformanceSpeedVNE = register("Performance.Speed.VNE")

	AircraftNearestAirportElevation  = register("Aircraft.NearestAirportElevation")
	AircraftNearestAirportLocation   = register("Aircraft.NearestAirportLocation")
	AircraftName                     = register("Aircraft.Name")
	AircraftNearestAirportIdentifier = register("Aircraft.NearestAirportIdentifier")
	AircraftNearestAirportName       = register("Aircraft.NearestAirportName")
)
