package wire

import (
	"math"
	"strconv"
	"strings"
)

// Direction is a compass heading. The wire encodes it as a single letter;
// the decoder additionally accepts full names and degree values.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// Letter returns the single compass letter used in delimited commands.
func (d Direction) Letter() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	default:
		return "?"
	}
}

// String returns the full compass name, for logs and events.
func (d Direction) String() string {
	switch d {
	case North:
		return "NORTH"
	case East:
		return "EAST"
	case South:
		return "SOUTH"
	case West:
		return "WEST"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection accepts single letters (N/S/E/W), full names, and degree
// values, case-insensitively. Degrees quantize to the nearest cardinal:
// NORTH owns [315,45), EAST [45,135), SOUTH [135,225), WEST [225,315).
// Negative and >=360 inputs are normalized first.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NORTH":
		return North, true
	case "E", "EAST":
		return East, true
	case "S", "SOUTH":
		return South, true
	case "W", "WEST":
		return West, true
	}
	deg, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(deg) || math.IsInf(deg, 0) {
		return North, false
	}
	return QuantizeDegrees(deg), true
}

// QuantizeDegrees maps an arbitrary heading in degrees to its cardinal.
// 0 is NORTH, 90 is EAST. Boundary values belong to the next cardinal:
// 45 -> EAST, 135 -> SOUTH, 225 -> WEST, 315 -> NORTH.
// Non-finite input maps to NORTH.
func QuantizeDegrees(deg float64) Direction {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return North
	}
	// normalize into [0,360)
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	switch {
	case deg < 45 || deg >= 315:
		return North
	case deg < 135:
		return East
	case deg < 225:
		return South
	default:
		return West
	}
}
