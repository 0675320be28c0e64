// Package angle converts raw orientation readings into compass headings.
//
// Compass headings are degrees in [0, 360), increasing clockwise.  Nothing in
// here does circular (wraparound-aware) comparison; callers compare headings as
// plain numbers.
package angle

import "math"

// Normalize maps an angle of any magnitude into [0, 360).
func Normalize(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	// A tiny negative input rounds up to exactly 360 above.
	if d >= 360 {
		d = 0
	}
	return d
}

// FromYaw converts a yaw angle (degrees, positive anti-clockwise, any range)
// into a compass heading.
func FromYaw(yaw float64) float64 {
	return Normalize(-yaw)
}

// IsHeading reports whether deg is already a valid compass heading.
func IsHeading(deg float64) bool {
	return deg >= 0 && deg < 360
}
