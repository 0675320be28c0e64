package chassis

import "math"

const (
	WheelDiameterMM float64 = 42
	WheelCircumMM           = WheelDiameterMM * math.Pi

	// EncoderSections is the number of slots on each wheel's encoder disc.
	EncoderSections = 8

	BotWidthMM = 115
)

var (
	// MMPerPulse is the arc length one encoder edge represents.
	MMPerPulse = WheelCircumMM / EncoderSections
	// SpinCircumMM is the distance each wheel travels for a full turn in place.
	SpinCircumMM = math.Pi * BotWidthMM
)
