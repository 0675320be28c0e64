package hardware

import (
	"context"

	"github.com/tigerbot-team/orientbot/pkg/encoder"
	"github.com/tigerbot-team/orientbot/pkg/heading"
	"github.com/tigerbot-team/orientbot/pkg/motors"
)

// Interface is a platform the navigator can run on: somewhere to get encoder
// edges and heading samples from and somewhere to send motor speeds to.
type Interface interface {
	// Start brings up the background loops.  Call it once, before using any
	// of the accessors.
	Start(ctx context.Context) error

	EncoderPins() encoder.Pins
	HeadingSource() heading.Source
	Motors() motors.RawControl

	// Shutdown stops the motors and releases the hardware.
	Shutdown()
}
