package hardware

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/orientbot/pkg/chassis"
	"github.com/tigerbot-team/orientbot/pkg/encoder"
	"github.com/tigerbot-team/orientbot/pkg/navigator"
)

func TestSimStraightLine(t *testing.T) {
	sim := NewSim("L", "R", 45)
	counter := encoder.New(sim)
	require.NoError(t, counter.Enable("L", "R", chassis.EncoderSections, chassis.WheelCircumMM))

	require.NoError(t, sim.SetMotorSpeeds(50, 50))
	for i := 0; i < 100; i++ {
		sim.Advance(10 * time.Millisecond)
	}

	h, err := sim.ReadHeading()
	require.NoError(t, err)
	assert.InDelta(t, 45.0, h, 1e-9)

	l, r := sim.Travel()
	assert.InDelta(t, 250.0, l, 1e-6)
	assert.InDelta(t, 250.0, r, 1e-6)

	expected := int64(math.Floor(250.0/chassis.MMPerPulse + 1e-9))
	assert.Equal(t, expected, counter.PulseCount(encoder.Left))
	assert.Equal(t, expected, counter.PulseCount(encoder.Right))
	assert.InDelta(t, 250.0, counter.Distance(encoder.Left), chassis.MMPerPulse)
}

func TestSimTurnsClockwiseWhenLeftIsFaster(t *testing.T) {
	sim := NewSim("L", "R", 350)
	require.NoError(t, sim.SetMotorSpeeds(30, 0))
	sim.Advance(100 * time.Millisecond)

	// 15mm of differential travel over a 115mm track.
	want := math.Mod(350+15.0/chassis.BotWidthMM*180/math.Pi, 360)
	h, _ := sim.ReadHeading()
	assert.InDelta(t, want, h, 1e-9)

	require.NoError(t, sim.SetMotorSpeeds(0, 30))
	sim.Advance(100 * time.Millisecond)
	h, _ = sim.ReadHeading()
	assert.InDelta(t, 350.0, h, 1e-9)
}

func TestSimRejectsUnknownPins(t *testing.T) {
	sim := NewSim("L", "R", 0)
	assert.Error(t, sim.ConfigurePullUp("X"))
	assert.Error(t, sim.OnRisingEdge("X", func() {}))
}

// TestClosedLoop steers the simulated robot from north to east using the
// navigator's course corrections.
func TestClosedLoop(t *testing.T) {
	sim := NewSim("L", "R", 0)
	cfg := navigator.DefaultConfig()
	cfg.SamplePause = 50 * time.Microsecond
	nav := navigator.New(sim, sim, cfg)
	require.NoError(t, nav.EnableEncoder("L", "R", chassis.EncoderSections, chassis.WheelCircumMM))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	nav.Start(ctx)
	defer nav.Stop()

	const tick = 20 * time.Millisecond
	for i := 0; i < 500; i++ {
		speeds, err := nav.CourseCorrect(ctx, 90, 40)
		require.NoError(t, err)
		require.NoError(t, sim.SetMotorSpeeds(speeds.Clamped()))
		sim.Advance(tick)
		time.Sleep(2 * time.Millisecond)
	}

	h, _ := sim.ReadHeading()
	assert.InDelta(t, 90.0, h, 4.0)
	assert.Greater(t, nav.GetWheelDistance(encoder.Left), 0.0)
	assert.Greater(t, nav.GetPulseCount(encoder.Right), int64(0))
}
