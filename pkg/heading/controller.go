package heading

import (
	"context"
	"math"
)

// Config holds the error bands (degrees) and fixed speeds of the course
// correction policy.
type Config struct {
	SmallErrorBand float64
	LargeErrorBand float64
	SharpTurnSpeed float64
	FineLowSpeed   float64
	FineHighSpeed  float64
}

func DefaultConfig() Config {
	return Config{
		SmallErrorBand: 1,
		LargeErrorBand: 15,
		SharpTurnSpeed: 30,
		FineLowSpeed:   28,
		FineHighSpeed:  35,
	}
}

const maxMotorSpeed = 100

// Speeds is a pair of motor speeds, nominally 0-100.
type Speeds struct {
	Left, Right float64
}

// Clamped converts the speeds for an int8 motor interface, limited to ±100.
func (s Speeds) Clamped() (left, right int8) {
	return clampSpeed(s.Left), clampSpeed(s.Right)
}

func clampSpeed(v float64) int8 {
	if math.IsNaN(v) {
		return 0
	}
	if v <= -maxMotorSpeed {
		return -maxMotorSpeed
	}
	if v >= maxMotorSpeed {
		return maxMotorSpeed
	}
	return int8(v)
}

// Decide applies the three-band policy to a heading h and target.  Headings
// are compared as plain numbers; 5 and 355 are 350 degrees apart here.
func Decide(h, target, cruiseSpeed float64, cfg Config) Speeds {
	if math.Abs(h-target) > cfg.LargeErrorBand {
		// Ties go to the left turn.
		if h <= target {
			return Speeds{Left: cfg.SharpTurnSpeed, Right: 0}
		}
		return Speeds{Left: 0, Right: cfg.SharpTurnSpeed}
	}
	if h <= target-cfg.SmallErrorBand {
		return Speeds{Left: cfg.FineHighSpeed, Right: cfg.FineLowSpeed}
	}
	if h >= target+cfg.SmallErrorBand {
		return Speeds{Left: cfg.FineLowSpeed, Right: cfg.FineHighSpeed}
	}
	return Speeds{Left: cruiseSpeed, Right: cruiseSpeed}
}

// Controller computes course corrections from the smoothed heading.  It never
// touches the motors; callers apply the result and call again each tick.
type Controller struct {
	State  *State
	Config Config
}

func NewController(state *State, cfg Config) *Controller {
	return &Controller{
		State:  state,
		Config: cfg,
	}
}

// CourseCorrect waits for a smoothed heading to exist, then returns the
// motor speeds that steer toward target while cruising at forwardSpeed.  The
// only error is ctx's, if it ends before a heading is available.
func (c *Controller) CourseCorrect(ctx context.Context, target, forwardSpeed float64) (Speeds, error) {
	if err := c.State.WaitReady(ctx); err != nil {
		return Speeds{}, err
	}
	h, _ := c.State.Current()
	speeds := Decide(h, target, forwardSpeed, c.Config)
	log.Debug().
		Float64("heading", h).
		Float64("target", target).
		Float64("left", speeds.Left).
		Float64("right", speeds.Right).
		Msg("Course correction")
	return speeds, nil
}
