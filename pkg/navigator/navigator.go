// Package navigator is the caller-facing surface of the motion core: wheel
// encoder counting plus heading-based course correction.
package navigator

import (
	"context"
	"sync"
	"time"

	"github.com/tigerbot-team/orientbot/pkg/encoder"
	"github.com/tigerbot-team/orientbot/pkg/heading"
	"github.com/tigerbot-team/orientbot/pkg/logging"
)

var log = logging.For("nav")

type Config struct {
	Control     heading.Config
	Samples     int
	SamplePause time.Duration
}

func DefaultConfig() Config {
	return Config{
		Control:     heading.DefaultConfig(),
		Samples:     heading.DefaultSamples,
		SamplePause: heading.DefaultSamplePause,
	}
}

type Navigator struct {
	encoders   *encoder.Counter
	state      *heading.State
	smoother   *heading.Smoother
	controller *heading.Controller

	startOnce sync.Once
	cancel    context.CancelFunc
	done      sync.WaitGroup
}

func New(pins encoder.Pins, source heading.Source, cfg Config) *Navigator {
	state := heading.NewState()
	smoother := heading.NewSmoother(source, state)
	if cfg.Samples > 0 {
		smoother.Samples = cfg.Samples
	}
	if cfg.SamplePause > 0 {
		smoother.SamplePause = cfg.SamplePause
	}
	return &Navigator{
		encoders:   encoder.New(pins),
		state:      state,
		smoother:   smoother,
		controller: heading.NewController(state, cfg.Control),
	}
}

// Start spawns the background heading smoother.  Only the first call has any
// effect.
func (n *Navigator) Start(ctx context.Context) {
	n.startOnce.Do(func() {
		ctx, n.cancel = context.WithCancel(ctx)
		n.done.Add(1)
		go n.smoother.Loop(ctx, &n.done)
		log.Info().Msg("Heading smoother started")
	})
}

// Stop ends the heading smoother and waits for it to exit.
func (n *Navigator) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	n.done.Wait()
}

func (n *Navigator) EnableEncoder(leftPin, rightPin string, sections int, circumference float64) error {
	return n.encoders.Enable(leftPin, rightPin, sections, circumference)
}

func (n *Navigator) DisableEncoders() {
	n.encoders.Disable()
}

func (n *Navigator) ResetWheelRotationCount() {
	n.encoders.Reset()
}

func (n *Navigator) GetPulseCount(side encoder.Side) int64 {
	return n.encoders.PulseCount(side)
}

func (n *Navigator) GetWheelDistance(side encoder.Side) float64 {
	return n.encoders.Distance(side)
}

func (n *Navigator) GetRotationCount() encoder.RotationCount {
	return n.encoders.Snapshot()
}

// CourseCorrect blocks until a smoothed heading exists and returns the
// speeds to apply this tick.
func (n *Navigator) CourseCorrect(ctx context.Context, targetHeading, forwardSpeed float64) (heading.Speeds, error) {
	return n.controller.CourseCorrect(ctx, targetHeading, forwardSpeed)
}

// CurrentHeading returns the latest smoothed heading, if any.
func (n *Navigator) CurrentHeading() (float64, bool) {
	return n.state.Current()
}

func (n *Navigator) EncodersEnabled() bool {
	return n.encoders.Enabled()
}
