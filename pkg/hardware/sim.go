package hardware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/tigerbot-team/orientbot/pkg/chassis"
	"github.com/tigerbot-team/orientbot/pkg/encoder"
	"github.com/tigerbot-team/orientbot/pkg/heading"
	"github.com/tigerbot-team/orientbot/pkg/heading/angle"
	"github.com/tigerbot-team/orientbot/pkg/motors"
)

const (
	DefaultSimStep = 5 * time.Millisecond

	// DefaultSimTopSpeed is the wheel speed, in mm/s, at motor speed 100.
	DefaultSimTopSpeed = 500.0
)

// Sim is a kinematic model of a two-wheeled robot.  It turns motor speeds
// into wheel travel, encoder edges and a changing compass heading.
type Sim struct {
	LeftPin, RightPin string
	Step              time.Duration
	TopSpeedMMPerSec  float64

	lock                    sync.Mutex
	heading                 float64
	leftSpeed, rightSpeed   int8
	leftTravel, rightTravel float64
	leftSlack, rightSlack   float64
	handlers                map[string][]func()

	cancel context.CancelFunc
	done   sync.WaitGroup
}

var (
	_ Interface         = (*Sim)(nil)
	_ encoder.Pins      = (*Sim)(nil)
	_ heading.Source    = (*Sim)(nil)
	_ motors.RawControl = (*Sim)(nil)
)

func NewSim(leftPin, rightPin string, initialHeading float64) *Sim {
	return &Sim{
		LeftPin:          leftPin,
		RightPin:         rightPin,
		Step:             DefaultSimStep,
		TopSpeedMMPerSec: DefaultSimTopSpeed,
		heading:          angle.Normalize(initialHeading),
		handlers:         map[string][]func(){},
	}
}

func (s *Sim) knownPin(pin string) error {
	if pin != s.LeftPin && pin != s.RightPin {
		return fmt.Errorf("sim: no encoder on pin %q", pin)
	}
	return nil
}

func (s *Sim) ConfigurePullUp(pin string) error {
	return s.knownPin(pin)
}

func (s *Sim) OnRisingEdge(pin string, handler func()) error {
	if err := s.knownPin(pin); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.handlers[pin] = append(s.handlers[pin], handler)
	return nil
}

func (s *Sim) ReadHeading() (float64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.heading, nil
}

func (s *Sim) SetMotorSpeeds(left, right int8) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.leftSpeed, s.rightSpeed = left, right
	return nil
}

// Travel returns how far each wheel has rolled, in mm, ignoring direction.
func (s *Sim) Travel() (left, right float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.leftTravel, s.rightTravel
}

// Advance moves the model on by dt and delivers any encoder edges that
// result.  Edge handlers are called without the lock held.
func (s *Sim) Advance(dt time.Duration) {
	s.lock.Lock()
	dl := float64(s.leftSpeed) / motors.MaxSpeed * s.TopSpeedMMPerSec * dt.Seconds()
	dr := float64(s.rightSpeed) / motors.MaxSpeed * s.TopSpeedMMPerSec * dt.Seconds()

	// Left faster than right swings the nose clockwise.
	turn := (dl - dr) / chassis.BotWidthMM * 180 / math.Pi
	s.heading = angle.Normalize(s.heading + turn)

	s.leftTravel += math.Abs(dl)
	s.rightTravel += math.Abs(dr)
	var leftEdges, rightEdges int
	leftEdges, s.leftSlack = edges(s.leftSlack + math.Abs(dl))
	rightEdges, s.rightSlack = edges(s.rightSlack + math.Abs(dr))
	left := s.handlers[s.LeftPin]
	right := s.handlers[s.RightPin]
	s.lock.Unlock()

	fire(left, leftEdges)
	fire(right, rightEdges)
}

func edges(travel float64) (n int, slack float64) {
	n = int(travel / chassis.MMPerPulse)
	return n, travel - float64(n)*chassis.MMPerPulse
}

func fire(handlers []func(), n int) {
	for i := 0; i < n; i++ {
		for _, h := range handlers {
			h()
		}
	}
}

// Loop advances the model in real time until ctx is done.
func (s *Sim) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(s.Step)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Advance(now.Sub(last))
			last = now
		}
	}
}

func (s *Sim) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done.Add(1)
	go s.Loop(ctx, &s.done)
	log.Info().Str("left", s.LeftPin).Str("right", s.RightPin).Msg("Simulated hardware started")
	return nil
}

func (s *Sim) EncoderPins() encoder.Pins {
	return s
}

func (s *Sim) HeadingSource() heading.Source {
	return s
}

func (s *Sim) Motors() motors.RawControl {
	return s
}

func (s *Sim) Shutdown() {
	_ = s.SetMotorSpeeds(0, 0)
	if s.cancel != nil {
		s.cancel()
		s.done.Wait()
	}
}
