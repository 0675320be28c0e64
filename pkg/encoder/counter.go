// Package encoder counts slotted-disc wheel encoder pulses for the left and
// right wheels and converts them into rotations and distance.
//
// Counting is direction-agnostic: a wheel turning backwards still adds
// pulses, so distance only ever increases until the counts are reset.
package encoder

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tigerbot-team/orientbot/pkg/logging"
)

var log = logging.For("encoder")

var ErrInvalidGeometry = errors.New("invalid encoder geometry")

type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// RotationCount is the raw per-wheel counter state.
type RotationCount struct {
	LeftRevolutions  int64
	LeftPulses       int
	RightRevolutions int64
	RightPulses      int
}

// Pins is the host's digital input capability.
type Pins interface {
	// ConfigurePullUp puts the pin into pulled-up input mode.
	ConfigurePullUp(pin string) error
	// OnRisingEdge arranges for handler to be called on every rising edge of
	// pin, from a context of the implementation's choosing.  Handlers for
	// different pins may run concurrently.
	OnRisingEdge(pin string, handler func()) error
}

type wheel struct {
	lock          sync.Mutex
	enabled       bool
	pin           string
	sections      int
	circumference float64
	pulses        int
	revolutions   int64
}

// onEdge is the rising-edge handler body for a wheel; pin is the pin the
// handler was registered for.
func (w *wheel) onEdge(pin string) {
	w.lock.Lock()
	defer w.lock.Unlock()

	if !w.enabled || w.pin != pin {
		return
	}
	w.pulses++
	if w.pulses >= w.sections {
		w.pulses = 0
		w.revolutions++
	}
}

func (w *wheel) reset() {
	w.pulses = 0
	w.revolutions = 0
}

func (w *wheel) read() (revolutions int64, pulses, sections int, circumference float64) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.revolutions, w.pulses, w.sections, w.circumference
}

// Counter owns the encoder state for both wheels.  Each wheel has its own
// lock, so left and right edges never contend with each other.
type Counter struct {
	pins Pins

	// configLock serialises Enable/Disable; it is never taken by edge
	// handlers.
	configLock    sync.Mutex
	enabled       bool
	sections      int
	circumference float64
	registered    map[Side]map[string]bool

	left, right wheel
}

func New(pins Pins) *Counter {
	return &Counter{
		pins:       pins,
		registered: map[Side]map[string]bool{Left: {}, Right: {}},
	}
}

func (c *Counter) wheel(side Side) *wheel {
	switch side {
	case Left:
		return &c.left
	case Right:
		return &c.right
	}
	panic(fmt.Sprintf("encoder: bad wheel side %v", side))
}

func validateGeometry(sections int, circumference float64) error {
	if sections <= 0 {
		return fmt.Errorf("%w: sections per revolution must be positive, got %d", ErrInvalidGeometry, sections)
	}
	if !(circumference > 0) || math.IsInf(circumference, 0) {
		return fmt.Errorf("%w: wheel circumference must be positive and finite, got %v", ErrInvalidGeometry, circumference)
	}
	return nil
}

// Enable starts counting on the given pins.  While already enabled it does
// nothing: the first call's pins and geometry stay in force and counts are
// kept.  Invalid geometry is always rejected.
func (c *Counter) Enable(leftPin, rightPin string, sections int, circumference float64) error {
	if err := validateGeometry(sections, circumference); err != nil {
		return err
	}

	c.configLock.Lock()
	defer c.configLock.Unlock()

	if c.enabled {
		log.Debug().Str("left", leftPin).Str("right", rightPin).Msg("Already enabled, ignoring")
		return nil
	}

	for _, p := range []string{leftPin, rightPin} {
		if err := c.pins.ConfigurePullUp(p); err != nil {
			return fmt.Errorf("failed to configure encoder pin %s: %w", p, err)
		}
	}
	for side, p := range map[Side]string{Left: leftPin, Right: rightPin} {
		if c.registered[side][p] {
			continue
		}
		w, pin := c.wheel(side), p
		if err := c.pins.OnRisingEdge(pin, func() { w.onEdge(pin) }); err != nil {
			return fmt.Errorf("failed to watch %v encoder pin %s: %w", side, pin, err)
		}
		c.registered[side][pin] = true
	}

	c.sections = sections
	c.circumference = circumference
	for side, p := range map[Side]string{Left: leftPin, Right: rightPin} {
		w := c.wheel(side)
		w.lock.Lock()
		w.reset()
		w.pin = p
		w.sections = sections
		w.circumference = circumference
		w.enabled = true
		w.lock.Unlock()
	}
	c.enabled = true

	log.Info().
		Str("left", leftPin).
		Str("right", rightPin).
		Int("sections", sections).
		Float64("circumference", circumference).
		Msg("Encoders enabled")
	return nil
}

// Disable stops counting and zeroes the counts.  Edge handlers stay
// registered but ignore edges until the next Enable.
func (c *Counter) Disable() {
	c.configLock.Lock()
	defer c.configLock.Unlock()

	for _, w := range []*wheel{&c.left, &c.right} {
		w.lock.Lock()
		w.enabled = false
		w.reset()
		w.lock.Unlock()
	}
	c.enabled = false
	log.Info().Msg("Encoders disabled")
}

// Reset zeroes all counts without changing whether counting is enabled.
func (c *Counter) Reset() {
	for _, w := range []*wheel{&c.left, &c.right} {
		w.lock.Lock()
		w.reset()
		w.lock.Unlock()
	}
}

func (c *Counter) Enabled() bool {
	c.configLock.Lock()
	defer c.configLock.Unlock()
	return c.enabled
}

// Geometry returns the sections per revolution and wheel circumference from
// the enabling call.  Both are zero if the counter has never been enabled.
func (c *Counter) Geometry() (sections int, circumference float64) {
	c.configLock.Lock()
	defer c.configLock.Unlock()
	return c.sections, c.circumference
}

// PulseCount returns the total pulses seen on a wheel since the last reset.
func (c *Counter) PulseCount(side Side) int64 {
	revs, pulses, sections, _ := c.wheel(side).read()
	return revs*int64(sections) + int64(pulses)
}

// Distance returns the arc length implied by a wheel's pulse count, in the
// unit of the configured circumference.
func (c *Counter) Distance(side Side) float64 {
	revs, pulses, sections, circumference := c.wheel(side).read()
	if sections == 0 {
		return 0
	}
	total := revs*int64(sections) + int64(pulses)
	return float64(total) * circumference / float64(sections)
}

// Snapshot returns the raw counters.  Each wheel's pair is read atomically;
// the two wheels are read one after the other.
func (c *Counter) Snapshot() RotationCount {
	lRevs, lPulses, _, _ := c.left.read()
	rRevs, rPulses, _, _ := c.right.read()
	return RotationCount{
		LeftRevolutions:  lRevs,
		LeftPulses:       lPulses,
		RightRevolutions: rRevs,
		RightPulses:      rPulses,
	}
}
