// Package motors applies left/right speeds to the drive motors.
package motors

import (
	"fmt"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/physic"

	"github.com/tigerbot-team/orientbot/pkg/logging"
)

var log = logging.For("motors")

// MaxSpeed is full power on a RawControl.
const MaxSpeed = 100

type RawControl interface {
	// SetMotorSpeeds sets both motors, -MaxSpeed..MaxSpeed.
	SetMotorSpeeds(left, right int8) error
}

// PWM drives one PWM pin per motor through periph.io.  The motor driver only
// goes forwards, so negative speeds stop the motor.
type PWM struct {
	lock        sync.Mutex
	left, right gpio.PinOut
	freq        physic.Frequency
	lastL       int8
	lastR       int8
	started     bool
}

var _ RawControl = (*PWM)(nil)

// NewPWM looks up the two pins by name.  The host drivers must already be
// initialised.
func NewPWM(leftPin, rightPin string, freq physic.Frequency) (*PWM, error) {
	return newPWM(gpioreg.ByName, leftPin, rightPin, freq)
}

func newPWM(lookup func(string) gpio.PinIO, leftPin, rightPin string, freq physic.Frequency) (*PWM, error) {
	l := lookup(leftPin)
	if l == nil {
		return nil, fmt.Errorf("no such GPIO pin %q", leftPin)
	}
	r := lookup(rightPin)
	if r == nil {
		return nil, fmt.Errorf("no such GPIO pin %q", rightPin)
	}
	return &PWM{
		left:  l,
		right: r,
		freq:  freq,
	}, nil
}

// Duty converts a motor speed into a PWM duty cycle.
func Duty(speed int8) gpio.Duty {
	if speed <= 0 {
		return 0
	}
	if speed >= MaxSpeed {
		return gpio.DutyMax
	}
	return gpio.Duty(int64(gpio.DutyMax) * int64(speed) / MaxSpeed)
}

func (p *PWM) SetMotorSpeeds(left, right int8) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.started && left == p.lastL && right == p.lastR {
		return nil
	}
	if err := setPin(p.left, Duty(left), p.freq); err != nil {
		return fmt.Errorf("failed to set left motor: %w", err)
	}
	if err := setPin(p.right, Duty(right), p.freq); err != nil {
		return fmt.Errorf("failed to set right motor: %w", err)
	}
	p.lastL, p.lastR, p.started = left, right, true
	log.Debug().Int8("left", left).Int8("right", right).Msg("Motor speeds")
	return nil
}

func setPin(pin gpio.PinOut, duty gpio.Duty, freq physic.Frequency) error {
	if duty == 0 {
		return pin.Out(gpio.Low)
	}
	return pin.PWM(duty, freq)
}

// Close stops both motors and releases the pins.
func (p *PWM) Close() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	errL := p.left.Out(gpio.Low)
	errR := p.right.Out(gpio.Low)
	_ = p.left.Halt()
	_ = p.right.Halt()
	if errL != nil {
		return errL
	}
	return errR
}

// Dummy logs speeds instead of driving anything.
type Dummy struct {
	lock        sync.Mutex
	Left, Right int8
}

var _ RawControl = (*Dummy)(nil)

func (d *Dummy) SetMotorSpeeds(left, right int8) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if left != d.Left || right != d.Right {
		log.Info().Int8("left", left).Int8("right", right).Msg("DHW: SetMotorSpeeds")
	}
	d.Left, d.Right = left, right
	return nil
}

func (d *Dummy) Speeds() (left, right int8) {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.Left, d.Right
}
