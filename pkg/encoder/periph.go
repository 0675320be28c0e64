package encoder

import (
	"fmt"
	"sync"

	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
)

// PeriphPins implements Pins on top of periph.io GPIO.  Each watched pin gets
// its own goroutine blocked in WaitForEdge, so left and right edges are
// delivered independently.
//
// The host drivers must already be initialised (host.Init).
type PeriphPins struct {
	// Lookup resolves a pin name; defaults to gpioreg.ByName.
	Lookup func(name string) gpio.PinIO

	lock    sync.Mutex
	watched map[string]gpio.PinIn
}

func NewPeriphPins() *PeriphPins {
	return &PeriphPins{
		Lookup:  gpioreg.ByName,
		watched: map[string]gpio.PinIn{},
	}
}

func (p *PeriphPins) pin(name string) (gpio.PinIn, error) {
	pin := p.Lookup(name)
	if pin == nil {
		return nil, fmt.Errorf("no such GPIO pin %q", name)
	}
	return pin, nil
}

func (p *PeriphPins) ConfigurePullUp(name string) error {
	pin, err := p.pin(name)
	if err != nil {
		return err
	}
	p.lock.Lock()
	_, watched := p.watched[name]
	p.lock.Unlock()

	// Keep edge detection armed on pins that already have a watcher.
	edge := gpio.NoEdge
	if watched {
		edge = gpio.RisingEdge
	}
	return pin.In(gpio.PullUp, edge)
}

func (p *PeriphPins) OnRisingEdge(name string, handler func()) error {
	pin, err := p.pin(name)
	if err != nil {
		return err
	}
	if err := pin.In(gpio.PullUp, gpio.RisingEdge); err != nil {
		return err
	}

	p.lock.Lock()
	p.watched[name] = pin
	p.lock.Unlock()

	go func() {
		log.Debug().Str("pin", name).Msg("Watching for rising edges")
		for pin.WaitForEdge(-1) {
			handler()
		}
		log.Warn().Str("pin", name).Msg("Edge watcher stopped")
	}()
	return nil
}

// Halt releases every watched pin.  On drivers where halting aborts
// WaitForEdge this also ends the watcher goroutines.
func (p *PeriphPins) Halt() error {
	p.lock.Lock()
	defer p.lock.Unlock()

	var firstErr error
	for name, pin := range p.watched {
		if err := pin.Halt(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to halt pin %s: %w", name, err)
		}
		delete(p.watched, name)
	}
	return firstErr
}
