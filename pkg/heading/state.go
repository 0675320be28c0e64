// Package heading smooths a noisy compass heading stream and turns it into
// differential motor speeds that steer toward a target heading.
package heading

import (
	"context"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tigerbot-team/orientbot/pkg/logging"
)

var log = logging.For("heading")

// State is the smoothed heading shared between the Smoother (sole writer) and
// the Controller.  Once ready it never becomes unready again.
type State struct {
	headingBits atomic.Uint64
	ready       atomic.Bool

	readyOnce sync.Once
	readyC    chan struct{}
}

func NewState() *State {
	return &State{
		readyC: make(chan struct{}),
	}
}

// Set publishes a new smoothed heading and marks the state ready.
func (s *State) Set(heading float64) {
	s.headingBits.Store(math.Float64bits(heading))
	s.ready.Store(true)
	s.readyOnce.Do(func() { close(s.readyC) })
}

// Current returns the latest smoothed heading and whether one exists yet.
func (s *State) Current() (heading float64, ready bool) {
	if !s.ready.Load() {
		return 0, false
	}
	return math.Float64frombits(s.headingBits.Load()), true
}

func (s *State) Ready() bool {
	return s.ready.Load()
}

// WaitReady blocks until the first smoothed heading has been published or ctx
// is done.
func (s *State) WaitReady(ctx context.Context) error {
	if s.ready.Load() {
		return nil
	}
	select {
	case <-s.readyC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
