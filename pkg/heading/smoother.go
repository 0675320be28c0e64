package heading

import (
	"context"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tigerbot-team/orientbot/pkg/heading/angle"
)

const (
	DefaultSamples     = 5
	DefaultSamplePause = 2 * time.Millisecond
)

// Source supplies single instantaneous compass readings in degrees.
type Source interface {
	ReadHeading() (float64, error)
}

// Smoother repeatedly averages a window of raw readings from Source and
// publishes the result to State.
type Smoother struct {
	Source      Source
	State       *State
	Samples     int
	SamplePause time.Duration

	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)

	window []float64
}

func NewSmoother(source Source, state *State) *Smoother {
	return &Smoother{
		Source:      source,
		State:       state,
		Samples:     DefaultSamples,
		SamplePause: DefaultSamplePause,
		Sleep:       time.Sleep,
	}
}

// Loop runs the sampling cycle until ctx is done.  Nothing else stops it.
func (s *Smoother) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer log.Info().Msg("Heading smoother exited")

	var published bool
	for ctx.Err() == nil {
		avg, err := s.cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// The partial window is dropped; start a fresh one.
			log.Warn().Err(err).Msg("Failed to read heading sample, discarding window")
			s.sleep(s.SamplePause)
			continue
		}
		s.State.Set(avg)
		if !published {
			log.Info().Float64("heading", avg).Msg("First smoothed heading available")
			published = true
		}
		log.Trace().Float64("heading", avg).Msg("Smoothed heading")
	}
}

// cycle takes one window of samples, pausing after each, and returns their
// mean.
func (s *Smoother) cycle(ctx context.Context) (float64, error) {
	n := s.Samples
	if n <= 0 {
		n = DefaultSamples
	}
	s.window = s.window[:0]
	for len(s.window) < n {
		h, err := s.Source.ReadHeading()
		if err != nil {
			return 0, err
		}
		s.window = append(s.window, angle.Normalize(h))
		s.sleep(s.SamplePause)
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	return stat.Mean(s.window, nil), nil
}

func (s *Smoother) sleep(d time.Duration) {
	if s.Sleep == nil {
		time.Sleep(d)
		return
	}
	s.Sleep(d)
}
