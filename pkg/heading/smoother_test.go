package heading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource replays readings in order, then repeats the last one.
type scriptedSource struct {
	lock     sync.Mutex
	readings []float64
	errs     map[int]error
	calls    int
}

func (s *scriptedSource) ReadHeading() (float64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	i := s.calls
	s.calls++
	if err := s.errs[i]; err != nil {
		return 0, err
	}
	if i >= len(s.readings) {
		i = len(s.readings) - 1
	}
	return s.readings[i], nil
}

func (s *scriptedSource) numCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls
}

func TestCycleAveragesFiveSamplesWithPauses(t *testing.T) {
	src := &scriptedSource{readings: []float64{10, 20, 30, 40, 50}}
	var pauses []time.Duration
	s := NewSmoother(src, NewState())
	s.Sleep = func(d time.Duration) { pauses = append(pauses, d) }

	avg, err := s.cycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30.0, avg)
	assert.Equal(t, 5, src.numCalls())
	assert.Equal(t, []time.Duration{
		DefaultSamplePause, DefaultSamplePause, DefaultSamplePause, DefaultSamplePause, DefaultSamplePause,
	}, pauses)
}

func TestCycleIsAPlainMean(t *testing.T) {
	// Readings either side of north average to south; no circular mean.
	src := &scriptedSource{readings: []float64{358, 2, 358, 2, 360}}
	s := NewSmoother(src, NewState())
	s.Sleep = func(time.Duration) {}

	avg, err := s.cycle(context.Background())
	require.NoError(t, err)
	// 360 normalises to 0.
	assert.InDelta(t, (358+2+358+2+0)/5.0, avg, 1e-9)
}

func TestCycleStopsOnReadError(t *testing.T) {
	boom := errors.New("i/o timeout")
	src := &scriptedSource{readings: []float64{1, 2, 3}, errs: map[int]error{2: boom}}
	s := NewSmoother(src, NewState())
	s.Sleep = func(time.Duration) {}

	_, err := s.cycle(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, src.numCalls())
}

func TestLoopPublishesAndStops(t *testing.T) {
	src := &scriptedSource{
		readings: []float64{100, 100, 100, 100, 100, 200},
		// The first window fails part way and must not be published.
		errs: map[int]error{1: errors.New("glitch")},
	}
	state := NewState()
	s := NewSmoother(src, state)
	s.SamplePause = 100 * time.Microsecond

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go s.Loop(ctx, &wg)

	require.NoError(t, state.WaitReady(ctxWithTimeout(t, time.Second)))
	require.Eventually(t, func() bool {
		h, _ := state.Current()
		return h == 200
	}, time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}

func ctxWithTimeout(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
