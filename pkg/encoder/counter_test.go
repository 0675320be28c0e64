package encoder

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePins struct {
	lock         sync.Mutex
	pullUps      []string
	handlers     map[string][]func()
	configureErr error
	watchErr     error
}

func newFakePins() *fakePins {
	return &fakePins{handlers: map[string][]func(){}}
}

func (f *fakePins) ConfigurePullUp(pin string) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.configureErr != nil {
		return f.configureErr
	}
	f.pullUps = append(f.pullUps, pin)
	return nil
}

func (f *fakePins) OnRisingEdge(pin string, handler func()) error {
	f.lock.Lock()
	defer f.lock.Unlock()
	if f.watchErr != nil {
		return f.watchErr
	}
	f.handlers[pin] = append(f.handlers[pin], handler)
	return nil
}

func (f *fakePins) numHandlers(pin string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.handlers[pin])
}

// fire delivers n rising edges on pin.
func (f *fakePins) fire(pin string, n int) {
	f.lock.Lock()
	handlers := append([]func(){}, f.handlers[pin]...)
	f.lock.Unlock()
	for i := 0; i < n; i++ {
		for _, h := range handlers {
			h()
		}
	}
}

const (
	leftPin  = "P1"
	rightPin = "P2"
)

func enabledCounter(t *testing.T, sections int, circumference float64) (*Counter, *fakePins) {
	t.Helper()
	pins := newFakePins()
	c := New(pins)
	require.NoError(t, c.Enable(leftPin, rightPin, sections, circumference))
	return c, pins
}

func TestPulseCountingMatchesEdges(t *testing.T) {
	for _, sections := range []int{1, 3, 8, 20} {
		for _, n := range []int{0, 1, 7, 8, 9, 16, 101} {
			c, pins := enabledCounter(t, sections, 100)
			pins.fire(leftPin, n)

			assert.Equal(t, int64(n), c.PulseCount(Left), "sections=%d n=%d", sections, n)
			assert.Equal(t, int64(0), c.PulseCount(Right))
			snap := c.Snapshot()
			assert.Equal(t, int64(n/sections), snap.LeftRevolutions)
			assert.Equal(t, n%sections, snap.LeftPulses)
			assert.Less(t, snap.LeftPulses, sections)
		}
	}
}

func TestSidesAreIndependent(t *testing.T) {
	c, pins := enabledCounter(t, 8, 100)
	pins.fire(leftPin, 10)
	pins.fire(rightPin, 3)

	want := RotationCount{LeftRevolutions: 1, LeftPulses: 2, RightRevolutions: 0, RightPulses: 3}
	if diff := cmp.Diff(want, c.Snapshot()); diff != "" {
		t.Fatalf("Unexpected snapshot (-want +got):\n%s", diff)
	}
}

func TestDistance(t *testing.T) {
	for _, tc := range []struct {
		sections      int
		circumference float64
		edges         int
	}{
		{8, 131.94689145077132, 0},
		{8, 131.94689145077132, 5},
		{8, 131.94689145077132, 83},
		{20, 210, 45},
		{3, 0.1, 10},
	} {
		c, pins := enabledCounter(t, tc.sections, tc.circumference)
		pins.fire(rightPin, tc.edges)
		expected := float64(c.PulseCount(Right)) * tc.circumference / float64(tc.sections)
		assert.Equal(t, expected, c.Distance(Right))
		assert.Equal(t, 0.0, c.Distance(Left))
	}
}

func TestDistanceBeforeEnable(t *testing.T) {
	c := New(newFakePins())
	assert.Equal(t, 0.0, c.Distance(Left))
	assert.Equal(t, int64(0), c.PulseCount(Right))
}

func TestEdgesWhileDisabledAreIgnored(t *testing.T) {
	c, pins := enabledCounter(t, 8, 100)
	pins.fire(leftPin, 5)
	c.Disable()
	assert.False(t, c.Enabled())

	before := c.PulseCount(Left)
	pins.fire(leftPin, 50)
	pins.fire(rightPin, 50)
	assert.Equal(t, before, c.PulseCount(Left))
	assert.Equal(t, RotationCount{}, c.Snapshot())
}

func TestDisableAndReenableResets(t *testing.T) {
	c, pins := enabledCounter(t, 8, 100)
	pins.fire(leftPin, 17)
	pins.fire(rightPin, 9)

	c.Disable()
	require.NoError(t, c.Enable(leftPin, rightPin, 8, 100))
	assert.Equal(t, RotationCount{}, c.Snapshot())

	// Handlers were not registered twice.
	assert.Equal(t, 1, pins.numHandlers(leftPin))
	assert.Equal(t, 1, pins.numHandlers(rightPin))
	pins.fire(leftPin, 1)
	assert.Equal(t, int64(1), c.PulseCount(Left))
}

func TestEnableIsIdempotent(t *testing.T) {
	c, pins := enabledCounter(t, 8, 100)
	pins.fire(leftPin, 12)

	require.NoError(t, c.Enable("P7", "P8", 20, 999))

	sections, circumference := c.Geometry()
	assert.Equal(t, 8, sections)
	assert.Equal(t, 100.0, circumference)
	assert.Equal(t, int64(12), c.PulseCount(Left))
	assert.Equal(t, 1, pins.numHandlers(leftPin))
	assert.Equal(t, 0, pins.numHandlers("P7"))
	assert.Equal(t, []string{leftPin, rightPin}, pins.pullUps)
}

func TestReenableOnOtherPins(t *testing.T) {
	c, pins := enabledCounter(t, 8, 100)
	c.Disable()
	require.NoError(t, c.Enable("P7", "P8", 8, 100))

	// The old pins' handlers are still registered but no longer count.
	pins.fire(leftPin, 4)
	assert.Equal(t, int64(0), c.PulseCount(Left))
	pins.fire("P7", 4)
	assert.Equal(t, int64(4), c.PulseCount(Left))
}

func TestResetKeepsEnabledAndGeometry(t *testing.T) {
	c, pins := enabledCounter(t, 8, 100)
	pins.fire(leftPin, 30)
	pins.fire(rightPin, 30)

	c.Reset()
	assert.Equal(t, RotationCount{}, c.Snapshot())
	assert.True(t, c.Enabled())
	sections, circumference := c.Geometry()
	assert.Equal(t, 8, sections)
	assert.Equal(t, 100.0, circumference)

	pins.fire(rightPin, 9)
	assert.Equal(t, RotationCount{RightRevolutions: 1, RightPulses: 1}, c.Snapshot())

	// Reset is also fine while disabled.
	c.Disable()
	c.Reset()
	assert.False(t, c.Enabled())
}

func TestEnableRejectsBadGeometry(t *testing.T) {
	pins := newFakePins()
	c := New(pins)
	for _, tc := range []struct {
		sections      int
		circumference float64
	}{
		{0, 100},
		{-8, 100},
		{8, 0},
		{8, -1},
	} {
		err := c.Enable(leftPin, rightPin, tc.sections, tc.circumference)
		assert.ErrorIs(t, err, ErrInvalidGeometry, "sections=%d circumference=%v", tc.sections, tc.circumference)
	}
	assert.False(t, c.Enabled())
	assert.Empty(t, pins.pullUps)
}

func TestEnablePinFailureLeavesDisabled(t *testing.T) {
	pins := newFakePins()
	boom := errors.New("boom")
	pins.watchErr = boom
	c := New(pins)

	err := c.Enable(leftPin, rightPin, 8, 100)
	assert.ErrorIs(t, err, boom)
	assert.False(t, c.Enabled())

	pins.watchErr = nil
	require.NoError(t, c.Enable(leftPin, rightPin, 8, 100))
	assert.True(t, c.Enabled())
}

func TestConcurrentEdgesAndReads(t *testing.T) {
	const perSide = 5000
	c, pins := enabledCounter(t, 8, 100)

	var wg sync.WaitGroup
	for _, pin := range []string{leftPin, rightPin} {
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(pin string) {
				defer wg.Done()
				pins.fire(pin, perSide/4)
			}(pin)
		}
	}
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := c.Snapshot()
			if snap.LeftPulses >= 8 || snap.RightPulses >= 8 {
				t.Errorf("Sub-revolution count escaped its range: %+v", snap)
				return
			}
			_ = c.Distance(Left)
		}
	}()
	wg.Wait()
	close(stop)
	<-readerDone

	assert.Equal(t, int64(perSide), c.PulseCount(Left))
	assert.Equal(t, int64(perSide), c.PulseCount(Right))
}

func TestSideString(t *testing.T) {
	assert.Equal(t, "left", Left.String())
	assert.Equal(t, "right", Right.String())
	assert.Equal(t, "unknown(7)", Side(7).String())
	assert.Panics(t, func() { New(newFakePins()).PulseCount(Side(7)) })
}
