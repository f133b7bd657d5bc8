package governor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSampler is a GpuSampler whose PollActive/ReadTempC return whatever the
// test last set, letting each test script a whole iteration's worth of
// samples with one assignment.
type fakeSampler struct {
	active             bool
	tempC              uint32
	minClock, maxClock uint32
}

func (f *fakeSampler) PollActive() bool          { return f.active }
func (f *fakeSampler) ReadTempC() uint32         { return f.tempC }
func (f *fakeSampler) MinEngineClockMHz() uint32 { return f.minClock }
func (f *fakeSampler) MaxEngineClockMHz() uint32 { return f.maxClock }

// fakeSmuClient records every forced value and answers get_* with whatever
// was last forced, exactly as spec.md §8's "mock that stores the last
// forced value" describes.
type fakeSmuClient struct {
	forcedFreq uint32
	forcedVid  uint32

	forceVidCalls  []uint32
	forceFreqCalls []uint32
}

func (f *fakeSmuClient) ForceGfxVid(mv uint32) error {
	f.forcedVid = mv
	f.forceVidCalls = append(f.forceVidCalls, mv)
	return nil
}

func (f *fakeSmuClient) ForceGfxFreq(mhz uint32) error {
	f.forcedFreq = mhz
	f.forceFreqCalls = append(f.forceFreqCalls, mhz)
	return nil
}

func (f *fakeSmuClient) GetGfxFrequency() (uint32, error) { return f.forcedFreq, nil }
func (f *fakeSmuClient) GetGfxVid() (uint32, error)       { return f.forcedVid, nil }

func noSleep(context.Context, time.Duration) {}

func baseConfig(t *testing.T) Config {
	t.Helper()
	sp, err := NewSafePoints(map[uint32]uint32{350: 700, 2000: 1000})
	require.NoError(t, err)

	return Config{
		SamplingInterval:      time.Millisecond,
		AdjustmentInterval:    20 * time.Millisecond,
		RampRateMHzPerMs:      1,
		RampRateBurstMHzPerMs: 200,
		SignificantChangeMHz:  100,
		UpThreshold:           0.95,
		DownThreshold:         0.80,
		DownEvents:            10,
		SafePoints:            sp,
	}
}

func newTestGovernor(t *testing.T, cfg Config, sampler *fakeSampler, smuClient *fakeSmuClient) *Governor {
	t.Helper()
	g, err := New(cfg, sampler, smuClient, nil)
	require.NoError(t, err)
	g.sleep = noSleep
	return g
}

// TestSteadyIdleNoChangeFromColdStart matches spec.md §8 scenario 1: all 65
// samples inactive, burst_length = 0 (no contiguous active samples), and no
// hardware change is issued because the governor is already at min_freq.
// Per the precise precedence rules in spec.md §4.5 step 4, the "average
// load < down_thresh" rule additionally requires curr_freq > min_freq,
// which is false on a cold start, so status stays at 0 rather than -1.
func TestSteadyIdleNoChangeFromColdStart(t *testing.T) {
	cfg := baseConfig(t)
	burst := uint8(48)
	cfg.BurstSamples = &burst

	sampler := &fakeSampler{active: false, tempC: 50, minClock: 200, maxClock: 2200}
	smuClient := &fakeSmuClient{}
	g := newTestGovernor(t, cfg, sampler, smuClient)

	// New() already issued the initial change_freq(min_freq); reset the
	// call log so we only observe this iteration's behavior.
	smuClient.forceFreqCalls = nil
	smuClient.forceVidCalls = nil

	require.NoError(t, g.Step(context.Background()))

	assert.EqualValues(t, 350, g.CurrFreq())
	assert.Equal(t, int32(0), g.Status())
	assert.Empty(t, smuClient.forceFreqCalls, "no frequency change should be issued while already at min_freq")
}

// TestFullLoadBurstFromColdStart matches spec.md §8 scenario 2.
func TestFullLoadBurstFromColdStart(t *testing.T) {
	cfg := baseConfig(t)
	burst := uint8(48)
	cfg.BurstSamples = &burst

	sampler := &fakeSampler{active: true, tempC: 50, minClock: 200, maxClock: 2200}
	smuClient := &fakeSmuClient{}
	g := newTestGovernor(t, cfg, sampler, smuClient)

	require.NoError(t, g.Step(context.Background()))

	assert.EqualValues(t, 2000, g.CurrFreq())
	require.NotEmpty(t, smuClient.forceFreqCalls)
	assert.EqualValues(t, 2000, smuClient.forceFreqCalls[len(smuClient.forceFreqCalls)-1])
	assert.EqualValues(t, 1000, smuClient.forceVidCalls[len(smuClient.forceVidCalls)-1])
}

// TestSawtooth matches spec.md §8 scenario 3: one full-load iteration
// raises status to UP_EVENTS and steps target up by freq_step; a following
// idle iteration only brings status back down by one, not enough on its
// own to trigger a down-step.
func TestSawtooth(t *testing.T) {
	cfg := baseConfig(t)
	cfg.DownEvents = 10
	cfg.RampRateMHzPerMs = 10 // freq_step=200, comfortably >= significant_change so one iteration commits

	sampler := &fakeSampler{active: true, tempC: 50, minClock: 200, maxClock: 2200}
	smuClient := &fakeSmuClient{}
	g := newTestGovernor(t, cfg, sampler, smuClient)

	require.NoError(t, g.Step(context.Background()))
	assert.Equal(t, int32(0), g.Status()) // status resets to 0 once a change is issued
	assert.EqualValues(t, g.CurrFreq(), g.TargetFreq())
	firstFreq := g.CurrFreq()
	assert.Greater(t, firstFreq, uint32(350))

	sampler.active = false
	require.NoError(t, g.Step(context.Background()))
	// One idle iteration only moves status by -1; not enough to reach
	// -down_events(10), so no further change is issued.
	assert.EqualValues(t, firstFreq, g.CurrFreq())
}

// TestSawtoothReachesDownEventsAfterTenIdleIterations extends scenario 3:
// after >=10 consecutive idle iterations with curr_freq > min_freq, status
// reaches -down_events and a down-step fires.
func TestSawtoothReachesDownEventsAfterTenIdleIterations(t *testing.T) {
	cfg := baseConfig(t)
	cfg.DownEvents = 10
	cfg.RampRateMHzPerMs = 10 // freq_step=200, comfortably >= significant_change so one iteration commits

	sampler := &fakeSampler{active: true, tempC: 50, minClock: 200, maxClock: 2200}
	smuClient := &fakeSmuClient{}
	g := newTestGovernor(t, cfg, sampler, smuClient)

	require.NoError(t, g.Step(context.Background()))
	raisedFreq := g.CurrFreq()
	require.Greater(t, raisedFreq, uint32(350))

	sampler.active = false
	for i := 0; i < 10; i++ {
		require.NoError(t, g.Step(context.Background()))
	}

	assert.Less(t, g.CurrFreq(), raisedFreq)
}

// TestThermalTrip matches spec.md §8 scenario 4: temperature readings
// [70, 90, 90, 70] with throttling_temp=85, throttling_recovery_temp=75,
// significant_change=100, starting from max_freq_effective=2000.
func TestThermalTrip(t *testing.T) {
	cfg := baseConfig(t)
	throttleTemp := uint32(85)
	recoveryTemp := uint32(75)
	cfg.ThrottlingTempC = &throttleTemp
	cfg.ThrottlingRecoveryTempC = &recoveryTemp

	sampler := &fakeSampler{active: false, tempC: 70, minClock: 200, maxClock: 2200}
	smuClient := &fakeSmuClient{}
	g := newTestGovernor(t, cfg, sampler, smuClient)
	require.EqualValues(t, 2000, g.MaxFreqEffective())

	temps := []uint32{70, 90, 90, 70}
	expected := []uint32{2000, 1900, 1800, 2000}

	for i, temp := range temps {
		sampler.tempC = temp
		require.NoError(t, g.Step(context.Background()))
		assert.EqualValuesf(t, expected[i], g.MaxFreqEffective(), "after reading #%d (temp=%d)", i+1, temp)
	}
}

// TestDownStepNeverUnderflowsBelowMinFreq covers a misaligned burst step: a
// prior burst (whose step size is unrelated to the ordinary freq_step) can
// leave targetFreq/currFreq between min_freq and min_freq+freq_step, so a
// later down-step's targetFreq-freq_step goes negative. The floor at
// min_freq must hold rather than wrapping around uint32 and being read by
// clampTarget as "above max_freq_effective".
func TestDownStepNeverUnderflowsBelowMinFreq(t *testing.T) {
	cfg := baseConfig(t)
	cfg.RampRateMHzPerMs = 20 // freq_step=400, larger than the gap to min_freq
	cfg.DownEvents = 1

	sampler := &fakeSampler{active: false, tempC: 50, minClock: 200, maxClock: 2200}
	smuClient := &fakeSmuClient{}
	g := newTestGovernor(t, cfg, sampler, smuClient)

	// Simulate a prior burst step landing between min_freq (350) and
	// min_freq+freq_step (750).
	g.st.currFreq = 360
	g.st.targetFreq = 360

	require.NoError(t, g.Step(context.Background()))

	assert.EqualValues(t, g.minFreq, g.CurrFreq())
	assert.GreaterOrEqual(t, g.TargetFreq(), g.minFreq)
}

// TestBeyondMaxSafePointIsUnreachableThroughTheClamp exercises invariant 3:
// after any completed iteration, min_freq <= target_freq <=
// max_freq_effective <= max_freq, so changeFreq is never asked for a
// frequency beyond the safe-point curve as long as configuration invariants
// hold.
func TestBeyondMaxSafePointIsUnreachableThroughTheClamp(t *testing.T) {
	cfg := baseConfig(t)
	burst := uint8(1)
	cfg.BurstSamples = &burst
	cfg.RampRateBurstMHzPerMs = 1000 // deliberately huge burst step

	sampler := &fakeSampler{active: true, tempC: 50, minClock: 200, maxClock: 2200}
	smuClient := &fakeSmuClient{}
	g := newTestGovernor(t, cfg, sampler, smuClient)

	for i := 0; i < 5; i++ {
		require.NoError(t, g.Step(context.Background()))
		assert.GreaterOrEqual(t, g.TargetFreq(), g.minFreq)
		assert.LessOrEqual(t, g.TargetFreq(), g.MaxFreqEffective())
		assert.LessOrEqual(t, g.MaxFreqEffective(), g.maxFreq)
	}
}
