// Package governor implements the sampled control loop (spec.md §4.5,
// component C5): it reads GPU busy/temperature, computes a target GFX
// frequency through hysteresis and burst detection, picks the matching
// voltage off the safe-point curve, and commands an SmuClient. It never
// touches the transport, mailbox, or façade wiring directly.
package governor

import (
	"context"
	"fmt"
	"math"
	"time"
)

// samplesPerCycle is the number of fast-sampling-phase reads per control
// cycle: 64 to fill the shift register plus one extra current-iteration
// reading (spec.md §4.5 step 1).
const samplesPerCycle = 65

// Governor runs the sampled state machine described in spec.md §4.5.
type Governor struct {
	cfg     Config
	sampler GpuSampler
	smu     SmuClient
	log     Logger

	minFreq   uint32
	maxFreq   uint32
	freqStep  uint32
	burstStep uint32

	st state

	// sleep is overridden in tests to avoid real wall-clock delays.
	sleep func(context.Context, time.Duration)
}

// New constructs a Governor and issues the one initial change_freq(min_freq)
// call spec.md §4.5 requires so hardware matches the starting state.
func New(cfg Config, sampler GpuSampler, smu SmuClient, log Logger) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = nopLogger{}
	}

	minFreq := cfg.SafePoints.FirstFrequency()
	if dmin := sampler.MinEngineClockMHz(); dmin > minFreq {
		minFreq = dmin
	}
	maxFreq := cfg.SafePoints.LastFrequency()
	if dmax := sampler.MaxEngineClockMHz(); dmax < maxFreq {
		maxFreq = dmax
	}
	if minFreq > maxFreq {
		return nil, fmt.Errorf("governor: device clock bounds [%d,%d] exclude the safe-point curve", minFreq, maxFreq)
	}

	adjMs := cfg.AdjustmentInterval.Seconds() * 1000.0
	g := &Governor{
		cfg:       cfg,
		sampler:   sampler,
		smu:       smu,
		log:       log,
		minFreq:   minFreq,
		maxFreq:   maxFreq,
		freqStep:  uint32(math.Round(cfg.RampRateMHzPerMs * adjMs)),
		burstStep: uint32(math.Round(cfg.RampRateBurstMHzPerMs * adjMs)),
		st: state{
			currFreq:         minFreq,
			targetFreq:       minFreq,
			maxFreqEffective: maxFreq,
		},
		sleep: realSleep,
	}

	if err := g.changeFreq(minFreq); err != nil {
		return nil, fmt.Errorf("governor: initial change_freq(%d): %w", minFreq, err)
	}

	return g, nil
}

func realSleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes control cycles until ctx is cancelled. spec.md §5 states the
// core loop has no cancellation mechanism of its own ("stopping the process
// is the termination mechanism"); ctx is the idiomatic Go substitute so
// tests and a supervising main() can stop it cleanly.
func (g *Governor) Run(ctx context.Context) error {
	for {
		if err := g.Step(ctx); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Step runs exactly one control cycle: the fast-sampling phase, burst
// detection, thermal management, target update, clamp, change decision,
// and the residual adjustment sleep (spec.md §4.5).
func (g *Governor) Step(ctx context.Context) error {
	for i := 0; i < samplesPerCycle; i++ {
		g.st.recordSample(g.sampler.PollActive())
		g.sleep(ctx, g.cfg.SamplingInterval)
		if ctx.Err() != nil {
			return nil
		}
	}

	averageLoad := g.st.averageLoad()
	burstLength := g.st.burstLength()
	burst := g.cfg.burstEnabled() && burstLength >= int(*g.cfg.BurstSamples)

	g.applyThermalManagement()
	g.updateTarget(averageLoad, burst)
	g.clampTarget()

	if err := g.applyChangeIfNeeded(burst); err != nil {
		return err
	}

	residual := g.cfg.AdjustmentInterval - time.Duration(samplesPerCycle)*g.cfg.SamplingInterval
	if residual > 0 {
		g.sleep(ctx, residual)
	}

	return nil
}

// applyThermalManagement implements spec.md §4.5 step 3.
func (g *Governor) applyThermalManagement() {
	if g.cfg.ThrottlingTempC == nil {
		return
	}

	temp := g.sampler.ReadTempC()

	if temp > *g.cfg.ThrottlingTempC && g.st.maxFreqEffective >= g.minFreq+g.freqStep {
		g.st.maxFreqEffective -= g.cfg.SignificantChangeMHz
		g.log.Warn("thermal throttling engaged", "temp_c", temp, "max_freq_effective", g.st.maxFreqEffective)
		return
	}

	if g.cfg.ThrottlingRecoveryTempC != nil && temp < *g.cfg.ThrottlingRecoveryTempC && g.st.maxFreqEffective != g.maxFreq {
		g.st.maxFreqEffective = g.maxFreq
		g.log.Info("thermal throttling recovered", "temp_c", temp, "max_freq_effective", g.st.maxFreqEffective)
	}
}

// updateTarget implements spec.md §4.5 step 4.
func (g *Governor) updateTarget(averageLoad float64, burst bool) {
	if burst {
		g.st.targetFreq += g.burstStep
		return
	}

	switch {
	case averageLoad > g.cfg.UpThreshold && g.st.status <= UpEvents:
		g.st.status += UpEvents
	case averageLoad < g.cfg.DownThreshold && g.st.currFreq > g.minFreq:
		g.st.status--
	case g.st.status < 0:
		g.st.status++
	case g.st.status > 0:
		g.st.status--
	}

	switch {
	case g.st.status <= -int32(g.cfg.DownEvents):
		// targetFreq-freqStep can be negative (e.g. a prior burst step left
		// targetFreq between minFreq and minFreq+freqStep): compute in a
		// wider signed type and floor at minFreq before narrowing back to
		// uint32, rather than letting it wrap around 2^32 and fool
		// clampTarget into reading it as "above maxFreqEffective".
		next := int64(g.st.targetFreq) - int64(g.freqStep)
		if next < int64(g.minFreq) {
			next = int64(g.minFreq)
		}
		g.st.targetFreq = uint32(next)
	case g.st.status >= UpEvents:
		g.st.targetFreq += g.freqStep
	}
}

// clampTarget implements spec.md §4.5 step 5.
func (g *Governor) clampTarget() {
	if g.st.targetFreq < g.minFreq {
		g.st.targetFreq = g.minFreq
	}
	if g.st.targetFreq > g.st.maxFreqEffective {
		g.st.targetFreq = g.st.maxFreqEffective
	}
}

// applyChangeIfNeeded implements spec.md §4.5 step 6.
func (g *Governor) applyChangeIfNeeded(burst bool) error {
	if g.st.targetFreq == g.st.currFreq {
		return nil
	}

	hitBounds := g.st.targetFreq == g.minFreq || g.st.targetFreq == g.st.maxFreqEffective
	bigChange := absDiff(g.st.currFreq, g.st.targetFreq) >= g.cfg.SignificantChangeMHz

	if !(burst || hitBounds || bigChange) {
		return nil
	}

	if err := g.changeFreq(g.st.targetFreq); err != nil {
		return err
	}
	g.st.currFreq = g.st.targetFreq
	g.st.status = 0
	return nil
}

// changeFreq issues the hardware change for f: look up its safe voltage,
// command voltage then frequency (voltage first, so the clock is never
// commanded above the safe voltage curve for any interval), then read back
// both for logging/verification (spec.md §4.5 "Issuing a hardware change").
func (g *Governor) changeFreq(f uint32) error {
	v, ok := g.cfg.SafePoints.VoltageFor(f)
	if !ok {
		return &BeyondMaxSafePointError{RequestedMHz: f}
	}

	if err := g.smu.ForceGfxVid(v); err != nil {
		return fmt.Errorf("governor: force_gfx_vid(%d): %w", v, err)
	}
	if err := g.smu.ForceGfxFreq(f); err != nil {
		return fmt.Errorf("governor: force_gfx_freq(%d): %w", f, err)
	}

	readFreq, err := g.smu.GetGfxFrequency()
	if err != nil {
		return fmt.Errorf("governor: get_gfx_frequency after change: %w", err)
	}
	readVid, err := g.smu.GetGfxVid()
	if err != nil {
		return fmt.Errorf("governor: get_gfx_vid after change: %w", err)
	}

	g.log.Info("frequency change applied",
		"requested_mhz", f, "requested_mv", v,
		"readback_mhz", readFreq, "readback_mv", readVid,
	)
	return nil
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// CurrFreq returns the current committed GFX frequency, for diagnostics.
func (g *Governor) CurrFreq() uint32 { return g.st.currFreq }

// TargetFreq returns the current target GFX frequency, for diagnostics.
func (g *Governor) TargetFreq() uint32 { return g.st.targetFreq }

// MaxFreqEffective returns the current thermally-adjusted ceiling.
func (g *Governor) MaxFreqEffective() uint32 { return g.st.maxFreqEffective }

// Status returns the current hysteresis counter, for diagnostics/tests.
func (g *Governor) Status() int32 { return g.st.status }
