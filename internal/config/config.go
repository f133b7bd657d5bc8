// Package config loads the TOML configuration file described in spec.md §6
// and turns it into a validated governor.Config. It never talks to
// hardware; internal/pcidiscover and internal/gpusampler do that.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/cskgov/cyanfreqd/internal/governor"
)

// raw mirrors the TOML file's shape. Every field is optional in the file;
// fields the file leaves out keep the defaults below.
type raw struct {
	SamplingIntervalMs   uint32            `toml:"sampling_interval_ms"`
	AdjustmentIntervalMs uint32            `toml:"adjustment_interval_ms"`
	RampRate             float64           `toml:"ramp_rate"`
	RampRateBurst        float64           `toml:"ramp_rate_burst"`
	BurstSamples         *uint8            `toml:"burst_samples"`
	SignificantChange    uint32            `toml:"significant_change"`
	UpThresh             float64           `toml:"up_thresh"`
	DownThresh           float64           `toml:"down_thresh"`
	DownEvents           int16             `toml:"down_events"`
	ThrottlingTemp       *uint32           `toml:"throttling_temp"`
	ThrottlingRecovery   *uint32           `toml:"throttling_recovery_temp"`
	SafePoints           map[uint32]uint32 `toml:"safe_points"`
}

// defaults mirrors the values spec.md §6 lists as each field's default.
func defaults() raw {
	return raw{
		SamplingIntervalMs:   1,
		AdjustmentIntervalMs: 100,
		RampRate:             4,
		RampRateBurst:        40,
		SignificantChange:    100,
		UpThresh:             0.90,
		DownThresh:           0.60,
		DownEvents:           20,
		SafePoints:           map[uint32]uint32{350: 700, 2000: 1000},
	}
}

// Load reads and parses the TOML file at path, merges it over the documented
// defaults, and validates the result into a governor.Config. A safe_points
// table in the file replaces the default curve rather than adding to it. An
// empty path returns the defaults unmerged.
func Load(path string) (governor.Config, error) {
	cfg := defaults()
	defaultSafePoints := cfg.SafePoints
	cfg.SafePoints = nil

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return governor.Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return governor.Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	if cfg.SafePoints == nil {
		cfg.SafePoints = defaultSafePoints
	}

	safePoints, err := governor.NewSafePoints(cfg.SafePoints)
	if err != nil {
		return governor.Config{}, err
	}

	gc := governor.Config{
		SamplingInterval:        time.Duration(cfg.SamplingIntervalMs) * time.Millisecond,
		AdjustmentInterval:      time.Duration(cfg.AdjustmentIntervalMs) * time.Millisecond,
		RampRateMHzPerMs:        cfg.RampRate,
		RampRateBurstMHzPerMs:   cfg.RampRateBurst,
		BurstSamples:            cfg.BurstSamples,
		SignificantChangeMHz:    cfg.SignificantChange,
		UpThreshold:             cfg.UpThresh,
		DownThreshold:           cfg.DownThresh,
		DownEvents:              cfg.DownEvents,
		ThrottlingTempC:         cfg.ThrottlingTemp,
		ThrottlingRecoveryTempC: cfg.ThrottlingRecovery,
		SafePoints:              safePoints,
	}

	if err := gc.Validate(); err != nil {
		return governor.Config{}, err
	}
	return gc, nil
}
