package combat

import (
	"fmt"
	"time"
)

// StressRange is an inclusive integer range stress is drawn from.
type StressRange struct {
	Min int
	Max int
}

// Config holds the tunables of the engine.
type Config struct {
	AttackWindup  time.Duration
	BlockActive   time.Duration
	BlockRecovery time.Duration
	StunDuration  time.Duration

	BaseDamage       float64
	PainMultiplier   float64
	BlockedStress    StressRange // applied to an attacker whose swing was blocked
	LandedStress     StressRange // applied to a target that was hit
	AggravatedStress float64     // aggravated stress added to a target that was hit

	OffensiveProcPPM float64
	DefensiveProcPPM float64
	// ProcInterval is the representative gap between proc opportunities. It
	// is the elapsed time assumed for a fighter's first check.
	ProcInterval time.Duration
}

// Baseline proc tuning: about one proc per ten representative attempts.
const (
	BaselineProcChance   = 0.10
	BaselineProcInterval = 3 * time.Second
)

// DefaultConfig returns the standard combat timings.
func DefaultConfig() Config {
	ppm := RateForChance(BaselineProcChance, BaselineProcInterval)
	return Config{
		AttackWindup:     3 * time.Second,
		BlockActive:      1200 * time.Millisecond,
		BlockRecovery:    2500 * time.Millisecond,
		StunDuration:     5 * time.Second,
		BaseDamage:       10.0,
		PainMultiplier:   1.0,
		BlockedStress:    StressRange{Min: 1, Max: 2},
		LandedStress:     StressRange{Min: 3, Max: 4},
		AggravatedStress: 1,
		OffensiveProcPPM: ppm,
		DefensiveProcPPM: ppm,
		ProcInterval:     BaselineProcInterval,
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"attack windup", c.AttackWindup},
		{"block active window", c.BlockActive},
		{"block recovery window", c.BlockRecovery},
		{"stun duration", c.StunDuration},
		{"proc interval", c.ProcInterval},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if c.BaseDamage < 0 {
		return fmt.Errorf("base damage must not be negative, got %v", c.BaseDamage)
	}
	if c.PainMultiplier < 0 {
		return fmt.Errorf("pain multiplier must not be negative, got %v", c.PainMultiplier)
	}
	for name, r := range map[string]StressRange{"blocked": c.BlockedStress, "landed": c.LandedStress} {
		if r.Min < 0 || r.Max < r.Min {
			return fmt.Errorf("%s stress range [%d,%d] is invalid", name, r.Min, r.Max)
		}
	}
	if c.AggravatedStress < 0 {
		return fmt.Errorf("aggravated stress must not be negative, got %v", c.AggravatedStress)
	}
	if c.OffensiveProcPPM < 0 || c.DefensiveProcPPM < 0 {
		return fmt.Errorf("proc rates must not be negative")
	}
	return nil
}
