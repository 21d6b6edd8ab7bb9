package trust

import (
	"fmt"
	"time"
)

// Config holds the anti-cheat tuning constants
type Config struct {
	// ClaimThreshold is the minimum score to claim an unclaimed territory
	ClaimThreshold int `mapstructure:"claim_threshold"`
	// ReclaimThreshold is the minimum score to take over an owned territory
	ReclaimThreshold int `mapstructure:"reclaim_threshold"`
	// ActivityThreshold gates lighter actions
	ActivityThreshold int `mapstructure:"activity_threshold"`

	// CleanStep is added to the score for each clean report
	CleanStep int `mapstructure:"clean_step"`
	// PenaltyFactor multiplies the score for a flagged report
	PenaltyFactor float64 `mapstructure:"penalty_factor"`

	SpeedLimitMetersPerSecond float64       `mapstructure:"speed_limit_mps"`
	SpeedConsecutiveReports   int           `mapstructure:"speed_consecutive_reports"`
	TeleportMinInterval       time.Duration `mapstructure:"teleport_min_interval"`
	TeleportJitterMeters      float64       `mapstructure:"teleport_jitter_meters"`
	MaxClockSkew              time.Duration `mapstructure:"max_clock_skew"`

	// PoorAccuracyMeters is the accuracy above which movement checks lose confidence
	PoorAccuracyMeters float64 `mapstructure:"poor_accuracy_meters"`
	// AccuracyCreditCapMeters caps how much reported accuracy may excuse displacement
	AccuracyCreditCapMeters float64 `mapstructure:"accuracy_credit_cap_meters"`
	// MinConfidence is the lowest weight applied to a movement penalty
	MinConfidence float64 `mapstructure:"min_confidence"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		ClaimThreshold:            40,
		ReclaimThreshold:          70,
		ActivityThreshold:         20,
		CleanStep:                 5,
		PenaltyFactor:             0.5,
		SpeedLimitMetersPerSecond: 50,
		SpeedConsecutiveReports:   2,
		TeleportMinInterval:       time.Second,
		TeleportJitterMeters:      50,
		MaxClockSkew:              30 * time.Second,
		PoorAccuracyMeters:        100,
		AccuracyCreditCapMeters:   25,
		MinConfidence:             0.25,
	}
}

// Validate checks that thresholds are coherent
func (c Config) Validate() error {
	for name, v := range map[string]int{
		"claim_threshold":    c.ClaimThreshold,
		"reclaim_threshold":  c.ReclaimThreshold,
		"activity_threshold": c.ActivityThreshold,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be within [0,100], got %d", name, v)
		}
	}
	if c.ReclaimThreshold <= c.ClaimThreshold {
		return fmt.Errorf("reclaim_threshold (%d) must be greater than claim_threshold (%d)", c.ReclaimThreshold, c.ClaimThreshold)
	}
	if c.ActivityThreshold > c.ClaimThreshold {
		return fmt.Errorf("activity_threshold (%d) must not exceed claim_threshold (%d)", c.ActivityThreshold, c.ClaimThreshold)
	}
	if c.PenaltyFactor <= 0 || c.PenaltyFactor >= 1 {
		return fmt.Errorf("penalty_factor must be within (0,1), got %v", c.PenaltyFactor)
	}
	if c.CleanStep < 0 {
		return fmt.Errorf("clean_step must not be negative")
	}
	if c.SpeedLimitMetersPerSecond <= 0 {
		return fmt.Errorf("speed_limit_mps must be positive")
	}
	if c.SpeedConsecutiveReports < 1 {
		return fmt.Errorf("speed_consecutive_reports must be at least 1")
	}
	if c.MinConfidence <= 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within (0,1], got %v", c.MinConfidence)
	}
	if c.PoorAccuracyMeters <= 0 {
		return fmt.Errorf("poor_accuracy_meters must be positive")
	}
	return nil
}
