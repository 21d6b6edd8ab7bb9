package trust

import (
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/session"
)

// Flag identifies a heuristic that fired for a report. Flags are for server logs
// only and must never be returned to clients.
type Flag string

const (
	FlagSpeed          Flag = "speed"
	FlagTeleport       Flag = "teleport"
	FlagDeviceMismatch Flag = "device_mismatch"
	FlagClockSkew      Flag = "clock_skew"
	FlagStaleReport    Flag = "stale_report"
	FlagReplayedReport Flag = "replayed_report"
	FlagBelowThreshold Flag = "below_threshold"
)

// Action is the kind of operation a verdict gates
type Action string

const (
	ActionClaim    Action = "claim"
	ActionActivity Action = "activity"
)

// Verdict is the outcome of evaluating one report
type Verdict struct {
	Accepted bool
	// CanReclaim reports whether the score clears the bar for taking an owned territory
	CanReclaim bool
	Score      int
	Reasons    []Flag
}

// Has reports whether flag fired
func (v Verdict) Has(flag Flag) bool {
	for _, r := range v.Reasons {
		if r == flag {
			return true
		}
	}
	return false
}

// Evaluator scores location reports against the reporting user's session
//
//go:generate mockgen -source=evaluator.go -destination=../mocks/trust_evaluator.go -package=mocks -mock_names=Evaluator=MockTrustEvaluator
type Evaluator interface {
	// Evaluate records report in the user's session, updates the trust score and
	// returns the verdict for action
	Evaluate(report domain.LocationReport, action Action) (Verdict, error)
}

type evaluator struct {
	config  Config
	tracker session.Tracker
	log     *zap.Logger
}

// NewEvaluator creates an evaluator over tracker
func NewEvaluator(cfg Config, tracker session.Tracker) (Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trust config: %w", err)
	}
	return &evaluator{
		config:  cfg,
		tracker: tracker,
		log:     logger.Named("trust"),
	}, nil
}

// Evaluate scores report and returns the verdict for action
func (e *evaluator) Evaluate(report domain.LocationReport, action Action) (Verdict, error) {
	if err := validateReport(report); err != nil {
		return Verdict{}, err
	}

	var flags []Flag
	snapshot, err := e.tracker.Update(report.UserID, report.ServerReceivedAt, func(s *session.TrustState) error {
		flags = e.score(s, report)
		return nil
	})
	if err != nil {
		return Verdict{}, err
	}

	verdict := e.verdict(snapshot.TrustScore, flags, action)
	e.log.Debug("Report evaluated",
		zap.String("userID", report.UserID),
		zap.String("action", string(action)),
		zap.Int("score", verdict.Score),
		zap.Bool("accepted", verdict.Accepted),
		zap.Any("reasons", verdict.Reasons))

	return verdict, nil
}

func (e *evaluator) threshold(action Action) int {
	if action == ActionActivity {
		return e.config.ActivityThreshold
	}
	return e.config.ClaimThreshold
}

func (e *evaluator) verdict(score int, flags []Flag, action Action) Verdict {
	stale := false
	for _, f := range flags {
		if f == FlagStaleReport {
			stale = true
		}
	}

	v := Verdict{
		Score:      score,
		Accepted:   !stale && score >= e.threshold(action),
		CanReclaim: !stale && score >= e.config.ReclaimThreshold,
	}
	if !stale && !v.Accepted {
		flags = append(flags, FlagBelowThreshold)
	}

	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })
	v.Reasons = flags
	return v
}

// score runs every check against the session, applies the score update and records
// the report. It is called under the user's session lock.
func (e *evaluator) score(s *session.TrustState, report domain.LocationReport) []Flag {
	// A resubmitted report keeps the score it already earned
	if s.IsReplay(report) {
		return []Flag{FlagReplayedReport}
	}
	if s.IsStale(report) {
		return []Flag{FlagStaleReport}
	}

	var flags []Flag
	// Lowest multiplier among fired flags, 1 means clean
	multiplier := 1.0
	penalize := func(flag Flag, confidence float64) {
		flags = append(flags, flag)
		multiplier = math.Min(multiplier, 1-(1-e.config.PenaltyFactor)*confidence)
	}

	if e.config.MaxClockSkew > 0 && report.ClientTimestamp.Sub(report.ServerReceivedAt) > e.config.MaxClockSkew {
		s.Violations.ClockSkew++
		penalize(FlagClockSkew, 1)
	}

	fingerprint := report.DeviceFingerprint()
	if s.Len() > 0 && s.LastDeviceFingerprint != "" && fingerprint != s.LastDeviceFingerprint {
		s.Violations.DeviceMismatch++
		penalize(FlagDeviceMismatch, 1)
	}

	if prev, ok := s.Last(); ok {
		m := e.movement(prev, report)

		if m.elapsed <= e.config.TeleportMinInterval && m.displacement > e.config.TeleportJitterMeters {
			s.Violations.Teleport++
			penalize(FlagTeleport, m.confidence)
		}

		if m.elapsed > 0 {
			if m.displacement/m.elapsed.Seconds() > e.config.SpeedLimitMetersPerSecond {
				s.ConsecutiveSpeedAnomalies++
				if s.ConsecutiveSpeedAnomalies >= e.config.SpeedConsecutiveReports {
					s.Violations.Speed++
					penalize(FlagSpeed, m.confidence)
				}
			} else {
				s.ConsecutiveSpeedAnomalies = 0
			}
		}
	}

	if len(flags) == 0 {
		s.SetScore(s.TrustScore + e.config.CleanStep)
	} else {
		s.SetScore(int(math.Floor(float64(s.TrustScore) * multiplier)))
	}

	s.Append(report)
	return flags
}
