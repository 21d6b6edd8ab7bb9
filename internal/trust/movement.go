package trust

import (
	"fmt"
	"math"
	"time"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/geo"
)

type movement struct {
	elapsed time.Duration
	// displacement is the distance left after crediting reported accuracy
	displacement float64
	// confidence in [MinConfidence, 1] scales movement penalties for poor fixes
	confidence float64
}

func (e *evaluator) movement(prev, cur domain.LocationReport) movement {
	raw := geo.Distance(prev.Location, cur.Location)
	credit := e.accuracyCredit(prev.ReportedAccuracyMeters) + e.accuracyCredit(cur.ReportedAccuracyMeters)

	confidence := 1.0
	worst := math.Max(prev.ReportedAccuracyMeters, cur.ReportedAccuracyMeters)
	if worst > e.config.PoorAccuracyMeters {
		confidence = math.Max(e.config.MinConfidence, e.config.PoorAccuracyMeters/worst)
	}

	return movement{
		elapsed:      cur.ClientTimestamp.Sub(prev.ClientTimestamp),
		displacement: math.Max(0, raw-credit),
		confidence:   confidence,
	}
}

func (e *evaluator) accuracyCredit(accuracy float64) float64 {
	if accuracy <= 0 || math.IsNaN(accuracy) {
		return 0
	}
	return math.Min(accuracy, e.config.AccuracyCreditCapMeters)
}

func validateReport(r domain.LocationReport) error {
	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: missing user id", domain.ErrInvalidReport)
	case !r.Location.Valid():
		return fmt.Errorf("%w: coordinate out of range (%v, %v)", domain.ErrInvalidReport, r.Location.Lat, r.Location.Lon)
	case r.ClientTimestamp.IsZero():
		return fmt.Errorf("%w: missing client timestamp", domain.ErrInvalidReport)
	case r.ServerReceivedAt.IsZero():
		return fmt.Errorf("%w: missing server receipt time", domain.ErrInvalidReport)
	case r.ReportedAccuracyMeters < 0 || math.IsNaN(r.ReportedAccuracyMeters):
		return fmt.Errorf("%w: negative accuracy", domain.ErrInvalidReport)
	}
	return nil
}
