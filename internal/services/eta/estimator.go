package eta

import (
	"math"
	"time"

	"github.com/BearBump/LiveTrack/internal/geo"
	"github.com/BearBump/LiveTrack/internal/models"
)

const (
	// AverageSpeedKmh - грубая средняя скорость курьера, менять нельзя: клиенты сверяются с этим значением.
	AverageSpeedKmh = 40.0
	WindowBuffer    = 10 * time.Minute
)

type Estimator struct {
	now func() time.Time
}

func New() *Estimator {
	return &Estimator{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock is used by tests and by the worker which stamps a whole batch with one time.
func NewWithClock(now func() time.Time) *Estimator {
	return &Estimator{now: now}
}

// Estimate returns the arrival window for a straight-line trip between the two points.
func (e *Estimator) Estimate(from, to models.Coordinate) (models.ETA, error) {
	if err := from.Validate(); err != nil {
		return models.ETA{}, err
	}
	if err := to.Validate(); err != nil {
		return models.ETA{}, err
	}

	km := geo.DistanceKm(from.Lat, from.Lng, to.Lat, to.Lng)
	minutes := int64(math.Ceil(km / AverageSpeedKmh * 60))

	start := e.now().Add(time.Duration(minutes) * time.Minute)
	return models.ETA{
		WindowStart:     start,
		WindowEnd:       start.Add(WindowBuffer),
		DistanceMeters:  int64(math.Round(km * 1000)),
		DurationSeconds: minutes * 60,
	}, nil
}
