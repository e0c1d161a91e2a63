package eta

import (
	"math"
	"testing"
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEstimator() *Estimator {
	return NewWithClock(func() time.Time { return fixedNow })
}

func TestEstimate_SamePoint(t *testing.T) {
	p := models.Coordinate{Lat: 25.2048, Lng: 55.2708}
	got, err := newTestEstimator().Estimate(p, p)
	require.NoError(t, err)

	require.Equal(t, int64(0), got.DistanceMeters)
	require.Equal(t, int64(0), got.DurationSeconds)
	require.Equal(t, fixedNow, got.WindowStart)
	require.Equal(t, 10*time.Minute, got.WindowEnd.Sub(got.WindowStart))
}

func TestEstimate_Symmetric(t *testing.T) {
	a := models.Coordinate{Lat: 25.2048, Lng: 55.2708}
	b := models.Coordinate{Lat: 25.0657, Lng: 55.1713}
	e := newTestEstimator()

	ab, err := e.Estimate(a, b)
	require.NoError(t, err)
	ba, err := e.Estimate(b, a)
	require.NoError(t, err)
	require.Equal(t, ab.DistanceMeters, ba.DistanceMeters)
	require.Equal(t, ab.DurationSeconds, ba.DurationSeconds)
}

func TestEstimate_Formula(t *testing.T) {
	// один градус долготы на экваторе, ~111.19 км
	from := models.Coordinate{Lat: 0, Lng: 0}
	to := models.Coordinate{Lat: 0, Lng: 1}

	got, err := newTestEstimator().Estimate(from, to)
	require.NoError(t, err)

	km := 6371.0 * math.Pi / 180
	wantMinutes := int64(math.Ceil(km / 40 * 60))
	require.Equal(t, int64(167), wantMinutes)
	require.Equal(t, int64(math.Round(km*1000)), got.DistanceMeters)
	require.Equal(t, wantMinutes*60, got.DurationSeconds)
	require.Equal(t, fixedNow.Add(time.Duration(wantMinutes)*time.Minute), got.WindowStart)
	require.Equal(t, got.WindowStart.Add(10*time.Minute), got.WindowEnd)
}

func TestEstimate_ShortTripRoundsUp(t *testing.T) {
	// ~111 м, меньше минуты пути, округляется до одной минуты
	got, err := newTestEstimator().Estimate(models.Coordinate{Lat: 0, Lng: 0}, models.Coordinate{Lat: 0.001, Lng: 0})
	require.NoError(t, err)
	require.Equal(t, int64(60), got.DurationSeconds)
	require.InDelta(t, 111, got.DistanceMeters, 1)
}

func TestEstimate_InvalidCoordinate(t *testing.T) {
	e := newTestEstimator()
	ok := models.Coordinate{Lat: 1, Lng: 1}

	for _, bad := range []models.Coordinate{
		{Lat: 91, Lng: 0},
		{Lat: 0, Lng: 181},
		{Lat: math.NaN(), Lng: 0},
	} {
		_, err := e.Estimate(ok, bad)
		require.True(t, errs.Is(err, errs.KindInvalidCoordinate))
		_, err = e.Estimate(bad, ok)
		require.True(t, errs.Is(err, errs.KindInvalidCoordinate))
	}
}
