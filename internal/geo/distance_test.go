package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistanceKm_SamePoint(t *testing.T) {
	require.Equal(t, 0.0, DistanceKm(25.2048, 55.2708, 25.2048, 55.2708))
}

func TestDistanceKm_Symmetric(t *testing.T) {
	ab := DistanceKm(25.2048, 55.2708, 24.4539, 54.3773)
	ba := DistanceKm(24.4539, 54.3773, 25.2048, 55.2708)
	require.InDelta(t, ab, ba, 1e-9)
}

func TestDistanceKm_KnownPairs(t *testing.T) {
	// Дубай -> Абу-Даби, около 123 км по прямой.
	require.InDelta(t, 123.0, DistanceKm(25.2048, 55.2708, 24.4539, 54.3773), 2.0)

	// один градус долготы на экваторе
	require.InDelta(t, 111.19, DistanceKm(0, 0, 0, 1), 0.01)
}

func TestDistanceMeters(t *testing.T) {
	require.InDelta(t, DistanceKm(0, 0, 0, 1)*1000, DistanceMeters(0, 0, 0, 1), 1e-6)
}

func TestValidCoordinate(t *testing.T) {
	require.True(t, ValidCoordinate(0, 0))
	require.True(t, ValidCoordinate(-90, -180))
	require.True(t, ValidCoordinate(90, 180))
	require.False(t, ValidCoordinate(90.0001, 0))
	require.False(t, ValidCoordinate(0, -180.5))
	require.False(t, ValidCoordinate(math.NaN(), 0))
	require.False(t, ValidCoordinate(0, math.Inf(1)))
}
