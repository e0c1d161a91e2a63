package models

import (
	"testing"
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/stretchr/testify/require"
)

func TestNewSeedRecord(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	placed := now.Add(-10 * time.Minute)

	rec := NewSeedRecord(&Order{
		ID:        "ord-1",
		Status:    StatusReadyForHandover,
		CreatedAt: placed,
		DeliveryAddress: &Address{
			Location: &Coordinate{Lat: 25.2, Lng: 55.27},
		},
	}, now)

	require.Equal(t, "ord-1", rec.OrderID)
	require.Equal(t, StatusReadyForHandover, rec.Status)
	require.Len(t, rec.Timeline, 1)
	require.Equal(t, StatusReadyForHandover, rec.Timeline[0].Stage)
	require.Equal(t, placed, rec.Timeline[0].Time)
	require.Equal(t, SeedMessage, *rec.Timeline[0].Message)
	require.NotNil(t, rec.UserLocation)
	require.Equal(t, 25.2, rec.UserLocation.Lat)
	require.Nil(t, rec.DriverLocation)
	require.Nil(t, rec.ETA)
	require.False(t, rec.IsDriverStationary)
}

func TestNewSeedRecord_Defaults(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := NewSeedRecord(&Order{ID: "ord-2", Status: "weird", CreatedAt: now.Add(time.Hour)}, now)
	require.Equal(t, StatusPreparing, rec.Status)
	require.Equal(t, now, rec.Timeline[0].Time)
	require.Nil(t, rec.UserLocation)

	rec = NewSeedRecord(&Order{
		ID:              "ord-3",
		DeliveryAddress: &Address{Location: &Coordinate{Lat: 120, Lng: 0}},
	}, now)
	require.Nil(t, rec.UserLocation)
	require.Equal(t, now, rec.Timeline[0].Time)
}

func TestClone_Independent(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	speed := 12.5
	rec := NewSeedRecord(&Order{ID: "ord-1", Status: StatusOnTheWay}, now)
	rec, err := rec.WithDriverLocation(Location{Lat: 1, Lng: 2, Speed: &speed}, now)
	require.NoError(t, err)
	rec = rec.WithETA(ETA{DistanceMeters: 100}, now)

	cp := rec.Clone()
	cp.Timeline[0].Stage = StatusCancelled
	*cp.Timeline[0].Message = "mutated"
	cp.DriverLocation.Lat = 50
	*cp.DriverLocation.Speed = 99
	cp.ETA.DistanceMeters = 1

	require.Equal(t, StatusOnTheWay, rec.Timeline[0].Stage)
	require.Equal(t, SeedMessage, *rec.Timeline[0].Message)
	require.Equal(t, 1.0, rec.DriverLocation.Lat)
	require.Equal(t, 12.5, *rec.DriverLocation.Speed)
	require.Equal(t, int64(100), rec.ETA.DistanceMeters)

	var nilRec *TrackingRecord
	require.Nil(t, nilRec.Clone())
}

func TestWithDriverLocation(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewSeedRecord(&Order{ID: "ord-1"}, now)

	heading := 90.0
	next, err := rec.WithDriverLocation(Location{Lat: 25.1, Lng: 55.1, Heading: &heading}, now.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, now.Add(time.Second), next.DriverLocation.UpdatedAt)
	require.Equal(t, 90.0, *next.DriverLocation.Heading)

	// замена, а не слияние
	next, err = next.WithDriverLocation(Location{Lat: 25.2, Lng: 55.2}, now.Add(2*time.Second))
	require.NoError(t, err)
	require.Nil(t, next.DriverLocation.Heading)
	require.Equal(t, 25.2, next.DriverLocation.Lat)

	_, err = rec.WithDriverLocation(Location{Lat: -91, Lng: 0}, now)
	require.True(t, errs.Is(err, errs.KindInvalidCoordinate))
	require.Nil(t, rec.DriverLocation)
}

func TestWithETAAndStationary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewSeedRecord(&Order{ID: "ord-1"}, now)

	eta := ETA{WindowStart: now, WindowEnd: now.Add(10 * time.Minute), DistanceMeters: 1500, DurationSeconds: 180}
	next := rec.WithETA(eta, now.Add(time.Minute))
	require.Equal(t, eta, *next.ETA)
	require.Nil(t, rec.ETA)

	st := next.WithDriverStationary(true, now.Add(2*time.Minute))
	require.True(t, st.IsDriverStationary)
	require.False(t, next.IsDriverStationary)
	require.Equal(t, now.Add(2*time.Minute), st.LastUpdate)
}

func TestIdentity(t *testing.T) {
	var id Identity = Authenticated{UserID: "u1", Roles: []string{RoleDriver}}
	a, ok := id.(Authenticated)
	require.True(t, ok)
	require.True(t, a.IsOperator())
	require.True(t, a.HasRole(RoleCustomer, RoleDriver))
	require.False(t, a.HasRole(RoleAdmin))
	require.Equal(t, "u1", UserIDOf(id))

	require.False(t, Authenticated{UserID: "u2", Roles: []string{RoleCustomer}}.IsOperator())
	require.Equal(t, "", UserIDOf(Anonymous{}))
}
