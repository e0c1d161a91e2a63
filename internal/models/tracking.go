package models

import (
	"time"

	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/geo"
)

// SeedMessage - текст первой записи таймлайна при ленивом создании трекинга.
const SeedMessage = "Order placed"

type Coordinate struct {
	Lat float64
	Lng float64
}

func (c Coordinate) Validate() error {
	if !geo.ValidCoordinate(c.Lat, c.Lng) {
		return errs.Newf(errs.KindInvalidCoordinate, "coordinate out of range: lat=%v lng=%v", c.Lat, c.Lng)
	}
	return nil
}

type Location struct {
	Lat       float64
	Lng       float64
	UpdatedAt time.Time
	Speed     *float64
	Heading   *float64
}

func (l Location) Coordinate() Coordinate {
	return Coordinate{Lat: l.Lat, Lng: l.Lng}
}

func (l Location) Validate() error {
	return l.Coordinate().Validate()
}

type ETA struct {
	WindowStart     time.Time
	WindowEnd       time.Time
	DistanceMeters  int64
	DurationSeconds int64
}

type TimelineEntry struct {
	Stage   Status
	Time    time.Time
	Message *string
}

// TrackingRecord is the live state of one order. Values are treated as immutable:
// every mutation goes through a With*/Transition method that returns a new record.
type TrackingRecord struct {
	OrderID string
	Status  Status

	Timeline []TimelineEntry

	StaffLocation  *Location
	DriverLocation *Location
	UserLocation   *Location

	ETA *ETA

	IsDriverStationary bool

	LastUpdate time.Time
	CreatedAt  time.Time
}

// NewSeedRecord builds the initial record for an order that has no tracking yet.
func NewSeedRecord(order *Order, now time.Time) *TrackingRecord {
	status := order.Status
	if !status.Valid() {
		status = StatusPreparing
	}
	placedAt := order.CreatedAt
	if placedAt.IsZero() || placedAt.After(now) {
		placedAt = now
	}
	msg := SeedMessage

	rec := &TrackingRecord{
		OrderID: order.ID,
		Status:  status,
		Timeline: []TimelineEntry{{
			Stage:   status,
			Time:    placedAt,
			Message: &msg,
		}},
		LastUpdate: now,
		CreatedAt:  now,
	}
	if order.DeliveryAddress != nil && order.DeliveryAddress.Location != nil {
		c := *order.DeliveryAddress.Location
		if c.Validate() == nil {
			rec.UserLocation = &Location{Lat: c.Lat, Lng: c.Lng, UpdatedAt: now}
		}
	}
	return rec
}

// Clone returns a deep copy; timeline entries and locations are not shared.
func (r *TrackingRecord) Clone() *TrackingRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Timeline = make([]TimelineEntry, len(r.Timeline))
	for i, e := range r.Timeline {
		out.Timeline[i] = TimelineEntry{Stage: e.Stage, Time: e.Time, Message: cloneString(e.Message)}
	}
	out.StaffLocation = r.StaffLocation.clone()
	out.DriverLocation = r.DriverLocation.clone()
	out.UserLocation = r.UserLocation.clone()
	if r.ETA != nil {
		eta := *r.ETA
		out.ETA = &eta
	}
	return &out
}

// WithDriverLocation replaces (not merges) the driver location.
func (r *TrackingRecord) WithDriverLocation(loc Location, now time.Time) (*TrackingRecord, error) {
	if err := loc.Validate(); err != nil {
		return nil, err
	}
	out := r.Clone()
	if loc.UpdatedAt.IsZero() {
		loc.UpdatedAt = now
	}
	out.DriverLocation = loc.clone()
	out.LastUpdate = now
	return out, nil
}

func (r *TrackingRecord) WithETA(eta ETA, now time.Time) *TrackingRecord {
	out := r.Clone()
	out.ETA = &eta
	out.LastUpdate = now
	return out
}

func (r *TrackingRecord) WithDriverStationary(stationary bool, now time.Time) *TrackingRecord {
	out := r.Clone()
	out.IsDriverStationary = stationary
	out.LastUpdate = now
	return out
}

func (l *Location) clone() *Location {
	if l == nil {
		return nil
	}
	out := *l
	out.Speed = cloneFloat(l.Speed)
	out.Heading = cloneFloat(l.Heading)
	return &out
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
