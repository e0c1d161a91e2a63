package pgtracking

import (
	"encoding/json"
	"time"

	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/pkg/errors"
)

// JSONB-представления; формат колонок не зависит от models.

type locationDTO struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
}

type etaDTO struct {
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	DistanceMeters  int64     `json:"distance_meters"`
	DurationSeconds int64     `json:"duration_seconds"`
}

func encodeLocation(l *models.Location) ([]byte, error) {
	if l == nil {
		return nil, nil
	}
	b, err := json.Marshal(locationDTO{
		Lat:       l.Lat,
		Lng:       l.Lng,
		UpdatedAt: l.UpdatedAt.UTC(),
		Speed:     l.Speed,
		Heading:   l.Heading,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal location")
	}
	return b, nil
}

func decodeLocation(b []byte) (*models.Location, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var d locationDTO
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, errors.Wrap(err, "unmarshal location")
	}
	return &models.Location{Lat: d.Lat, Lng: d.Lng, UpdatedAt: d.UpdatedAt, Speed: d.Speed, Heading: d.Heading}, nil
}

func encodeETA(e *models.ETA) ([]byte, error) {
	if e == nil {
		return nil, nil
	}
	b, err := json.Marshal(etaDTO{
		WindowStart:     e.WindowStart.UTC(),
		WindowEnd:       e.WindowEnd.UTC(),
		DistanceMeters:  e.DistanceMeters,
		DurationSeconds: e.DurationSeconds,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal eta")
	}
	return b, nil
}

func decodeETA(b []byte) (*models.ETA, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var d etaDTO
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, errors.Wrap(err, "unmarshal eta")
	}
	return &models.ETA{
		WindowStart:     d.WindowStart,
		WindowEnd:       d.WindowEnd,
		DistanceMeters:  d.DistanceMeters,
		DurationSeconds: d.DurationSeconds,
	}, nil
}

// row - колонки order_trackings в порядке trackingColumns.
type row struct {
	orderID        string
	status         string
	staffLocation  []byte
	driverLocation []byte
	userLocation   []byte
	eta            []byte
	stationary     bool
	lastUpdate     time.Time
	createdAt      time.Time
}

const trackingColumns = `order_id, status, staff_location, driver_location, user_location, eta, is_driver_stationary, last_update, created_at`

func (r *row) scanTargets() []any {
	return []any{
		&r.orderID, &r.status, &r.staffLocation, &r.driverLocation, &r.userLocation,
		&r.eta, &r.stationary, &r.lastUpdate, &r.createdAt,
	}
}

func (r *row) toRecord() (*models.TrackingRecord, error) {
	rec := &models.TrackingRecord{
		OrderID:            r.orderID,
		Status:             models.Status(r.status),
		IsDriverStationary: r.stationary,
		LastUpdate:         r.lastUpdate.UTC(),
		CreatedAt:          r.createdAt.UTC(),
	}
	var err error
	if rec.StaffLocation, err = decodeLocation(r.staffLocation); err != nil {
		return nil, err
	}
	if rec.DriverLocation, err = decodeLocation(r.driverLocation); err != nil {
		return nil, err
	}
	if rec.UserLocation, err = decodeLocation(r.userLocation); err != nil {
		return nil, err
	}
	if rec.ETA, err = decodeETA(r.eta); err != nil {
		return nil, err
	}
	return rec, nil
}

// recordArgs returns values for status..last_update, in column order.
func recordArgs(rec *models.TrackingRecord) ([]any, error) {
	staff, err := encodeLocation(rec.StaffLocation)
	if err != nil {
		return nil, err
	}
	driver, err := encodeLocation(rec.DriverLocation)
	if err != nil {
		return nil, err
	}
	user, err := encodeLocation(rec.UserLocation)
	if err != nil {
		return nil, err
	}
	eta, err := encodeETA(rec.ETA)
	if err != nil {
		return nil, err
	}
	return []any{string(rec.Status), staff, driver, user, eta, rec.IsDriverStationary, rec.LastUpdate.UTC()}, nil
}
