package realtime

import (
	"time"

	"github.com/BearBump/LiveTrack/internal/models"
)

type EventKind string

const (
	EventOrderStatus      EventKind = "order_status"
	EventDriverLocation   EventKind = "driver_location"
	EventETAUpdate        EventKind = "eta_update"
	EventDriverStationary EventKind = "driver_stationary"
	EventUserJoined       EventKind = "user_joined"
	EventUserLeft         EventKind = "user_left"
)

// Envelope is the frame every subscriber receives.
type Envelope struct {
	Type      EventKind `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

type OrderStatusPayload struct {
	OrderID   string        `json:"orderId"`
	Status    models.Status `json:"status"`
	Message   *string       `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

type DriverLocationPayload struct {
	OrderID   string    `json:"orderId"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     *float64  `json:"speed,omitempty"`
	Heading   *float64  `json:"heading,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type ETAPayload struct {
	OrderID         string    `json:"orderId"`
	WindowStart     time.Time `json:"windowStart"`
	WindowEnd       time.Time `json:"windowEnd"`
	DistanceMeters  int64     `json:"distanceMeters"`
	DurationSeconds int64     `json:"durationSeconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// DriverStationaryPayload is produced by the worker when the stationary flag flips.
type DriverStationaryPayload struct {
	OrderID            string    `json:"orderId"`
	IsDriverStationary bool      `json:"isDriverStationary"`
	Timestamp          time.Time `json:"timestamp"`
}

type PresencePayload struct {
	OrderID   string    `json:"orderId"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewOrderStatusPayload(orderID string, status models.Status, message *string, at time.Time) OrderStatusPayload {
	return OrderStatusPayload{OrderID: orderID, Status: status, Message: message, Timestamp: at}
}

func NewDriverLocationPayload(orderID string, loc models.Location, at time.Time) DriverLocationPayload {
	return DriverLocationPayload{
		OrderID:   orderID,
		Lat:       loc.Lat,
		Lng:       loc.Lng,
		Speed:     loc.Speed,
		Heading:   loc.Heading,
		Timestamp: at,
	}
}

func NewETAPayload(orderID string, eta models.ETA, at time.Time) ETAPayload {
	return ETAPayload{
		OrderID:         orderID,
		WindowStart:     eta.WindowStart,
		WindowEnd:       eta.WindowEnd,
		DistanceMeters:  eta.DistanceMeters,
		DurationSeconds: eta.DurationSeconds,
		Timestamp:       at,
	}
}
