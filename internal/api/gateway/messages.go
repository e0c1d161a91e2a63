package gateway

import (
	"encoding/json"
	"time"
)

// Inbound frame: {"type": "...", "payload": {...}}.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

const (
	cmdJoin           = "join_order_room"
	cmdLeave          = "leave_order_room"
	cmdDriverLocation = "driver_location_update"
	cmdStatus         = "status_update"
	cmdETA            = "eta_update"
	cmdPing           = "ping"
)

// Replies that go only to the sender.
const (
	replyJoined = "joined_order_room"
	replyLeft   = "left_order_room"
	replyError  = "error"
	replyPong   = "pong"
)

// Codes of the error reply; the first ones match the HTTP API.
const (
	codeUnauthorized      = "UNAUTHORIZED"
	codeForbidden         = "FORBIDDEN"
	codeMissingData       = "MISSING_DATA"
	codeInvalidStatus     = "INVALID_STATUS"
	codeInvalidCoordinate = "INVALID_COORDINATE"
	codeUnavailable       = "UNAVAILABLE"
	codeRateLimited       = "RATE_LIMITED"
	codeUnknownEvent      = "UNKNOWN_EVENT"
	codeBadFrame          = "BAD_FRAME"
)

type roomRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type driverLocationRelay struct {
	OrderID string   `json:"orderId" validate:"required"`
	Lat     *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng     *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
	Speed   *float64 `json:"speed,omitempty"`
	Heading *float64 `json:"heading,omitempty"`
}

type statusRelay struct {
	OrderID string  `json:"orderId" validate:"required"`
	Status  string  `json:"status" validate:"required"`
	Message *string `json:"message,omitempty"`
}

type etaRelay struct {
	OrderID         string    `json:"orderId" validate:"required"`
	WindowStart     time.Time `json:"windowStart" validate:"required"`
	WindowEnd       time.Time `json:"windowEnd" validate:"required,gtefield=WindowStart"`
	DistanceMeters  int64     `json:"distanceMeters" validate:"gte=0"`
	DurationSeconds int64     `json:"durationSeconds" validate:"gte=0"`
}

type joinedPayload struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type pongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}
