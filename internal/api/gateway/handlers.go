package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/BearBump/LiveTrack/internal/realtime"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

func (g *Gateway) join(ctx context.Context, c *conn, raw json.RawMessage) {
	if _, anon := c.identity.(models.Anonymous); anon && !g.opts.AllowGuest {
		g.reject(c, codeUnauthorized, "Authentication required to track orders")
		return
	}
	var req roomRequest
	if !g.decode(c, raw, &req, codeMissingData) {
		return
	}

	added, err := g.registry.Subscribe(req.OrderID, c)
	if err != nil {
		g.reject(c, codeUnavailable, "Connection is closing")
		return
	}
	c.reply(replyJoined, joinedPayload{OrderID: req.OrderID, Message: "Successfully joined tracking room"})
	if added {
		g.presence(ctx, c, req.OrderID, realtime.EventUserJoined)
	}
}

func (g *Gateway) leave(ctx context.Context, c *conn, raw json.RawMessage) {
	var req roomRequest
	if !g.decode(c, raw, &req, codeMissingData) {
		return
	}
	removed := g.registry.Unsubscribe(req.OrderID, c.id)
	c.reply(replyLeft, joinedPayload{OrderID: req.OrderID, Message: "Left tracking room"})
	if removed {
		g.presence(ctx, c, req.OrderID, realtime.EventUserLeft)
	}
}

func (g *Gateway) relayDriverLocation(ctx context.Context, c *conn, raw json.RawMessage) {
	if !g.operator(c) {
		return
	}
	var req driverLocationRelay
	if !g.decode(c, raw, &req, codeInvalidCoordinate) {
		return
	}
	if !g.allowLocation(ctx, c) {
		g.reject(c, codeRateLimited, "Too many location updates, slow down")
		return
	}

	now := g.opts.Now()
	loc := models.Location{Lat: *req.Lat, Lng: *req.Lng, Speed: req.Speed, Heading: req.Heading, UpdatedAt: now}
	g.relay(ctx, c, req.OrderID, realtime.EventDriverLocation, realtime.NewDriverLocationPayload(req.OrderID, loc, now))
}

func (g *Gateway) relayStatus(ctx context.Context, c *conn, raw json.RawMessage) {
	if !g.operator(c) {
		return
	}
	var req statusRelay
	if !g.decode(c, raw, &req, codeInvalidStatus) {
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		g.reject(c, codeInvalidStatus, fmt.Sprintf("Unknown status %q", req.Status))
		return
	}
	g.relay(ctx, c, req.OrderID, realtime.EventOrderStatus, realtime.NewOrderStatusPayload(req.OrderID, status, req.Message, g.opts.Now()))
}

func (g *Gateway) relayETA(ctx context.Context, c *conn, raw json.RawMessage) {
	if !g.operator(c) {
		return
	}
	var req etaRelay
	if !g.decode(c, raw, &req, codeBadFrame) {
		return
	}
	eta := models.ETA{
		WindowStart:     req.WindowStart,
		WindowEnd:       req.WindowEnd,
		DistanceMeters:  req.DistanceMeters,
		DurationSeconds: req.DurationSeconds,
	}
	g.relay(ctx, c, req.OrderID, realtime.EventETAUpdate, realtime.NewETAPayload(req.OrderID, eta, g.opts.Now()))
}

// relay goes to the whole room, sender included, and is not persisted.
func (g *Gateway) relay(ctx context.Context, c *conn, orderID string, kind realtime.EventKind, payload any) {
	if _, err := g.broadcaster.Publish(ctx, orderID, kind, payload); err != nil {
		slog.Warn("socket relay failed", "order_id", orderID, "conn_id", c.id, "kind", string(kind), "error", err)
		g.reject(c, codeUnavailable, "Realtime delivery is unavailable")
	}
}

func (g *Gateway) operator(c *conn) bool {
	switch id := c.identity.(type) {
	case models.Authenticated:
		if id.IsOperator() {
			return true
		}
		g.reject(c, codeForbidden, "Only drivers and staff can push updates")
		return false
	default:
		g.reject(c, codeUnauthorized, "Authentication required")
		return false
	}
}

// allowLocation fails open: a Redis outage must not stop live positions.
func (g *Gateway) allowLocation(ctx context.Context, c *conn) bool {
	if g.opts.Limiter == nil || g.opts.LocationRelaysPerMinute <= 0 {
		return true
	}
	ok, n, err := g.opts.Limiter.Allow(ctx, "ws:"+c.id, g.opts.LocationRelaysPerMinute, time.Minute)
	if err != nil {
		slog.Warn("location rate limit check failed", "conn_id", c.id, "error", err)
		return true
	}
	if !ok {
		slog.Debug("location relay rate limited", "conn_id", c.id, "count", n)
	}
	return ok
}

// decode unmarshals and validates the payload; on failure it replies with an error event.
// A missing required field is MISSING_DATA, any other rule failure gets invalidCode.
func (g *Gateway) decode(c *conn, raw json.RawMessage, dst any, invalidCode string) bool {
	if len(raw) == 0 || string(raw) == "null" {
		g.reject(c, codeMissingData, "Payload is required")
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		g.reject(c, codeBadFrame, "Malformed payload")
		return false
	}
	if err := g.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			if verrs[0].Tag() == "required" {
				g.reject(c, codeMissingData, fmt.Sprintf("%s is required", verrs[0].Field()))
				return false
			}
			g.reject(c, invalidCode, fmt.Sprintf("%s is invalid", verrs[0].Field()))
			return false
		}
		g.reject(c, codeBadFrame, "Malformed payload")
		return false
	}
	return true
}
