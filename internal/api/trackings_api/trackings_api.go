// Package trackings_api serves the tracking HTTP endpoints under /api/tracking.
package trackings_api

import (
	"encoding/json"
	"net/http"

	"github.com/BearBump/LiveTrack/internal/auth"
	"github.com/BearBump/LiveTrack/internal/errs"
	"github.com/BearBump/LiveTrack/internal/models"
	"github.com/BearBump/LiveTrack/internal/services/trackings"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

type TrackingsAPI struct {
	svc      *trackings.Service
	validate *validator.Validate
}

func New(svc *trackings.Service) *TrackingsAPI {
	return &TrackingsAPI{svc: svc, validate: validator.New()}
}

// Routes expects the auth middleware to run before it.
func (a *TrackingsAPI) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requireIdentity)

	r.Post("/driver/update-location", a.UpdateDriverLocation)
	r.Post("/calculate-eta", a.CalculateETA)
	r.Get("/{orderId}", a.GetOrderTracking)
	r.Post("/{orderId}/update-status", a.UpdateOrderStatus)
	return r
}

// requireIdentity rejects anonymous callers before any input is looked at.
func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()).(models.Authenticated); !ok {
			writeError(w, r, errs.New(errs.KindUnauthorized, "no valid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *TrackingsAPI) GetOrderTracking(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	orderID := chi.URLParam(r, "orderId")

	view, err := a.svc.GetTracking(r.Context(), caller, orderID)
	if err != nil {
		writeError(w, r, err, "order_id", orderID, "user_id", models.UserIDOf(caller))
		return
	}
	writeJSON(w, http.StatusOK, toTrackingResponse(view))
}

func (a *TrackingsAPI) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	orderID := chi.URLParam(r, "orderId")

	var req updateStatusRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err, "order_id", orderID)
		return
	}

	rec, err := a.svc.UpdateStatus(r.Context(), caller, orderID, req.Status, req.Message)
	if err != nil {
		writeError(w, r, err, "order_id", orderID, "user_id", models.UserIDOf(caller))
		return
	}
	writeJSON(w, http.StatusOK, updateStatusResponse{
		Success:  true,
		Tracking: toRecordDTO(rec),
		Message:  "Order status updated",
	})
}

func (a *TrackingsAPI) UpdateDriverLocation(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())

	var req driverLocationRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err, "order_id", req.OrderID)
		return
	}

	_, err := a.svc.PushDriverLocation(r.Context(), caller, trackings.DriverLocationInput{
		OrderID: req.OrderID,
		Lat:     req.Lat,
		Lng:     req.Lng,
		Speed:   req.Speed,
		Heading: req.Heading,
	})
	if err != nil {
		writeError(w, r, err, "order_id", req.OrderID, "user_id", models.UserIDOf(caller))
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: "Driver location updated"})
}

func (a *TrackingsAPI) CalculateETA(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())

	var req calculateETARequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, r, err, "order_id", req.OrderID)
		return
	}

	estimate, persisted, err := a.svc.CalculateETA(r.Context(), caller, trackings.ETAInput{
		OrderID:        req.OrderID,
		DriverLocation: req.DriverLocation.toModel(),
		UserLocation:   req.UserLocation.toModel(),
	})
	if err != nil {
		writeError(w, r, err, "order_id", req.OrderID, "user_id", models.UserIDOf(caller))
		return
	}
	writeJSON(w, http.StatusOK, etaResponse{ETA: toETADTO(estimate), Persisted: persisted})
}

func (a *TrackingsAPI) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errs.Wrap(errs.KindMissingData, err, "decode body")
	}
	if err := a.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}
